package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Service provides web search
type Service interface {
	Available() bool
	SearchSummary(ctx context.Context, query string) (string, error)
}

// Result is one formatted search hit
type Result struct {
	Position int     `json:"position"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Tavily implements Service against the Tavily REST API, caching summaries
// per query
type Tavily struct {
	apiKey     string
	maxResults int
	httpClient *http.Client
	cache      *cache.Cache
	logger     *logrus.Logger
}

// NewTavily creates the search service. With no API key the service stays
// constructed but reports unavailable.
func NewTavily(cfg *config.TavilyConfig, cacheCfg *config.CacheConfig, logger *logrus.Logger) *Tavily {
	t := &Tavily{
		apiKey:     cfg.APIKey,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	if cacheCfg.Enabled {
		t.cache = cache.New(cacheCfg.TTL, cacheCfg.TTL*2)
	}
	if t.apiKey == "" {
		logger.Warn("Tavily API key not provided, web search disabled")
	}
	return t
}

// Available reports whether search is configured
func (t *Tavily) Available() bool {
	return t.apiKey != ""
}

// SearchSummary performs a search and formats the answer plus the top results
// into a text block suitable for a chat reply
func (t *Tavily) SearchSummary(ctx context.Context, query string) (string, error) {
	if !t.Available() {
		return "", fmt.Errorf("tavily search not configured")
	}

	if t.cache != nil {
		if val, found := t.cache.Get(query); found {
			entry := val.(*models.SearchEntry)
			t.logger.WithFields(logrus.Fields{
				"query": query,
				"age":   time.Since(entry.CreatedAt),
			}).Debug("Search cache hit")
			return entry.Summary, nil
		}
	}

	reqBody := map[string]interface{}{
		"api_key":             t.apiKey,
		"query":               query,
		"max_results":         t.maxResults,
		"include_answer":      true,
		"include_raw_content": false,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	t.logger.WithField("query", query).Debug("Sending Tavily search request")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse search response: %w", err)
	}

	summary := formatSummary(query, parsed.Answer, parsed.Results)

	if t.cache != nil {
		t.cache.SetDefault(query, &models.SearchEntry{
			Query:     query,
			Summary:   summary,
			CreatedAt: time.Now(),
		})
	}

	t.logger.WithFields(logrus.Fields{
		"query":   query,
		"results": len(parsed.Results),
	}).Info("Search completed")

	return summary, nil
}

func formatSummary(query, answer string, results []struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}) string {
	var sb strings.Builder

	if answer != "" {
		sb.WriteString(answer)
		sb.WriteString("\n")
	}

	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "No title"
		}
		fmt.Fprintf(&sb, "\n%d. **%s**\n%s\n", i+1, title, snippet(r.Content, 280))
		if r.URL != "" {
			fmt.Fprintf(&sb, "%s\n", r.URL)
		}
	}

	if sb.Len() == 0 {
		return fmt.Sprintf("No results found for '%s'.", query)
	}
	return strings.TrimSpace(sb.String())
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
