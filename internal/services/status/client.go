package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/sirupsen/logrus"
)

// Client looks up incident status from the external incident API
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// Lookup is the request payload of the status collaborator
type Lookup struct {
	IncidentID   string `json:"incident_id"`
	UserID       string `json:"user_id"`
	TeamsChannel string `json:"teams_channel"`
	Query        string `json:"query"`
	RequestID    string `json:"request_id,omitempty"`
}

// NewClient creates a status client for <baseURL>/status
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(baseURL, "/") + "/status",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Status fetches the current status of an incident
func (c *Client) Status(ctx context.Context, lookup Lookup) (*models.StatusResult, error) {
	if lookup.RequestID == "" {
		lookup.RequestID = uuid.NewString()
	}

	payload, err := json.Marshal(lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status lookup: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"incident_id": lookup.IncidentID,
		"request_id":  lookup.RequestID,
	}).Debug("Looking up incident status")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errPayload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errPayload) == nil && errPayload.Error != "" {
			return nil, fmt.Errorf("status lookup failed: %s", errPayload.Error)
		}
		return nil, fmt.Errorf("status lookup failed with status %d", resp.StatusCode)
	}

	var result models.StatusResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	if result.RequestID == "" {
		result.RequestID = lookup.RequestID
	}

	return &result, nil
}
