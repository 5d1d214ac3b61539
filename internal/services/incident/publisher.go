package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// PublishStatus classifies a publish attempt
type PublishStatus int

const (
	// PublishOK means the endpoint accepted the summary
	PublishOK PublishStatus = iota
	// PublishRetryable covers connection errors, timeouts and 5xx responses;
	// the same batch is re-attempted on the next qualifying message
	PublishRetryable
	// PublishPermanent covers 4xx responses that will not succeed on retry
	PublishPermanent
)

// PublishResult is the typed outcome of a publish attempt
type PublishResult struct {
	Status     PublishStatus
	StatusCode int
	Detail     string
}

// OK reports whether the summary was accepted
func (r PublishResult) OK() bool { return r.Status == PublishOK }

// Publisher posts incident summaries to the external incident API. Failures
// are returned, never raised; the trigger leaves its counter untouched so the
// batch is retried implicitly.
type Publisher struct {
	endpoint   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewPublisher creates a summary publisher for <baseURL>/summary
func NewPublisher(baseURL string, timeout time.Duration, logger *logrus.Logger) *Publisher {
	return &Publisher{
		endpoint:   strings.TrimSuffix(baseURL, "/") + "/summary",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Publish POSTs {incident_id, summary} as JSON
func (p *Publisher) Publish(ctx context.Context, incidentID, summary string) PublishResult {
	payload, err := json.Marshal(map[string]string{
		"incident_id": incidentID,
		"summary":     summary,
	})
	if err != nil {
		return PublishResult{Status: PublishPermanent, Detail: fmt.Sprintf("marshal: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return PublishResult{Status: PublishPermanent, Detail: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.WithError(err).WithField("incident_id", incidentID).Warn("Summary publish failed")
		return PublishResult{Status: PublishRetryable, Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(body))
		p.logger.WithFields(logrus.Fields{
			"incident_id": incidentID,
			"status":      resp.StatusCode,
			"body":        detail,
		}).Warn("Summary publish rejected")

		status := PublishRetryable
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			status = PublishPermanent
		}
		return PublishResult{Status: status, StatusCode: resp.StatusCode, Detail: detail}
	}

	p.logger.WithField("incident_id", incidentID).Info("Summary published")
	return PublishResult{Status: PublishOK, StatusCode: resp.StatusCode}
}
