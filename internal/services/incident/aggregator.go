package incident

import (
	"context"
	"sort"
	"strings"

	"github.com/incidentops/teams-copilot/internal/models"
)

// RecordSource is the slice of the message log the pipeline reads from
type RecordSource interface {
	Conversation(ctx context.Context, conversationID string) ([]models.MessageRecord, error)
	Recent(ctx context.Context, conversationID string, n int) ([]models.MessageRecord, error)
}

// Aggregator slices a conversation's log down to the run of user messages
// relevant to one incident.
type Aggregator struct {
	records        RecordSource
	botName        string
	fallbackWindow int
}

// NewAggregator creates an incident message aggregator
func NewAggregator(records RecordSource, botName string, fallbackWindow int) *Aggregator {
	return &Aggregator{
		records:        records,
		botName:        botName,
		fallbackWindow: fallbackWindow,
	}
}

// Relevant returns the non-bot records for the incident: the suffix of the
// chronological log starting at the first mention of the incident id, or the
// fallback window when the id never appears verbatim. Once an id has been
// seen, the window never closes on its own; expiry is the tracker's concern.
func (a *Aggregator) Relevant(ctx context.Context, incidentID, conversationID string) ([]models.MessageRecord, error) {
	records, err := a.records.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	needle := strings.ToLower(incidentID)
	start := -1
	for i, rec := range records {
		if strings.Contains(strings.ToLower(rec.Text), needle) {
			start = i
			break
		}
	}

	if start == -1 {
		// Incident id never mentioned verbatim; fall back to the recent window
		if len(records) > a.fallbackWindow {
			start = len(records) - a.fallbackWindow
		} else {
			start = 0
		}
	}

	var relevant []models.MessageRecord
	for _, rec := range records[start:] {
		if rec.UserName == a.botName {
			continue
		}
		relevant = append(relevant, rec)
	}
	return relevant, nil
}
