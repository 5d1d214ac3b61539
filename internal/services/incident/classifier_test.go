package incident

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/sirupsen/logrus"
)

// fakeAI is a hand-rolled ai.Service for tests
type fakeAI struct {
	jsonResponse string
	jsonErr      error
	textResponse string
	textErr      error
	jsonCalls    int
	textCalls    int
}

func (f *fakeAI) Complete(ctx context.Context, messages []models.Message) (string, error) {
	f.textCalls++
	return f.textResponse, f.textErr
}

func (f *fakeAI) CompleteJSON(ctx context.Context, messages []models.Message) (string, error) {
	f.jsonCalls++
	return f.jsonResponse, f.jsonErr
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func window(texts ...string) []models.MessageRecord {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	recs := make([]models.MessageRecord, len(texts))
	for i, text := range texts {
		recs[i] = models.MessageRecord{
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			UserName:       "alice",
			UserID:         "u-alice",
			Text:           text,
			ConversationID: "conv-1",
		}
	}
	return recs
}

func TestClassifyIdentifiedIncident(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"incident_id":"inc-0001234","is_incident_related":true,"confidence":9}`}
	c := NewClassifier(ai, 7, testLogger())

	d := c.Classify(context.Background(), window("INC0001234 is down", "restarting the pods"))

	if d.Signal != SignalIncident {
		t.Fatalf("signal = %v, want SignalIncident", d.Signal)
	}
	if d.IncidentID != "INC0001234" {
		t.Errorf("incident id = %q, want normalized INC0001234", d.IncidentID)
	}
}

func TestClassifyUnknownIncident(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"incident_id":"","is_incident_related":true,"confidence":8}`}
	c := NewClassifier(ai, 7, testLogger())

	d := c.Classify(context.Background(), window("prod is on fire", "who is on call?"))

	if d.Signal != SignalUnknownIncident {
		t.Fatalf("signal = %v, want SignalUnknownIncident", d.Signal)
	}
}

func TestClassifyBelowConfidence(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"incident_id":"INC0001234","is_incident_related":true,"confidence":5}`}
	c := NewClassifier(ai, 7, testLogger())

	d := c.Classify(context.Background(), window("maybe INC0001234?"))

	if d.Signal != SignalNone {
		t.Fatalf("signal = %v, want SignalNone for confidence below threshold", d.Signal)
	}
}

func TestClassifyNotIncidentRelated(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"incident_id":"","is_incident_related":false,"confidence":9}`}
	c := NewClassifier(ai, 7, testLogger())

	if d := c.Classify(context.Background(), window("lunch?")); d.Signal != SignalNone {
		t.Fatalf("signal = %v, want SignalNone", d.Signal)
	}
}

func TestClassifyDegradesOnError(t *testing.T) {
	ai := &fakeAI{jsonErr: errors.New("llm unavailable")}
	c := NewClassifier(ai, 7, testLogger())

	if d := c.Classify(context.Background(), window("INC0001234 down")); d.Signal != SignalNone {
		t.Fatalf("signal = %v, want SignalNone on LLM error", d.Signal)
	}
}

func TestClassifyDegradesOnMalformedResponse(t *testing.T) {
	ai := &fakeAI{jsonResponse: "not json at all"}
	c := NewClassifier(ai, 7, testLogger())

	if d := c.Classify(context.Background(), window("INC0001234 down")); d.Signal != SignalNone {
		t.Fatalf("signal = %v, want SignalNone on malformed response", d.Signal)
	}
}

func TestClassifyEmptyWindowSkipsLLM(t *testing.T) {
	ai := &fakeAI{}
	c := NewClassifier(ai, 7, testLogger())

	if d := c.Classify(context.Background(), nil); d.Signal != SignalNone {
		t.Fatalf("signal = %v, want SignalNone", d.Signal)
	}
	if ai.jsonCalls != 0 {
		t.Errorf("LLM called %d times for empty window, want 0", ai.jsonCalls)
	}
}
