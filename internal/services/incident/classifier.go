package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/incidentops/teams-copilot/internal/services/ai"
	"github.com/sirupsen/logrus"
)

// Signal is the classifier's verdict for a message window
type Signal int

const (
	// SignalNone means the window is not about an incident
	SignalNone Signal = iota
	// SignalUnknownIncident means the window discusses an incident but no id
	// could be determined; the caller should ask for clarification
	SignalUnknownIncident
	// SignalIncident means a specific incident was identified
	SignalIncident
)

// Decision carries the verdict and, for SignalIncident, the adopted id
type Decision struct {
	Signal     Signal
	IncidentID string
	Result     models.IncidentContextResult
}

const classifierSystemPrompt = `You analyze group chat transcripts from an IT operations team.
Decide whether the conversation is currently discussing an operational incident.
Incident identifiers look like INC followed by 4-7 digits (e.g. INC0012345).
Respond with a JSON object with exactly these fields:
  "incident_id": the incident identifier being discussed, or "" if none is named
  "is_incident_related": true if the conversation discusses an incident
  "confidence": an integer from 1 to 10`

// Classifier decides whether a conversation window is about an incident
type Classifier struct {
	ai            ai.Service
	minConfidence int
	logger        *logrus.Logger
}

// NewClassifier creates an incident context classifier
func NewClassifier(aiService ai.Service, minConfidence int, logger *logrus.Logger) *Classifier {
	return &Classifier{
		ai:            aiService,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Classify inspects the given chronological message window. Call errors and
// malformed responses degrade to SignalNone; classification is a side channel
// and never blocks the caller.
func (c *Classifier) Classify(ctx context.Context, window []models.MessageRecord) Decision {
	if len(window) == 0 {
		return Decision{Signal: SignalNone}
	}

	var transcript strings.Builder
	for _, rec := range window {
		fmt.Fprintf(&transcript, "[%s] %s: %s\n", rec.Timestamp.Format("15:04:05"), rec.UserName, rec.Text)
	}

	messages := []models.Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: transcript.String()},
	}

	raw, err := c.ai.CompleteJSON(ctx, messages)
	if err != nil {
		c.logger.WithError(err).Warn("Incident classification failed, treating as no incident")
		return Decision{Signal: SignalNone}
	}

	var result models.IncidentContextResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.WithError(err).WithField("response", raw).Warn("Malformed classifier response, treating as no incident")
		return Decision{Signal: SignalNone}
	}

	result.IncidentID = NormalizeIncidentID(result.IncidentID)

	c.logger.WithFields(logrus.Fields{
		"incident_id":         result.IncidentID,
		"is_incident_related": result.IsIncidentRelated,
		"confidence":          result.Confidence,
	}).Debug("Incident classification result")

	switch {
	case result.IsIncidentRelated && result.IncidentID != "" && result.Confidence >= c.minConfidence:
		return Decision{Signal: SignalIncident, IncidentID: result.IncidentID, Result: result}
	case result.IsIncidentRelated && result.IncidentID == "":
		return Decision{Signal: SignalUnknownIncident, Result: result}
	default:
		return Decision{Signal: SignalNone, Result: result}
	}
}
