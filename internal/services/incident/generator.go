package incident

import (
	"context"
	"fmt"
	"strings"

	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/incidentops/teams-copilot/internal/services/ai"
	"github.com/sirupsen/logrus"
)

// minSummaryLength guards against degenerate LLM responses
const minSummaryLength = 30

const generatorSystemPrompt = `You summarize incident discussions from an IT operations group chat.
Write a 3-4 sentence summary covering: what was discussed, troubleshooting steps taken,
root-cause findings if any, and the current status or next steps.
Write plain prose, no headings or bullet points.`

// Generator produces incident summaries, falling back to a deterministic
// sentence so publishing is never blocked on the LLM.
type Generator struct {
	ai     ai.Service
	logger *logrus.Logger
}

// NewGenerator creates a summary generator
func NewGenerator(aiService ai.Service, logger *logrus.Logger) *Generator {
	return &Generator{ai: aiService, logger: logger}
}

// Summarize condenses the given relevant messages for one incident. Any
// failure, or a response under 30 characters, yields the fallback text.
func (g *Generator) Summarize(ctx context.Context, incidentID string, msgs []models.MessageRecord) string {
	if len(msgs) == 0 {
		return g.fallback(incidentID, 0)
	}

	var transcript strings.Builder
	fmt.Fprintf(&transcript, "Incident: %s\n\n", incidentID)
	for _, rec := range msgs {
		fmt.Fprintf(&transcript, "%s: %s\n", rec.UserName, rec.Text)
	}

	messages := []models.Message{
		{Role: "system", Content: generatorSystemPrompt},
		{Role: "user", Content: transcript.String()},
	}

	summary, err := g.ai.Complete(ctx, messages)
	if err != nil {
		g.logger.WithError(err).WithField("incident_id", incidentID).Warn("Summary generation failed, using fallback")
		return g.fallback(incidentID, len(msgs))
	}

	summary = strings.TrimSpace(summary)
	if len(summary) < minSummaryLength {
		g.logger.WithFields(logrus.Fields{
			"incident_id": incidentID,
			"length":      len(summary),
		}).Warn("Summary too short, using fallback")
		return g.fallback(incidentID, len(msgs))
	}

	return summary
}

func (g *Generator) fallback(incidentID string, messageCount int) string {
	return fmt.Sprintf(
		"The team exchanged %d messages about incident %s covering ongoing troubleshooting; a detailed summary is currently unavailable.",
		messageCount, incidentID)
}
