package incident

import (
	"context"
	"sync"
	"time"

	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/middleware"
	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/sirupsen/logrus"
)

// Action is what the pipeline decided to do for one inbound message
type Action string

const (
	// ActionNone: not incident related, or pipeline skipped the message
	ActionNone Action = "none"
	// ActionClarify: incident discussion detected but no id; the caller
	// should prompt the conversation for the incident number
	ActionClarify Action = "clarify"
	// ActionBelowThreshold: incident tracked, not enough new messages yet
	ActionBelowThreshold Action = "below_threshold"
	// ActionPublished: a summary was generated and accepted
	ActionPublished Action = "published"
	// ActionPublishFailed: a summary was generated but the publish failed;
	// the batch stays eligible for the next trigger
	ActionPublishFailed Action = "publish_failed"
)

// Outcome is the typed result of one pipeline run. The pipeline never fails
// the enclosing turn; everything it cannot do degrades into the outcome.
type Outcome struct {
	Action     Action
	IncidentID string
	Summary    string
	Publish    PublishResult
	Eligible   int
	Delta      int
}

type trackedIncident struct {
	conversationID string
	lastSeen       time.Time
}

// Pipeline wires the incident correlation and summarization stages together:
// extract → classify → aggregate → trigger → generate → publish.
type Pipeline struct {
	cfg        *config.IncidentConfig
	records    RecordSource
	classifier *Classifier
	aggregator *Aggregator
	tracker    Tracker
	generator  *Generator
	publisher  *Publisher
	metrics    *middleware.Metrics
	botName    string
	logger     *logrus.Logger

	mu     sync.Mutex
	active map[string]trackedIncident
}

// NewPipeline assembles the pipeline from its stages
func NewPipeline(
	cfg *config.IncidentConfig,
	records RecordSource,
	classifier *Classifier,
	aggregator *Aggregator,
	tracker Tracker,
	generator *Generator,
	publisher *Publisher,
	metrics *middleware.Metrics,
	botName string,
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		records:    records,
		classifier: classifier,
		aggregator: aggregator,
		tracker:    tracker,
		generator:  generator,
		publisher:  publisher,
		metrics:    metrics,
		botName:    botName,
		logger:     logger,
		active:     make(map[string]trackedIncident),
	}
}

// Process runs the pipeline for one recorded group-chat message. The record
// is expected to be appended to the log already. Bot-authored records are
// stored but never analyzed.
func (p *Pipeline) Process(ctx context.Context, rec models.MessageRecord) Outcome {
	if rec.UserName == p.botName {
		return Outcome{Action: ActionNone}
	}

	if ids := ExtractIncidentIDs(rec.Text); len(ids) > 0 {
		// Advisory only; the classifier re-derives the id from context
		p.logger.WithFields(logrus.Fields{
			"conversation_id": rec.ConversationID,
			"incident_ids":    ids,
		}).Debug("Incident identifiers mentioned")
	}

	window, err := p.records.Recent(ctx, rec.ConversationID, p.cfg.ClassifierWindow)
	if err != nil {
		p.logger.WithError(err).Error("Failed to load classifier window")
		return Outcome{Action: ActionNone}
	}

	decision := p.classifier.Classify(ctx, window)
	switch decision.Signal {
	case SignalNone:
		return Outcome{Action: ActionNone}
	case SignalUnknownIncident:
		p.metrics.RecordIncidentClassification("unknown")
		return Outcome{Action: ActionClarify}
	}

	p.metrics.RecordIncidentClassification("identified")
	p.markActive(decision.IncidentID, rec.ConversationID)
	return p.trigger(ctx, decision.IncidentID, rec.ConversationID)
}

// trigger computes the eligible-message delta for the incident and drives
// generation and publishing once the threshold is reached
func (p *Pipeline) trigger(ctx context.Context, incidentID, conversationID string) Outcome {
	msgs, err := p.aggregator.Relevant(ctx, incidentID, conversationID)
	if err != nil {
		p.logger.WithError(err).WithField("incident_id", incidentID).Error("Failed to aggregate incident messages")
		return Outcome{Action: ActionNone, IncidentID: incidentID}
	}

	current := len(msgs)
	last, err := p.tracker.Count(ctx, incidentID)
	if err != nil {
		p.logger.WithError(err).WithField("incident_id", incidentID).Error("Failed to read summary tracker")
		return Outcome{Action: ActionNone, IncidentID: incidentID}
	}

	delta := current - last
	log := p.logger.WithFields(logrus.Fields{
		"incident_id": incidentID,
		"eligible":    current,
		"summarized":  last,
		"delta":       delta,
	})

	if delta < p.cfg.SummaryThreshold {
		log.Debug("Below summary threshold")
		return Outcome{Action: ActionBelowThreshold, IncidentID: incidentID, Eligible: current, Delta: delta}
	}

	genWindow := msgs
	if len(genWindow) > p.cfg.GeneratorWindow {
		genWindow = genWindow[len(genWindow)-p.cfg.GeneratorWindow:]
	}

	summary := p.generator.Summarize(ctx, incidentID, genWindow)

	result := p.publisher.Publish(ctx, incidentID, summary)
	if !result.OK() {
		// Tracker untouched: the same batch re-triggers on the next message
		p.metrics.RecordSummaryPublish("failure")
		log.WithField("detail", result.Detail).Warn("Summary publish failed, will retry on next trigger")
		return Outcome{Action: ActionPublishFailed, IncidentID: incidentID, Summary: summary, Publish: result, Eligible: current, Delta: delta}
	}

	advanced, err := p.tracker.Advance(ctx, incidentID, last, current)
	if err != nil {
		log.WithError(err).Error("Failed to advance summary tracker")
	} else if !advanced {
		log.Info("Summary tracker already advanced by a concurrent trigger")
	}

	p.metrics.RecordSummaryPublish("success")
	log.Info("Incident summary published")
	return Outcome{Action: ActionPublished, IncidentID: incidentID, Summary: summary, Publish: result, Eligible: current, Delta: delta}
}

// Sweep re-drives the trigger for every tracked incident, picking up batches
// whose publish failed without waiting for the next chat message, and expires
// incidents idle beyond the configured window.
func (p *Pipeline) Sweep(ctx context.Context) {
	for incidentID, tracked := range p.snapshotActive() {
		if p.cfg.IdleExpiry > 0 && time.Since(tracked.lastSeen) > p.cfg.IdleExpiry {
			p.logger.WithField("incident_id", incidentID).Info("Expiring idle incident tracking")
			if err := p.tracker.Forget(ctx, incidentID); err != nil {
				p.logger.WithError(err).Warn("Failed to drop expired incident from tracker")
			}
			p.forget(incidentID)
			continue
		}

		outcome := p.trigger(ctx, incidentID, tracked.conversationID)
		if outcome.Action == ActionPublished {
			p.logger.WithField("incident_id", incidentID).Info("Sweep published pending summary")
		}
	}
	p.metrics.SetTrackedIncidents(float64(p.activeCount()))
}

func (p *Pipeline) markActive(incidentID, conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[incidentID] = trackedIncident{conversationID: conversationID, lastSeen: time.Now()}
}

func (p *Pipeline) forget(incidentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, incidentID)
}

func (p *Pipeline) snapshotActive() map[string]trackedIncident {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]trackedIncident, len(p.active))
	for k, v := range p.active {
		out[k] = v
	}
	return out
}

func (p *Pipeline) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
