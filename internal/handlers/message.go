package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/i18n"
	"github.com/incidentops/teams-copilot/internal/middleware"
	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/incidentops/teams-copilot/internal/services/incident"
	"github.com/incidentops/teams-copilot/internal/services/planner"
	"github.com/incidentops/teams-copilot/internal/services/store"
	"github.com/incidentops/teams-copilot/internal/teams"
	"github.com/incidentops/teams-copilot/pkg/logger"
	"github.com/incidentops/teams-copilot/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// mentionPattern strips <at>Bot</at> mention markup Teams injects into
// group-chat messages
var mentionPattern = regexp.MustCompile(`<at>[^<]*</at>`)

// plannerWindow is how many stored records are replayed as planner context
const plannerWindow = 10

// MessageHandler processes inbound Bot Framework activities: it records the
// message, runs the planner turn, and drives the incident pipeline for group
// chats.
type MessageHandler struct {
	config      *config.Config
	client      *teams.Client
	refs        *teams.ReferenceStore
	records     *store.Manager
	planner     *planner.Planner
	pipeline    *incident.Pipeline
	rateLimiter middleware.RateLimiter
	security    *middleware.SecurityMiddleware
	localizer   *i18n.Localizer
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	cfg *config.Config,
	client *teams.Client,
	refs *teams.ReferenceStore,
	records *store.Manager,
	plannerService *planner.Planner,
	pipeline *incident.Pipeline,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		config:      cfg,
		client:      client,
		refs:        refs,
		records:     records,
		planner:     plannerService,
		pipeline:    pipeline,
		rateLimiter: rateLimiter,
		security:    middleware.NewSecurityMiddleware(logger),
		localizer:   localizer,
		metrics:     metrics,
		logger:      logger,
	}
}

// ServeMessages is the Bot Framework activity endpoint (POST /api/messages)
func (h *MessageHandler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	var activity teams.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		h.logger.WithError(err).Warn("Failed to decode inbound activity")
		http.Error(w, "invalid activity payload", http.StatusBadRequest)
		return
	}

	if err := h.HandleActivity(r.Context(), &activity); err != nil {
		h.logger.WithError(err).Error("Activity processing failed")
		h.metrics.RecordActivityProcessed("error")
	} else {
		h.metrics.RecordActivityProcessed("success")
	}

	// The connector expects a 200 regardless; failures are already replied
	// to or logged
	w.WriteHeader(http.StatusOK)
}

// HandleActivity processes one inbound activity
func (h *MessageHandler) HandleActivity(ctx context.Context, activity *teams.Activity) error {
	h.metrics.RecordActivityReceived(activity.Conversation.ConversationType)

	if !activity.IsMessage() {
		return nil
	}

	text := strings.TrimSpace(mentionPattern.ReplaceAllString(activity.Text, ""))
	if text == "" {
		return nil
	}

	lang := h.config.I18n.DefaultLanguage

	rec := models.MessageRecord{
		Timestamp:      activity.Timestamp,
		UserName:       activity.From.Name,
		UserID:         activity.From.ID,
		Text:           text,
		ConversationID: activity.Conversation.ID,
		RecordedAt:     time.Now().UTC(),
		Type:           "group_message",
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = rec.RecordedAt
	}
	if !activity.IsGroup() {
		rec.Type = "personal_message"
	}

	if err := h.records.Append(ctx, rec); err != nil {
		// Recording is best effort; the turn still gets answered
		h.logger.WithError(err).WithField("conversation_id", rec.ConversationID).Error("Failed to record message")
	}

	// The bot's own echoes are retained in the log but never analyzed or
	// answered
	if activity.From.ID == h.client.BotID() {
		return nil
	}

	h.storeReference(activity)

	if !h.rateLimiter.Allow(activity.From.ID) {
		h.metrics.RecordRateLimitExceeded()
		return h.reply(ctx, activity, h.localizer.Get(lang, i18n.MsgRateLimitExceeded, nil))
	}

	if err := h.security.ValidateInput(text); err != nil {
		h.logger.WithError(err).WithField("user_id", activity.From.ID).Warn("Rejected input")
		return h.reply(ctx, activity, h.localizer.Get(lang, i18n.MsgError, nil))
	}

	recent, err := h.records.Recent(ctx, activity.Conversation.ID, plannerWindow)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to load planner context")
	}
	// Drop the record we just appended; the turn text is passed separately
	if n := len(recent); n > 0 && recent[n-1].UserID == rec.UserID && recent[n-1].Text == rec.Text {
		recent = recent[:n-1]
	}

	answer, err := h.planner.Respond(ctx, planner.Turn{
		ConversationID: activity.Conversation.ID,
		UserID:         activity.From.ID,
		UserName:       activity.From.Name,
		ChannelID:      activity.ChannelID,
		Text:           text,
		Recent:         recent,
		Language:       lang,
	})
	if err != nil {
		logger.WithTurn(h.logger, activity.Conversation.ID, activity.From.ID).
			WithError(err).Error("Planner turn failed")
		answer = h.localizer.Get(lang, i18n.MsgError, nil)
	}

	if err := h.reply(ctx, activity, answer); err != nil {
		return err
	}

	if activity.IsGroup() {
		h.runPipeline(ctx, activity, rec, lang)
	}
	return nil
}

// runPipeline drives the incident pipeline for a recorded group message. The
// pipeline never fails the turn; only the clarification prompt surfaces back
// into the chat.
func (h *MessageHandler) runPipeline(ctx context.Context, activity *teams.Activity, rec models.MessageRecord, lang string) {
	outcome := h.pipeline.Process(ctx, rec)

	switch outcome.Action {
	case incident.ActionClarify:
		prompt := h.localizer.Get(lang, i18n.MsgWhichIncident, nil)
		if err := h.reply(ctx, activity, prompt); err != nil {
			h.logger.WithError(err).Warn("Failed to send incident clarification prompt")
		}
	case incident.ActionPublished:
		h.logger.WithFields(logrus.Fields{
			"incident_id": outcome.IncidentID,
			"eligible":    outcome.Eligible,
		}).Info("Published incident summary for conversation")
	}
}

func (h *MessageHandler) storeReference(activity *teams.Activity) {
	ref := activity.Reference()
	for _, key := range []string{activity.From.ID, activity.From.Name} {
		if key == "" {
			continue
		}
		if err := h.refs.Store(key, ref); err != nil {
			h.logger.WithError(err).WithField("key", key).Warn("Failed to store conversation reference")
		}
	}
}

func (h *MessageHandler) reply(ctx context.Context, activity *teams.Activity, text string) error {
	return h.client.ReplyToActivity(ctx, activity, markdown.ToTeamsHTML(text))
}
