package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/incidentops/teams-copilot/internal/i18n"
	"github.com/incidentops/teams-copilot/internal/middleware"
	"github.com/incidentops/teams-copilot/internal/services/state"
	"github.com/incidentops/teams-copilot/internal/teams"
	"github.com/sirupsen/logrus"
)

// ProactiveHandler serves the bot-initiated messaging API: sending a message
// into a stored conversation, broadcasting to every known user, and
// inspecting the reference store.
type ProactiveHandler struct {
	client    *teams.Client
	refs      *teams.ReferenceStore
	state     *state.Manager
	localizer *i18n.Localizer
	lang      string
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// NewProactiveHandler creates the proactive messaging handler
func NewProactiveHandler(
	client *teams.Client,
	refs *teams.ReferenceStore,
	stateManager *state.Manager,
	localizer *i18n.Localizer,
	lang string,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *ProactiveHandler {
	return &ProactiveHandler{
		client:    client,
		refs:      refs,
		state:     stateManager,
		localizer: localizer,
		lang:      lang,
		metrics:   metrics,
		logger:    logger,
	}
}

type proactiveRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type broadcastRequest struct {
	UserIDs []string `json:"user_ids"`
	Message string   `json:"message"`
}

// SendMessage delivers a message into a user's existing conversation
// (POST /api/send-message)
func (h *ProactiveHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	h.deliverToUser(w, r, "proactive message")
}

// InitiateChat opens a conversation with a known user by delivering an
// opening message (POST /api/initiate-chat)
func (h *ProactiveHandler) InitiateChat(w http.ResponseWriter, r *http.Request) {
	h.deliverToUser(w, r, "chat initiation")
}

func (h *ProactiveHandler) deliverToUser(w http.ResponseWriter, r *http.Request, purpose string) {
	var req proactiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and message are required"})
		return
	}

	matched, ref := h.refs.Resolve(req.UserID)
	if ref == nil || ref.ServiceURL == "" {
		// No deliverable conversation stored; report the simulation but
		// keep the message visible to the planner when state exists
		if ref != nil && ref.Conversation != nil {
			h.state.AppendProactive(ref.Conversation.ID, req.Message)
		}
		h.metrics.RecordProactiveMessage("simulated")
		h.logger.WithFields(logrus.Fields{
			"user_id": req.UserID,
			"purpose": purpose,
		}).Info("Simulated proactive message, no stored conversation")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":      false,
			"message":      h.localizer.Get(h.lang, i18n.MsgProactiveSimulated, nil),
			"user_id":      req.UserID,
			"sent_message": req.Message,
			"method":       "simulation",
			"note":         "Send a message to the bot in Teams first, then try this API again",
		})
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"user_id": matched,
		"purpose": purpose,
	})

	if err := h.client.SendProactive(r.Context(), ref, req.Message); err != nil {
		h.metrics.RecordProactiveMessage("failure")
		log.WithError(err).Error("Failed to send proactive message")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to deliver message to " + matched,
		})
		return
	}

	if ref.Conversation != nil {
		h.state.AppendProactive(ref.Conversation.ID, req.Message)
	}
	h.metrics.RecordProactiveMessage("success")
	log.Info("Proactive message sent")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      "Autonomous message sent successfully",
		"user_id":      matched,
		"sent_message": req.Message,
		"method":       "stored_conversation",
	})
}

// Broadcast delivers a message to each requested user
// (POST /api/broadcast-message)
func (h *ProactiveHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.UserIDs) == 0 || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_ids and message are required"})
		return
	}

	successful := []string{}
	failed := []string{}

	for _, userID := range req.UserIDs {
		if h.deliverOne(r, userID, req.Message) {
			successful = append(successful, userID)
		} else {
			failed = append(failed, userID)
		}
	}

	h.logger.WithFields(logrus.Fields{
		"total_users": len(req.UserIDs),
		"sent":        len(successful),
		"failed":      len(failed),
	}).Info("Broadcast completed")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"total_users":      len(req.UserIDs),
		"successful_sends": len(successful),
		"failed_sends":     len(failed),
		"successful_users": successful,
		"failed_users":     failed,
		"message":          req.Message,
	})
}

func (h *ProactiveHandler) deliverOne(r *http.Request, userID, message string) bool {
	_, ref := h.refs.Resolve(userID)
	if ref == nil || ref.ServiceURL == "" || ref.Conversation == nil {
		h.metrics.RecordProactiveMessage("not_found")
		return false
	}

	if err := h.client.SendProactive(r.Context(), ref, message); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("Broadcast delivery failed")
		h.metrics.RecordProactiveMessage("failure")
		return false
	}

	h.state.AppendProactive(ref.Conversation.ID, message)
	h.metrics.RecordProactiveMessage("success")
	return true
}

// References reports the stored conversation references
// (GET /api/conversation-references)
func (h *ProactiveHandler) References(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.refs.Stats())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
