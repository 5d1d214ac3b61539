package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/incidentops/teams-copilot/internal/i18n"
	"github.com/incidentops/teams-copilot/internal/middleware"
	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/incidentops/teams-copilot/internal/services/ai"
	"github.com/incidentops/teams-copilot/internal/services/search"
	"github.com/incidentops/teams-copilot/internal/services/state"
	"github.com/incidentops/teams-copilot/internal/services/status"
	"github.com/sirupsen/logrus"
)

// Action names the planner can choose from
const (
	ActionSay            = "say"
	ActionCreateTask     = "createTask"
	ActionDeleteTask     = "deleteTask"
	ActionSearchWeb      = "searchWeb"
	ActionIncidentStatus = "incidentStatus"
)

// StatusLookup is the incident-status collaborator surface the planner needs
type StatusLookup interface {
	Status(ctx context.Context, lookup status.Lookup) (*models.StatusResult, error)
}

// Turn is one inbound user turn with its context
type Turn struct {
	ConversationID string
	UserID         string
	UserName       string
	ChannelID      string
	Text           string
	Recent         []models.MessageRecord
	Language       string
}

// plan is the structured output of the planner prompt
type plan struct {
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters"`
	Reply      string            `json:"reply"`
}

const plannerSystemPrompt = `You are a helpful assistant for an IT team in Microsoft Teams.
You manage a simple task list, search the web, and look up the status of operational incidents.

Choose exactly one action for the user's message and respond with a JSON object:
  "action": one of "say", "createTask", "deleteTask", "searchWeb", "incidentStatus"
  "parameters": an object with the action's parameters
  "reply": what you would say to the user (used directly for "say")

Actions and their parameters:
  say            - {} answer directly in "reply"
  createTask     - {"title": ..., "description": ...}
  deleteTask     - {"title": ...}
  searchWeb      - {"query": ...}
  incidentStatus - {"incident_id": ..., "query": ...}

Prefer "say" unless the user clearly asks for a task change, a web search,
or the status of a specific incident.`

// Planner relays user turns to the LLM and executes the chosen action
type Planner struct {
	ai        ai.Service
	state     *state.Manager
	search    search.Service
	status    StatusLookup
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// New creates a planner
func New(
	aiService ai.Service,
	stateManager *state.Manager,
	searchService search.Service,
	statusClient StatusLookup,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Planner {
	return &Planner{
		ai:        aiService,
		state:     stateManager,
		search:    searchService,
		status:    statusClient,
		localizer: localizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Respond plans and executes one turn, returning the reply text
func (p *Planner) Respond(ctx context.Context, turn Turn) (string, error) {
	messages := p.buildMessages(turn)

	start := time.Now()
	raw, err := p.ai.CompleteJSON(ctx, messages)
	if err != nil {
		p.metrics.RecordLLMRequest("planner", "error", time.Since(start))
		return "", fmt.Errorf("planner call failed: %w", err)
	}
	p.metrics.RecordLLMRequest("planner", "success", time.Since(start))

	var pl plan
	if err := json.Unmarshal([]byte(raw), &pl); err != nil {
		p.logger.WithError(err).WithField("response", raw).Warn("Malformed plan, replying verbatim")
		return raw, nil
	}

	reply := p.execute(ctx, turn, pl)
	return reply, nil
}

func (p *Planner) buildMessages(turn Turn) []models.Message {
	var contextBlock strings.Builder
	contextBlock.WriteString(plannerSystemPrompt)
	fmt.Fprintf(&contextBlock, "\n\nCurrent task list:\n%s", p.state.TasksSummary(turn.ConversationID))

	if proactive := p.state.Proactive(turn.ConversationID); len(proactive) > 0 {
		contextBlock.WriteString("\n\nMessages you sent proactively (the user may be replying to these):")
		for _, msg := range proactive {
			fmt.Fprintf(&contextBlock, "\n- %s", msg.Message)
		}
	}

	messages := []models.Message{{Role: "system", Content: contextBlock.String()}}

	for _, rec := range turn.Recent {
		if rec.UserID == "" && rec.UserName == "" {
			continue
		}
		messages = append(messages, models.Message{
			Role:    "user",
			Content: fmt.Sprintf("%s: %s", rec.UserName, rec.Text),
		})
	}

	messages = append(messages, models.Message{
		Role:    "user",
		Content: fmt.Sprintf("%s: %s", turn.UserName, turn.Text),
	})
	return messages
}

func (p *Planner) execute(ctx context.Context, turn Turn, pl plan) string {
	action := pl.Action
	if action == "" {
		action = ActionSay
	}

	log := p.logger.WithFields(logrus.Fields{
		"conversation_id": turn.ConversationID,
		"action":          action,
	})

	switch action {
	case ActionCreateTask:
		title := pl.Parameters["title"]
		if title == "" {
			p.metrics.RecordPlannerAction(action, "error")
			return p.localizer.Get(turn.Language, i18n.MsgError, nil)
		}
		p.state.CreateTask(turn.ConversationID, models.Task{
			Title:       title,
			Description: pl.Parameters["description"],
		})
		p.metrics.RecordPlannerAction(action, "success")
		return p.replyOr(turn, pl, i18n.MsgTaskCreated, map[string]interface{}{"Title": title})

	case ActionDeleteTask:
		title := pl.Parameters["title"]
		if !p.state.DeleteTask(turn.ConversationID, title) {
			p.metrics.RecordPlannerAction(action, "not_found")
			return p.localizer.Get(turn.Language, i18n.MsgTaskNotFound, map[string]interface{}{"Title": title})
		}
		p.metrics.RecordPlannerAction(action, "success")
		return p.replyOr(turn, pl, i18n.MsgTaskDeleted, map[string]interface{}{"Title": title})

	case ActionSearchWeb:
		if !p.search.Available() {
			p.metrics.RecordPlannerAction(action, "unavailable")
			return p.localizer.Get(turn.Language, i18n.MsgSearchUnavailable, nil)
		}
		query := pl.Parameters["query"]
		if query == "" {
			p.metrics.RecordPlannerAction(action, "error")
			return p.localizer.Get(turn.Language, i18n.MsgSearchNoQuery, nil)
		}
		summary, err := p.search.SearchSummary(ctx, query)
		if err != nil {
			log.WithError(err).Error("Web search failed")
			p.metrics.RecordPlannerAction(action, "error")
			return p.localizer.Get(turn.Language, i18n.MsgError, nil)
		}
		p.metrics.RecordPlannerAction(action, "success")
		return fmt.Sprintf("Here are the search results for '%s':\n\n%s", query, summary)

	case ActionIncidentStatus:
		result, err := p.status.Status(ctx, status.Lookup{
			IncidentID:   pl.Parameters["incident_id"],
			UserID:       turn.UserID,
			TeamsChannel: turn.ChannelID,
			Query:        pl.Parameters["query"],
		})
		if err != nil {
			log.WithError(err).Error("Incident status lookup failed")
			p.metrics.RecordPlannerAction(action, "error")
			return p.localizer.Get(turn.Language, i18n.MsgStatusUnavailable, nil)
		}
		p.metrics.RecordPlannerAction(action, "success")
		if result.Response != "" {
			return result.Response
		}
		return fmt.Sprintf("Incident %s is currently: %s", pl.Parameters["incident_id"], result.Status)

	case ActionSay:
		p.metrics.RecordPlannerAction(action, "success")
		if pl.Reply == "" {
			return p.localizer.Get(turn.Language, i18n.MsgError, nil)
		}
		return pl.Reply

	default:
		// Unknown actions degrade to a plain reply
		log.WithField("raw_action", pl.Action).Warn("Unknown planner action")
		p.metrics.RecordPlannerAction("unknown", "fallback")
		if pl.Reply != "" {
			return pl.Reply
		}
		return p.localizer.Get(turn.Language, i18n.MsgError, nil)
	}
}

// replyOr prefers the planner's own phrasing, falling back to the localized
// template
func (p *Planner) replyOr(turn Turn, pl plan, messageID string, data map[string]interface{}) string {
	if pl.Reply != "" {
		return pl.Reply
	}
	return p.localizer.Get(turn.Language, messageID, data)
}
