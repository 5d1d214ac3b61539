package planner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/i18n"
	"github.com/incidentops/teams-copilot/internal/middleware"
	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/incidentops/teams-copilot/internal/services/state"
	"github.com/incidentops/teams-copilot/internal/services/status"
	"github.com/sirupsen/logrus"
)

type fakeAI struct {
	jsonResponse string
	jsonErr      error
}

func (f *fakeAI) Complete(ctx context.Context, messages []models.Message) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeAI) CompleteJSON(ctx context.Context, messages []models.Message) (string, error) {
	return f.jsonResponse, f.jsonErr
}

type fakeSearch struct {
	available bool
	summary   string
	err       error
	lastQuery string
}

func (f *fakeSearch) Available() bool { return f.available }

func (f *fakeSearch) SearchSummary(ctx context.Context, query string) (string, error) {
	f.lastQuery = query
	return f.summary, f.err
}

type fakeStatus struct {
	result *models.StatusResult
	err    error
	lookup status.Lookup
}

func (f *fakeStatus) Status(ctx context.Context, lookup status.Lookup) (*models.StatusResult, error) {
	f.lookup = lookup
	return f.result, f.err
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

const testMessages = `{
  "error": "The agent encountered an error or bug.",
  "search_unavailable": "Web search is not configured.",
  "search_no_query": "No search query provided.",
  "task_created": "Task '{{.Title}}' created.",
  "task_deleted": "Task '{{.Title}}' deleted.",
  "task_not_found": "I couldn't find a task named '{{.Title}}'.",
  "status_unavailable": "I couldn't reach the incident status service right now."
}`

// testLocalizer loads message files the way the bot does, from a scratch
// working directory
func testLocalizer(t *testing.T) *i18n.Localizer {
	t.Helper()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "configs", "i18n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "configs", "i18n", "en.json"), []byte(testMessages), 0o644); err != nil {
		t.Fatal(err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	localizer, err := i18n.NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"en"},
	})
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}
	return localizer
}

func newTestPlanner(t *testing.T, ai *fakeAI, search *fakeSearch, statusClient *fakeStatus) (*Planner, *state.Manager) {
	t.Helper()
	stateManager := state.NewManager(testLogger())
	p := New(ai, stateManager, search, statusClient, testLocalizer(t), middleware.NewMetrics(), testLogger())
	return p, stateManager
}

func turn(text string) Turn {
	return Turn{
		ConversationID: "conv-1",
		UserID:         "u-alice",
		UserName:       "alice",
		ChannelID:      "msteams",
		Text:           text,
		Language:       "en",
	}
}

func TestRespondSay(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"action":"say","parameters":{},"reply":"Hello! How can I help?"}`}
	p, _ := newTestPlanner(t, ai, &fakeSearch{}, &fakeStatus{})

	got, err := p.Respond(context.Background(), turn("hi"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "Hello! How can I help?" {
		t.Errorf("reply = %q", got)
	}
}

func TestRespondCreateTask(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"action":"createTask","parameters":{"title":"rotate certs","description":"prod certs expire friday"},"reply":""}`}
	p, stateManager := newTestPlanner(t, ai, &fakeSearch{}, &fakeStatus{})

	got, err := p.Respond(context.Background(), turn("remind me to rotate the certs"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "Task 'rotate certs' created." {
		t.Errorf("reply = %q", got)
	}

	tasks := stateManager.Tasks("conv-1")
	if len(tasks) != 1 || tasks[0].Description != "prod certs expire friday" {
		t.Fatalf("tasks = %v, want the created task", tasks)
	}
}

func TestRespondDeleteTaskNotFound(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"action":"deleteTask","parameters":{"title":"ghost"},"reply":""}`}
	p, _ := newTestPlanner(t, ai, &fakeSearch{}, &fakeStatus{})

	got, err := p.Respond(context.Background(), turn("delete the ghost task"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "I couldn't find a task named 'ghost'." {
		t.Errorf("reply = %q", got)
	}
}

func TestRespondSearchWeb(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"action":"searchWeb","parameters":{"query":"redis failover"},"reply":""}`}
	search := &fakeSearch{available: true, summary: "Redis failover happens via sentinel."}
	p, _ := newTestPlanner(t, ai, search, &fakeStatus{})

	got, err := p.Respond(context.Background(), turn("how does redis failover work"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if search.lastQuery != "redis failover" {
		t.Errorf("query = %q", search.lastQuery)
	}
	if !strings.Contains(got, "Redis failover happens via sentinel.") {
		t.Errorf("reply = %q, want the search summary", got)
	}
}

func TestRespondSearchUnavailable(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"action":"searchWeb","parameters":{"query":"anything"},"reply":""}`}
	p, _ := newTestPlanner(t, ai, &fakeSearch{available: false}, &fakeStatus{})

	got, err := p.Respond(context.Background(), turn("search something"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "Web search is not configured." {
		t.Errorf("reply = %q", got)
	}
}

func TestRespondIncidentStatus(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"action":"incidentStatus","parameters":{"incident_id":"INC0001234","query":"what is the status"},"reply":""}`}
	statusClient := &fakeStatus{result: &models.StatusResult{Status: "investigating", Response: "INC0001234 is being investigated by the db team."}}
	p, _ := newTestPlanner(t, ai, &fakeSearch{}, statusClient)

	got, err := p.Respond(context.Background(), turn("status of INC0001234?"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "INC0001234 is being investigated by the db team." {
		t.Errorf("reply = %q", got)
	}
	if statusClient.lookup.IncidentID != "INC0001234" || statusClient.lookup.UserID != "u-alice" {
		t.Errorf("lookup = %+v", statusClient.lookup)
	}
}

func TestRespondIncidentStatusError(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"action":"incidentStatus","parameters":{"incident_id":"INC0001234"},"reply":""}`}
	p, _ := newTestPlanner(t, ai, &fakeSearch{}, &fakeStatus{err: errors.New("down")})

	got, err := p.Respond(context.Background(), turn("status of INC0001234?"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "I couldn't reach the incident status service right now." {
		t.Errorf("reply = %q", got)
	}
}

func TestRespondUnknownActionFallsBackToReply(t *testing.T) {
	ai := &fakeAI{jsonResponse: `{"action":"launchRockets","parameters":{},"reply":"I can't do that, but here's what I know."}`}
	p, _ := newTestPlanner(t, ai, &fakeSearch{}, &fakeStatus{})

	got, err := p.Respond(context.Background(), turn("launch the rockets"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "I can't do that, but here's what I know." {
		t.Errorf("reply = %q", got)
	}
}

func TestRespondMalformedPlanRepliesVerbatim(t *testing.T) {
	ai := &fakeAI{jsonResponse: "Sorry, I could not plan that."}
	p, _ := newTestPlanner(t, ai, &fakeSearch{}, &fakeStatus{})

	got, err := p.Respond(context.Background(), turn("hello"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "Sorry, I could not plan that." {
		t.Errorf("reply = %q", got)
	}
}

func TestRespondLLMErrorPropagates(t *testing.T) {
	ai := &fakeAI{jsonErr: errors.New("llm unavailable")}
	p, _ := newTestPlanner(t, ai, &fakeSearch{}, &fakeStatus{})

	if _, err := p.Respond(context.Background(), turn("hello")); err == nil {
		t.Fatal("Respond succeeded despite LLM error")
	}
}
