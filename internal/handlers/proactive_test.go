package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/i18n"
	"github.com/incidentops/teams-copilot/internal/middleware"
	"github.com/incidentops/teams-copilot/internal/services/state"
	"github.com/incidentops/teams-copilot/internal/teams"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testLocalizer(t *testing.T) *i18n.Localizer {
	t.Helper()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "configs", "i18n"), 0o755); err != nil {
		t.Fatal(err)
	}
	messages := `{
  "proactive_simulated": "User must chat with bot first to enable autonomous messaging",
  "error": "The agent encountered an error or bug.",
  "rate_limit_exceeded": "You're sending messages too quickly. Please wait a moment and try again.",
  "which_incident": "It sounds like you're discussing an incident. Could you share the incident number?"
}`
	if err := os.WriteFile(filepath.Join(dir, "configs", "i18n", "en.json"), []byte(messages), 0o644); err != nil {
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

	localizer, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}})
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}
	return localizer
}

func newProactiveFixture(t *testing.T) (*ProactiveHandler, *teams.ReferenceStore, *state.Manager) {
	t.Helper()
	log := testLogger()

	refs, err := teams.NewReferenceStore(filepath.Join(t.TempDir(), "refs.json"), log)
	if err != nil {
		t.Fatalf("NewReferenceStore: %v", err)
	}

	stateManager := state.NewManager(log)
	client := teams.NewClient("bot-app-id", "TeamsTaskAgent", log)
	h := NewProactiveHandler(client, refs, stateManager, testLocalizer(t), "en", middleware.NewMetrics(), log)
	return h, refs, stateManager
}

func storedRef(convID, serviceURL string) teams.ConversationReference {
	return teams.ConversationReference{
		ChannelID:    "msteams",
		User:         &teams.ChannelAccount{ID: "u-1", Name: "Alice Johnson"},
		Conversation: &teams.ConversationAccount{ID: convID},
		ServiceURL:   serviceURL,
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestSendMessageDelivers(t *testing.T) {
	var delivered teams.Activity
	connector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&delivered)
		w.WriteHeader(http.StatusOK)
	}))
	defer connector.Close()

	h, refs, stateManager := newProactiveFixture(t)
	refs.Store("Alice Johnson", storedRef("conv-1", connector.URL))

	w := postJSON(t, h.SendMessage, `{"user_id":"alice","message":"deploy window opens at 5"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if delivered.Text != "deploy window opens at 5" {
		t.Errorf("delivered text = %q", delivered.Text)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["success"] != true || resp["user_id"] != "Alice Johnson" {
		t.Errorf("response = %v, want success for the resolved key", resp)
	}
	if resp["method"] != "stored_conversation" || resp["sent_message"] != "deploy window opens at 5" {
		t.Errorf("response = %v, want stored_conversation delivery", resp)
	}

	if trail := stateManager.Proactive("conv-1"); len(trail) != 1 {
		t.Errorf("proactive trail length = %d, want 1", len(trail))
	}
}

func TestSendMessageUnknownUserSimulates(t *testing.T) {
	h, _, _ := newProactiveFixture(t)

	w := postJSON(t, h.SendMessage, `{"user_id":"nobody","message":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with a simulation payload", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["success"] != false || resp["method"] != "simulation" {
		t.Errorf("response = %v, want success=false simulation", resp)
	}
	if resp["message"] != "User must chat with bot first to enable autonomous messaging" {
		t.Errorf("message = %v", resp["message"])
	}
	if resp["note"] == nil || resp["sent_message"] != "hi" {
		t.Errorf("response = %v, want note and sent_message", resp)
	}
}

func TestSendMessageSimulatedWithoutServiceURL(t *testing.T) {
	h, refs, stateManager := newProactiveFixture(t)
	refs.Store("Alice Johnson", storedRef("conv-1", ""))

	w := postJSON(t, h.SendMessage, `{"user_id":"alice","message":"ping"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["success"] != false || resp["method"] != "simulation" {
		t.Errorf("response = %v, want success=false simulation", resp)
	}
	if trail := stateManager.Proactive("conv-1"); len(trail) != 1 {
		t.Errorf("proactive trail length = %d, want 1", len(trail))
	}
}

func TestSendMessageValidatesInput(t *testing.T) {
	h, _, _ := newProactiveFixture(t)

	if w := postJSON(t, h.SendMessage, `{"user_id":"","message":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if w := postJSON(t, h.SendMessage, `not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for malformed body, want 400", w.Code)
	}
}

func TestBroadcastTargetsRequestedUsers(t *testing.T) {
	var deliveries int
	connector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveries++
		w.WriteHeader(http.StatusOK)
	}))
	defer connector.Close()

	h, refs, stateManager := newProactiveFixture(t)
	refs.Store("Alice Johnson", storedRef("conv-1", connector.URL))
	refs.Store("Bob Smith", storedRef("conv-2", connector.URL))
	refs.Store("Carol King", storedRef("conv-3", connector.URL))

	w := postJSON(t, h.Broadcast, `{"user_ids":["alice","Bob Smith","nobody"],"message":"maintenance tonight"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	// Carol was not requested
	if deliveries != 2 {
		t.Errorf("deliveries = %d, want one per requested known user", deliveries)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["total_users"].(float64) != 3 {
		t.Errorf("total_users = %v, want 3", resp["total_users"])
	}
	if resp["successful_sends"].(float64) != 2 || resp["failed_sends"].(float64) != 1 {
		t.Errorf("response = %v, want 2 successful and 1 failed", resp)
	}

	successful := resp["successful_users"].([]interface{})
	if len(successful) != 2 || successful[0] != "alice" || successful[1] != "Bob Smith" {
		t.Errorf("successful_users = %v", successful)
	}
	failedUsers := resp["failed_users"].([]interface{})
	if len(failedUsers) != 1 || failedUsers[0] != "nobody" {
		t.Errorf("failed_users = %v", failedUsers)
	}

	if trail := stateManager.Proactive("conv-1"); len(trail) != 1 {
		t.Errorf("conv-1 proactive trail length = %d, want 1", len(trail))
	}
	if trail := stateManager.Proactive("conv-3"); len(trail) != 0 {
		t.Errorf("conv-3 proactive trail length = %d, want untouched", len(trail))
	}
}

func TestBroadcastValidatesInput(t *testing.T) {
	h, _, _ := newProactiveFixture(t)

	if w := postJSON(t, h.Broadcast, `{"user_ids":[],"message":"hi"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for empty user_ids, want 400", w.Code)
	}
	if w := postJSON(t, h.Broadcast, `{"user_ids":["alice"],"message":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for empty message, want 400", w.Code)
	}
}

func TestReferencesEndpoint(t *testing.T) {
	h, refs, _ := newProactiveFixture(t)
	refs.Store("Alice Johnson", storedRef("conv-1", ""))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.References(w, req)

	var stats teams.RefStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalUsers != 1 || stats.Users[0] != "Alice Johnson" {
		t.Errorf("stats = %+v", stats)
	}
}
