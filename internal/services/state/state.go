package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Manager holds per-conversation bot state: the task board and the trail of
// proactive messages the planner should see as context. State is
// process-local by design.
type Manager struct {
	states *cache.Cache
	logger *logrus.Logger
}

// NewManager creates the conversation state manager
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		states: cache.New(cache.NoExpiration, cache.NoExpiration),
		logger: logger,
	}
}

// Get returns the state for a conversation, creating it when absent
func (m *Manager) Get(conversationID string) *models.ConversationState {
	if val, found := m.states.Get(conversationID); found {
		return val.(*models.ConversationState)
	}

	st := &models.ConversationState{
		ConversationID: conversationID,
		Tasks:          make(map[string]models.Task),
		LastActivity:   time.Now(),
	}
	m.states.Set(conversationID, st, cache.NoExpiration)
	return st
}

// CreateTask adds a task to the conversation's board, keyed by title
func (m *Manager) CreateTask(conversationID string, task models.Task) {
	st := m.Get(conversationID)
	st.Tasks[task.Title] = task
	st.LastActivity = time.Now()

	m.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"title":           task.Title,
		"task_count":      len(st.Tasks),
	}).Info("Task created")
}

// DeleteTask removes a task by title, reporting whether it existed
func (m *Manager) DeleteTask(conversationID, title string) bool {
	st := m.Get(conversationID)
	if _, ok := st.Tasks[title]; !ok {
		m.logger.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"title":           title,
		}).Warn("Task not found")
		return false
	}

	delete(st.Tasks, title)
	st.LastActivity = time.Now()

	m.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"title":           title,
		"task_count":      len(st.Tasks),
	}).Info("Task deleted")
	return true
}

// Tasks lists the conversation's tasks sorted by title
func (m *Manager) Tasks(conversationID string) []models.Task {
	st := m.Get(conversationID)
	tasks := make([]models.Task, 0, len(st.Tasks))
	for _, t := range st.Tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Title < tasks[j].Title })
	return tasks
}

// TasksSummary formats the board for planner context
func (m *Manager) TasksSummary(conversationID string) string {
	tasks := m.Tasks(conversationID)
	if len(tasks) == 0 {
		return "No tasks"
	}

	out := fmt.Sprintf("%d tasks:", len(tasks))
	for _, t := range tasks {
		out += fmt.Sprintf("\n- %s: %s", t.Title, t.Description)
	}
	return out
}

// AppendProactive records a bot-initiated message in conversation state
func (m *Manager) AppendProactive(conversationID, message string) {
	st := m.Get(conversationID)
	st.ProactiveMessages = append(st.ProactiveMessages, models.ProactiveMessage{
		Timestamp:        time.Now(),
		Message:          message,
		Type:             "proactive_system_message",
		AwaitingResponse: true,
	})
	st.LastActivity = time.Now()

	m.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"count":           len(st.ProactiveMessages),
	}).Debug("Stored proactive message in conversation state")
}

// Proactive returns the proactive message trail for a conversation
func (m *Manager) Proactive(conversationID string) []models.ProactiveMessage {
	st := m.Get(conversationID)
	out := make([]models.ProactiveMessage, len(st.ProactiveMessages))
	copy(out, st.ProactiveMessages)
	return out
}
