package models

import (
	"time"
)

// Message represents a chat message in LLM wire format
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRecord is one stored group-chat message. Records are immutable once
// appended; the log keeps at most MaxRecordsPerConversation per conversation,
// oldest dropped first.
type MessageRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	UserName       string    `json:"user_name"`
	UserID         string    `json:"user_id"`
	Text           string    `json:"message"`
	ConversationID string    `json:"conversation_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	Type           string    `json:"type"`
}

// IncidentContextResult is the structured output of the incident classifier.
// Transient; produced per classification call, never stored.
type IncidentContextResult struct {
	IncidentID        string `json:"incident_id"`
	IsIncidentRelated bool   `json:"is_incident_related"`
	Confidence        int    `json:"confidence"`
}

// Task is one item on a conversation's task board
type Task struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ProactiveMessage records a bot-initiated message kept in conversation state
// so the planner sees it as context on the next turn
type ProactiveMessage struct {
	Timestamp        time.Time `json:"timestamp"`
	Message          string    `json:"message"`
	Type             string    `json:"type"`
	AwaitingResponse bool      `json:"awaiting_response"`
}

// ConversationState holds the per-conversation state owned by this bot
type ConversationState struct {
	ConversationID    string             `json:"conversation_id"`
	Tasks             map[string]Task    `json:"tasks"`
	ProactiveMessages []ProactiveMessage `json:"proactive_messages"`
	LastActivity      time.Time          `json:"last_activity"`
}

// StatusResult is the response payload of the incident-status collaborator
type StatusResult struct {
	Status    string `json:"status"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

// SearchEntry is a cached web-search summary
type SearchEntry struct {
	Query     string    `json:"query"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}
