package store

import (
	"context"
	"fmt"

	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/sirupsen/logrus"
)

// RecordLog is the durable group-chat message log. Appends evict the oldest
// records of a conversation once it holds more than the configured cap;
// insertion order is the only ordering key.
type RecordLog interface {
	// Append stores one record
	Append(ctx context.Context, rec models.MessageRecord) error
	// Conversation returns all retained records for a conversation in
	// chronological (insertion) order
	Conversation(ctx context.Context, conversationID string) ([]models.MessageRecord, error)
	// Recent returns the most recent n records for a conversation,
	// chronological
	Recent(ctx context.Context, conversationID string, n int) ([]models.MessageRecord, error)
	// Conversations lists the conversation ids with retained records
	Conversations(ctx context.Context) ([]string, error)
	Close() error
}

// Manager selects and wraps the configured log backend
type Manager struct {
	log    RecordLog
	logger *logrus.Logger
}

// NewManager creates a record log manager
func NewManager(cfg *config.StorageConfig, logger *logrus.Logger) (*Manager, error) {
	var backend RecordLog
	var err error

	switch cfg.Type {
	case "sqlite":
		backend, err = NewSQLiteLog(cfg.SQLite.Path, cfg.MaxRecords, logger)
	case "file":
		backend, err = NewFileLog(cfg.File.Path, cfg.MaxRecords, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("type", cfg.Type).Info("Message log initialized")
	return &Manager{log: backend, logger: logger}, nil
}

func (m *Manager) Append(ctx context.Context, rec models.MessageRecord) error {
	return m.log.Append(ctx, rec)
}

func (m *Manager) Conversation(ctx context.Context, conversationID string) ([]models.MessageRecord, error) {
	return m.log.Conversation(ctx, conversationID)
}

func (m *Manager) Recent(ctx context.Context, conversationID string, n int) ([]models.MessageRecord, error) {
	return m.log.Recent(ctx, conversationID, n)
}

func (m *Manager) Conversations(ctx context.Context) ([]string, error) {
	return m.log.Conversations(ctx)
}

func (m *Manager) Close() error {
	return m.log.Close()
}

// tail returns the last n elements of records, preserving order
func tail(records []models.MessageRecord, n int) []models.MessageRecord {
	if n <= 0 || len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
