package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/sirupsen/logrus"
)

// FileLog keeps the whole log as one JSON array and rewrites it wholesale on
// every append. The mutex serializes access within this process only;
// concurrent writers from other processes still race on the file, which is a
// known limitation of this backend.
type FileLog struct {
	path       string
	maxRecords int
	mu         sync.Mutex
	logger     *logrus.Logger
}

// NewFileLog creates a JSON-file backed record log
func NewFileLog(path string, maxRecords int, logger *logrus.Logger) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure log dir: %w", err)
	}
	return &FileLog{
		path:       path,
		maxRecords: maxRecords,
		logger:     logger,
	}, nil
}

func (f *FileLog) Append(ctx context.Context, rec models.MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := f.loadLocked()
	records = append(records, rec)

	// Evict oldest records of this conversation beyond the cap
	count := 0
	for _, r := range records {
		if r.ConversationID == rec.ConversationID {
			count++
		}
	}
	if count > f.maxRecords {
		drop := count - f.maxRecords
		kept := records[:0]
		for _, r := range records {
			if drop > 0 && r.ConversationID == rec.ConversationID {
				drop--
				continue
			}
			kept = append(kept, r)
		}
		records = kept
	}

	return f.saveLocked(records)
}

func (f *FileLog) Conversation(ctx context.Context, conversationID string) ([]models.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.MessageRecord
	for _, r := range f.loadLocked() {
		if r.ConversationID == conversationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FileLog) Recent(ctx context.Context, conversationID string, n int) ([]models.MessageRecord, error) {
	records, err := f.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return tail(records, n), nil
}

func (f *FileLog) Conversations(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]bool)
	var ids []string
	for _, r := range f.loadLocked() {
		if !seen[r.ConversationID] {
			seen[r.ConversationID] = true
			ids = append(ids, r.ConversationID)
		}
	}
	return ids, nil
}

func (f *FileLog) Close() error {
	return nil
}

// loadLocked reads the log, treating a missing or corrupt file as empty
func (f *FileLog) loadLocked() []models.MessageRecord {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.WithError(err).Error("Failed to read message log, treating as empty")
		}
		return nil
	}

	var records []models.MessageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		f.logger.WithError(err).Error("Failed to parse message log, treating as empty")
		return nil
	}
	return records
}

func (f *FileLog) saveLocked(records []models.MessageRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal message log: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write message log: %w", err)
	}
	return nil
}
