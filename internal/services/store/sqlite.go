package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// SQLiteLog stores records in an embedded database. Append and eviction run
// in one transaction, so readers never observe a partially written log.
type SQLiteLog struct {
	db         *sql.DB
	maxRecords int
	logger     *logrus.Logger
}

// NewSQLiteLog opens (and migrates) the sqlite-backed record log
func NewSQLiteLog(dbPath string, maxRecords int, logger *logrus.Logger) (*SQLiteLog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS message_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			user_id TEXT,
			user_name TEXT,
			message TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'group_message',
			timestamp INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create message_records table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_records_conversation ON message_records(conversation_id, id)`)

	return &SQLiteLog{db: db, maxRecords: maxRecords, logger: logger}, nil
}

func (s *SQLiteLog) Append(ctx context.Context, rec models.MessageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO message_records (conversation_id, user_id, user_name, message, type, timestamp, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ConversationID, rec.UserID, rec.UserName, rec.Text, rec.Type,
		rec.Timestamp.UnixMilli(), rec.RecordedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	// Oldest-first eviction beyond the per-conversation cap
	_, err = tx.ExecContext(ctx, `
		DELETE FROM message_records
		WHERE conversation_id = ?
		  AND id NOT IN (
			SELECT id FROM message_records
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		  )`,
		rec.ConversationID, rec.ConversationID, s.maxRecords)
	if err != nil {
		return fmt.Errorf("failed to evict old records: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteLog) Conversation(ctx context.Context, conversationID string) ([]models.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, user_name, message, type, timestamp, recorded_at
		FROM message_records
		WHERE conversation_id = ?
		ORDER BY id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *SQLiteLog) Recent(ctx context.Context, conversationID string, n int) ([]models.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, user_name, message, type, timestamp, recorded_at
		FROM (
			SELECT * FROM message_records
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC`,
		conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *SQLiteLog) Conversations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT conversation_id FROM message_records`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteLog) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]models.MessageRecord, error) {
	var out []models.MessageRecord
	for rows.Next() {
		var rec models.MessageRecord
		var ts, recorded int64
		if err := rows.Scan(&rec.ConversationID, &rec.UserID, &rec.UserName, &rec.Text, &rec.Type, &ts, &recorded); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		rec.RecordedAt = time.UnixMilli(recorded).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
