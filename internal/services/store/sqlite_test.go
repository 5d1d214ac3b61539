package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func newTestSQLiteLog(t *testing.T, maxRecords int) *SQLiteLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.db")
	log, err := NewSQLiteLog(path, maxRecords, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteLog: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestSQLiteLogAppendAndRead(t *testing.T) {
	log := newTestSQLiteLog(t, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := log.Append(ctx, record("conv-1", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := log.Conversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i, r := range got {
		if r.Text != fmt.Sprintf("message %d", i) {
			t.Errorf("record %d text = %q, out of order", i, r.Text)
		}
	}
}

func TestSQLiteLogEvictsOldestBeyondCap(t *testing.T) {
	log := newTestSQLiteLog(t, 100)
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		if err := log.Append(ctx, record("conv-1", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := log.Conversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("got %d records, want cap of 100", len(got))
	}
	if got[0].Text != "message 5" {
		t.Errorf("oldest surviving record = %q, want message 5", got[0].Text)
	}
	if got[99].Text != "message 104" {
		t.Errorf("newest record = %q, want message 104", got[99].Text)
	}
}

func TestSQLiteLogCapIsPerConversation(t *testing.T) {
	log := newTestSQLiteLog(t, 10)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := log.Append(ctx, record("conv-1", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := log.Append(ctx, record("conv-2", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	one, _ := log.Conversation(ctx, "conv-1")
	two, _ := log.Conversation(ctx, "conv-2")
	if len(one) != 10 {
		t.Errorf("conv-1 holds %d records, want 10", len(one))
	}
	if len(two) != 3 {
		t.Errorf("conv-2 holds %d records, want 3 untouched by conv-1 eviction", len(two))
	}
}

func TestSQLiteLogRecent(t *testing.T) {
	log := newTestSQLiteLog(t, 100)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := log.Append(ctx, record("conv-1", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := log.Recent(ctx, "conv-1", 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d records, want 5", len(got))
	}
	if got[0].Text != "message 15" || got[4].Text != "message 19" {
		t.Errorf("window = %q..%q, want message 15..message 19", got[0].Text, got[4].Text)
	}
}
