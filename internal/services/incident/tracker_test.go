package incident

import (
	"context"
	"testing"
)

func TestMemoryTrackerAdvance(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	count, err := tr.Count(ctx, "INC0001234")
	if err != nil || count != 0 {
		t.Fatalf("Count = %d, %v; want 0, nil for unseen incident", count, err)
	}

	ok, err := tr.Advance(ctx, "INC0001234", 0, 5)
	if err != nil || !ok {
		t.Fatalf("Advance(0,5) = %v, %v; want true, nil", ok, err)
	}

	count, _ = tr.Count(ctx, "INC0001234")
	if count != 5 {
		t.Fatalf("Count = %d after advance, want 5", count)
	}
}

func TestMemoryTrackerAdvanceRejectsStaleSnapshot(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	if ok, _ := tr.Advance(ctx, "INC0001234", 0, 5); !ok {
		t.Fatal("initial advance failed")
	}

	// A concurrent trigger that also saw 0 must lose
	ok, err := tr.Advance(ctx, "INC0001234", 0, 7)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if ok {
		t.Fatal("stale advance succeeded, want compare-and-swap rejection")
	}

	if count, _ := tr.Count(ctx, "INC0001234"); count != 5 {
		t.Fatalf("Count = %d, want 5 untouched by the losing advance", count)
	}
}

func TestMemoryTrackerForget(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	tr.Advance(ctx, "INC0001234", 0, 5)
	if err := tr.Forget(ctx, "INC0001234"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	if count, _ := tr.Count(ctx, "INC0001234"); count != 0 {
		t.Fatalf("Count = %d after forget, want 0", count)
	}
}

func TestMemoryTrackerIsolatesIncidents(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	tr.Advance(ctx, "INC0001111", 0, 3)
	tr.Advance(ctx, "INC0002222", 0, 8)

	if count, _ := tr.Count(ctx, "INC0001111"); count != 3 {
		t.Errorf("INC0001111 count = %d, want 3", count)
	}
	if count, _ := tr.Count(ctx, "INC0002222"); count != 8 {
		t.Errorf("INC0002222 count = %d, want 8", count)
	}
}
