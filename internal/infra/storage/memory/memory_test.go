package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/vietddude/redeliver/internal/core/domain"
)

func TestFailureRepo_RecentNewestFirst(t *testing.T) {
	repo := NewFailureRepo(NewMemoryStorage(3))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := repo.Add(ctx, &domain.FailureReport{ID: fmt.Sprintf("r%d", i)}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	count, _ := repo.Count(ctx)
	if count != 3 {
		t.Errorf("expected capacity 3 to be enforced, got %d", count)
	}

	got, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r5" || got[1].ID != "r4" {
		t.Errorf("unexpected order: %v, %v", got[0].ID, got[1].ID)
	}
}

func TestLogRepo_AssignsIDs(t *testing.T) {
	repo := NewLogRepo(NewMemoryStorage(0))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := repo.Append(ctx, &domain.LogEntry{EventID: fmt.Sprintf("evt-%d", i), Outcome: domain.OutcomeProcessed}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := repo.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected default limit 10, got %d", len(got))
	}
	if got[0].ID != 12 || got[0].EventID != "evt-11" {
		t.Errorf("expected newest entry first, got %+v", got[0])
	}
}

func TestLogRepo_CopiesEntries(t *testing.T) {
	repo := NewLogRepo(NewMemoryStorage(0))
	ctx := context.Background()

	entry := &domain.LogEntry{EventID: "evt-1"}
	_ = repo.Append(ctx, entry)
	entry.EventID = "mutated"

	got, _ := repo.Recent(ctx, 1)
	if got[0].EventID != "evt-1" {
		t.Error("stored entry should not alias the caller's value")
	}
}
