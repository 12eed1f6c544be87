package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/courier/internal/adapters/sqlite"
	"github.com/example/courier/internal/core/coherence"
)

func TestCommitmentRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCommitmentRepository(db)
	ctx := context.Background()
	evening := time.Date(2026, 3, 12, 19, 0, 0, 0, time.UTC)

	gym := func(id string, fromMessageID int64) coherence.Commitment {
		return coherence.Commitment{
			ID:             id,
			UserID:         "user-a",
			CommitmentTime: evening,
			Activity:       "gym",
			Duration:       time.Hour,
			SourceText:     "heading to the gym tonight",
			FromMessageID:  fromMessageID,
		}
	}

	t.Run("repeated assertion increments the count instead of inserting", func(t *testing.T) {
		if err := repo.Upsert(ctx, gym("C-001", 10)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if err := repo.Upsert(ctx, gym("C-002", 11)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		active, err := repo.ActiveByUser(ctx, "user-a")
		if err != nil {
			t.Fatalf("ActiveByUser failed: %v", err)
		}
		if len(active) != 1 {
			t.Fatalf("got %d active commitments, want 1", len(active))
		}
		if active[0].ID != "C-001" {
			t.Errorf("ID = %q, want the original C-001", active[0].ID)
		}
		if active[0].TimesAsserted != 2 {
			t.Errorf("TimesAsserted = %d, want 2", active[0].TimesAsserted)
		}
	})

	t.Run("different activity in the same window is a separate row", func(t *testing.T) {
		c := gym("C-003", 12)
		c.Activity = "dinner with mom"
		if err := repo.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		active, err := repo.ActiveByUser(ctx, "user-a")
		if err != nil {
			t.Fatalf("ActiveByUser failed: %v", err)
		}
		if len(active) != 2 {
			t.Fatalf("got %d active commitments, want 2", len(active))
		}
	})

	t.Run("fulfilled commitment no longer absorbs assertions", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "C-001", coherence.CommitmentFulfilled); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		if err := repo.Upsert(ctx, gym("C-004", 13)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		active, err := repo.ActiveByUser(ctx, "user-a")
		if err != nil {
			t.Fatalf("ActiveByUser failed: %v", err)
		}
		var fresh *coherence.Commitment
		for i := range active {
			if active[i].ID == "C-004" {
				fresh = &active[i]
			}
		}
		if fresh == nil {
			t.Fatal("C-004 should be a new active row")
		}
		if fresh.TimesAsserted != 1 {
			t.Errorf("TimesAsserted = %d, want 1", fresh.TimesAsserted)
		}
	})

	t.Run("update status of unknown commitment errors", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "C-MISSING", coherence.CommitmentCancelled); err == nil {
			t.Fatal("expected error for unknown commitment")
		}
	})

	t.Run("expire stale leaves recent commitments active", func(t *testing.T) {
		old := gym("C-OLD", 14)
		old.UserID = "user-b"
		old.CommitmentTime = evening.Add(-72 * time.Hour)
		if err := repo.Upsert(ctx, old); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		recent := gym("C-RECENT", 15)
		recent.UserID = "user-b"
		if err := repo.Upsert(ctx, recent); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		expired, err := repo.ExpireStale(ctx, evening, 24*time.Hour)
		if err != nil {
			t.Fatalf("ExpireStale failed: %v", err)
		}
		if expired == 0 {
			t.Error("expected at least one expired commitment")
		}

		active, err := repo.ActiveByUser(ctx, "user-b")
		if err != nil {
			t.Fatalf("ActiveByUser failed: %v", err)
		}
		if len(active) != 1 || active[0].ID != "C-RECENT" {
			t.Errorf("active = %v, want only C-RECENT", active)
		}
	})
}
