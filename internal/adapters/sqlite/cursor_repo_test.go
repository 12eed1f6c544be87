package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/courier/internal/adapters/sqlite"
)

func TestCursorRepository_Advance(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCursorRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("unknown user has zero watermark", func(t *testing.T) {
		cur, err := repo.Get(ctx, "user-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if cur.LastProcessedID != 0 {
			t.Errorf("LastProcessedID = %d, want 0", cur.LastProcessedID)
		}
	})

	t.Run("advance moves the watermark", func(t *testing.T) {
		if err := repo.Advance(ctx, "user-1", 5, now); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		cur, err := repo.Get(ctx, "user-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if cur.LastProcessedID != 5 {
			t.Errorf("LastProcessedID = %d, want 5", cur.LastProcessedID)
		}
	})

	t.Run("advance never decreases", func(t *testing.T) {
		if err := repo.Advance(ctx, "user-1", 3, now.Add(time.Hour)); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		cur, err := repo.Get(ctx, "user-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if cur.LastProcessedID != 5 {
			t.Errorf("LastProcessedID = %d, want 5 (monotonic)", cur.LastProcessedID)
		}
		if !cur.LastProcessedAt.Equal(now) {
			t.Errorf("LastProcessedAt = %v, want unchanged %v", cur.LastProcessedAt, now)
		}
	})

	t.Run("recovery check accumulates totals", func(t *testing.T) {
		if err := repo.MarkRecoveryCheck(ctx, "user-1", now, 3); err != nil {
			t.Fatalf("MarkRecoveryCheck failed: %v", err)
		}
		if err := repo.MarkRecoveryCheck(ctx, "user-1", now.Add(time.Minute), 2); err != nil {
			t.Fatalf("MarkRecoveryCheck failed: %v", err)
		}
		cur, err := repo.Get(ctx, "user-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if cur.TotalRecovered != 5 {
			t.Errorf("TotalRecovered = %d, want 5", cur.TotalRecovered)
		}
	})

	t.Run("recovery check creates cursor row for new user", func(t *testing.T) {
		if err := repo.MarkRecoveryCheck(ctx, "user-2", now, 0); err != nil {
			t.Fatalf("MarkRecoveryCheck failed: %v", err)
		}
		users, err := repo.Users(ctx)
		if err != nil {
			t.Fatalf("Users failed: %v", err)
		}
		if len(users) != 2 {
			t.Errorf("got %d users, want 2", len(users))
		}
	})
}
