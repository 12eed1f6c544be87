package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/courier/internal/ports/secondary"
)

// CursorRepository implements secondary.CursorRepository with SQLite.
// Monotonicity is enforced in SQL: an advance below the current
// watermark changes nothing.
type CursorRepository struct {
	db *sql.DB
}

// NewCursorRepository creates a new SQLite cursor repository.
func NewCursorRepository(db *sql.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get returns the user's cursor, defaulting to a zero watermark for
// users never processed.
func (r *CursorRepository) Get(ctx context.Context, userID string) (*secondary.CursorRecord, error) {
	var (
		rec             = secondary.CursorRecord{UserID: userID}
		processedAt     sql.NullTime
		recoveryCheckAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT last_processed_message_id, last_processed_at, last_recovery_check_at, total_recovered
		 FROM cursors WHERE user_id = ?`, userID,
	).Scan(&rec.LastProcessedID, &processedAt, &recoveryCheckAt, &rec.TotalRecovered)
	if err == sql.ErrNoRows {
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	if processedAt.Valid {
		rec.LastProcessedAt = processedAt.Time
	}
	if recoveryCheckAt.Valid {
		rec.LastRecoveryCheckAt = recoveryCheckAt.Time
	}
	return &rec, nil
}

// Advance moves the watermark forward. The MAX() in the upsert keeps
// the cursor monotonically non-decreasing across any sequence of calls,
// including concurrent recovery and live processing.
func (r *CursorRepository) Advance(ctx context.Context, userID string, messageID int64, processedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cursors (user_id, last_processed_message_id, last_processed_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			last_processed_message_id = MAX(last_processed_message_id, excluded.last_processed_message_id),
			last_processed_at = CASE
				WHEN excluded.last_processed_message_id > last_processed_message_id THEN excluded.last_processed_at
				ELSE last_processed_at
			END`,
		userID, messageID, processedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

// MarkRecoveryCheck records a completed recovery check and accumulates
// the lifetime recovered total.
func (r *CursorRepository) MarkRecoveryCheck(ctx context.Context, userID string, at time.Time, recovered int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cursors (user_id, last_recovery_check_at, total_recovered)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			last_recovery_check_at = excluded.last_recovery_check_at,
			total_recovered = total_recovered + ?`,
		userID, at, recovered, recovered,
	)
	if err != nil {
		return fmt.Errorf("failed to mark recovery check: %w", err)
	}
	return nil
}

// Users lists every user with a cursor row.
func (r *CursorRepository) Users(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM cursors ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursor users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
