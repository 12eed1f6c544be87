package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/courier/internal/core/coherence"
)

// CommitmentRepository implements secondary.CommitmentRepository with
// SQLite.
type CommitmentRepository struct {
	db *sql.DB
}

// NewCommitmentRepository creates a new SQLite commitment repository.
func NewCommitmentRepository(db *sql.DB) *CommitmentRepository {
	return &CommitmentRepository{db: db}
}

// Upsert inserts a new active commitment, or increments the assertion
// count of an existing active row with the same signature. The
// increment is what feeds the repetition-loop detector.
func (r *CommitmentRepository) Upsert(ctx context.Context, c coherence.Commitment) error {
	sig := c.Signature()
	res, err := r.db.ExecContext(ctx,
		`UPDATE commitments SET times_asserted = times_asserted + 1
		 WHERE user_id = ? AND signature = ? AND status = 'active'`,
		c.UserID, sig)
	if err != nil {
		return fmt.Errorf("failed to upsert commitment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to upsert commitment: %w", err)
	}
	if n > 0 {
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO commitments (id, user_id, commitment_time, activity, duration_minutes,
			flexibility, source_text, from_message_id, status, signature, times_asserted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, 1)`,
		c.ID, c.UserID, c.CommitmentTime, c.Activity, int(c.Duration.Minutes()),
		nullIfEmpty(c.Flexibility), nullIfEmpty(c.SourceText), c.FromMessageID, sig)
	if err != nil {
		return fmt.Errorf("failed to insert commitment: %w", err)
	}
	return nil
}

// ActiveByUser returns the user's active commitments ordered by
// commitment time ascending.
func (r *CommitmentRepository) ActiveByUser(ctx context.Context, userID string) ([]coherence.Commitment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, commitment_time, activity, duration_minutes, flexibility,
			source_text, from_message_id, status, times_asserted
		 FROM commitments WHERE user_id = ? AND status = 'active' ORDER BY commitment_time ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commitments: %w", err)
	}
	defer rows.Close()

	var commitments []coherence.Commitment
	for rows.Next() {
		var (
			c           coherence.Commitment
			durationMin int
			flexibility sql.NullString
			sourceText  sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.CommitmentTime, &c.Activity, &durationMin,
			&flexibility, &sourceText, &c.FromMessageID, &c.Status, &c.TimesAsserted); err != nil {
			return nil, fmt.Errorf("failed to scan commitment: %w", err)
		}
		c.Duration = time.Duration(durationMin) * time.Minute
		c.Flexibility = flexibility.String
		c.SourceText = sourceText.String
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}

// UpdateStatus moves one commitment to a new lifecycle state.
func (r *CommitmentRepository) UpdateStatus(ctx context.Context, id string, status coherence.CommitmentStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE commitments SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update commitment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update commitment status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("commitment %s not found", id)
	}
	return nil
}

// ExpireStale marks active commitments past their time plus grace as
// expired. Advisory bookkeeping; not itself a conflict signal.
func (r *CommitmentRepository) ExpireStale(ctx context.Context, now time.Time, grace time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE commitments SET status = 'expired' WHERE status = 'active' AND commitment_time < ?`,
		now.Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("failed to expire commitments: %w", err)
	}
	return res.RowsAffected()
}
