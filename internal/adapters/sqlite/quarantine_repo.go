package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/courier/internal/ports/secondary"
)

// QuarantineRepository implements secondary.QuarantineRepository with
// SQLite.
type QuarantineRepository struct {
	db *sql.DB
}

// NewQuarantineRepository creates a new SQLite quarantine repository.
func NewQuarantineRepository(db *sql.DB) *QuarantineRepository {
	return &QuarantineRepository{db: db}
}

// Create persists a diverted message. Diverting the same event twice
// (a replayed duplicate) is a no-op thanks to the (user_id, message_id)
// uniqueness; the bool reports whether a row was actually inserted so
// callers only count genuinely new diversions.
func (r *QuarantineRepository) Create(ctx context.Context, q *secondary.QuarantineRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quarantined_messages (id, user_id, message_id, payload, received_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, q.MessageID, q.Payload, q.ReceivedAt, q.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to create quarantined message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create quarantined message: %w", err)
	}
	return n > 0, nil
}

// GetByID retrieves one quarantined message.
func (r *QuarantineRepository) GetByID(ctx context.Context, id string) (*secondary.QuarantineRecord, error) {
	q, err := scanQuarantine(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, message_id, payload, received_at, expires_at, processed, processed_at, processed_by
		 FROM quarantined_messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("quarantined message %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quarantined message: %w", err)
	}
	return q, nil
}

// ListPending returns the user's unprocessed messages, oldest first.
func (r *QuarantineRepository) ListPending(ctx context.Context, userID string) ([]*secondary.QuarantineRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, message_id, payload, received_at, expires_at, processed, processed_at, processed_by
		 FROM quarantined_messages WHERE user_id = ? AND processed = 0 ORDER BY message_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantined messages: %w", err)
	}
	defer rows.Close()

	var records []*secondary.QuarantineRecord
	for rows.Next() {
		q, err := scanQuarantine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quarantined message: %w", err)
		}
		records = append(records, q)
	}
	return records, rows.Err()
}

// MarkProcessed flips the row to processed by the given actor. Already
// processed rows are left untouched.
func (r *QuarantineRepository) MarkProcessed(ctx context.Context, id, actor string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE quarantined_messages SET processed = 1, processed_at = ?, processed_by = ?
		 WHERE id = ? AND processed = 0`, at, actor, id)
	if err != nil {
		return fmt.Errorf("failed to mark quarantined message processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark quarantined message processed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("quarantined message %s not pending", id)
	}
	return nil
}

// PurgeExpired deletes unprocessed rows past their expiry. Processed
// rows are kept for the audit trail.
func (r *QuarantineRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM quarantined_messages WHERE processed = 0 AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired messages: %w", err)
	}
	return res.RowsAffected()
}

func scanQuarantine(row rowScanner) (*secondary.QuarantineRecord, error) {
	var (
		q           secondary.QuarantineRecord
		processed   int
		processedAt sql.NullTime
		processedBy sql.NullString
	)
	err := row.Scan(&q.ID, &q.UserID, &q.MessageID, &q.Payload, &q.ReceivedAt, &q.ExpiresAt,
		&processed, &processedAt, &processedBy)
	if err != nil {
		return nil, err
	}
	q.Processed = processed != 0
	if processedAt.Valid {
		q.ProcessedAt = &processedAt.Time
	}
	q.ProcessedBy = processedBy.String
	return &q, nil
}
