package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/courier/internal/core/fault"
	"github.com/example/courier/internal/core/protocol"
	"github.com/example/courier/internal/ports/secondary"
)

// ProtocolRepository implements secondary.ProtocolRepository with
// SQLite. Every transition writes the state row and its audit entry in
// one transaction; a failure of either rolls back both, so a partial
// write can never be observed.
type ProtocolRepository struct {
	db *sql.DB
}

// NewProtocolRepository creates a new SQLite protocol repository.
func NewProtocolRepository(db *sql.DB) *ProtocolRepository {
	return &ProtocolRepository{db: db}
}

// Get returns the user's protocol state, defaulting to INACTIVE for
// users with no row.
func (r *ProtocolRepository) Get(ctx context.Context, userID string) (*secondary.ProtocolRecord, error) {
	var (
		rec         = secondary.ProtocolRecord{UserID: userID}
		activatedBy sql.NullString
		activatedAt sql.NullTime
		reason      sql.NullString
		pendingPass int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT status, activated_by, activated_at, reason, quarantined_count, cost_saved, pending_pass
		 FROM protocol_states WHERE user_id = ?`, userID,
	).Scan(&rec.Status, &activatedBy, &activatedAt, &reason, &rec.QuarantinedCount, &rec.CostSaved, &pendingPass)
	if err == sql.ErrNoRows {
		rec.Status = protocol.StatusInactive
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get protocol state: %w", err)
	}
	rec.ActivatedBy = activatedBy.String
	rec.Reason = reason.String
	rec.PendingPass = pendingPass != 0
	if activatedAt.Valid {
		rec.ActivatedAt = &activatedAt.Time
	}
	return &rec, nil
}

// ApplyTransition persists the transition and its audit entry
// atomically.
func (r *ProtocolRepository) ApplyTransition(ctx context.Context, userID string, t protocol.Transition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback()

	switch t.Action {
	case protocol.ActionActivated:
		// Each activation starts a fresh epoch: an unconsumed pass from
		// an earlier activation must not carry over.
		_, err = tx.ExecContext(ctx,
			`INSERT INTO protocol_states (user_id, status, activated_by, activated_at, reason, pending_pass)
			 VALUES (?, ?, ?, ?, ?, 0)
			 ON CONFLICT(user_id) DO UPDATE SET
				status = excluded.status, activated_by = excluded.activated_by,
				activated_at = excluded.activated_at, reason = excluded.reason,
				pending_pass = 0`,
			userID, t.NewStatus, t.Actor, t.At, nullIfEmpty(t.Reason))
	case protocol.ActionDeactivated:
		// A pass has no meaning while inactive; revoke it too.
		_, err = tx.ExecContext(ctx,
			`UPDATE protocol_states SET status = ?, pending_pass = 0 WHERE user_id = ?`, t.NewStatus, userID)
	case protocol.ActionOneTimePass:
		// Status unchanged; grant the pass the next event will consume.
		_, err = tx.ExecContext(ctx,
			`UPDATE protocol_states SET pending_pass = 1 WHERE user_id = ?`, userID)
	default:
		return fmt.Errorf("unknown protocol action %q", t.Action)
	}
	if err != nil {
		return &fault.ConsistencyError{Entity: "protocol_state", Cause: err}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO protocol_audit (id, user_id, action, actor, previous_status, new_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, t.Action, t.Actor, t.PreviousStatus, t.NewStatus, t.At)
	if err != nil {
		return &fault.ConsistencyError{Entity: "protocol_audit", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return &fault.ConsistencyError{Entity: "protocol_state", Cause: err}
	}
	return nil
}

// RecordDiversion increments the user's quarantine counters for one
// diverted event.
func (r *ProtocolRepository) RecordDiversion(ctx context.Context, userID string, costSaved float64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE protocol_states SET quarantined_count = quarantined_count + 1, cost_saved = cost_saved + ?
		 WHERE user_id = ?`, costSaved, userID)
	if err != nil {
		return fmt.Errorf("failed to record diversion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record diversion: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no protocol state for user %s", userID)
	}
	return nil
}

// ConsumePass atomically claims a granted one-time pass. The single
// UPDATE guarded on pending_pass = 1 is what makes the claim exclusive.
func (r *ProtocolRepository) ConsumePass(ctx context.Context, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE protocol_states SET pending_pass = 0 WHERE user_id = ? AND pending_pass = 1`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to consume pass: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume pass: %w", err)
	}
	return n > 0, nil
}

// AuditTrail returns the user's transition history, oldest first.
func (r *ProtocolRepository) AuditTrail(ctx context.Context, userID string) ([]*secondary.ProtocolAuditRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, action, actor, previous_status, new_status, created_at
		 FROM protocol_audit WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocol audit: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.ProtocolAuditRecord
	for rows.Next() {
		var e secondary.ProtocolAuditRecord
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Actor, &e.PreviousStatus, &e.NewStatus, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
