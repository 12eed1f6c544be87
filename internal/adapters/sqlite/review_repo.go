package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/review"
	"github.com/example/courier/internal/ports/secondary"
)

// ReviewRepository implements secondary.ReviewRepository with SQLite.
// Items are unique per event identity; the INSERT OR IGNORE is the
// structural guarantee behind idempotent replays.
type ReviewRepository struct {
	db        *sql.DB
	logWriter secondary.LogWriter
}

// NewReviewRepository creates a new SQLite review repository.
// logWriter is optional - if nil, no audit logging is performed.
func NewReviewRepository(db *sql.DB, logWriter secondary.LogWriter) *ReviewRepository {
	return &ReviewRepository{db: db, logWriter: logWriter}
}

// Create inserts a pending item; a second insert for the same event
// identity is a no-op.
func (r *ReviewRepository) Create(ctx context.Context, rec *secondary.ReviewRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO review_items (id, user_id, message_id, candidate_output, verdict_status,
			approval_state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.MessageID, rec.CandidateOutput, rec.VerdictStatus,
		review.StatePending, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create review item: %w", err)
	}

	if r.logWriter != nil {
		_ = r.logWriter.LogCreate(ctx, "review_item", rec.ID)
	}
	return nil
}

// GetByID retrieves an item by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*secondary.ReviewRecord, error) {
	rec, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review item: %w", err)
	}
	return rec, nil
}

// GetByEvent returns the item for an event identity, or nil when none
// exists.
func (r *ReviewRepository) GetByEvent(ctx context.Context, id event.Identity) (*secondary.ReviewRecord, error) {
	rec, err := scanReview(r.db.QueryRowContext(ctx,
		reviewSelect+` WHERE user_id = ? AND message_id = ?`, id.UserID, id.MessageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review item: %w", err)
	}
	return rec, nil
}

// ListPending returns pending items, oldest first, optionally filtered
// by user.
func (r *ReviewRepository) ListPending(ctx context.Context, userID string) ([]*secondary.ReviewRecord, error) {
	query := reviewSelect + ` WHERE approval_state = 'pending'`
	args := []any{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC`
	return r.list(ctx, query, args...)
}

// Decide applies a terminal decision atomically. Only pending items
// transition; deciding a terminal item is an error.
func (r *ReviewRepository) Decide(ctx context.Context, id string, d review.Decision) error {
	tags := make([]string, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = string(t)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE review_items SET approval_state = ?, edited_output = ?, edit_tags = ?, reviewer = ?, decided_at = ?
		 WHERE id = ? AND approval_state = 'pending'`,
		d.NewState, nullIfEmpty(d.EditedOutput), nullIfEmpty(strings.Join(tags, ",")),
		d.Reviewer, d.DecidedAt, id)
	if err != nil {
		return fmt.Errorf("failed to decide review item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to decide review item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("review item %s is not pending", id)
	}

	if r.logWriter != nil {
		_ = r.logWriter.LogUpdate(ctx, "review_item", id, "approval_state",
			string(review.StatePending), string(d.NewState))
	}
	return nil
}

// ListUndelivered returns approved/edited items not yet delivered,
// oldest first.
func (r *ReviewRepository) ListUndelivered(ctx context.Context) ([]*secondary.ReviewRecord, error) {
	return r.list(ctx, reviewSelect+
		` WHERE approval_state IN ('approved', 'edited') AND delivered_at IS NULL ORDER BY decided_at ASC`)
}

// MarkDelivered stamps a delivered item.
func (r *ReviewRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE review_items SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	return nil
}

func (r *ReviewRepository) list(ctx context.Context, query string, args ...any) ([]*secondary.ReviewRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	defer rows.Close()

	var records []*secondary.ReviewRecord
	for rows.Next() {
		rec, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const reviewSelect = `SELECT id, user_id, message_id, candidate_output, verdict_status,
	approval_state, edited_output, edit_tags, reviewer, decided_at, delivered_at, created_at
	FROM review_items`

func scanReview(row rowScanner) (*secondary.ReviewRecord, error) {
	var (
		rec          secondary.ReviewRecord
		editedOutput sql.NullString
		editTags     sql.NullString
		reviewer     sql.NullString
		decidedAt    sql.NullTime
		deliveredAt  sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.MessageID, &rec.CandidateOutput, &rec.VerdictStatus,
		&rec.ApprovalState, &editedOutput, &editTags, &reviewer, &decidedAt, &deliveredAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.EditedOutput = editedOutput.String
	rec.Reviewer = reviewer.String
	if editTags.Valid && editTags.String != "" {
		for _, t := range strings.Split(editTags.String, ",") {
			rec.EditTags = append(rec.EditTags, review.TagCode(t))
		}
	}
	if decidedAt.Valid {
		rec.DecidedAt = &decidedAt.Time
	}
	if deliveredAt.Valid {
		rec.DeliveredAt = &deliveredAt.Time
	}
	return &rec, nil
}
