// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/fault"
)

// EventRepository implements secondary.EventRepository with SQLite.
// The events table is the durable inbox: append-only, immutable rows,
// identity (user_id, message_id).
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append persists an event before the caller acknowledges receipt.
// Re-appending an existing identity is a no-op. Any write that cannot
// be confirmed surfaces as a fault.DurabilityError so the transport
// retries instead of silently dropping the event.
func (r *EventRepository) Append(ctx context.Context, e event.Inbound) error {
	if err := event.Validate(e); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (user_id, message_id, source_timestamp, payload, received_at) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.MessageID, e.SourceTimestamp, e.Payload, e.ReceivedAt,
	)
	if err != nil {
		return &fault.DurabilityError{Cause: err}
	}
	return nil
}

// ReadFrom returns the user's events strictly after the watermark,
// ascending by message id.
func (r *EventRepository) ReadFrom(ctx context.Context, userID string, afterMessageID int64) ([]event.Inbound, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, message_id, source_timestamp, payload, received_at
		 FROM events WHERE user_id = ? AND message_id > ? ORDER BY message_id ASC`,
		userID, afterMessageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	defer rows.Close()

	var events []event.Inbound
	for rows.Next() {
		var e event.Inbound
		if err := rows.Scan(&e.UserID, &e.MessageID, &e.SourceTimestamp, &e.Payload, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Get fetches one event by identity.
func (r *EventRepository) Get(ctx context.Context, id event.Identity) (*event.Inbound, error) {
	var e event.Inbound
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, message_id, source_timestamp, payload, received_at FROM events WHERE user_id = ? AND message_id = ?`,
		id.UserID, id.MessageID,
	).Scan(&e.UserID, &e.MessageID, &e.SourceTimestamp, &e.Payload, &e.ReceivedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

// LatestMessageID returns the highest stored message id for the user,
// or 0 when the user has no events.
func (r *EventRepository) LatestMessageID(ctx context.Context, userID string) (int64, error) {
	var latest sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(message_id) FROM events WHERE user_id = ?`, userID,
	).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest message id: %w", err)
	}
	return latest.Int64, nil
}

// Users lists every user that has ever appeared in the inbox.
func (r *EventRepository) Users(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM events ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
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
