// Package event contains the pure business rules for inbound events.
// This is part of the Functional Core - no I/O, only pure functions.
package event

import (
	"fmt"
	"time"
)

// Identity is the unique key of an inbound event. Two events with the
// same identity are the same event; appending a duplicate is a no-op.
type Identity struct {
	UserID    string
	MessageID int64
}

// String renders the identity in user:id form, used for audit rows and
// log fields.
func (id Identity) String() string {
	return fmt.Sprintf("%s:%d", id.UserID, id.MessageID)
}

// Inbound is an immutable inbound chat event as captured by the inbox.
type Inbound struct {
	UserID          string
	MessageID       int64
	SourceTimestamp time.Time
	Payload         string
	ReceivedAt      time.Time
}

// Identity returns the event's unique key.
func (e Inbound) Identity() Identity {
	return Identity{UserID: e.UserID, MessageID: e.MessageID}
}

// Validate checks the fields the upstream transport is contractually
// required to supply.
func Validate(e Inbound) error {
	if e.UserID == "" {
		return fmt.Errorf("event missing user id")
	}
	if e.MessageID <= 0 {
		return fmt.Errorf("event %s has non-positive message id", e.UserID)
	}
	if e.SourceTimestamp.IsZero() {
		return fmt.Errorf("event %s missing source timestamp", e.Identity())
	}
	return nil
}

// After reports whether e is strictly newer than the given watermark.
// Ordering is per-user; comparing events of different users is a
// programming error and always returns false.
func After(e Inbound, userID string, watermark int64) bool {
	if e.UserID != userID {
		return false
	}
	return e.MessageID > watermark
}
