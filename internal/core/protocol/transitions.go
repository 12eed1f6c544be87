// Package protocol contains the pure business logic for the per-user
// quarantine protocol. This is part of the Functional Core - no I/O,
// only pure functions.
package protocol

import (
	"fmt"
	"time"
)

// Status represents the two persistent states of the protocol.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Audit actions recorded for every transition.
const (
	ActionActivated   = "ACTIVATED"
	ActionDeactivated = "DEACTIVATED"
	ActionOneTimePass = "ONE_TIME_PASS"
)

// Transition is the result of applying a protocol action. The caller
// persists NewStatus and the audit entry in one transaction.
type Transition struct {
	Action         string
	PreviousStatus Status
	NewStatus      Status
	Actor          string
	Reason         string
	At             time.Time
}

// Activate computes the INACTIVE -> ACTIVE transition.
func Activate(current Status, actor, reason string, now time.Time) (Transition, error) {
	if current == StatusActive {
		return Transition{}, fmt.Errorf("protocol already active")
	}
	if actor == "" {
		return Transition{}, fmt.Errorf("activation requires an actor")
	}
	return Transition{
		Action:         ActionActivated,
		PreviousStatus: StatusInactive,
		NewStatus:      StatusActive,
		Actor:          actor,
		Reason:         reason,
		At:             now,
	}, nil
}

// Deactivate computes the ACTIVE -> INACTIVE transition. Deactivation
// never retroactively processes messages quarantined while active.
func Deactivate(current Status, actor string, now time.Time) (Transition, error) {
	if current != StatusActive {
		return Transition{}, fmt.Errorf("protocol not active")
	}
	if actor == "" {
		return Transition{}, fmt.Errorf("deactivation requires an actor")
	}
	return Transition{
		Action:         ActionDeactivated,
		PreviousStatus: StatusActive,
		NewStatus:      StatusInactive,
		Actor:          actor,
		At:             now,
	}, nil
}

// OneTimePass computes the stateless single-event bypass. Persistent
// status is unchanged; only the audit entry is written.
func OneTimePass(current Status, actor string, now time.Time) (Transition, error) {
	if current != StatusActive {
		return Transition{}, fmt.Errorf("one-time pass requires an active protocol")
	}
	if actor == "" {
		return Transition{}, fmt.Errorf("one-time pass requires an actor")
	}
	return Transition{
		Action:         ActionOneTimePass,
		PreviousStatus: StatusActive,
		NewStatus:      StatusActive,
		Actor:          actor,
		At:             now,
	}, nil
}

// QuarantineTTL is how long a diverted message is retained before the
// expiry sweep may purge it.
const QuarantineTTL = 7 * 24 * time.Hour

// ExpiresAt returns the purge deadline for a message diverted at the
// given time.
func ExpiresAt(receivedAt time.Time) time.Time {
	return receivedAt.Add(QuarantineTTL)
}
