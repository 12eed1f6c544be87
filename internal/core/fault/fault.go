// Package fault defines the error taxonomy shared across the pipeline.
// Errors here are matched with errors.Is/errors.As; services never
// branch on error strings.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrDurability indicates an inbox write could not be confirmed.
	// The transport layer must retry; the event is not acknowledged.
	ErrDurability = errors.New("durability: write not confirmed")

	// ErrConsistency indicates a multi-field atomic update was partially
	// applied. This is a structural bug, never recovered from at runtime.
	ErrConsistency = errors.New("consistency: partial atomic update")

	// ErrParse indicates classification output could not be parsed
	// against the verdict schema.
	ErrParse = errors.New("parse: malformed classification output")
)

// DurabilityError wraps the underlying cause of an unconfirmed write.
type DurabilityError struct {
	Cause error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durability: write not confirmed: %v", e.Cause)
}

func (e *DurabilityError) Is(target error) bool { return target == ErrDurability }

func (e *DurabilityError) Unwrap() error { return e.Cause }

// ConsistencyError reports which entity saw a partial atomic update.
type ConsistencyError struct {
	Entity string
	Cause  error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency: partial update on %s: %v", e.Entity, e.Cause)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

func (e *ConsistencyError) Unwrap() error { return e.Cause }

// StageFailure is returned when a pipeline stage exhausted its retries.
// The event stays un-advanced in the cursor and is retried by the next
// recovery pass.
type StageFailure struct {
	Stage string
	Cause error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *StageFailure) Unwrap() error { return e.Cause }

// AsStageFailure extracts a StageFailure from an error chain.
func AsStageFailure(err error) (*StageFailure, bool) {
	var sf *StageFailure
	ok := errors.As(err, &sf)
	return sf, ok
}

// RecoveryRunFailure isolates one user's recovery error so the run can
// continue with subsequent users. It is recorded in the run's
// error_details, never propagated as a run abort.
type RecoveryRunFailure struct {
	UserID string
	Cause  error
}

func (e *RecoveryRunFailure) Error() string {
	return fmt.Sprintf("recovery failed for user %s: %v", e.UserID, e.Cause)
}

func (e *RecoveryRunFailure) Unwrap() error { return e.Cause }
