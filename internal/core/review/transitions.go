// Package review contains the pure business logic of the human
// approval checkpoint. This is part of the Functional Core - no I/O,
// only pure functions.
package review

import (
	"fmt"
	"time"
)

// ApprovalState is the lifecycle of a review item.
type ApprovalState string

const (
	StatePending  ApprovalState = "pending"
	StateApproved ApprovalState = "approved"
	StateRejected ApprovalState = "rejected"
	StateEdited   ApprovalState = "edited"
)

// IsTerminal reports whether the state is final. Terminal states are
// immutable; recovery never re-surfaces an event with a terminal item.
func IsTerminal(s ApprovalState) bool {
	return s == StateApproved || s == StateRejected || s == StateEdited
}

// Deliverable reports whether an item in the given state may be handed
// to the transport. Rejected items are resolved without delivery.
func Deliverable(s ApprovalState) bool {
	return s == StateApproved || s == StateEdited
}

// TagCode is one entry of the closed edit-tag vocabulary used for
// downstream analytics. Tags never alter approval semantics.
type TagCode string

const (
	TagTone       TagCode = "tone"
	TagContent    TagCode = "content"
	TagCTA        TagCode = "cta"
	TagLength     TagCode = "length"
	TagFactual    TagCode = "factual"
	TagScheduling TagCode = "scheduling"
)

var validTags = map[TagCode]bool{
	TagTone:       true,
	TagContent:    true,
	TagCTA:        true,
	TagLength:     true,
	TagFactual:    true,
	TagScheduling: true,
}

// ValidateTags rejects tags outside the closed vocabulary.
func ValidateTags(tags []TagCode) error {
	for _, t := range tags {
		if !validTags[t] {
			return fmt.Errorf("unknown edit tag %q", t)
		}
	}
	return nil
}

// Decision is the result of applying a reviewer action. The caller
// persists the whole decision atomically.
type Decision struct {
	NewState     ApprovalState
	Reviewer     string
	EditedOutput string
	Tags         []TagCode
	DecidedAt    time.Time
}

// Approve computes the pending -> approved transition.
func Approve(current ApprovalState, reviewer string, now time.Time) (Decision, error) {
	if err := guard(current, reviewer); err != nil {
		return Decision{}, err
	}
	return Decision{NewState: StateApproved, Reviewer: reviewer, DecidedAt: now}, nil
}

// Reject computes the pending -> rejected transition. Rejection is
// terminal and deliberately not eligible for regeneration.
func Reject(current ApprovalState, reviewer string, now time.Time) (Decision, error) {
	if err := guard(current, reviewer); err != nil {
		return Decision{}, err
	}
	return Decision{NewState: StateRejected, Reviewer: reviewer, DecidedAt: now}, nil
}

// Edit computes the pending -> edited transition with the reviewer's
// replacement output and optional taxonomy tags.
func Edit(current ApprovalState, reviewer, editedOutput string, tags []TagCode, now time.Time) (Decision, error) {
	if err := guard(current, reviewer); err != nil {
		return Decision{}, err
	}
	if editedOutput == "" {
		return Decision{}, fmt.Errorf("edit requires replacement output")
	}
	if err := ValidateTags(tags); err != nil {
		return Decision{}, err
	}
	return Decision{NewState: StateEdited, Reviewer: reviewer, EditedOutput: editedOutput, Tags: tags, DecidedAt: now}, nil
}

func guard(current ApprovalState, reviewer string) error {
	if current != StatePending {
		return fmt.Errorf("review item already %s", current)
	}
	if reviewer == "" {
		return fmt.Errorf("decision requires a reviewer")
	}
	return nil
}
