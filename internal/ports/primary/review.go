package primary

import (
	"context"

	"github.com/example/courier/internal/core/review"
	"github.com/example/courier/internal/ports/secondary"
)

// ReviewService is the human-approval checkpoint. Only approved or
// edited items become deliverable; a terminal decision is also what
// lets the cursor manager consider the event resolved.
type ReviewService interface {
	// ListPending returns pending items, optionally filtered by user.
	ListPending(ctx context.Context, userID string) ([]*secondary.ReviewRecord, error)

	Get(ctx context.Context, itemID string) (*secondary.ReviewRecord, error)

	// Approve marks the item deliverable as-is.
	Approve(ctx context.Context, itemID, reviewer string) error

	// Reject resolves the item without delivery. Rejection is terminal;
	// the event is never resubmitted through the pipeline.
	Reject(ctx context.Context, itemID, reviewer string) error

	// Edit replaces the output and marks the item deliverable. Tags
	// come from the closed taxonomy and feed analytics only.
	Edit(ctx context.Context, itemID, reviewer, editedOutput string, tags []review.TagCode) error

	// DeliverApproved sends every undelivered approved/edited item via
	// the transport and returns how many were sent. Send failures keep
	// items deliverable for the next pass.
	DeliverApproved(ctx context.Context) (int, error)
}
