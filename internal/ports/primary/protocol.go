package primary

import (
	"context"

	"github.com/example/courier/internal/ports/secondary"
)

// ProtocolService exposes the quarantine gate to human actors. Every
// action carries an actor identity for the audit trail.
type ProtocolService interface {
	// Activate turns quarantine on for a user with a reason.
	Activate(ctx context.Context, userID, actor, reason string) error

	// Deactivate turns quarantine off. Messages quarantined while
	// active are not retroactively processed.
	Deactivate(ctx context.Context, userID, actor string) error

	// OneTimePass lets the user's next single event bypass quarantine
	// without changing persistent state.
	OneTimePass(ctx context.Context, userID, actor string) error

	// Status returns the user's protocol state.
	Status(ctx context.Context, userID string) (*secondary.ProtocolRecord, error)

	// AuditTrail returns the user's transition history, oldest first.
	AuditTrail(ctx context.Context, userID string) ([]*secondary.ProtocolAuditRecord, error)

	// ListQuarantined returns the user's unprocessed quarantined
	// messages.
	ListQuarantined(ctx context.Context, userID string) ([]*secondary.QuarantineRecord, error)

	// Release pushes one quarantined message through the pipeline and
	// marks it processed by the actor.
	Release(ctx context.Context, quarantineID, actor string) (*IngestResult, error)
}
