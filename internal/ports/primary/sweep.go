package primary

import (
	"context"

	"github.com/example/courier/internal/ports/secondary"
)

// Sweep kinds.
const (
	SweepQuarantineExpiry = "quarantine_expiry"
	SweepCommitmentExpiry = "commitment_expiry"
)

// SweepService runs the scheduled, idempotent cleanup jobs. Each
// execution writes its own audit row; sweeps are best-effort
// bookkeeping, not correctness requirements.
type SweepService interface {
	// PurgeExpiredQuarantine deletes unprocessed quarantined messages
	// past their expiry.
	PurgeExpiredQuarantine(ctx context.Context) (*secondary.SweepRunRecord, error)

	// ExpireStaleCommitments marks active commitments past their time
	// plus the grace window as expired.
	ExpireStaleCommitments(ctx context.Context) (*secondary.SweepRunRecord, error)
}
