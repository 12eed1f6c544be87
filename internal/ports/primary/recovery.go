package primary

import (
	"context"

	"github.com/example/courier/internal/ports/secondary"
)

// Recovery run triggers.
const (
	TriggerStartup  = "startup"
	TriggerPeriodic = "periodic"
	TriggerManual   = "manual"
)

// RecoveryService replays the gap between each user's cursor and the
// latest durably stored event. Runs are audited; one user's failure is
// isolated and never aborts the run for other users. Replays are
// idempotent because every downstream side effect is keyed by event
// identity.
type RecoveryService interface {
	// Run executes one recovery pass over every known user and returns
	// the finished audit row.
	Run(ctx context.Context, trigger string) (*secondary.RecoveryRunRecord, error)

	// RunForUser recovers a single user on demand.
	RunForUser(ctx context.Context, trigger, userID string) (*secondary.RecoveryRunRecord, error)

	// ListRuns returns recent run audit rows, newest first.
	ListRuns(ctx context.Context, limit int) ([]*secondary.RecoveryRunRecord, error)
}
