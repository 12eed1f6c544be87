// Package secondary defines the driven ports: repository interfaces the
// application core depends on and the record shapes they persist.
// SQLite implementations live in internal/adapters/sqlite.
package secondary

import (
	"context"
	"time"

	"github.com/example/courier/internal/core/coherence"
	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/pipeline"
	"github.com/example/courier/internal/core/protocol"
	"github.com/example/courier/internal/core/review"
)

// EventRepository is the durable inbox. Append persists before the
// caller acknowledges receipt; an unconfirmed write surfaces as a
// fault.DurabilityError and must be retried at the transport layer.
// Events are immutable once stored and duplicates by identity are
// no-ops.
type EventRepository interface {
	Append(ctx context.Context, e event.Inbound) error

	// ReadFrom returns the user's events with message id strictly
	// greater than afterMessageID, ascending.
	ReadFrom(ctx context.Context, userID string, afterMessageID int64) ([]event.Inbound, error)

	// Get fetches one event by identity.
	Get(ctx context.Context, id event.Identity) (*event.Inbound, error)

	// LatestMessageID returns the highest stored message id for the
	// user, or 0 when none exist.
	LatestMessageID(ctx context.Context, userID string) (int64, error)

	// Users lists every user that has ever appeared in the inbox.
	Users(ctx context.Context) ([]string, error)
}

// CursorRecord is the per-user watermark of durably handled events.
type CursorRecord struct {
	UserID              string
	LastProcessedID     int64
	LastProcessedAt     time.Time
	LastRecoveryCheckAt time.Time
	TotalRecovered      int64
}

// CursorRepository owns cursor rows. Advance enforces monotonic
// non-decrease in SQL so no caller can move a watermark backwards.
type CursorRepository interface {
	// Get returns the user's cursor, or a zero-watermark record when
	// the user has never been processed.
	Get(ctx context.Context, userID string) (*CursorRecord, error)

	// Advance moves the watermark forward. Calls with a message id at
	// or below the current watermark are no-ops.
	Advance(ctx context.Context, userID string, messageID int64, processedAt time.Time) error

	// MarkRecoveryCheck records a completed recovery check and adds
	// recovered to the user's lifetime total.
	MarkRecoveryCheck(ctx context.Context, userID string, at time.Time, recovered int) error

	// Users lists every user with a cursor row.
	Users(ctx context.Context) ([]string, error)
}

// Recovery run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// RecoveryRunRecord is the audit row for one recovery pass. Terminal
// rows are immutable.
type RecoveryRunRecord struct {
	ID              string
	Trigger         string // startup | periodic | manual
	StartedAt       time.Time
	CompletedAt     *time.Time
	UsersChecked    int
	EventsRecovered int
	EventsSkipped   int
	Errors          int
	ErrorDetails    string
	Status          string
}

// RecoveryRunRepository persists recovery run audit rows.
type RecoveryRunRepository interface {
	Create(ctx context.Context, run *RecoveryRunRecord) error
	Finish(ctx context.Context, run *RecoveryRunRecord) error
	GetByID(ctx context.Context, id string) (*RecoveryRunRecord, error)
	List(ctx context.Context, limit int) ([]*RecoveryRunRecord, error)
}

// SweepRunRecord audits one execution of a background expiry sweep,
// mirroring the recovery run shape.
type SweepRunRecord struct {
	ID           string
	Kind         string // quarantine_expiry | commitment_expiry
	StartedAt    time.Time
	CompletedAt  time.Time
	RowsAffected int64
	Status       string
	ErrorDetails string
}

// SweepRunRepository persists sweep audit rows.
type SweepRunRepository interface {
	Record(ctx context.Context, run *SweepRunRecord) error
	List(ctx context.Context, kind string, limit int) ([]*SweepRunRecord, error)
}

// ProtocolRecord is the per-user quarantine protocol state.
type ProtocolRecord struct {
	UserID           string
	Status           protocol.Status
	ActivatedBy      string
	ActivatedAt      *time.Time
	Reason           string
	QuarantinedCount int64
	CostSaved        float64
	PendingPass      bool
}

// ProtocolAuditRecord is one append-only transition entry.
type ProtocolAuditRecord struct {
	ID             string
	UserID         string
	Action         string
	Actor          string
	PreviousStatus protocol.Status
	NewStatus      protocol.Status
	CreatedAt      time.Time
}

// ProtocolRepository owns protocol state and its audit trail. A state
// change and its audit entry are written in one transaction; a partial
// write is a fault.ConsistencyError.
type ProtocolRepository interface {
	// Get returns the user's protocol state, defaulting to INACTIVE
	// for users never quarantined.
	Get(ctx context.Context, userID string) (*ProtocolRecord, error)

	// ApplyTransition persists the transition and its audit entry
	// atomically.
	ApplyTransition(ctx context.Context, userID string, t protocol.Transition) error

	// RecordDiversion increments quarantined_count and cost_saved for
	// one diverted event.
	RecordDiversion(ctx context.Context, userID string, costSaved float64) error

	// ConsumePass atomically claims a granted one-time pass. It returns
	// true exactly once per granted pass, so two concurrent events can
	// never both bypass on the same pass.
	ConsumePass(ctx context.Context, userID string) (bool, error)

	// AuditTrail returns the user's transitions, oldest first.
	AuditTrail(ctx context.Context, userID string) ([]*ProtocolAuditRecord, error)
}

// QuarantineRecord is one diverted message awaiting reviewer action or
// expiry.
type QuarantineRecord struct {
	ID          string
	UserID      string
	MessageID   int64
	Payload     string
	ReceivedAt  time.Time
	ExpiresAt   time.Time
	Processed   bool
	ProcessedAt *time.Time
	ProcessedBy string
}

// QuarantineRepository owns diverted messages.
type QuarantineRepository interface {
	// Create persists a diverted message. It returns false when the
	// event identity was already quarantined, so replays cannot
	// double-count a diversion.
	Create(ctx context.Context, q *QuarantineRecord) (bool, error)
	GetByID(ctx context.Context, id string) (*QuarantineRecord, error)
	ListPending(ctx context.Context, userID string) ([]*QuarantineRecord, error)

	// MarkProcessed flips the row to processed by the given actor.
	MarkProcessed(ctx context.Context, id, actor string, at time.Time) error

	// PurgeExpired deletes unprocessed rows past their expiry and
	// returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// CommitmentRepository owns the per-user commitment ledger.
type CommitmentRepository interface {
	// Upsert inserts a new active commitment, or, when an active row
	// with the same signature exists, increments its assertion count
	// instead of duplicating the row.
	Upsert(ctx context.Context, c coherence.Commitment) error

	// ActiveByUser returns the user's active commitments ordered by
	// commitment time ascending.
	ActiveByUser(ctx context.Context, userID string) ([]coherence.Commitment, error)

	UpdateStatus(ctx context.Context, id string, status coherence.CommitmentStatus) error

	// ExpireStale marks active commitments past their time plus grace
	// as expired and returns the number of rows changed.
	ExpireStale(ctx context.Context, now time.Time, grace time.Duration) (int64, error)
}

// VerdictRepository persists coherence verdicts, at most one per event.
type VerdictRepository interface {
	Create(ctx context.Context, v *coherence.Verdict) error
	GetByEvent(ctx context.Context, id event.Identity) (*coherence.Verdict, error)
}

// ReviewRecord is the human-approval checkpoint row for one event.
type ReviewRecord struct {
	ID              string
	UserID          string
	MessageID       int64
	CandidateOutput string
	VerdictStatus   coherence.VerdictStatus
	ApprovalState   review.ApprovalState
	EditedOutput    string
	EditTags        []review.TagCode
	Reviewer        string
	DecidedAt       *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
}

// DeliverableOutput returns the text that would be sent: the reviewer's
// edit when present, otherwise the approved candidate.
func (r *ReviewRecord) DeliverableOutput() string {
	if r.ApprovalState == review.StateEdited && r.EditedOutput != "" {
		return r.EditedOutput
	}
	return r.CandidateOutput
}

// ReviewRepository owns review items. Creation is unique per event
// identity, which is what makes replays idempotent.
type ReviewRepository interface {
	// Create inserts a pending item. A second insert for the same
	// event identity is a no-op.
	Create(ctx context.Context, r *ReviewRecord) error

	GetByID(ctx context.Context, id string) (*ReviewRecord, error)

	// GetByEvent returns the item for an event identity, or nil when
	// the event was never admitted.
	GetByEvent(ctx context.Context, id event.Identity) (*ReviewRecord, error)

	ListPending(ctx context.Context, userID string) ([]*ReviewRecord, error)

	// Decide applies a terminal decision atomically; only pending
	// items transition.
	Decide(ctx context.Context, id string, d review.Decision) error

	// ListUndelivered returns approved/edited items not yet delivered.
	ListUndelivered(ctx context.Context) ([]*ReviewRecord, error)

	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

// StageResultRepository persists per-stage pipeline outputs keyed by
// (event identity, stage). Writes are idempotent so a cancelled run
// resumes from the last committed stage instead of re-invoking the
// generation backend.
type StageResultRepository interface {
	Completed(ctx context.Context, id event.Identity) (map[pipeline.Stage]string, error)
	Commit(ctx context.Context, id event.Identity, stage pipeline.Stage, output string) error
}
