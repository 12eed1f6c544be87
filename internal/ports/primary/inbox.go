// Package primary defines the driving ports: the service interfaces
// exposed to the CLI, the transport loop and the scheduler.
package primary

import (
	"context"

	"github.com/example/courier/internal/core/event"
)

// Disposition says what happened to an ingested event.
type Disposition string

const (
	// DispositionAdmitted means the event passed the full pipeline and
	// now has a pending review item.
	DispositionAdmitted Disposition = "admitted"
	// DispositionQuarantined means the quarantine gate diverted the
	// event; no generation stage ran.
	DispositionQuarantined Disposition = "quarantined"
	// DispositionDuplicate means the event identity was already
	// handled; ingestion was a no-op.
	DispositionDuplicate Disposition = "duplicate"
)

// IngestResult reports the outcome of one ingested event.
type IngestResult struct {
	Disposition  Disposition
	ReviewItemID string // set when admitted
	QuarantineID string // set when quarantined
}

// InboxService is the entry point for live inbound events. Ingest
// durably appends the event, then routes it through the quarantine
// gate and, unless diverted, through the generation pipeline up to
// review admission. Processing respects the per-user ordering lock.
type InboxService interface {
	Ingest(ctx context.Context, e event.Inbound) (*IngestResult, error)
}
