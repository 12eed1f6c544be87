// Package app contains the application services that orchestrate the
// delivery pipeline: ingestion, recovery, quarantine, review and the
// background sweeps. Services hold no business rules of their own; the
// rules live in internal/core and the services wire them to the
// repositories and collaborators.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/courier/internal/core/coherence"
	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/fault"
	"github.com/example/courier/internal/core/pipeline"
	"github.com/example/courier/internal/core/protocol"
	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/ports/secondary"
)

// Stores bundles the repositories the processor mutates. Grouped so the
// live inbox, recovery and release paths share one wiring.
type Stores struct {
	Events       secondary.EventRepository
	Cursors      secondary.CursorRepository
	Protocols    secondary.ProtocolRepository
	Quarantine   secondary.QuarantineRepository
	Commitments  secondary.CommitmentRepository
	Verdicts     secondary.VerdictRepository
	Reviews      secondary.ReviewRepository
	StageResults secondary.StageResultRepository
}

// ProcessorConfig carries the tunable processing parameters.
type ProcessorConfig struct {
	PersonaVersion string
	// CostPerEvent is the estimated generation cost one diverted event
	// avoids, accumulated into the protocol's cost_saved counter.
	CostPerEvent float64
	Coherence    coherence.Policy
}

// Processor drives one event through the gate, the generation pipeline,
// coherence resolution and review admission. It is shared by the live
// inbox path, the recovery replayer and quarantine release. Every side
// effect is keyed by event identity, which is what makes replays
// idempotent end to end.
type Processor struct {
	stores     Stores
	runner     *pipeline.Runner
	classifier secondary.ClassifierClient
	cfg        ProcessorConfig
	locks      *userLocks
	log        *zap.Logger
	now        func() time.Time
}

// NewProcessor creates a processor with injected dependencies.
func NewProcessor(stores Stores, runner *pipeline.Runner, classifier secondary.ClassifierClient, cfg ProcessorConfig, log *zap.Logger) *Processor {
	if cfg.Coherence.RepetitionThreshold == 0 {
		cfg.Coherence = coherence.DefaultPolicy
	}
	return &Processor{
		stores:     stores,
		runner:     runner,
		classifier: classifier,
		cfg:        cfg,
		locks:      newUserLocks(),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Process runs one stored event through the remaining pipeline under
// the user's ordering lock. bypassGate is set by quarantine release,
// where a reviewer has explicitly pushed the message through; release
// handles a single already-diverted event, so it skips the gap replay.
func (p *Processor) Process(ctx context.Context, e event.Inbound, bypassGate bool) (*primary.IngestResult, error) {
	release := p.locks.Acquire(e.UserID)
	defer release()
	if bypassGate {
		return p.processLocked(ctx, e, true)
	}
	return p.processInOrder(ctx, e)
}

// processInOrder replays every stored event between the cursor and e
// before handling e itself. A newer event must never resolve while an
// older one is still failing: the monotonic cursor would move past the
// failure, and recovery only reads above the watermark, so the older
// event would be lost for good.
func (p *Processor) processInOrder(ctx context.Context, e event.Inbound) (*primary.IngestResult, error) {
	cursor, err := p.stores.Cursors.Get(ctx, e.UserID)
	if err != nil {
		return nil, err
	}
	pending, err := p.stores.Events.ReadFrom(ctx, e.UserID, cursor.LastProcessedID)
	if err != nil {
		return nil, err
	}

	var result *primary.IngestResult
	for _, stored := range pending {
		if stored.MessageID > e.MessageID {
			break
		}
		r, err := p.processLocked(ctx, stored, false)
		if err != nil {
			if stored.MessageID != e.MessageID {
				return nil, fmt.Errorf("event %s held behind unresolved %s: %w",
					e.Identity(), stored.Identity(), err)
			}
			return nil, err
		}
		if stored.MessageID == e.MessageID {
			result = r
		}
	}
	if result != nil {
		return result, nil
	}

	// e sits at or below the watermark: it was already resolved, by
	// admission or by a quarantine diversion.
	existing, err := p.stores.Reviews.GetByEvent(ctx, e.Identity())
	if err != nil {
		return nil, err
	}
	result = &primary.IngestResult{Disposition: primary.DispositionDuplicate}
	if existing != nil {
		result.ReviewItemID = existing.ID
	}
	return result, nil
}

// processLocked is the body of Process for callers that already hold
// the user's lock (the recovery replayer, which keeps the lock across a
// whole ascending batch).
func (p *Processor) processLocked(ctx context.Context, e event.Inbound, bypassGate bool) (*primary.IngestResult, error) {
	id := e.Identity()

	// An event that already has a review item was fully handled; the
	// cursor is nudged forward in case a crash hit between admission
	// and advancement.
	existing, err := p.stores.Reviews.GetByEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := p.stores.Cursors.Advance(ctx, e.UserID, e.MessageID, p.now()); err != nil {
			return nil, err
		}
		return &primary.IngestResult{Disposition: primary.DispositionDuplicate, ReviewItemID: existing.ID}, nil
	}

	if !bypassGate {
		diverted, result, err := p.gate(ctx, e)
		if err != nil {
			return nil, err
		}
		if diverted {
			return result, nil
		}
	}

	candidate, err := p.generate(ctx, e)
	if err != nil {
		return nil, err
	}

	candidate, verdictStatus, err := p.resolve(ctx, e, candidate)
	if err != nil {
		return nil, err
	}

	itemID, err := p.admit(ctx, e, candidate, verdictStatus)
	if err != nil {
		return nil, err
	}

	if err := p.stores.Cursors.Advance(ctx, e.UserID, e.MessageID, p.now()); err != nil {
		return nil, err
	}

	p.log.Info("event admitted for review",
		zap.String("event", id.String()),
		zap.String("review_item", itemID),
		zap.String("verdict", string(verdictStatus)))
	return &primary.IngestResult{Disposition: primary.DispositionAdmitted, ReviewItemID: itemID}, nil
}

// gate applies the quarantine protocol. While ACTIVE and with no pass
// to consume, the event is diverted and the pipeline never runs; that
// diversion is the cost-avoidance mechanism.
func (p *Processor) gate(ctx context.Context, e event.Inbound) (bool, *primary.IngestResult, error) {
	state, err := p.stores.Protocols.Get(ctx, e.UserID)
	if err != nil {
		return false, nil, err
	}
	if state.Status != protocol.StatusActive {
		return false, nil, nil
	}

	consumed, err := p.stores.Protocols.ConsumePass(ctx, e.UserID)
	if err != nil {
		return false, nil, err
	}
	if consumed {
		p.log.Info("one-time pass consumed", zap.String("user", e.UserID))
		return false, nil, nil
	}

	now := p.now()
	rec := &secondary.QuarantineRecord{
		ID:         uuid.NewString(),
		UserID:     e.UserID,
		MessageID:  e.MessageID,
		Payload:    e.Payload,
		ReceivedAt: e.ReceivedAt,
		ExpiresAt:  protocol.ExpiresAt(e.ReceivedAt),
	}
	created, err := p.stores.Quarantine.Create(ctx, rec)
	if err != nil {
		return false, nil, err
	}
	if created {
		if err := p.stores.Protocols.RecordDiversion(ctx, e.UserID, p.cfg.CostPerEvent); err != nil {
			return false, nil, err
		}
	} else {
		// Replayed diversion: reuse the original row's id.
		pending, err := p.stores.Quarantine.ListPending(ctx, e.UserID)
		if err != nil {
			return false, nil, err
		}
		for _, q := range pending {
			if q.MessageID == e.MessageID {
				rec = q
				break
			}
		}
	}

	// Diverted events are resolved as far as ordering is concerned;
	// deactivation never auto-replays them.
	if err := p.stores.Cursors.Advance(ctx, e.UserID, e.MessageID, now); err != nil {
		return false, nil, err
	}

	p.log.Info("event quarantined",
		zap.String("event", e.Identity().String()),
		zap.String("quarantine_id", rec.ID))
	return true, &primary.IngestResult{Disposition: primary.DispositionQuarantined, QuarantineID: rec.ID}, nil
}

// generate runs the fixed stage sequence, resuming from any stage
// results a previous attempt committed.
func (p *Processor) generate(ctx context.Context, e event.Inbound) (string, error) {
	id := e.Identity()
	completed, err := p.stores.StageResults.Completed(ctx, id)
	if err != nil {
		return "", err
	}

	x := pipeline.Exchange{Event: e, PersonaVersion: p.cfg.PersonaVersion}
	commit := func(stage pipeline.Stage, output string) error {
		return p.stores.StageResults.Commit(ctx, id, stage, output)
	}
	return p.runner.Run(ctx, x, completed, commit)
}

// resolve classifies the candidate against the user's active
// commitments and patches it when the verdict carries a usable
// correction. Malformed classifier output fails open: the verdict is
// recorded with the raw output preserved and the candidate proceeds
// unchanged.
func (p *Processor) resolve(ctx context.Context, e event.Inbound, candidate string) (string, coherence.VerdictStatus, error) {
	// An event that already has a verdict was classified on a previous
	// attempt; its commitment increments are already in the ledger.
	// Replaying the classifier call here would count the same assertion
	// twice, so the stored verdict is re-applied instead.
	prior, err := p.stores.Verdicts.GetByEvent(ctx, e.Identity())
	if err != nil {
		return "", "", err
	}
	if prior != nil {
		if prior.Status != coherence.VerdictOK {
			if patched, ok := coherence.PatchSentence(candidate, prior.OriginalSentence, prior.CorrectedSentence); ok {
				candidate = patched
			}
		}
		return candidate, prior.Status, nil
	}

	active, err := p.stores.Commitments.ActiveByUser(ctx, e.UserID)
	if err != nil {
		return "", "", err
	}

	snapshot := coherence.BuildSnapshot(active, candidate, p.now())
	raw, err := p.classifier.Classify(ctx, snapshot)
	if err != nil {
		return "", "", &fault.StageFailure{Stage: "coherence", Cause: err}
	}

	verdict := &coherence.Verdict{
		UserID:         e.UserID,
		MessageID:      e.MessageID,
		InputSnapshot:  snapshot,
		RawModelOutput: raw,
		Status:         coherence.VerdictOK,
		ParseSucceeded: true,
	}

	out, parseErr := coherence.ParseModelOutput(raw)
	if parseErr != nil {
		verdict.ParseSucceeded = false
		p.log.Warn("classifier output unparseable, failing open",
			zap.String("event", e.Identity().String()),
			zap.Error(parseErr))
	} else {
		status, detail := coherence.Classify(out, active, p.cfg.Coherence)
		verdict.Status = status
		verdict.ConflictDetail = detail
		verdict.OriginalSentence = out.OriginalSentence
		verdict.CorrectedSentence = out.CorrectedSentence

		if status != coherence.VerdictOK {
			patched, ok := coherence.PatchSentence(candidate, out.OriginalSentence, out.CorrectedSentence)
			if ok {
				candidate = patched
			} else {
				p.log.Warn("conflict sentence not found, surfacing unresolved",
					zap.String("event", e.Identity().String()))
			}
		}

		for _, nc := range out.NewCommitments {
			c := coherence.Commitment{
				ID:             uuid.NewString(),
				UserID:         e.UserID,
				CommitmentTime: nc.Time,
				Activity:       nc.Activity,
				Duration:       time.Duration(nc.DurationMinutes) * time.Minute,
				Flexibility:    nc.Flexibility,
				SourceText:     nc.SourceText,
				FromMessageID:  e.MessageID,
			}
			if err := p.stores.Commitments.Upsert(ctx, c); err != nil {
				return "", "", err
			}
			verdict.NewCommitments = append(verdict.NewCommitments, nc.Activity)
		}
	}

	if err := p.stores.Verdicts.Create(ctx, verdict); err != nil {
		return "", "", err
	}
	return candidate, verdict.Status, nil
}

// admit creates the pending review item. Creation is idempotent on the
// event identity; whatever row ends up stored is the one reported.
func (p *Processor) admit(ctx context.Context, e event.Inbound, candidate string, status coherence.VerdictStatus) (string, error) {
	rec := &secondary.ReviewRecord{
		ID:              uuid.NewString(),
		UserID:          e.UserID,
		MessageID:       e.MessageID,
		CandidateOutput: candidate,
		VerdictStatus:   status,
		CreatedAt:       p.now(),
	}
	if err := p.stores.Reviews.Create(ctx, rec); err != nil {
		return "", err
	}
	stored, err := p.stores.Reviews.GetByEvent(ctx, e.Identity())
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", fmt.Errorf("review item for %s vanished after create", e.Identity())
	}
	return stored.ID, nil
}
