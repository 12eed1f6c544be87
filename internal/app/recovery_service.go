package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/courier/internal/core/fault"
	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/ports/secondary"
)

// RecoveryServiceImpl implements the RecoveryService interface. A run
// replays, per user, every stored event above the cursor watermark in
// ascending order. Users are recovered concurrently up to a bound;
// events within one user are replayed under the same ordering lock the
// live path uses, so a live event and a recovery replay can never
// interleave for the same user.
type RecoveryServiceImpl struct {
	runs      secondary.RecoveryRunRepository
	processor *Processor
	// maxConcurrent bounds how many users are recovered in parallel.
	maxConcurrent int
	log           *zap.Logger
	now           func() time.Time
}

// NewRecoveryService creates a new RecoveryService with injected
// dependencies.
func NewRecoveryService(runs secondary.RecoveryRunRepository, processor *Processor, maxConcurrent int, log *zap.Logger) *RecoveryServiceImpl {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &RecoveryServiceImpl{
		runs:          runs,
		processor:     processor,
		maxConcurrent: maxConcurrent,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one recovery pass over every user the inbox has ever
// seen.
func (s *RecoveryServiceImpl) Run(ctx context.Context, trigger string) (*secondary.RecoveryRunRecord, error) {
	users, err := s.processor.stores.Events.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox users: %w", err)
	}
	return s.run(ctx, trigger, users)
}

// RunForUser recovers a single user on demand.
func (s *RecoveryServiceImpl) RunForUser(ctx context.Context, trigger, userID string) (*secondary.RecoveryRunRecord, error) {
	return s.run(ctx, trigger, []string{userID})
}

// ListRuns returns recent run audit rows, newest first.
func (s *RecoveryServiceImpl) ListRuns(ctx context.Context, limit int) ([]*secondary.RecoveryRunRecord, error) {
	return s.runs.List(ctx, limit)
}

type userOutcome struct {
	recovered int
	skipped   int
	failure   *fault.RecoveryRunFailure
}

func (s *RecoveryServiceImpl) run(ctx context.Context, trigger string, users []string) (*secondary.RecoveryRunRecord, error) {
	run := &secondary.RecoveryRunRecord{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	s.log.Info("recovery run started",
		zap.String("run", run.ID),
		zap.String("trigger", trigger),
		zap.Int("users", len(users)))

	var (
		mu       sync.Mutex
		outcomes []userOutcome
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			out := s.recoverUser(gctx, userID)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			// Per-user failures are isolated; only cancellation stops
			// the run.
			return gctx.Err()
		})
	}
	groupErr := g.Wait()

	var details []string
	for _, out := range outcomes {
		run.UsersChecked++
		run.EventsRecovered += out.recovered
		run.EventsSkipped += out.skipped
		if out.failure != nil {
			run.Errors++
			details = append(details, out.failure.Error())
		}
	}
	run.ErrorDetails = strings.Join(details, "; ")
	completed := s.now()
	run.CompletedAt = &completed
	run.Status = secondary.RunCompleted
	if groupErr != nil {
		run.Status = secondary.RunFailed
		if run.ErrorDetails == "" {
			run.ErrorDetails = groupErr.Error()
		}
	}

	if err := s.runs.Finish(ctx, run); err != nil {
		return nil, err
	}
	s.log.Info("recovery run finished",
		zap.String("run", run.ID),
		zap.String("status", run.Status),
		zap.Int("recovered", run.EventsRecovered),
		zap.Int("skipped", run.EventsSkipped),
		zap.Int("errors", run.Errors))
	return run, nil
}

// recoverUser replays the user's gap under the ordering lock. The first
// failed event stops this user's replay (later events must not overtake
// it) without touching other users.
func (s *RecoveryServiceImpl) recoverUser(ctx context.Context, userID string) userOutcome {
	var out userOutcome

	release := s.processor.locks.Acquire(userID)
	defer release()

	cursor, err := s.processor.stores.Cursors.Get(ctx, userID)
	if err != nil {
		out.failure = &fault.RecoveryRunFailure{UserID: userID, Cause: err}
		return out
	}
	latest, err := s.processor.stores.Events.LatestMessageID(ctx, userID)
	if err != nil {
		out.failure = &fault.RecoveryRunFailure{UserID: userID, Cause: err}
		return out
	}
	if latest <= cursor.LastProcessedID {
		// No gap between the watermark and the newest stored event;
		// record the check and move on.
		if err := s.processor.stores.Cursors.MarkRecoveryCheck(ctx, userID, s.now(), 0); err != nil {
			out.failure = &fault.RecoveryRunFailure{UserID: userID, Cause: err}
		}
		return out
	}
	pending, err := s.processor.stores.Events.ReadFrom(ctx, userID, cursor.LastProcessedID)
	if err != nil {
		out.failure = &fault.RecoveryRunFailure{UserID: userID, Cause: err}
		return out
	}

	for _, e := range pending {
		result, err := s.processor.processLocked(ctx, e, false)
		if err != nil {
			out.failure = &fault.RecoveryRunFailure{UserID: userID, Cause: err}
			break
		}
		if result.Disposition == primary.DispositionDuplicate {
			out.skipped++
			continue
		}
		out.recovered++
	}

	if err := s.processor.stores.Cursors.MarkRecoveryCheck(ctx, userID, s.now(), out.recovered); err != nil && out.failure == nil {
		out.failure = &fault.RecoveryRunFailure{UserID: userID, Cause: err}
	}
	if out.failure != nil {
		s.log.Warn("user recovery failed",
			zap.String("user", userID),
			zap.Error(out.failure))
	}
	return out
}
