package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/ports/secondary"
)

// SweepServiceImpl implements the SweepService interface. Sweeps are
// idempotent cleanup jobs; each run writes its own audit row in the
// same spirit as recovery runs.
type SweepServiceImpl struct {
	sweeps      secondary.SweepRunRepository
	quarantine  secondary.QuarantineRepository
	commitments secondary.CommitmentRepository
	// expiryGrace is how far past its time an active commitment may be
	// before it is marked expired.
	expiryGrace time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// NewSweepService creates a new SweepService with injected dependencies.
func NewSweepService(sweeps secondary.SweepRunRepository, quarantine secondary.QuarantineRepository, commitments secondary.CommitmentRepository, expiryGrace time.Duration, log *zap.Logger) *SweepServiceImpl {
	if expiryGrace <= 0 {
		expiryGrace = time.Hour
	}
	return &SweepServiceImpl{
		sweeps:      sweeps,
		quarantine:  quarantine,
		commitments: commitments,
		expiryGrace: expiryGrace,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PurgeExpiredQuarantine deletes unprocessed quarantined messages past
// their expiry.
func (s *SweepServiceImpl) PurgeExpiredQuarantine(ctx context.Context) (*secondary.SweepRunRecord, error) {
	return s.sweep(ctx, primary.SweepQuarantineExpiry, func() (int64, error) {
		return s.quarantine.PurgeExpired(ctx, s.now())
	})
}

// ExpireStaleCommitments marks active commitments past their time plus
// the grace window as expired.
func (s *SweepServiceImpl) ExpireStaleCommitments(ctx context.Context) (*secondary.SweepRunRecord, error) {
	return s.sweep(ctx, primary.SweepCommitmentExpiry, func() (int64, error) {
		return s.commitments.ExpireStale(ctx, s.now(), s.expiryGrace)
	})
}

func (s *SweepServiceImpl) sweep(ctx context.Context, kind string, job func() (int64, error)) (*secondary.SweepRunRecord, error) {
	run := &secondary.SweepRunRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: s.now(),
	}

	affected, err := job()
	run.CompletedAt = s.now()
	run.RowsAffected = affected
	if err != nil {
		run.Status = "failed"
		run.ErrorDetails = err.Error()
	} else {
		run.Status = "completed"
	}

	if recordErr := s.sweeps.Record(ctx, run); recordErr != nil {
		return nil, recordErr
	}
	if err != nil {
		s.log.Warn("sweep failed",
			zap.String("kind", kind),
			zap.Error(err))
		return run, err
	}
	s.log.Info("sweep completed",
		zap.String("kind", kind),
		zap.Int64("rows", affected))
	return run, nil
}
