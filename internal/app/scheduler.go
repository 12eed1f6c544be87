package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/courier/internal/ports/primary"
)

// SchedulerConfig holds the cron expressions for the background jobs.
type SchedulerConfig struct {
	RecoveryInterval string // periodic recovery pass
	QuarantineSweep  string // quarantine expiry purge
	CommitmentSweep  string // commitment expiry
	DeliveryInterval string // approved item delivery
}

// DefaultSchedulerConfig mirrors the documented defaults.
var DefaultSchedulerConfig = SchedulerConfig{
	RecoveryInterval: "@every 15m",
	QuarantineSweep:  "@daily",
	CommitmentSweep:  "@hourly",
	DeliveryInterval: "@every 1m",
}

// Scheduler drives the periodic recovery pass, the expiry sweeps and
// the delivery of approved items. All jobs are idempotent, so an
// overlapping or missed tick is harmless.
type Scheduler struct {
	cron     *cron.Cron
	recovery primary.RecoveryService
	sweeps   primary.SweepService
	reviews  primary.ReviewService
	cfg      SchedulerConfig
	log      *zap.Logger
}

// NewScheduler creates a scheduler over the given services.
func NewScheduler(recovery primary.RecoveryService, sweeps primary.SweepService, reviews primary.ReviewService, cfg SchedulerConfig, log *zap.Logger) *Scheduler {
	if cfg.RecoveryInterval == "" {
		cfg = DefaultSchedulerConfig
	}
	return &Scheduler{
		cron:     cron.New(),
		recovery: recovery,
		sweeps:   sweeps,
		reviews:  reviews,
		cfg:      cfg,
		log:      log,
	}
}

// Start registers the jobs and begins the cron loop. Jobs run with the
// given base context so shutdown cancels in-flight work.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		name string
		run  func()
	}{
		{s.cfg.RecoveryInterval, "periodic recovery", func() {
			if _, err := s.recovery.Run(ctx, primary.TriggerPeriodic); err != nil {
				s.log.Error("periodic recovery failed", zap.Error(err))
			}
		}},
		{s.cfg.QuarantineSweep, "quarantine expiry sweep", func() {
			if _, err := s.sweeps.PurgeExpiredQuarantine(ctx); err != nil {
				s.log.Error("quarantine sweep failed", zap.Error(err))
			}
		}},
		{s.cfg.CommitmentSweep, "commitment expiry sweep", func() {
			if _, err := s.sweeps.ExpireStaleCommitments(ctx); err != nil {
				s.log.Error("commitment sweep failed", zap.Error(err))
			}
		}},
		{s.cfg.DeliveryInterval, "approved delivery", func() {
			if _, err := s.reviews.DeliverApproved(ctx); err != nil {
				s.log.Error("delivery pass failed", zap.Error(err))
			}
		}},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return err
		}
		s.log.Info("scheduled job", zap.String("job", j.name), zap.String("spec", j.spec))
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
