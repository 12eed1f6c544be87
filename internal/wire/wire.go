// Package wire provides dependency injection for the courier
// application. It creates singleton services with lazy initialization.
package wire

import (
	"context"
	"log"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/courier/internal/adapters/openai"
	"github.com/example/courier/internal/adapters/sqlite"
	"github.com/example/courier/internal/adapters/telegram"
	"github.com/example/courier/internal/app"
	"github.com/example/courier/internal/config"
	"github.com/example/courier/internal/core/coherence"
	"github.com/example/courier/internal/core/pipeline"
	"github.com/example/courier/internal/db"
	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/ports/secondary"
)

var (
	cfg             *config.Config
	logger          *zap.Logger
	inboxService    primary.InboxService
	recoveryService primary.RecoveryService
	protocolService primary.ProtocolService
	reviewService   primary.ReviewService
	sweepService    primary.SweepService
	transport       secondary.UpstreamTransport
	scheduler       *app.Scheduler
	once            sync.Once
)

// Logger returns the shared zap logger.
func Logger() *zap.Logger {
	once.Do(initServices)
	return logger
}

// InboxService returns the singleton InboxService instance.
func InboxService() primary.InboxService {
	once.Do(initServices)
	return inboxService
}

// RecoveryService returns the singleton RecoveryService instance.
func RecoveryService() primary.RecoveryService {
	once.Do(initServices)
	return recoveryService
}

// ProtocolService returns the singleton ProtocolService instance.
func ProtocolService() primary.ProtocolService {
	once.Do(initServices)
	return protocolService
}

// ReviewService returns the singleton ReviewService instance.
func ReviewService() primary.ReviewService {
	once.Do(initServices)
	return reviewService
}

// SweepService returns the singleton SweepService instance.
func SweepService() primary.SweepService {
	once.Do(initServices)
	return sweepService
}

// Transport returns the upstream transport. The underlying Telegram
// connection is dialed on first use, so commands that never touch the
// chat platform work without a configured token.
func Transport() secondary.UpstreamTransport {
	once.Do(initServices)
	return transport
}

// Scheduler returns the background job scheduler.
func Scheduler() *app.Scheduler {
	once.Do(initServices)
	return scheduler
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	var err error
	cfg, err = config.LoadOrDefault()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err = zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	database, err := db.GetDB()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// Repository adapters (secondary ports) over the shared connection.
	events := sqlite.NewEventRepository(database)
	cursors := sqlite.NewCursorRepository(database)
	protocols := sqlite.NewProtocolRepository(database)
	quarantine := sqlite.NewQuarantineRepository(database)
	commitments := sqlite.NewCommitmentRepository(database)
	verdicts := sqlite.NewVerdictRepository(database)
	stageResults := sqlite.NewStageResultRepository(database)
	runs := sqlite.NewRecoveryRunRepository(database)
	sweepRuns := sqlite.NewSweepRunRepository(database)
	logWriter := sqlite.NewLogWriterAdapter(database)
	reviews := sqlite.NewReviewRepository(database, logWriter)

	// Backend collaborators resolve their secrets on first call so the
	// read-only CLI paths never require them.
	backend := &lazyBackend{cfg: cfg, log: logger}
	transport = &lazyTransport{cfg: cfg, log: logger}

	runner, err := app.NewStageRunner(backend, stagePolicies(cfg))
	if err != nil {
		log.Fatalf("failed to build stage runner: %v", err)
	}

	stores := app.Stores{
		Events:       events,
		Cursors:      cursors,
		Protocols:    protocols,
		Quarantine:   quarantine,
		Commitments:  commitments,
		Verdicts:     verdicts,
		Reviews:      reviews,
		StageResults: stageResults,
	}

	processor := app.NewProcessor(stores, runner, backend, app.ProcessorConfig{
		PersonaVersion: cfg.Generation.PersonaVersion,
		CostPerEvent:   cfg.Generation.CostPerEvent,
		Coherence: coherence.Policy{
			OverlapBuffer:       time.Duration(cfg.Coherence.OverlapBufferMinutes) * time.Minute,
			RepetitionThreshold: cfg.Coherence.RepetitionThreshold,
			ExpiryGrace:         time.Duration(cfg.Coherence.ExpiryGraceMinutes) * time.Minute,
		},
	}, logger)

	// Services (primary ports implementation).
	inboxService = app.NewInboxService(events, processor, logger)
	recoveryService = app.NewRecoveryService(runs, processor, cfg.RecoveryConcurrency, logger)
	protocolService = app.NewProtocolService(protocols, quarantine, events, processor, logger)
	reviewService = app.NewReviewService(reviews, transport, logger)
	sweepService = app.NewSweepService(sweepRuns, quarantine, commitments,
		time.Duration(cfg.Coherence.ExpiryGraceMinutes)*time.Minute, logger)

	scheduler = app.NewScheduler(recoveryService, sweepService, reviewService, app.SchedulerConfig{
		RecoveryInterval: cfg.Scheduler.RecoveryInterval,
		QuarantineSweep:  cfg.Scheduler.QuarantineSweep,
		CommitmentSweep:  cfg.Scheduler.CommitmentSweep,
		DeliveryInterval: cfg.Scheduler.DeliveryInterval,
	}, logger)
}

func stagePolicies(cfg *config.Config) map[pipeline.Stage]pipeline.RetryPolicy {
	policies := make(map[pipeline.Stage]pipeline.RetryPolicy)
	for name, sc := range cfg.Stages {
		p := pipeline.DefaultPolicy
		if sc.TimeoutSeconds > 0 {
			p.Timeout = time.Duration(sc.TimeoutSeconds) * time.Second
		}
		if sc.MaxRetries > 0 {
			p.MaxRetries = sc.MaxRetries
		}
		if sc.BackoffMillis > 0 {
			p.Backoff = time.Duration(sc.BackoffMillis) * time.Millisecond
		}
		policies[pipeline.Stage(name)] = p
	}
	return policies
}

// lazyBackend defers OpenAI client construction until the first
// generation or classification call.
type lazyBackend struct {
	cfg  *config.Config
	log  *zap.Logger
	once sync.Once
	c    *openai.Client
	err  error
}

func (b *lazyBackend) client() (*openai.Client, error) {
	b.once.Do(func() {
		b.c, b.err = openai.New(openai.Config{
			APIKey:      b.cfg.Generation.APIKey,
			BaseURL:     b.cfg.Generation.BaseURL,
			Model:       b.cfg.Generation.Model,
			Temperature: b.cfg.Generation.Temperature,
		}, b.log)
	})
	return b.c, b.err
}

func (b *lazyBackend) Generate(ctx context.Context, req secondary.GenerationRequest) (string, error) {
	c, err := b.client()
	if err != nil {
		return "", err
	}
	return c.Generate(ctx, req)
}

func (b *lazyBackend) Classify(ctx context.Context, snapshot string) (string, error) {
	c, err := b.client()
	if err != nil {
		return "", err
	}
	return c.Classify(ctx, snapshot)
}

// lazyTransport defers the Telegram connection the same way.
type lazyTransport struct {
	cfg  *config.Config
	log  *zap.Logger
	once sync.Once
	t    *telegram.Transport
	err  error
}

func (l *lazyTransport) transport() (*telegram.Transport, error) {
	l.once.Do(func() {
		l.t, l.err = telegram.New(telegram.Config{
			Token:       l.cfg.Transport.Token,
			Proxy:       l.cfg.Transport.Proxy,
			PollTimeout: l.cfg.Transport.PollTimeout,
		}, l.log)
	})
	return l.t, l.err
}

func (l *lazyTransport) Run(ctx context.Context, handle secondary.EventHandler) error {
	t, err := l.transport()
	if err != nil {
		return err
	}
	return t.Run(ctx, handle)
}

func (l *lazyTransport) Deliver(ctx context.Context, userID, text string) error {
	t, err := l.transport()
	if err != nil {
		return err
	}
	return t.Deliver(ctx, userID, text)
}
