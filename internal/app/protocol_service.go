package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/protocol"
	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/ports/secondary"
)

// ProtocolServiceImpl implements the ProtocolService interface.
type ProtocolServiceImpl struct {
	protocols  secondary.ProtocolRepository
	quarantine secondary.QuarantineRepository
	events     secondary.EventRepository
	processor  *Processor
	log        *zap.Logger
	now        func() time.Time
}

// NewProtocolService creates a new ProtocolService with injected
// dependencies.
func NewProtocolService(protocols secondary.ProtocolRepository, quarantine secondary.QuarantineRepository, events secondary.EventRepository, processor *Processor, log *zap.Logger) *ProtocolServiceImpl {
	return &ProtocolServiceImpl{
		protocols:  protocols,
		quarantine: quarantine,
		events:     events,
		processor:  processor,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Activate turns quarantine on for a user.
func (s *ProtocolServiceImpl) Activate(ctx context.Context, userID, actor, reason string) error {
	state, err := s.protocols.Get(ctx, userID)
	if err != nil {
		return err
	}
	t, err := protocol.Activate(state.Status, actor, reason, s.now())
	if err != nil {
		return err
	}
	if err := s.protocols.ApplyTransition(ctx, userID, t); err != nil {
		return err
	}
	s.log.Info("quarantine activated",
		zap.String("user", userID),
		zap.String("actor", actor),
		zap.String("reason", reason))
	return nil
}

// Deactivate turns quarantine off. Messages diverted while active stay
// quarantined until a reviewer releases them or they expire.
func (s *ProtocolServiceImpl) Deactivate(ctx context.Context, userID, actor string) error {
	state, err := s.protocols.Get(ctx, userID)
	if err != nil {
		return err
	}
	t, err := protocol.Deactivate(state.Status, actor, s.now())
	if err != nil {
		return err
	}
	if err := s.protocols.ApplyTransition(ctx, userID, t); err != nil {
		return err
	}
	s.log.Info("quarantine deactivated",
		zap.String("user", userID),
		zap.String("actor", actor))
	return nil
}

// OneTimePass grants the user's next single event a bypass.
func (s *ProtocolServiceImpl) OneTimePass(ctx context.Context, userID, actor string) error {
	state, err := s.protocols.Get(ctx, userID)
	if err != nil {
		return err
	}
	t, err := protocol.OneTimePass(state.Status, actor, s.now())
	if err != nil {
		return err
	}
	if err := s.protocols.ApplyTransition(ctx, userID, t); err != nil {
		return err
	}
	s.log.Info("one-time pass granted",
		zap.String("user", userID),
		zap.String("actor", actor))
	return nil
}

// Status returns the user's protocol state.
func (s *ProtocolServiceImpl) Status(ctx context.Context, userID string) (*secondary.ProtocolRecord, error) {
	return s.protocols.Get(ctx, userID)
}

// AuditTrail returns the user's transition history, oldest first.
func (s *ProtocolServiceImpl) AuditTrail(ctx context.Context, userID string) ([]*secondary.ProtocolAuditRecord, error) {
	return s.protocols.AuditTrail(ctx, userID)
}

// ListQuarantined returns the user's unprocessed quarantined messages.
func (s *ProtocolServiceImpl) ListQuarantined(ctx context.Context, userID string) ([]*secondary.QuarantineRecord, error) {
	return s.quarantine.ListPending(ctx, userID)
}

// Release pushes one quarantined message through the pipeline with the
// gate bypassed, then marks it processed by the actor. A release of an
// already processed message is refused by the repository.
func (s *ProtocolServiceImpl) Release(ctx context.Context, quarantineID, actor string) (*primary.IngestResult, error) {
	if actor == "" {
		return nil, fmt.Errorf("release requires an actor")
	}
	q, err := s.quarantine.GetByID(ctx, quarantineID)
	if err != nil {
		return nil, err
	}
	if q.Processed {
		return nil, fmt.Errorf("quarantined message %s already processed", quarantineID)
	}

	e, err := s.events.Get(ctx, event.Identity{UserID: q.UserID, MessageID: q.MessageID})
	if err != nil {
		return nil, err
	}

	result, err := s.processor.Process(ctx, *e, true)
	if err != nil {
		return nil, err
	}
	if err := s.quarantine.MarkProcessed(ctx, quarantineID, actor, s.now()); err != nil {
		return nil, err
	}
	s.log.Info("quarantined message released",
		zap.String("quarantine_id", quarantineID),
		zap.String("actor", actor),
		zap.String("disposition", string(result.Disposition)))
	return result, nil
}
