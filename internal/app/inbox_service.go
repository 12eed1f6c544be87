package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/core/fault"
	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/ports/secondary"
)

// InboxServiceImpl implements the InboxService interface.
type InboxServiceImpl struct {
	events    secondary.EventRepository
	processor *Processor
	log       *zap.Logger
}

// NewInboxService creates a new InboxService with injected dependencies.
func NewInboxService(events secondary.EventRepository, processor *Processor, log *zap.Logger) *InboxServiceImpl {
	return &InboxServiceImpl{events: events, processor: processor, log: log}
}

// Ingest durably appends the event, then routes it through the gate and
// the pipeline. The append happens before anything else: once it
// returns without a DurabilityError the event is recoverable, so a
// crash anywhere later is repaired by the next recovery pass. An append
// failure surfaces as a DurabilityError and the transport must not
// acknowledge the event.
func (s *InboxServiceImpl) Ingest(ctx context.Context, e event.Inbound) (*primary.IngestResult, error) {
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Error("inbox append failed",
			zap.String("event", e.Identity().String()),
			zap.Error(err))
		return nil, err
	}

	result, err := s.processor.Process(ctx, e, false)
	if err != nil {
		// The event is durable; processing failures are repaired by
		// recovery, not by the transport.
		if sf, ok := fault.AsStageFailure(err); ok {
			s.log.Warn("pipeline aborted, event awaits recovery",
				zap.String("event", e.Identity().String()),
				zap.String("stage", sf.Stage),
				zap.Error(sf.Cause))
		}
		return nil, err
	}
	return result, nil
}
