package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/courier/internal/core/review"
	"github.com/example/courier/internal/ports/secondary"
)

// ReviewServiceImpl implements the ReviewService interface.
type ReviewServiceImpl struct {
	reviews   secondary.ReviewRepository
	transport secondary.UpstreamTransport
	log       *zap.Logger
	now       func() time.Time
}

// NewReviewService creates a new ReviewService with injected
// dependencies.
func NewReviewService(reviews secondary.ReviewRepository, transport secondary.UpstreamTransport, log *zap.Logger) *ReviewServiceImpl {
	return &ReviewServiceImpl{
		reviews:   reviews,
		transport: transport,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListPending returns pending items, optionally filtered by user.
func (s *ReviewServiceImpl) ListPending(ctx context.Context, userID string) ([]*secondary.ReviewRecord, error) {
	return s.reviews.ListPending(ctx, userID)
}

// Get retrieves one review item.
func (s *ReviewServiceImpl) Get(ctx context.Context, itemID string) (*secondary.ReviewRecord, error) {
	return s.reviews.GetByID(ctx, itemID)
}

// Approve marks the item deliverable as-is.
func (s *ReviewServiceImpl) Approve(ctx context.Context, itemID, reviewer string) error {
	return s.decide(ctx, itemID, func(current review.ApprovalState) (review.Decision, error) {
		return review.Approve(current, reviewer, s.now())
	})
}

// Reject resolves the item without delivery. Terminal; the event never
// re-enters the pipeline.
func (s *ReviewServiceImpl) Reject(ctx context.Context, itemID, reviewer string) error {
	return s.decide(ctx, itemID, func(current review.ApprovalState) (review.Decision, error) {
		return review.Reject(current, reviewer, s.now())
	})
}

// Edit replaces the output and marks the item deliverable.
func (s *ReviewServiceImpl) Edit(ctx context.Context, itemID, reviewer, editedOutput string, tags []review.TagCode) error {
	return s.decide(ctx, itemID, func(current review.ApprovalState) (review.Decision, error) {
		return review.Edit(current, reviewer, editedOutput, tags, s.now())
	})
}

func (s *ReviewServiceImpl) decide(ctx context.Context, itemID string, compute func(review.ApprovalState) (review.Decision, error)) error {
	item, err := s.reviews.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	d, err := compute(item.ApprovalState)
	if err != nil {
		return err
	}
	if err := s.reviews.Decide(ctx, itemID, d); err != nil {
		return err
	}
	s.log.Info("review decision recorded",
		zap.String("item", itemID),
		zap.String("state", string(d.NewState)),
		zap.String("reviewer", d.Reviewer))
	return nil
}

// DeliverApproved sends every undelivered approved/edited item. A send
// failure leaves its item undelivered for the next pass and does not
// block the rest of the batch.
func (s *ReviewServiceImpl) DeliverApproved(ctx context.Context) (int, error) {
	items, err := s.reviews.ListUndelivered(ctx)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := s.transport.Deliver(ctx, item.UserID, item.DeliverableOutput()); err != nil {
			s.log.Warn("delivery failed, item stays queued",
				zap.String("item", item.ID),
				zap.Error(err))
			continue
		}
		if err := s.reviews.MarkDelivered(ctx, item.ID, s.now()); err != nil {
			return delivered, err
		}
		delivered++
	}
	if delivered > 0 {
		s.log.Info("approved items delivered", zap.Int("count", delivered))
	}
	return delivered, nil
}
