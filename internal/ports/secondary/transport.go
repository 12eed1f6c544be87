package secondary

import (
	"context"

	"github.com/example/courier/internal/core/event"
)

// EventHandler consumes one inbound event. The transport must not
// acknowledge upstream until the handler returns without a
// fault.DurabilityError.
type EventHandler func(ctx context.Context, e event.Inbound) error

// UpstreamTransport is the chat platform collaborator. It supplies
// events whose message ids are monotonically increasing per user;
// ordering across users is never assumed.
type UpstreamTransport interface {
	// Run blocks, invoking handle for every inbound event, until the
	// context is cancelled.
	Run(ctx context.Context, handle EventHandler) error

	// Deliver sends approved output back to the user.
	Deliver(ctx context.Context, userID, text string) error
}
