// Package events publishes billing business events (payment succeeded or
// failed, refunds, subscription cancellations, invoice generation) as
// fire-and-forget JSON messages. Publishing is never awaited for
// correctness: failures are logged and dropped.
package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Exchange is the topic exchange all billing events are published to.
const Exchange = "billing.events"

// Routing keys for the business events this service emits.
const (
	PaymentSucceeded      = "payment.succeeded"
	PaymentFailed         = "payment.failed"
	PaymentRefunded       = "payment.refunded"
	SubscriptionCancelled = "subscription.cancelled"
	InvoiceGenerated      = "invoice.generated"
)

// Event is the envelope every published message uses.
type Event struct {
	Type       string      `json:"type"`
	Actor      string      `json:"actor,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload,omitempty"`
}

// Publisher sends events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event Event) error
	Close()
}

// LogPublisher is the fallback used when no broker is configured: events are
// written to the log instead of failing the operation.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p *LogPublisher) Publish(_ context.Context, routingKey string, event Event) error {
	p.Log.Info().
		Str("routing_key", routingKey).
		Str("type", event.Type).
		Str("actor", event.Actor).
		Msg("event (no broker configured)")
	return nil
}

func (p *LogPublisher) Close() {}
