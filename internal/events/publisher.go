// Package events fans committed payment events out to the message broker and
// to staff dashboards connected over websocket.
package events

import (
	"context"
	"errors"
	"time"

	"lazla/internal/domain"
)

const PaymentEventsQueue = "payment.events"

// Message is the envelope written to every sink.
type Message struct {
	Type       string               `json:"type"`
	OccurredAt time.Time            `json:"occurred_at"`
	Event      *domain.PaymentEvent `json:"event"`
}

func NewMessage(e *domain.PaymentEvent) Message {
	return Message{Type: string(e.EventType), OccurredAt: e.CreatedAt, Event: e}
}

type Publisher interface {
	Publish(ctx context.Context, e *domain.PaymentEvent) error
}

type Noop struct{}

func (Noop) Publish(context.Context, *domain.PaymentEvent) error { return nil }

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e *domain.PaymentEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
