package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
	Close() error
}

const (
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
)

// OrderEvent is the payload published for order lifecycle changes. Downstream
// notifiers consume it; delivery to customers is their concern.
type OrderEvent struct {
	Type        string     `json:"type"`
	OrderID     uuid.UUID  `json:"orderId"`
	OrderNumber string     `json:"orderNumber"`
	UserID      *uuid.UUID `json:"userId,omitempty"`
	GuestEmail  string     `json:"guestEmail,omitempty"`
	Total       int64      `json:"total"`
	Currency    string     `json:"currency"`
	Grants      int        `json:"grants,omitempty"`
	OccurredAt  time.Time  `json:"occurredAt"`
}

type nopPublisher struct{}

// NewNopPublisher is used when no broker is configured.
func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	return nil
}

func (nopPublisher) Close() error { return nil }
