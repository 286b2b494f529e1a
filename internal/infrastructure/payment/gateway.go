package payment

import (
	"context"
	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
)

// Metadata keys attached to every intent for webhook correlation.
const (
	MetadataOrderID     = "orderId"
	MetadataOrderNumber = "orderNumber"
)

type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*IntentStatus, error)
}

type IntentRequest struct {
	OrderID        uuid.UUID
	OrderNumber    string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type IntentState string

const (
	IntentPending   IntentState = "pending"
	IntentSucceeded IntentState = "succeeded"
	IntentFailed    IntentState = "failed"
)

type IntentStatus struct {
	ID             string
	State          IntentState
	AmountReceived int64
	Currency       string
	Method         string
	FailureReason  string
	OrderID        uuid.UUID
	OrderNumber    string
}

// Event converts a terminal intent state into the event settlement consumes.
func (s *IntentStatus) Event() domain.PaymentEvent {
	ev := domain.PaymentEvent{
		Kind:           domain.PaymentEventOther,
		OrderID:        s.OrderID,
		OrderNumber:    s.OrderNumber,
		TransactionID:  s.ID,
		AmountCaptured: s.AmountReceived,
		Currency:       s.Currency,
		Method:         s.Method,
		FailureReason:  s.FailureReason,
	}
	switch s.State {
	case IntentSucceeded:
		ev.Kind = domain.PaymentEventSucceeded
	case IntentFailed:
		ev.Kind = domain.PaymentEventFailed
	}
	return ev
}

func parseOrderID(metadata map[string]string) uuid.UUID {
	id, err := uuid.Parse(metadata[MetadataOrderID])
	if err != nil {
		return uuid.Nil
	}
	return id
}
