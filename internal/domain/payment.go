package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus tracks a single payment attempt against the processor.
type AttemptStatus string

const (
	AttemptPending  AttemptStatus = "pending"
	AttemptCaptured AttemptStatus = "captured"
	AttemptFailed   AttemptStatus = "failed"
	// money was captured but the order cannot take it
	AttemptRefundRequired AttemptStatus = "refund_required"
)

type Payment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	IntentID       string
	IdempotencyKey string
	Amount         int64
	Currency       string
	Method         string
	Status         AttemptStatus
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type PaymentEventKind string

const (
	PaymentEventSucceeded PaymentEventKind = "succeeded"
	PaymentEventFailed    PaymentEventKind = "failed"
	PaymentEventOther     PaymentEventKind = "other"
)

// PaymentEvent is a verified processor notification decoded at the boundary.
type PaymentEvent struct {
	ID   string
	Kind PaymentEventKind
	// Type is the processor's own event name, kept for logging.
	Type           string
	OrderID        uuid.UUID
	OrderNumber    string
	TransactionID  string
	AmountCaptured int64
	Currency       string
	Method         string
	FailureReason  string
}
