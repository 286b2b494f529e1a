package domain

import "slices"

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPendingPayment: {OrderProcessing, OrderCancelled},
	OrderProcessing:     {OrderShipped, OrderCancelled},
	OrderShipped:        {OrderDelivered},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	// a declined attempt can still be followed by a successful one
	PaymentFailed: {PaymentPaid},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingPayment, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return slices.Contains(orderTransitions[s], next)
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return slices.Contains(paymentTransitions[s], next)
}

// Cancellable reports whether the order may still be cancelled: nothing captured
// (pending, or declined so far) and not yet shipped.
func (o *Order) Cancellable() bool {
	unpaid := o.PaymentStatus == PaymentPending || o.PaymentStatus == PaymentFailed
	return unpaid && o.Status.CanTransitionTo(OrderCancelled)
}

// FulfillmentUpdate carries the staff-editable fields. Nil fields are left unchanged.
type FulfillmentUpdate struct {
	Status         *OrderStatus
	TrackingNumber *string
	PaymentStatus  *PaymentStatus
}

// ApplyFulfillment validates and applies a staff update in place.
func (o *Order) ApplyFulfillment(u FulfillmentUpdate) error {
	if u.PaymentStatus != nil {
		next := *u.PaymentStatus
		if next == PaymentPaid {
			return ErrPaidNotSettable
		}
		if !next.Valid() {
			return ErrInvalidPaymentStatus
		}
		if next != o.PaymentStatus {
			if next == PaymentRefunded || !o.PaymentStatus.CanTransitionTo(next) {
				return ErrInvalidTransition
			}
			o.PaymentStatus = next
		}
	}
	if u.Status != nil {
		next := *u.Status
		if !next.Valid() {
			return ErrInvalidStatus
		}
		if next != o.Status {
			if !o.Status.CanTransitionTo(next) {
				return ErrInvalidTransition
			}
			if next == OrderCancelled {
				// cancellation has inventory side effects and goes through CancelOrder
				return ErrUseCancel
			}
			o.Status = next
		}
	}
	if u.TrackingNumber != nil {
		o.TrackingNumber = u.TrackingNumber
	}
	return nil
}
