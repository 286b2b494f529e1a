package domain

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderPendingPayment, OrderProcessing, true},
		{OrderPendingPayment, OrderCancelled, true},
		{OrderProcessing, OrderShipped, true},
		{OrderProcessing, OrderCancelled, true},
		{OrderShipped, OrderDelivered, true},
		{OrderShipped, OrderCancelled, false},
		{OrderDelivered, OrderShipped, false},
		{OrderProcessing, OrderPendingPayment, false},
		{OrderCancelled, OrderProcessing, false},
		{OrderPendingPayment, OrderDelivered, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestApplyFulfillment(t *testing.T) {
	newOrder := func() *Order {
		return &Order{Status: OrderProcessing, PaymentStatus: PaymentPaid}
	}

	t.Run("rejects paid", func(t *testing.T) {
		o := &Order{Status: OrderPendingPayment, PaymentStatus: PaymentPending}
		paid := PaymentPaid
		err := o.ApplyFulfillment(FulfillmentUpdate{PaymentStatus: &paid})
		require.ErrorIs(t, err, ErrPaidNotSettable)
		assert.Equal(t, PaymentPending, o.PaymentStatus)
	})

	t.Run("forward status with tracking", func(t *testing.T) {
		o := newOrder()
		shipped := OrderShipped
		tracking := "1Z999"
		require.NoError(t, o.ApplyFulfillment(FulfillmentUpdate{Status: &shipped, TrackingNumber: &tracking}))
		assert.Equal(t, OrderShipped, o.Status)
		assert.Equal(t, "1Z999", *o.TrackingNumber)
	})

	t.Run("backward status", func(t *testing.T) {
		o := newOrder()
		o.Status = OrderDelivered
		back := OrderProcessing
		require.ErrorIs(t, o.ApplyFulfillment(FulfillmentUpdate{Status: &back}), ErrInvalidTransition)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		o := newOrder()
		same := OrderProcessing
		require.NoError(t, o.ApplyFulfillment(FulfillmentUpdate{Status: &same}))
	})

	t.Run("pending to failed", func(t *testing.T) {
		o := &Order{Status: OrderPendingPayment, PaymentStatus: PaymentPending}
		failed := PaymentFailed
		require.NoError(t, o.ApplyFulfillment(FulfillmentUpdate{PaymentStatus: &failed}))
		assert.Equal(t, PaymentFailed, o.PaymentStatus)
	})

	t.Run("refund is not a staff transition", func(t *testing.T) {
		o := newOrder()
		refunded := PaymentRefunded
		require.ErrorIs(t, o.ApplyFulfillment(FulfillmentUpdate{PaymentStatus: &refunded}), ErrInvalidTransition)
	})

	t.Run("cancel goes through the cancel operation", func(t *testing.T) {
		o := &Order{Status: OrderPendingPayment, PaymentStatus: PaymentPending}
		cancelled := OrderCancelled
		require.ErrorIs(t, o.ApplyFulfillment(FulfillmentUpdate{Status: &cancelled}), ErrUseCancel)
	})
}

func TestOrderPrice(t *testing.T) {
	o := &Order{
		Items: []LineItem{
			{ProductID: uuid.New(), Quantity: 2, UnitPrice: 2500},
			{ProductID: uuid.New(), Quantity: 1, UnitPrice: 5000},
		},
		Discount: &Discount{Code: "TEN", Amount: 1000},
	}
	require.NoError(t, o.Price())
	assert.Equal(t, int64(10000), o.Subtotal)
	assert.Equal(t, int64(9000), o.Total)
	assert.Equal(t, o.Subtotal-o.DiscountAmount(), o.Total)

	o.Discount.Amount = 20000
	err := o.Price()
	require.ErrorIs(t, err, ErrMoneyInvariant)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestCancellable(t *testing.T) {
	assert.True(t, (&Order{Status: OrderPendingPayment, PaymentStatus: PaymentPending}).Cancellable())
	assert.True(t, (&Order{Status: OrderProcessing, PaymentStatus: PaymentPending}).Cancellable())
	assert.False(t, (&Order{Status: OrderProcessing, PaymentStatus: PaymentPaid}).Cancellable())
	assert.False(t, (&Order{Status: OrderShipped, PaymentStatus: PaymentPending}).Cancellable())
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	n, err := NewOrderNumber(now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20260309-[A-Z2-9]{6}$`), n)
}

func TestErrorKinds(t *testing.T) {
	wrapped := errors.Join(errors.New("ctx"), ErrInsufficientStock)
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "insufficient_stock", CodeOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
