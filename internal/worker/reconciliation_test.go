package worker

import (
	"context"
	"testing"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/messaging"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/infrastructure/storage"
	"storefront-checkout/internal/observability"
	"storefront-checkout/internal/repo/memory"
	"storefront-checkout/internal/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	store   *memory.Store
	gateway *payment.MockGateway
	orders  service.OrderService
	worker  *ReconciliationWorker
	buyer   domain.Actor
	product domain.Product
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	gateway := payment.NewMockGateway()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := zap.NewNop()
	publisher := messaging.NewNopPublisher()

	delivery := service.NewDeliveryService(store.Deliveries(), store.Products(), store.Orders(),
		storage.NewLocalFS(t.TempDir()), metrics, logger)
	settlement := service.NewSettlementService(memory.TxRunner{}, store.Orders(), store.Payments(),
		store.WebhookEvents(), store.Deliveries(), delivery, publisher, "orders", metrics, logger)
	orders := service.NewOrderService(memory.TxRunner{}, store.Orders(), store.Payments(), store.Inventory(),
		store.Products(), service.NewCouponService(store.Coupons(), store.Orders()), gateway, settlement,
		publisher, metrics, logger, "usd", "orders")

	w := NewReconciliationWorker(store.Payments(), store.Orders(), gateway, settlement, time.Minute, 15*time.Minute, logger)
	// every attempt counts as stale
	w.now = func() time.Time { return time.Now().Add(time.Hour) }

	product := domain.Product{ID: uuid.New(), Name: "Lamp", Price: 4200, StockQuantity: 10, Active: true}
	store.SeedProduct(product)
	id := uuid.New()
	return &harness{
		store:   store,
		gateway: gateway,
		orders:  orders,
		worker:  w,
		buyer:   domain.Actor{UserID: &id, Role: domain.RoleCustomer},
		product: product,
	}
}

func (h *harness) orderWithIntent(t *testing.T) (*domain.Order, string) {
	t.Helper()
	ctx := context.Background()
	order, err := h.orders.CreateOrder(ctx, h.buyer, service.CheckoutRequest{
		Items: []service.CartLine{{ProductID: h.product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	pi, err := h.orders.CreatePaymentIntent(ctx, h.buyer, order.ID)
	require.NoError(t, err)
	return order, pi.IntentID
}

func TestReconcileLostWebhook(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order, intentID := h.orderWithIntent(t)

	_, err := h.gateway.Resolve(intentID, payment.PayCapturedWebhookLost)
	require.NoError(t, err)

	require.NoError(t, h.worker.RunOnce(ctx))

	stored, err := h.orders.GetOrder(ctx, h.buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, intentID, stored.Payment.TransactionID)

	pending, err := h.store.Payments().FindPendingBefore(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReconcileDeclined(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order, intentID := h.orderWithIntent(t)

	_, err := h.gateway.Resolve(intentID, payment.PayDeclined)
	require.NoError(t, err)
	require.NoError(t, h.worker.RunOnce(ctx))

	stored, err := h.orders.GetOrder(ctx, h.buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, stored.PaymentStatus)
	assert.Equal(t, domain.OrderPendingPayment, stored.Status, "reconciliation never cancels")
}

func TestReconcileLeavesOpenIntents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order, _ := h.orderWithIntent(t)

	require.NoError(t, h.worker.RunOnce(ctx))

	stored, err := h.orders.GetOrder(ctx, h.buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.PaymentStatus)

	pending, err := h.store.Payments().FindByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.AttemptPending, pending[0].Status)
}

func TestReconcileRetiresAttemptsOfCancelledOrders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order, _ := h.orderWithIntent(t)
	_, err := h.orders.CancelOrder(ctx, h.buyer, order.ID)
	require.NoError(t, err)

	require.NoError(t, h.worker.RunOnce(ctx))

	attempts, err := h.store.Payments().FindByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.AttemptFailed, attempts[0].Status)
	assert.Equal(t, "abandoned", attempts[0].FailureReason)
}

func TestReconcileCaptureOnCancelledOrderIsFlaggedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order, intentID := h.orderWithIntent(t)
	_, err := h.orders.CancelOrder(ctx, h.buyer, order.ID)
	require.NoError(t, err)
	_, err = h.gateway.Resolve(intentID, payment.PayCapturedWebhookLost)
	require.NoError(t, err)

	for pass := 1; pass <= 3; pass++ {
		require.NoError(t, h.worker.RunOnce(ctx))
		pending, err := h.store.Payments().FindPendingBefore(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, pending, "pass %d", pass)
	}

	attempts, err := h.store.Payments().FindByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.AttemptRefundRequired, attempts[0].Status)
	assert.Equal(t, service.RefundReasonCancelledOrder, attempts[0].FailureReason)

	stored, err := h.orders.GetOrder(ctx, h.buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, stored.Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.worker.interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
