package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/messaging"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/infrastructure/storage"
	"storefront-checkout/internal/observability"
	"storefront-checkout/internal/repo/memory"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTopic = "storefront.orders.test"

type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.OrderEvent
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := event.(messaging.OrderEvent); ok {
		p.events = append(p.events, ev)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store      *memory.Store
	gateway    *payment.MockGateway
	publisher  *recordingPublisher
	files      string
	metrics    *observability.Metrics
	coupons    CouponService
	delivery   DeliveryService
	settlement SettlementService
	orders     OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		gateway:   payment.NewMockGateway(),
		publisher: &recordingPublisher{},
		files:     t.TempDir(),
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	f.metrics = metrics
	logger := zap.NewNop()

	f.coupons = NewCouponService(f.store.Coupons(), f.store.Orders())
	f.delivery = NewDeliveryService(f.store.Deliveries(), f.store.Products(), f.store.Orders(),
		storage.NewLocalFS(f.files), metrics, logger)
	f.settlement = NewSettlementService(memory.TxRunner{}, f.store.Orders(), f.store.Payments(),
		f.store.WebhookEvents(), f.store.Deliveries(), f.delivery, f.publisher, testTopic, metrics, logger)
	f.orders = NewOrderService(memory.TxRunner{}, f.store.Orders(), f.store.Payments(), f.store.Inventory(),
		f.store.Products(), f.coupons, f.gateway, f.settlement, f.publisher, metrics, logger, "usd", testTopic)
	return f
}

func (f *fixture) seedPhysical(t *testing.T, price int64, stock int) domain.Product {
	t.Helper()
	p := domain.Product{ID: uuid.New(), Name: "Mug", Price: price, StockQuantity: stock, Active: true}
	f.store.SeedProduct(p)
	return p
}

func (f *fixture) seedDigital(t *testing.T, price int64, maxDownloads *int, ttl *time.Duration) domain.Product {
	t.Helper()
	ref := "ebooks/" + uuid.NewString() + ".pdf"
	path := filepath.Join(f.files, ref)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))

	p := domain.Product{
		ID:            uuid.New(),
		Name:          "Go in Practice",
		Price:         price,
		StockQuantity: 1000,
		Active:        true,
		Digital:       true,
		FileRef:       ref,
		MaxDownloads:  maxDownloads,
		DownloadTTL:   ttl,
	}
	f.store.SeedProduct(p)
	return p
}

func customer() domain.Actor {
	id := uuid.New()
	return domain.Actor{UserID: &id, Role: domain.RoleCustomer}
}

func staff() domain.Actor {
	id := uuid.New()
	return domain.Actor{UserID: &id, Role: domain.RoleStaff}
}

func checkout(lines ...CartLine) CheckoutRequest {
	return CheckoutRequest{
		Items:           lines,
		ShippingAddress: domain.Address{Name: "Ada", Line1: "1 Loop Rd", City: "Austin", PostalCode: "73301", Country: "US"},
	}
}

// succeededEvent is the processor notification for a fully captured order.
func succeededEvent(order *domain.Order, eventID string) domain.PaymentEvent {
	return domain.PaymentEvent{
		ID:             eventID,
		Kind:           domain.PaymentEventSucceeded,
		Type:           "payment_intent.succeeded",
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		TransactionID:  "pi_" + order.ID.String(),
		AmountCaptured: order.Total,
		Currency:       order.Currency,
		Method:         "card",
	}
}

func intPtr(n int) *int { return &n }
