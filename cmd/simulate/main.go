package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"storefront-checkout/internal/app"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/messaging"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/infrastructure/storage"
	"storefront-checkout/internal/observability"
	"storefront-checkout/internal/pkg/logging"
	"storefront-checkout/internal/repo/memory"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/worker"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// simulate drives checkouts against the in-memory store and the mock
// processor: webhooks are replayed, some are lost, and the reconciliation
// worker picks up what the webhooks missed.
func main() {
	orders := flag.Int("orders", 20, "number of checkouts")
	replays := flag.Int("replays", 3, "deliveries per webhook event")
	flag.Parse()

	logger := logging.MustNewLogger("storefront-simulate", "dev", "warn")
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), logger, *orders, *replays); err != nil {
		logger.Fatal("simulation_failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, n, replays int) error {
	dir, err := os.MkdirTemp("", "storefront-sim")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	if err := os.WriteFile(filepath.Join(dir, "ebook.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		return err
	}

	store := memory.NewStore()
	poster := domain.Product{ID: uuid.New(), Name: "Poster", Price: 1500, StockQuantity: n, Active: true}
	maxDownloads := 3
	ebook := domain.Product{ID: uuid.New(), Name: "Ebook", Price: 900, Active: true, Digital: true,
		FileRef: "ebook.pdf", MaxDownloads: &maxDownloads}
	store.SeedProduct(poster)
	store.SeedProduct(ebook)

	gateway := payment.NewMockGateway()
	repos := app.MemoryRepos(store)
	svc := app.NewServices(repos, app.Options{
		Gateway:   gateway,
		Publisher: messaging.NewNopPublisher(),
		Files:     storage.NewLocalFS(dir),
		Metrics:   observability.NewMetrics(prometheus.NewRegistry()),
		Logger:    logger,
		Currency:  "usd",
		Topic:     "storefront.orders",
	})

	fmt.Printf("--- simulating %d checkouts ---\n", n)
	var captured, declined, lost int
	for i := 0; i < n; i++ {
		userID := uuid.New()
		actor := domain.Actor{UserID: &userID, Role: domain.RoleCustomer}
		order, err := svc.Orders.CreateOrder(ctx, actor, service.CheckoutRequest{
			Items: []service.CartLine{
				{ProductID: poster.ID, Quantity: 1},
				{ProductID: ebook.ID, Quantity: 1},
			},
			ShippingAddress: domain.Address{Line1: "1 Main St", City: "Springfield", Country: "US"},
		})
		if err != nil {
			fmt.Printf("[%02d] checkout failed: %v\n", i+1, err)
			continue
		}
		intent, err := svc.Orders.CreatePaymentIntent(ctx, actor, order.ID)
		if err != nil {
			fmt.Printf("[%02d] %s intent failed: %v\n", i+1, order.Number, err)
			continue
		}

		ev, outcome, err := gateway.Pay(intent.IntentID)
		if err != nil {
			return err
		}
		switch outcome {
		case payment.PayCapturedWebhookLost:
			lost++
			fmt.Printf("[%02d] %s captured, webhook lost\n", i+1, order.Number)
			continue
		case payment.PayDeclined:
			declined++
		default:
			captured++
		}

		g, gctx := errgroup.WithContext(ctx)
		for r := 0; r < replays; r++ {
			g.Go(func() error { return svc.Settlement.Settle(gctx, ev) })
		}
		if err := g.Wait(); err != nil {
			fmt.Printf("[%02d] %s settlement failed: %v\n", i+1, order.Number, err)
			continue
		}
		fresh, err := svc.Orders.GetOrder(ctx, actor, order.ID)
		if err != nil {
			return err
		}
		fmt.Printf("[%02d] %s -> %s/%s\n", i+1, order.Number, fresh.Status, fresh.PaymentStatus)
	}

	reconciler := worker.NewReconciliationWorker(repos.Payments, repos.Orders, gateway, svc.Settlement,
		time.Second, 0, logger)
	if err := reconciler.RunOnce(ctx); err != nil {
		return err
	}

	fmt.Println("--- summary ---")
	fmt.Printf("captured=%d declined=%d webhook_lost=%d\n", captured, declined, lost)
	fmt.Printf("orders=%d grants=%d poster_stock=%d\n", store.OrderCount(), store.GrantCount(), store.Stock(poster.ID, nil))
	return nil
}
