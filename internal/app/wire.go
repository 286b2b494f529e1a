// Package app assembles the services over either storage backend.
package app

import (
	"database/sql"

	"storefront-checkout/internal/infrastructure/messaging"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/infrastructure/storage"
	"storefront-checkout/internal/observability"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/repo/memory"
	"storefront-checkout/internal/service"

	"go.uber.org/zap"
)

type Repos struct {
	Tx            repo.TxRunner
	Orders        repo.OrderRepo
	Payments      repo.PaymentRepo
	Inventory     repo.InventoryRepo
	Products      repo.ProductRepo
	Coupons       repo.CouponRepo
	Deliveries    repo.DeliveryRepo
	WebhookEvents repo.WebhookEventRepo
}

func PostgresRepos(db *sql.DB) Repos {
	return Repos{
		Tx:            repo.NewTxRunner(db),
		Orders:        repo.NewOrderRepo(db),
		Payments:      repo.NewPaymentRepo(db),
		Inventory:     repo.NewInventoryRepo(db),
		Products:      repo.NewProductRepo(db),
		Coupons:       repo.NewCouponRepo(db),
		Deliveries:    repo.NewDeliveryRepo(db),
		WebhookEvents: repo.NewWebhookEventRepo(db),
	}
}

func MemoryRepos(s *memory.Store) Repos {
	return Repos{
		Tx:            memory.TxRunner{},
		Orders:        s.Orders(),
		Payments:      s.Payments(),
		Inventory:     s.Inventory(),
		Products:      s.Products(),
		Coupons:       s.Coupons(),
		Deliveries:    s.Deliveries(),
		WebhookEvents: s.WebhookEvents(),
	}
}

type Options struct {
	Gateway   payment.PaymentGateway
	Publisher messaging.Publisher
	Files     storage.FileStore
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Currency  string
	Topic     string
}

type Services struct {
	Coupons    service.CouponService
	Delivery   service.DeliveryService
	Settlement service.SettlementService
	Orders     service.OrderService
}

func NewServices(r Repos, o Options) Services {
	coupons := service.NewCouponService(r.Coupons, r.Orders)
	delivery := service.NewDeliveryService(r.Deliveries, r.Products, r.Orders, o.Files, o.Metrics, o.Logger.Named("delivery"))
	settlement := service.NewSettlementService(r.Tx, r.Orders, r.Payments, r.WebhookEvents, r.Deliveries, delivery,
		o.Publisher, o.Topic, o.Metrics, o.Logger.Named("settlement"))
	orders := service.NewOrderService(r.Tx, r.Orders, r.Payments, r.Inventory, r.Products, coupons, o.Gateway,
		settlement, o.Publisher, o.Metrics, o.Logger.Named("orders"), o.Currency, o.Topic)
	return Services{Coupons: coupons, Delivery: delivery, Settlement: settlement, Orders: orders}
}
