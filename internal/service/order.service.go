package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/messaging"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/observability"
	"storefront-checkout/internal/pkg/logging"
	"storefront-checkout/internal/repo"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	orderNumberAttempts = 3
	pricingConcurrency  = 4
	zeroTotalMethod     = "none"
)

type CartLine struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

type CheckoutRequest struct {
	Items           []CartLine
	CouponCode      string
	ShippingAddress domain.Address
	GuestEmail      string
}

// PaymentIntent is handed to the client SDK. Settled is true when the order
// needed no processor round trip.
type PaymentIntent struct {
	IntentID     string
	ClientSecret string
	Settled      bool
}

type OrderService interface {
	CreateOrder(ctx context.Context, actor domain.Actor, req CheckoutRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error)
	UpdateFulfillment(ctx context.Context, actor domain.Actor, id uuid.UUID, update domain.FulfillmentUpdate) (*domain.Order, error)
	CancelOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error)
	CreatePaymentIntent(ctx context.Context, actor domain.Actor, id uuid.UUID) (*PaymentIntent, error)
}

type orderService struct {
	tx         repo.TxRunner
	orderRepo  repo.OrderRepo
	payments   repo.PaymentRepo
	inventory  repo.InventoryRepo
	products   repo.ProductRepo
	coupons    CouponService
	paymentGtw payment.PaymentGateway
	settlement SettlementService
	publisher  messaging.Publisher
	metrics    *observability.Metrics
	logger     *zap.Logger
	currency   string
	topic      string
	now        func() time.Time
}

func NewOrderService(
	tx repo.TxRunner,
	orderRepo repo.OrderRepo,
	payments repo.PaymentRepo,
	inventory repo.InventoryRepo,
	products repo.ProductRepo,
	coupons CouponService,
	paymentGtw payment.PaymentGateway,
	settlement SettlementService,
	publisher messaging.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	currency string,
	topic string,
) OrderService {
	return &orderService{
		tx:         tx,
		orderRepo:  orderRepo,
		payments:   payments,
		inventory:  inventory,
		products:   products,
		coupons:    coupons,
		paymentGtw: paymentGtw,
		settlement: settlement,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
		currency:   currency,
		topic:      topic,
		now:        time.Now,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, actor domain.Actor, req CheckoutRequest) (order *domain.Order, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "order.create", attribute.Int("cart.lines", len(req.Items)))
	defer func() {
		s.metrics.CheckoutOrders.WithLabelValues(checkoutOutcome(err)).Inc()
		s.metrics.ObserveUseCase("create_order", start)
		observability.EndSpan(span, err)
	}()
	log := logging.FromContext(ctx, s.logger)

	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if !actor.Authenticated() && req.GuestEmail == "" {
		return nil, domain.ErrGuestEmailRequired
	}

	items, err := s.priceLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order = &domain.Order{
		ID:              uuid.New(),
		UserID:          actor.UserID,
		Items:           items,
		Currency:        s.currency,
		Status:          domain.OrderPendingPayment,
		PaymentStatus:   domain.PaymentPending,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !actor.Authenticated() {
		order.GuestEmail = req.GuestEmail
	}
	if err := order.Price(); err != nil {
		return nil, err
	}
	if req.CouponCode != "" {
		discount, err := s.coupons.Apply(ctx, req.CouponCode, order.Subtotal, actor.UserID)
		if err != nil {
			return nil, err
		}
		order.Discount = discount
		if err := order.Price(); err != nil {
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		if order.Number, err = domain.NewOrderNumber(now); err != nil {
			return nil, fmt.Errorf("generate order number: %w", err)
		}
		err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			return s.reserveAndCreate(ctx, tx, order)
		})
		if errors.Is(err, domain.ErrOrderNumberTaken) && attempt < orderNumberAttempts {
			log.Warn("order_number_collision", zap.String("order_number", order.Number))
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	log.Info("order_created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.Number),
		zap.Int64("total", order.Total),
		zap.String("coupon", order.CouponCode()),
		zap.Bool("guest", order.IsGuest()))
	return order, nil
}

// priceLines re-reads every product so the client never sets a price.
func (s *orderService) priceLines(ctx context.Context, lines []CartLine) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pricingConcurrency)
	for i, line := range lines {
		g.Go(func() error {
			if line.Quantity <= 0 {
				return fmt.Errorf("%w for line item %d", domain.ErrInvalidQuantity, i+1)
			}
			p, err := s.products.FindProduct(gctx, line.ProductID)
			if err != nil {
				return fmt.Errorf("load product %s: %w", line.ProductID, err)
			}
			if p == nil || !p.Active {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
			}
			item, err := p.LineFor(line.VariantID, line.Quantity)
			if err != nil {
				return fmt.Errorf("%w for line item %d", err, i+1)
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// reserveAndCreate decrements stock line by line and inserts the order. On
// failure every reservation already taken is undone.
func (s *orderService) reserveAndCreate(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	reserved := make([]domain.LineItem, 0, len(order.Items))
	for i, it := range order.Items {
		if err := s.inventory.Reserve(ctx, tx, it.ProductID, it.VariantID, it.Quantity); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				s.metrics.Reservations.WithLabelValues("insufficient").Inc()
			}
			s.undoReservations(ctx, tx, reserved)
			return fmt.Errorf("%w for line item %d", err, i+1)
		}
		s.metrics.Reservations.WithLabelValues("reserved").Inc()
		reserved = append(reserved, it)
	}
	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		s.undoReservations(ctx, tx, reserved)
		return err
	}
	return nil
}

// undoReservations hands stock back by hand when there is no transaction to
// roll back. A failed statement aborts a real transaction, so releasing inside
// it would only fail again.
func (s *orderService) undoReservations(ctx context.Context, tx *sql.Tx, items []domain.LineItem) {
	if tx != nil {
		return
	}
	s.releaseAll(ctx, nil, items)
}

func (s *orderService) releaseAll(ctx context.Context, tx *sql.Tx, items []domain.LineItem) {
	for _, it := range items {
		if err := s.inventory.Release(ctx, tx, it.ProductID, it.VariantID, it.Quantity); err != nil {
			logging.FromContext(ctx, s.logger).Error("inventory_release_failed",
				zap.String("product_id", it.ProductID.String()),
				zap.Int("quantity", it.Quantity),
				zap.Error(err))
			continue
		}
		s.metrics.Reservations.WithLabelValues("released").Inc()
	}
}

func (s *orderService) GetOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if err := actor.CanAccess(order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) UpdateFulfillment(ctx context.Context, actor domain.Actor, id uuid.UUID, update domain.FulfillmentUpdate) (*domain.Order, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	order, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	prevStatus, prevPayment := order.Status, order.PaymentStatus
	err = order.ApplyFulfillment(update)
	if errors.Is(err, domain.ErrUseCancel) {
		if update.PaymentStatus != nil || update.TrackingNumber != nil {
			return nil, err
		}
		return s.CancelOrder(ctx, actor, id)
	}
	if err != nil {
		return nil, err
	}
	order.UpdatedAt = s.now()

	var updated bool
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = s.orderRepo.UpdateFulfillment(ctx, tx, order, prevStatus, prevPayment)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update fulfillment: %w", err)
	}
	if !updated {
		return nil, fmt.Errorf("%w: order changed concurrently", domain.ErrInvalidTransition)
	}

	logging.FromContext(ctx, s.logger).Info("order_fulfillment_updated",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
		zap.String("payment_status", string(order.PaymentStatus)))
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !order.Cancellable() {
		return nil, domain.ErrOrderNotCancellable
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.orderRepo.Cancel(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if !ok {
			// settlement or another cancel got there first
			return domain.ErrOrderNotCancellable
		}
		s.releaseAll(ctx, tx, order.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	order.Status = domain.OrderCancelled
	order.UpdatedAt = now
	log := logging.FromContext(ctx, s.logger)
	log.Info("order_cancelled", zap.String("order_id", order.ID.String()))

	if err := s.publisher.PublishEvent(ctx, s.topic, order.ID.String(), messaging.OrderEvent{
		Type:        messaging.EventOrderCancelled,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		GuestEmail:  order.GuestEmail,
		Total:       order.Total,
		Currency:    order.Currency,
		OccurredAt:  now,
	}); err != nil {
		log.Warn("order_event_publish_failed", zap.String("type", messaging.EventOrderCancelled), zap.Error(err))
	}
	return order, nil
}

func (s *orderService) CreatePaymentIntent(ctx context.Context, actor domain.Actor, id uuid.UUID) (pi *PaymentIntent, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "order.create_payment_intent", attribute.String("order.id", id.String()))
	defer func() {
		s.metrics.ObserveUseCase("create_payment_intent", start)
		observability.EndSpan(span, err)
	}()

	order, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	switch {
	case order.PaymentStatus == domain.PaymentPaid:
		return nil, domain.ErrOrderAlreadyPaid
	case order.Status == domain.OrderCancelled:
		return nil, domain.ErrOrderCancelled
	}

	if order.Total == 0 {
		return s.settleFree(ctx, order)
	}

	attempts, err := s.payments.CountAttempts(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("count payment attempts: %w", err)
	}
	key := fmt.Sprintf("%s:attempt-%d", order.ID, attempts+1)

	intent, err := s.paymentGtw.CreateIntent(ctx, payment.IntentRequest{
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		Amount:         order.Total,
		Currency:       order.Currency,
		IdempotencyKey: key,
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("payment_intent_failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		if domain.KindOf(err) != domain.KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	now := s.now()
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return s.payments.CreatePayment(ctx, tx, &domain.Payment{
			ID:             uuid.New(),
			OrderID:        order.ID,
			IntentID:       intent.ID,
			IdempotencyKey: key,
			Amount:         order.Total,
			Currency:       order.Currency,
			Status:         domain.AttemptPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	})
	if errors.Is(err, domain.ErrPaymentAttemptExists) {
		// a concurrent call derived the same key and the processor returned the same intent
		logging.FromContext(ctx, s.logger).Info("payment_intent_reused",
			zap.String("order_id", order.ID.String()),
			zap.String("intent_id", intent.ID))
		return &PaymentIntent{IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record payment attempt: %w", err)
	}

	logging.FromContext(ctx, s.logger).Info("payment_intent_created",
		zap.String("order_id", order.ID.String()),
		zap.String("intent_id", intent.ID),
		zap.String("idempotency_key", key))
	return &PaymentIntent{IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// settleFree marks a fully discounted order paid without touching the processor.
func (s *orderService) settleFree(ctx context.Context, order *domain.Order) (*PaymentIntent, error) {
	txn := "free_" + order.ID.String()
	err := s.settlement.Settle(ctx, domain.PaymentEvent{
		Kind:          domain.PaymentEventSucceeded,
		Type:          "zero_total",
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		TransactionID: txn,
		Currency:      order.Currency,
		Method:        zeroTotalMethod,
	})
	if err != nil {
		return nil, err
	}
	return &PaymentIntent{IntentID: txn, Settled: true}, nil
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "out_of_stock"
	case domain.KindOf(err) == domain.KindInternal:
		return "error"
	default:
		return "rejected"
	}
}
