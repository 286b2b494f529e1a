package service

import (
	"context"
	"database/sql"
	"fmt"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/messaging"
	"storefront-checkout/internal/observability"
	"storefront-checkout/internal/pkg/logging"
	"storefront-checkout/internal/repo"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RefundReasonCancelledOrder marks a capture that arrived after its order was cancelled.
const RefundReasonCancelledOrder = "captured on cancelled order, refund required"

// SettlementService applies verified payment events to orders. Settle returns
// an error only when the event must be redelivered.
type SettlementService interface {
	Settle(ctx context.Context, event domain.PaymentEvent) error
}

type settlementService struct {
	tx         repo.TxRunner
	orders     repo.OrderRepo
	payments   repo.PaymentRepo
	events     repo.WebhookEventRepo
	deliveries repo.DeliveryRepo
	delivery   DeliveryService
	publisher  messaging.Publisher
	topic      string
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewSettlementService(
	tx repo.TxRunner,
	orders repo.OrderRepo,
	payments repo.PaymentRepo,
	events repo.WebhookEventRepo,
	deliveries repo.DeliveryRepo,
	delivery DeliveryService,
	publisher messaging.Publisher,
	topic string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) SettlementService {
	return &settlementService{
		tx:         tx,
		orders:     orders,
		payments:   payments,
		events:     events,
		deliveries: deliveries,
		delivery:   delivery,
		publisher:  publisher,
		topic:      topic,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *settlementService) Settle(ctx context.Context, ev domain.PaymentEvent) (err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "settlement.settle",
		attribute.String("event.id", ev.ID),
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("order.id", ev.OrderID.String()),
	)
	outcome := "applied"
	defer func() {
		if err != nil {
			outcome = "retry"
		}
		s.metrics.SettlementEvents.WithLabelValues(string(ev.Kind), outcome).Inc()
		s.metrics.ObserveUseCase("settle", start)
		observability.EndSpan(span, err)
	}()

	log := logging.FromContext(ctx, s.logger).With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
		zap.String("order_id", ev.OrderID.String()),
	)

	switch ev.Kind {
	case domain.PaymentEventSucceeded:
		outcome, err = s.settlePaid(ctx, log, ev)
	case domain.PaymentEventFailed:
		outcome, err = s.recordFailure(ctx, log, ev)
	default:
		log.Debug("payment_event_ignored")
		outcome = "ignored"
	}
	return err
}

func (s *settlementService) settlePaid(ctx context.Context, log *zap.Logger, ev domain.PaymentEvent) (string, error) {
	if ev.ID != "" {
		seen, err := s.events.Seen(ctx, ev.ID)
		if err != nil {
			return "", fmt.Errorf("check event %s: %w", ev.ID, err)
		}
		if seen {
			log.Info("settlement_duplicate_event")
			return "duplicate", nil
		}
	}

	order, err := s.findOrder(ctx, ev.OrderID)
	if err != nil {
		return "", err
	}
	if order == nil {
		log.Warn("settlement_order_not_found", zap.String("order_number", ev.OrderNumber))
		return "unknown_order", nil
	}

	if order.PaymentStatus == domain.PaymentPaid {
		if order.Payment != nil && order.Payment.TransactionID != ev.TransactionID {
			log.Error("settlement_second_capture",
				zap.String("settled_txn", order.Payment.TransactionID),
				zap.String("txn", ev.TransactionID))
		}
		return "already_paid", nil
	}
	if order.Status == domain.OrderCancelled {
		log.Error("settlement_cancelled_order_captured",
			zap.String("txn", ev.TransactionID),
			zap.Int64("amount", ev.AmountCaptured))
		if err := s.flagRefund(ctx, ev, RefundReasonCancelledOrder); err != nil {
			return "", fmt.Errorf("flag refund for order %s: %w", order.ID, err)
		}
		return "cancelled_order", nil
	}
	if ev.AmountCaptured != order.Total {
		log.Warn("settlement_amount_mismatch",
			zap.Int64("total", order.Total),
			zap.Int64("captured", ev.AmountCaptured))
		s.metrics.AmountMismatches.Inc()
	}

	now := s.now()
	grants, err := s.delivery.BuildGrants(ctx, order, now)
	if err != nil {
		return "", err
	}

	detail := domain.PaymentDetail{
		TransactionID:  ev.TransactionID,
		Method:         ev.Method,
		AmountCaptured: ev.AmountCaptured,
		PaidAt:         now,
	}
	currency := ev.Currency
	if currency == "" {
		currency = order.Currency
	}

	applied := false
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.orders.MarkPaid(ctx, tx, order.ID, detail)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if !ok {
			// another delivery won the race, or the order was cancelled meanwhile
			return nil
		}
		applied = true

		if err := s.payments.MarkCaptured(ctx, tx, &domain.Payment{
			ID:             uuid.New(),
			OrderID:        order.ID,
			IntentID:       ev.TransactionID,
			IdempotencyKey: ev.TransactionID,
			Amount:         ev.AmountCaptured,
			Currency:       currency,
			Method:         ev.Method,
			UpdatedAt:      now,
		}); err != nil {
			return fmt.Errorf("record capture: %w", err)
		}
		if len(grants) > 0 {
			if err := s.deliveries.CreateGrants(ctx, tx, grants); err != nil {
				return fmt.Errorf("issue grants: %w", err)
			}
		}
		if ev.ID != "" {
			if err := s.events.Record(ctx, tx, ev.ID, ev.Type); err != nil {
				return fmt.Errorf("record event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("settlement_persist_failed", zap.Error(err))
		return "", fmt.Errorf("settle order %s: %w", order.ID, err)
	}
	if !applied {
		return "already_paid", nil
	}

	log.Info("settlement_applied",
		zap.String("order_number", order.Number),
		zap.String("txn", ev.TransactionID),
		zap.Int("grants", len(grants)))

	s.publish(ctx, log, messaging.OrderEvent{
		Type:        messaging.EventOrderPaid,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		GuestEmail:  order.GuestEmail,
		Total:       order.Total,
		Currency:    order.Currency,
		Grants:      len(grants),
		OccurredAt:  now,
	})
	return "applied", nil
}

// flagRefund closes the capturing attempt and consumes the event so neither
// redeliveries nor reconciliation pick it up again.
func (s *settlementService) flagRefund(ctx context.Context, ev domain.PaymentEvent, reason string) error {
	return s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if ev.TransactionID != "" {
			if err := s.payments.FlagRefund(ctx, tx, ev.TransactionID, reason); err != nil {
				return err
			}
		}
		if ev.ID != "" {
			return s.events.Record(ctx, tx, ev.ID, ev.Type)
		}
		return nil
	})
}

func (s *settlementService) recordFailure(ctx context.Context, log *zap.Logger, ev domain.PaymentEvent) (string, error) {
	order, err := s.findOrder(ctx, ev.OrderID)
	if err != nil {
		return "", err
	}
	if order == nil {
		log.Warn("payment_failure_order_not_found", zap.String("order_number", ev.OrderNumber))
		return "unknown_order", nil
	}

	marked := false
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if ev.TransactionID != "" {
			if err := s.payments.MarkFailed(ctx, tx, ev.TransactionID, ev.FailureReason); err != nil {
				return fmt.Errorf("mark attempt failed: %w", err)
			}
		}
		ok, err := s.orders.MarkPaymentFailed(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("mark order payment failed: %w", err)
		}
		marked = ok
		if ev.ID != "" {
			return s.events.Record(ctx, tx, ev.ID, ev.Type)
		}
		return nil
	})
	if err != nil {
		log.Error("payment_failure_persist_failed", zap.Error(err))
		return "", fmt.Errorf("record payment failure for order %s: %w", order.ID, err)
	}

	log.Info("payment_failed", zap.String("reason", ev.FailureReason), zap.Bool("order_updated", marked))
	if !marked {
		return "stale", nil
	}
	return "failed_recorded", nil
}

func (s *settlementService) findOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	order, err := s.orders.FindById(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return order, nil
}

func (s *settlementService) publish(ctx context.Context, log *zap.Logger, ev messaging.OrderEvent) {
	if err := s.publisher.PublishEvent(ctx, s.topic, ev.OrderID.String(), ev); err != nil {
		log.Warn("order_event_publish_failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
