package worker

import (
	"context"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/service"
	"time"

	"go.uber.org/zap"
)

const (
	reconcileBatch = 100

	RefundReasonDuplicateCapture = "duplicate capture, refund required"
)

// ReconciliationWorker settles payments whose webhook never arrived by asking
// the processor directly. It never cancels orders.
type ReconciliationWorker struct {
	payments   repo.PaymentRepo
	orders     repo.OrderRepo
	gateway    payment.PaymentGateway
	settlement service.SettlementService
	interval   time.Duration
	after      time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewReconciliationWorker(
	payments repo.PaymentRepo,
	orders repo.OrderRepo,
	gateway payment.PaymentGateway,
	settlement service.SettlementService,
	interval time.Duration,
	after time.Duration,
	logger *zap.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		payments:   payments,
		orders:     orders,
		gateway:    gateway,
		settlement: settlement,
		interval:   interval,
		after:      after,
		logger:     logger.Named("reconciliation"),
		now:        time.Now,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("reconciliation_worker_started",
		zap.Duration("interval", rw.interval), zap.Duration("after", rw.after))

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("reconciliation_worker_stopped")
			return
		case <-ticker.C:
			if err := rw.process(ctx); err != nil {
				rw.logger.Error("reconciliation_failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single pass. The simulator drives it directly.
func (rw *ReconciliationWorker) RunOnce(ctx context.Context) error {
	return rw.process(ctx)
}

func (rw *ReconciliationWorker) process(ctx context.Context) error {
	stuck, err := rw.payments.FindPendingBefore(ctx, rw.now().Add(-rw.after), reconcileBatch)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}
	rw.logger.Info("reconciliation_pending_attempts", zap.Int("count", len(stuck)))

	for _, attempt := range stuck {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rw.reconcile(ctx, attempt)
	}
	return nil
}

func (rw *ReconciliationWorker) reconcile(ctx context.Context, attempt domain.Payment) {
	log := rw.logger.With(
		zap.String("order_id", attempt.OrderID.String()),
		zap.String("intent_id", attempt.IntentID))

	order, err := rw.orders.FindById(ctx, attempt.OrderID)
	if err != nil {
		log.Warn("reconciliation_order_lookup_failed", zap.Error(err))
		return
	}
	if order == nil {
		log.Warn("reconciliation_order_missing")
		return
	}

	status, err := rw.gateway.RetrieveIntent(ctx, attempt.IntentID)
	if err != nil {
		// try again next tick
		log.Warn("reconciliation_retrieve_failed", zap.Error(err))
		return
	}

	settledElsewhere := order.PaymentStatus == domain.PaymentPaid && order.Payment != nil &&
		order.Payment.TransactionID != attempt.IntentID

	switch status.State {
	case payment.IntentSucceeded:
		if settledElsewhere {
			log.Error("reconciliation_duplicate_capture",
				zap.String("settled_txn", order.Payment.TransactionID),
				zap.Int64("amount", status.AmountReceived))
			rw.flagRefund(ctx, log, attempt, RefundReasonDuplicateCapture)
			return
		}
		log.Info("reconciliation_found_capture")
		rw.settle(ctx, log, status)
	case payment.IntentFailed:
		rw.settle(ctx, log, status)
	default:
		if order.PaymentStatus == domain.PaymentPaid || order.Status == domain.OrderCancelled {
			rw.retire(ctx, log, attempt, "abandoned")
		}
	}
}

func (rw *ReconciliationWorker) settle(ctx context.Context, log *zap.Logger, status *payment.IntentStatus) {
	ev := status.Event()
	ev.Type = "reconciliation." + string(status.State)
	if err := rw.settlement.Settle(ctx, ev); err != nil {
		log.Error("reconciliation_settle_failed", zap.Error(err))
	}
}

func (rw *ReconciliationWorker) flagRefund(ctx context.Context, log *zap.Logger, attempt domain.Payment, reason string) {
	if err := rw.payments.FlagRefund(ctx, nil, attempt.IntentID, reason); err != nil {
		log.Error("reconciliation_flag_refund_failed", zap.Error(err))
		return
	}
	log.Warn("reconciliation_refund_required", zap.String("reason", reason))
}

// retire closes an attempt that can no longer settle its order so it stops being polled.
func (rw *ReconciliationWorker) retire(ctx context.Context, log *zap.Logger, attempt domain.Payment, reason string) {
	if err := rw.payments.MarkFailed(ctx, nil, attempt.IntentID, reason); err != nil {
		log.Error("reconciliation_retire_failed", zap.Error(err))
		return
	}
	log.Info("reconciliation_attempt_retired", zap.String("reason", reason))
}
