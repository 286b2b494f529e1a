package memory

import (
	"context"
	"database/sql"
	"slices"
	"storefront-checkout/internal/domain"
	"time"

	"github.com/google/uuid"
)

type orderRepo struct {
	s *Store
}

func (r *orderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneOrder(r.s.orders[id]), nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.orderNumbers[order.Number]; taken {
		return domain.ErrOrderNumberTaken
	}
	r.s.orders[order.ID] = cloneOrder(order)
	r.s.orderNumbers[order.Number] = order.ID
	return nil
}

func (r *orderRepo) UpdateFulfillment(ctx context.Context, tx *sql.Tx, order *domain.Order, prevStatus domain.OrderStatus, prevPayment domain.PaymentStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.orders[order.ID]
	if !ok || cur.Status != prevStatus || cur.PaymentStatus != prevPayment {
		return false, nil
	}
	cur.Status = order.Status
	cur.PaymentStatus = order.PaymentStatus
	cur.TrackingNumber = order.TrackingNumber
	cur.UpdatedAt = order.UpdatedAt
	return true, nil
}

func (r *orderRepo) MarkPaid(ctx context.Context, tx *sql.Tx, id uuid.UUID, detail domain.PaymentDetail) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.orders[id]
	if !ok {
		return false, nil
	}
	if !slices.Contains([]domain.PaymentStatus{domain.PaymentPending, domain.PaymentFailed}, cur.PaymentStatus) ||
		!slices.Contains([]domain.OrderStatus{domain.OrderPendingPayment, domain.OrderProcessing}, cur.Status) {
		return false, nil
	}
	cur.PaymentStatus = domain.PaymentPaid
	cur.Status = domain.OrderProcessing
	d := detail
	cur.Payment = &d
	cur.UpdatedAt = detail.PaidAt
	return true, nil
}

func (r *orderRepo) MarkPaymentFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.orders[id]
	if !ok || cur.PaymentStatus != domain.PaymentPending {
		return false, nil
	}
	cur.PaymentStatus = domain.PaymentFailed
	cur.UpdatedAt = time.Now()
	return true, nil
}

func (r *orderRepo) Cancel(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.orders[id]
	if !ok || !cur.Cancellable() {
		return false, nil
	}
	cur.Status = domain.OrderCancelled
	cur.UpdatedAt = time.Now()
	return true, nil
}

func (r *orderRepo) CountCouponUses(ctx context.Context, userID uuid.UUID, code string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, o := range r.s.orders {
		if !o.OwnedBy(userID) || o.CouponCode() != code {
			continue
		}
		if o.PaymentStatus == domain.PaymentPaid || o.PaymentStatus == domain.PaymentPending {
			n++
		}
	}
	return n, nil
}
