package memory

import (
	"context"
	"database/sql"
	"sort"
	"storefront-checkout/internal/domain"
	"time"

	"github.com/google/uuid"
)

type paymentRepo struct {
	s *Store
}

func (r *paymentRepo) CreatePayment(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[payment.IntentID]; ok {
		return domain.ErrPaymentAttemptExists
	}
	clone := *payment
	r.s.payments[payment.IntentID] = &clone
	return nil
}

func (r *paymentRepo) CountAttempts(ctx context.Context, orderID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

func (r *paymentRepo) MarkCaptured(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.payments[payment.IntentID]; ok {
		p.Status = domain.AttemptCaptured
		p.Amount = payment.Amount
		p.Method = payment.Method
		p.UpdatedAt = payment.UpdatedAt
		return nil
	}
	clone := *payment
	clone.Status = domain.AttemptCaptured
	clone.CreatedAt = payment.UpdatedAt
	r.s.payments[payment.IntentID] = &clone
	return nil
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx *sql.Tx, intentID string, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.payments[intentID]; ok && p.Status == domain.AttemptPending {
		p.Status = domain.AttemptFailed
		p.FailureReason = reason
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (r *paymentRepo) FlagRefund(ctx context.Context, tx *sql.Tx, intentID string, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[intentID]
	if ok && (p.Status == domain.AttemptPending || p.Status == domain.AttemptFailed) {
		p.Status = domain.AttemptRefundRequired
		p.FailureReason = reason
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (r *paymentRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	return r.filter(func(p *domain.Payment) bool { return p.OrderID == orderID }, 0), nil
}

func (r *paymentRepo) FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	return r.filter(func(p *domain.Payment) bool {
		return p.Status == domain.AttemptPending && p.CreatedAt.Before(before)
	}, limit), nil
}

func (r *paymentRepo) filter(keep func(*domain.Payment) bool, limit int) []domain.Payment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
