package repo

import (
	"context"
	"database/sql"
	"storefront-checkout/internal/domain"
	"time"

	"github.com/google/uuid"
)

type PaymentRepo interface {
	// CreatePayment returns domain.ErrPaymentAttemptExists when the intent is already recorded.
	CreatePayment(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	CountAttempts(ctx context.Context, orderID uuid.UUID) (int, error)
	// MarkCaptured records the successful attempt for an order. Only one
	// captured record may exist per order.
	MarkCaptured(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	MarkFailed(ctx context.Context, tx *sql.Tx, intentID string, reason string) error
	// FlagRefund closes an attempt whose capture could not settle its order.
	FlagRefund(ctx context.Context, tx *sql.Tx, intentID string, reason string) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error)
	// FindPendingBefore lists attempts still pending that were created before the cutoff.
	FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, order_id, intent_id, idempotency_key, amount, currency, method, status, failure_reason, created_at, updated_at`

func (r *paymentRepo) CreatePayment(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		payment.ID, payment.OrderID, payment.IntentID, payment.IdempotencyKey, payment.Amount, payment.Currency,
		payment.Method, payment.Status, payment.FailureReason, payment.CreatedAt, payment.UpdatedAt,
	)
	if isUniqueViolation(err, "payments_intent_id_key") {
		return domain.ErrPaymentAttemptExists
	}
	return err
}

func (r *paymentRepo) CountAttempts(ctx context.Context, orderID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM payments WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (r *paymentRepo) MarkCaptured(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	// The attempt row normally exists from intent creation; the upsert also covers
	// intents created outside this service and zero-total settlements.
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'captured', '', $8, $8)
		ON CONFLICT (intent_id) DO UPDATE
		SET status = 'captured', amount = EXCLUDED.amount, method = EXCLUDED.method, updated_at = EXCLUDED.updated_at`,
		p.ID, p.OrderID, p.IntentID, p.IdempotencyKey, p.Amount, p.Currency, p.Method, p.UpdatedAt,
	)
	return err
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx *sql.Tx, intentID string, reason string) error {
	_, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, updated_at = now()
		WHERE intent_id = $1 AND status = 'pending'`,
		intentID, reason,
	)
	return err
}

func (r *paymentRepo) FlagRefund(ctx context.Context, tx *sql.Tx, intentID string, reason string) error {
	_, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE payments
		SET status = 'refund_required', failure_reason = $2, updated_at = now()
		WHERE intent_id = $1 AND status IN ('pending', 'failed')`,
		intentID, reason,
	)
	return err
}

func (r *paymentRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	return r.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at`, orderID)
}

func (r *paymentRepo) FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	return r.query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = $1
		AND created_at < $2
		ORDER BY created_at
		LIMIT $3`,
		domain.AttemptPending, before, limit,
	)
}

func (r *paymentRepo) query(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		err := rows.Scan(
			&p.ID,
			&p.OrderID,
			&p.IntentID,
			&p.IdempotencyKey,
			&p.Amount,
			&p.Currency,
			&p.Method,
			&p.Status,
			&p.FailureReason,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
