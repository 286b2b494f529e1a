package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"storefront-checkout/internal/domain"
	"time"

	"github.com/google/uuid"
)

type OrderRepo interface {
	// FindById returns nil, nil when the order does not exist.
	FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	// UpdateFulfillment persists staff fields, conditioned on the order still
	// having the status pair it was read with. It reports false when it lost a race.
	UpdateFulfillment(ctx context.Context, tx *sql.Tx, order *domain.Order, prevStatus domain.OrderStatus, prevPayment domain.PaymentStatus) (bool, error)
	// MarkPaid moves an unpaid, uncancelled order to paid/processing. It reports
	// false when the order was already paid or cancelled.
	MarkPaid(ctx context.Context, tx *sql.Tx, id uuid.UUID, detail domain.PaymentDetail) (bool, error)
	MarkPaymentFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error)
	Cancel(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error)
	// CountCouponUses counts the user's paid or pending orders carrying code.
	CountCouponUses(ctx context.Context, userID uuid.UUID, code string) (int, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, order_number, user_id, guest_email, subtotal, coupon_code, discount_amount, total, currency,
	status, payment_status, transaction_id, payment_method, amount_captured, paid_at,
	shipping_address, tracking_number, created_at, updated_at`

func (r *orderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err // system error
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, variant_id, name, quantity, unit_price, digital
		FROM order_items WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it      domain.LineItem
			variant uuid.NullUUID
		)
		if err := rows.Scan(&it.ProductID, &variant, &it.Name, &it.Quantity, &it.UnitPrice, &it.Digital); err != nil {
			return nil, err
		}
		if variant.Valid {
			v := variant.UUID
			it.VariantID = &v
		}
		order.Items = append(order.Items, it)
	}
	return order, rows.Err()
}

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var (
		o              domain.Order
		userID         uuid.NullUUID
		couponCode     sql.NullString
		discountAmount int64
		txnID, method  sql.NullString
		captured       sql.NullInt64
		paidAt         sql.NullTime
		address        []byte
		tracking       sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.Number, &userID, &o.GuestEmail, &o.Subtotal, &couponCode, &discountAmount, &o.Total, &o.Currency,
		&o.Status, &o.PaymentStatus, &txnID, &method, &captured, &paidAt,
		&address, &tracking, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		u := userID.UUID
		o.UserID = &u
	}
	if couponCode.Valid {
		o.Discount = &domain.Discount{Code: couponCode.String, Amount: discountAmount}
	}
	if txnID.Valid {
		o.Payment = &domain.PaymentDetail{
			TransactionID:  txnID.String,
			Method:         method.String,
			AmountCaptured: captured.Int64,
			PaidAt:         paidAt.Time,
		}
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	if tracking.Valid {
		t := tracking.String
		o.TrackingNumber = &t
	}
	return &o, nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	var coupon sql.NullString
	if order.Discount != nil {
		coupon = sql.NullString{String: order.Discount.Code, Valid: true}
	}

	db := conn(r.db, tx)
	_, err = db.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, guest_email, subtotal, coupon_code, discount_amount, total,
			currency, status, payment_status, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		order.ID, order.Number, nullUUID(order.UserID), order.GuestEmail, order.Subtotal, coupon, order.DiscountAmount(),
		order.Total, order.Currency, order.Status, order.PaymentStatus, address, order.CreatedAt, order.UpdatedAt,
	)
	if isUniqueViolation(err, "orders_order_number_key") {
		return domain.ErrOrderNumberTaken
	}
	if err != nil {
		return err
	}

	for i, it := range order.Items {
		_, err := db.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, variant_id, name, quantity, unit_price, digital)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			order.ID, i, it.ProductID, nullUUID(it.VariantID), it.Name, it.Quantity, it.UnitPrice, it.Digital,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRepo) UpdateFulfillment(ctx context.Context, tx *sql.Tx, order *domain.Order, prevStatus domain.OrderStatus, prevPayment domain.PaymentStatus) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, tracking_number = $3, updated_at = $4
		WHERE id = $5 AND status = $6 AND payment_status = $7`,
		order.Status, order.PaymentStatus, order.TrackingNumber, order.UpdatedAt, order.ID, prevStatus, prevPayment,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *orderRepo) MarkPaid(ctx context.Context, tx *sql.Tx, id uuid.UUID, detail domain.PaymentDetail) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'paid', status = 'processing',
		    transaction_id = $2, payment_method = $3, amount_captured = $4, paid_at = $5, updated_at = $5
		WHERE id = $1
		  AND payment_status IN ('pending', 'failed')
		  AND status IN ('pending_payment', 'processing')`,
		id, detail.TransactionID, detail.Method, detail.AmountCaptured, detail.PaidAt,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *orderRepo) MarkPaymentFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE orders SET payment_status = 'failed', updated_at = $2
		WHERE id = $1 AND payment_status = 'pending'`,
		id, time.Now(),
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *orderRepo) Cancel(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE orders SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND payment_status IN ('pending', 'failed') AND status IN ('pending_payment', 'processing')`,
		id, time.Now(),
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *orderRepo) CountCouponUses(ctx context.Context, userID uuid.UUID, code string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM orders
		WHERE user_id = $1 AND coupon_code = $2 AND payment_status IN ('paid', 'pending')`,
		userID, code,
	).Scan(&n)
	return n, err
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
