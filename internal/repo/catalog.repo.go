package repo

import (
	"context"
	"database/sql"
	"storefront-checkout/internal/domain"
	"time"

	"github.com/google/uuid"
)

type ProductRepo interface {
	// FindProduct returns nil, nil when the product does not exist.
	FindProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
}

type CouponRepo interface {
	// FindByCode looks up a normalized code and returns nil, nil when absent.
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

type productRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) ProductRepo {
	return &productRepo{db: db}
}

func (r *productRepo) FindProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var (
		p       domain.Product
		maxDl   sql.NullInt64
		ttlSecs sql.NullInt64
		fileRef sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock_quantity, active, digital, file_ref, max_downloads, download_ttl_seconds
		FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.Active, &p.Digital, &fileRef, &maxDl, &ttlSecs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.FileRef = fileRef.String
	if maxDl.Valid {
		n := int(maxDl.Int64)
		p.MaxDownloads = &n
	}
	if ttlSecs.Valid {
		d := time.Duration(ttlSecs.Int64) * time.Second
		p.DownloadTTL = &d
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, name, price, stock_quantity
		FROM product_variants WHERE product_id = $1 ORDER BY name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v     domain.Variant
			price sql.NullInt64
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &price, &v.StockQuantity); err != nil {
			return nil, err
		}
		if price.Valid {
			pr := price.Int64
			v.Price = &pr
		}
		p.Variants = append(p.Variants, v)
	}
	return &p, rows.Err()
}

type couponRepo struct {
	db *sql.DB
}

func NewCouponRepo(db *sql.DB) CouponRepo {
	return &couponRepo{db: db}
}

func (r *couponRepo) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var (
		c      domain.Coupon
		endsAt sql.NullTime
		limit  sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, discount_type, discount_value, starts_at, ends_at, minimum_purchase, user_limit, active
		FROM coupons WHERE code = $1`, domain.NormalizeCouponCode(code),
	).Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.StartsAt, &endsAt, &c.MinimumPurchase, &limit, &c.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endsAt.Valid {
		t := endsAt.Time
		c.EndsAt = &t
	}
	if limit.Valid {
		n := int(limit.Int64)
		c.UserLimit = &n
	}
	return &c, nil
}
