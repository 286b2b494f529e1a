package memory

import (
	"context"
	"database/sql"
	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
)

type inventoryRepo struct {
	s *Store
}

// stock returns a pointer to the stored quantity for the unit. Callers hold the lock.
func (r *inventoryRepo) stock(productID uuid.UUID, variantID *uuid.UUID) *int {
	p, ok := r.s.products[productID]
	if !ok {
		return nil
	}
	if variantID == nil {
		return &p.StockQuantity
	}
	for i := range p.Variants {
		if p.Variants[i].ID == *variantID {
			return &p.Variants[i].StockQuantity
		}
	}
	return nil
}

func (r *inventoryRepo) Reserve(ctx context.Context, tx *sql.Tx, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stock := r.stock(productID, variantID)
	if stock == nil || *stock < qty {
		return domain.ErrInsufficientStock
	}
	*stock -= qty
	return nil
}

func (r *inventoryRepo) Release(ctx context.Context, tx *sql.Tx, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if stock := r.stock(productID, variantID); stock != nil {
		*stock += qty
	}
	return nil
}

type productRepo struct {
	s *Store
}

func (r *productRepo) FindProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	return cloneProduct(p), nil
}

type couponRepo struct {
	s *Store
}

func (r *couponRepo) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.coupons[domain.NormalizeCouponCode(code)]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}
