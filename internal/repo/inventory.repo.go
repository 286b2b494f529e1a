package repo

import (
	"context"
	"database/sql"
	"fmt"
	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
)

// InventoryRepo is the inventory ledger. Both operations are single conditional
// statements; callers never read stock before writing it.
type InventoryRepo interface {
	Reserve(ctx context.Context, tx *sql.Tx, productID uuid.UUID, variantID *uuid.UUID, qty int) error
	Release(ctx context.Context, tx *sql.Tx, productID uuid.UUID, variantID *uuid.UUID, qty int) error
}

type inventoryRepo struct {
	db *sql.DB
}

func NewInventoryRepo(db *sql.DB) InventoryRepo {
	return &inventoryRepo{db: db}
}

func (r *inventoryRepo) Reserve(ctx context.Context, tx *sql.Tx, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	var (
		res sql.Result
		err error
	)
	if variantID != nil {
		res, err = conn(r.db, tx).ExecContext(ctx, `
			UPDATE product_variants SET stock_quantity = stock_quantity - $1
			WHERE id = $2 AND product_id = $3 AND stock_quantity >= $1`,
			qty, *variantID, productID)
	} else {
		res, err = conn(r.db, tx).ExecContext(ctx, `
			UPDATE products SET stock_quantity = stock_quantity - $1
			WHERE id = $2 AND stock_quantity >= $1`,
			qty, productID)
	}
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *inventoryRepo) Release(ctx context.Context, tx *sql.Tx, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	var err error
	if variantID != nil {
		_, err = conn(r.db, tx).ExecContext(ctx, `
			UPDATE product_variants SET stock_quantity = stock_quantity + $1
			WHERE id = $2 AND product_id = $3`,
			qty, *variantID, productID)
	} else {
		_, err = conn(r.db, tx).ExecContext(ctx, `
			UPDATE products SET stock_quantity = stock_quantity + $1 WHERE id = $2`,
			qty, productID)
	}
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}
