package service

import (
	"context"
	"fmt"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/repo"
	"time"

	"github.com/google/uuid"
)

type CouponService interface {
	// Apply looks the code up and validates it against the order context.
	Apply(ctx context.Context, code string, subtotal int64, userID *uuid.UUID) (*domain.Discount, error)
	Validate(ctx context.Context, coupon *domain.Coupon, subtotal int64, userID *uuid.UUID) (*domain.Discount, error)
}

type couponService struct {
	coupons repo.CouponRepo
	orders  repo.OrderRepo
	now     func() time.Time
}

func NewCouponService(coupons repo.CouponRepo, orders repo.OrderRepo) CouponService {
	return &couponService{coupons: coupons, orders: orders, now: time.Now}
}

func (s *couponService) Apply(ctx context.Context, code string, subtotal int64, userID *uuid.UUID) (*domain.Discount, error) {
	normalized := domain.NormalizeCouponCode(code)
	if normalized == "" {
		return nil, domain.ErrCouponInvalid
	}
	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	if coupon == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCouponInvalid, normalized)
	}
	return s.Validate(ctx, coupon, subtotal, userID)
}

func (s *couponService) Validate(ctx context.Context, coupon *domain.Coupon, subtotal int64, userID *uuid.UUID) (*domain.Discount, error) {
	if err := coupon.CheckAvailable(s.now()); err != nil {
		return nil, err
	}
	if err := coupon.CheckMinimum(subtotal); err != nil {
		return nil, err
	}
	// Counting pending orders closes most double-submit races; two checkouts
	// landing at the same instant can still both pass.
	if coupon.UserLimit != nil && userID != nil {
		used, err := s.orders.CountCouponUses(ctx, *userID, coupon.Code)
		if err != nil {
			return nil, fmt.Errorf("count coupon uses: %w", err)
		}
		if used >= *coupon.UserLimit {
			return nil, domain.ErrCouponAlreadyUsed
		}
	}
	amount, err := coupon.DiscountFor(subtotal)
	if err != nil {
		return nil, err
	}
	return &domain.Discount{Code: coupon.Code, Amount: amount}, nil
}
