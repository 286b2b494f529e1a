package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	ID   uuid.UUID
	Code string
	Type DiscountType
	// Value is a whole percent for percentage coupons and minor units for fixed ones.
	Value           int64
	StartsAt        time.Time
	EndsAt          *time.Time
	MinimumPurchase int64
	UserLimit       *int
	Active          bool
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckAvailable enforces the active flag and the [StartsAt, EndsAt) window.
func (c *Coupon) CheckAvailable(now time.Time) error {
	if !c.Active {
		return ErrCouponInactive
	}
	if now.Before(c.StartsAt) {
		return ErrCouponNotStarted
	}
	if c.EndsAt != nil && !now.Before(*c.EndsAt) {
		return ErrCouponExpired
	}
	return nil
}

func (c *Coupon) CheckMinimum(subtotal int64) error {
	if subtotal < c.MinimumPurchase {
		return fmt.Errorf("%w: add %d more", ErrCouponMinimumNotMet, c.MinimumPurchase-subtotal)
	}
	return nil
}

// DiscountFor computes the discount in minor units, clamped to [0, subtotal].
func (c *Coupon) DiscountFor(subtotal int64) (int64, error) {
	if c.Value < 0 || subtotal < 0 {
		return 0, fmt.Errorf("%w: coupon %s value %d subtotal %d", ErrMoneyInvariant, c.Code, c.Value, subtotal)
	}
	var amount int64
	switch c.Type {
	case DiscountPercentage:
		// half-up rounding in integer arithmetic
		amount = (subtotal*c.Value + 50) / 100
	case DiscountFixed:
		amount = c.Value
	default:
		return 0, fmt.Errorf("%w: coupon %s has discount type %q", ErrMoneyInvariant, c.Code, c.Type)
	}
	return min(amount, subtotal), nil
}
