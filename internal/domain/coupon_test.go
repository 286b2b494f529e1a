package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCouponDiscountFor(t *testing.T) {
	cases := []struct {
		name     string
		coupon   Coupon
		subtotal int64
		want     int64
	}{
		{"ten percent", Coupon{Type: DiscountPercentage, Value: 10}, 10000, 1000},
		{"percent of zero", Coupon{Type: DiscountPercentage, Value: 10}, 0, 0},
		{"percent rounds half up", Coupon{Type: DiscountPercentage, Value: 15}, 1010, 152},
		{"percent over hundred clamps", Coupon{Type: DiscountPercentage, Value: 150}, 4000, 4000},
		{"fixed below subtotal", Coupon{Type: DiscountFixed, Value: 500}, 4000, 500},
		{"fixed clamps to subtotal", Coupon{Type: DiscountFixed, Value: 5000}, 4000, 4000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.coupon.DiscountFor(tc.subtotal)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, got, tc.subtotal)
		})
	}
}

func TestCouponDiscountForNegativeValue(t *testing.T) {
	c := Coupon{Code: "BAD", Type: DiscountFixed, Value: -1}
	_, err := c.DiscountFor(100)
	require.ErrorIs(t, err, ErrMoneyInvariant)
}

func TestCouponCheckAvailable(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := now.Add(24 * time.Hour)

	c := Coupon{Active: true, StartsAt: now.Add(-time.Hour), EndsAt: &end}
	require.NoError(t, c.CheckAvailable(now))

	require.ErrorIs(t, c.CheckAvailable(now.Add(-2*time.Hour)), ErrCouponNotStarted)
	require.ErrorIs(t, c.CheckAvailable(end), ErrCouponExpired)

	c.EndsAt = nil
	require.NoError(t, c.CheckAvailable(now.Add(1000*time.Hour)))

	c.Active = false
	require.ErrorIs(t, c.CheckAvailable(now), ErrCouponInactive)
}

func TestCouponCheckMinimum(t *testing.T) {
	c := Coupon{MinimumPurchase: 5000}
	require.NoError(t, c.CheckMinimum(5000))
	err := c.CheckMinimum(3500)
	require.ErrorIs(t, err, ErrCouponMinimumNotMet)
	assert.Contains(t, err.Error(), "add 1500 more")
}

func TestNormalizeCouponCode(t *testing.T) {
	assert.Equal(t, "SUMMER10", NormalizeCouponCode("  summer10 "))
}
