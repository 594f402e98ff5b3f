package voucher

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateOrder(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	limit := int32(5)

	base := Rule{Active: true, Kind: KindFixedAmount, Value: dec("10"), MinOrder: dec("100")}

	cases := []struct {
		name  string
		mut   func(r *Rule)
		total string
		want  error
	}{
		{"ok", func(r *Rule) {}, "150", nil},
		{"inactive wins over everything", func(r *Rule) {
			r.Active = false
			r.ValidTo = &past
		}, "10", ErrInvalidCode},
		{"not yet active before expiry check", func(r *Rule) {
			r.ValidFrom = &future
			r.UsageLimit = &limit
			r.UsedCount = 5
		}, "150", ErrNotYetActive},
		{"expired", func(r *Rule) { r.ValidTo = &past }, "150", ErrExpired},
		{"global limit before per customer", func(r *Rule) {
			r.UsageLimit = &limit
			r.UsedCount = 5
			r.PerCustomerLimit = 1
			r.CustomerKnown = true
			r.CustomerUses = 1
		}, "150", ErrLimitReached},
		{"per customer", func(r *Rule) {
			r.PerCustomerLimit = 1
			r.CustomerKnown = true
			r.CustomerUses = 1
		}, "10", ErrPerCustomerLimitReached},
		{"anonymous skips per customer", func(r *Rule) {
			r.PerCustomerLimit = 1
			r.CustomerUses = 3
		}, "150", nil},
		{"below minimum", func(r *Rule) {}, "99.99", ErrBelowMinimum},
		{"minimum is inclusive", func(r *Rule) {}, "100", nil},
		{"window bounds inclusive", func(r *Rule) {
			r.ValidFrom = &now
			r.ValidTo = &now
		}, "150", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := base
			tc.mut(&r)
			err := r.Validate(now, dec(tc.total))
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestDiscountPercentageWithCap(t *testing.T) {
	maxDiscount := dec("50")
	r := Rule{Kind: KindPercentage, Value: dec("10"), MaxDiscount: &maxDiscount}
	require.True(t, r.Discount(dec("1000")).Equal(dec("50")))
	require.True(t, r.Discount(dec("300")).Equal(dec("30")))
	require.True(t, r.Discount(dec("33.33")).Equal(dec("3.33")))
}

func TestDiscountFixedClampedToSubtotal(t *testing.T) {
	r := Rule{Kind: KindFixedAmount, Value: dec("500")}
	require.True(t, r.Discount(dec("120")).Equal(dec("120")))
	require.True(t, r.Discount(dec("2000")).Equal(dec("500")))
	require.True(t, r.Discount(decimal.Zero).IsZero())
}

func TestDiscountBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		subtotal := decimal.New(rng.Int63n(1_000_000), -2)
		var r Rule
		if rng.Intn(2) == 0 {
			r = Rule{Kind: KindPercentage, Value: decimal.NewFromInt(rng.Int63n(150))}
		} else {
			r = Rule{Kind: KindFixedAmount, Value: decimal.New(rng.Int63n(1_000_000), -2)}
		}
		d := r.Discount(subtotal)
		require.True(t, d.Sign() >= 0, "negative discount %s", d)
		require.True(t, d.LessThanOrEqual(subtotal), "discount %s over subtotal %s", d, subtotal)
	}
}

func TestReason(t *testing.T) {
	require.Equal(t, "EXPIRED", Reason(ErrExpired))
	require.Equal(t, "PER_CUSTOMER_LIMIT_REACHED", Reason(ErrPerCustomerLimitReached))
	require.Equal(t, "", Reason(errors.New("boom")))
	require.True(t, IsRejection(ErrBelowMinimum))
}
