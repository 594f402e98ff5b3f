package voucher

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCode is returned when the code is unknown or the voucher is not active.
	ErrInvalidCode = errors.New("voucher code invalid")
	// ErrNotYetActive is returned before the voucher's validity window opens.
	ErrNotYetActive = errors.New("voucher not yet active")
	// ErrExpired is returned after the voucher's validity window closes.
	ErrExpired = errors.New("voucher expired")
	// ErrLimitReached indicates the voucher has exhausted the global usage quota.
	ErrLimitReached = errors.New("voucher usage limit reached")
	// ErrPerCustomerLimitReached indicates the customer has used up their allowance.
	ErrPerCustomerLimitReached = errors.New("voucher per-customer usage limit reached")
	// ErrBelowMinimum indicates the subtotal is under the voucher's minimum order amount.
	ErrBelowMinimum = errors.New("voucher minimum order amount not met")
)

// Kind is the discount strategy of a voucher.
type Kind string

const (
	KindPercentage  Kind = "percentage"
	KindFixedAmount Kind = "fixed_amount"
)

// Rule captures the runtime constraints of a voucher together with the
// usage counters needed to evaluate it for one customer.
type Rule struct {
	Code        string
	Active      bool
	Kind        Kind
	Value       decimal.Decimal
	MaxDiscount *decimal.Decimal
	MinOrder    decimal.Decimal
	ValidFrom   *time.Time
	ValidTo     *time.Time
	UsageLimit  *int32
	UsedCount   int32

	// PerCustomerLimit is the effective allowance; zero disables the check.
	PerCustomerLimit int32
	// CustomerKnown is false for anonymous carts, which skip the per-customer check.
	CustomerKnown bool
	CustomerUses  int32
}

// Validate checks the rule against the instant and candidate subtotal
// (excluding tax). The first failing check wins.
func (r Rule) Validate(now time.Time, subtotal decimal.Decimal) error {
	if !r.Active {
		return ErrInvalidCode
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrNotYetActive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrExpired
	}
	if r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit {
		return ErrLimitReached
	}
	if r.PerCustomerLimit > 0 && r.CustomerKnown && r.CustomerUses >= r.PerCustomerLimit {
		return ErrPerCustomerLimitReached
	}
	if subtotal.LessThan(r.MinOrder) {
		return ErrBelowMinimum
	}
	return nil
}

// Discount computes the discount for a tax-exclusive subtotal. The result is
// never negative and never exceeds the subtotal; percentage vouchers are
// additionally clamped to MaxDiscount when set.
func (r Rule) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.Sign() <= 0 {
		return decimal.Zero
	}
	var raw decimal.Decimal
	switch r.Kind {
	case KindPercentage:
		raw = subtotal.Mul(r.Value).Div(decimal.NewFromInt(100)).Round(2)
		if r.MaxDiscount != nil && raw.GreaterThan(*r.MaxDiscount) {
			raw = *r.MaxDiscount
		}
	default:
		raw = r.Value
	}
	if raw.Sign() < 0 {
		return decimal.Zero
	}
	return decimal.Min(raw, subtotal)
}

// Reason maps a validation error to its wire code. Unknown errors map to "".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return "INVALID_CODE"
	case errors.Is(err, ErrNotYetActive):
		return "NOT_YET_ACTIVE"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrLimitReached):
		return "LIMIT_REACHED"
	case errors.Is(err, ErrPerCustomerLimitReached):
		return "PER_CUSTOMER_LIMIT_REACHED"
	case errors.Is(err, ErrBelowMinimum):
		return "BELOW_MINIMUM"
	default:
		return ""
	}
}

// IsRejection reports whether err is one of the voucher eligibility errors.
func IsRejection(err error) bool {
	return Reason(err) != ""
}
