package pricing

import "github.com/shopspring/decimal"

// Totals are the four cart-level monetary aggregates.
type Totals struct {
	SubtotalExclTax decimal.Decimal
	TotalTax        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
}

// Zero reports whether every component is zero.
func (t Totals) Zero() bool {
	return t.SubtotalExclTax.IsZero() && t.TotalTax.IsZero() && t.Discount.IsZero() && t.Total.IsZero()
}

// Aggregate sums already-rounded line values. The returned totals carry no
// discount; Total is the sum of line totals.
func Aggregate(lines []Line) Totals {
	out := Totals{
		SubtotalExclTax: decimal.Zero,
		TotalTax:        decimal.Zero,
		Discount:        decimal.Zero,
		Total:           decimal.Zero,
	}
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		out.SubtotalExclTax = out.SubtotalExclTax.Add(l.LineSubtotal)
		out.TotalTax = out.TotalTax.Add(l.LineTax)
		out.Total = out.Total.Add(l.LineTotal)
	}
	return out
}

// Drift returns |Total - (SubtotalExclTax + TotalTax)|.
func (t Totals) Drift() decimal.Decimal {
	return t.Total.Sub(t.SubtotalExclTax.Add(t.TotalTax)).Abs()
}

// DiscountAllocator re-derives tax and grand total once a discount is known.
type DiscountAllocator interface {
	Allocate(lines []Line, base Totals, discount decimal.Decimal) Totals
}

// BlendedRate applies the discount against the subtotal and recomputes tax
// with the subtotal-weighted average rate of the cart.
type BlendedRate struct {
	// ZeroSubtotalRate is used as the blended rate when the subtotal is zero.
	ZeroSubtotalRate decimal.Decimal
}

// Rate returns the blended rate in percent for the pre-discount totals.
func (b BlendedRate) Rate(base Totals) decimal.Decimal {
	if base.SubtotalExclTax.IsZero() {
		return b.ZeroSubtotalRate
	}
	return base.TotalTax.Div(base.SubtotalExclTax).Mul(hundred)
}

// Allocate implements DiscountAllocator.
func (b BlendedRate) Allocate(_ []Line, base Totals, discount decimal.Decimal) Totals {
	discount = clampDiscount(discount, base.SubtotalExclTax)
	discounted := base.SubtotalExclTax.Sub(discount)
	tax := Round2(discounted.Mul(b.Rate(base)).Div(hundred))
	return Totals{
		SubtotalExclTax: base.SubtotalExclTax,
		TotalTax:        tax,
		Discount:        discount,
		Total:           Round2(discounted.Add(tax)),
	}
}

// ProRata spreads the discount over lines in proportion to their subtotal and
// derives tax per line at the line's own rate. The last line absorbs the
// rounding remainder so the shares always sum to the discount.
type ProRata struct{}

// Allocate implements DiscountAllocator.
func (ProRata) Allocate(lines []Line, base Totals, discount decimal.Decimal) Totals {
	discount = clampDiscount(discount, base.SubtotalExclTax)
	out := Totals{
		SubtotalExclTax: base.SubtotalExclTax,
		TotalTax:        decimal.Zero,
		Discount:        discount,
	}
	if base.SubtotalExclTax.IsZero() {
		out.Total = decimal.Zero
		return out
	}
	active := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Qty > 0 && l.LineSubtotal.Sign() > 0 {
			active = append(active, l)
		}
	}
	remaining := discount
	for i, l := range active {
		share := remaining
		if i < len(active)-1 {
			share = Round2(discount.Mul(l.LineSubtotal).Div(base.SubtotalExclTax))
			if share.GreaterThan(remaining) {
				share = remaining
			}
		}
		remaining = remaining.Sub(share)
		net := l.LineSubtotal.Sub(share)
		out.TotalTax = out.TotalTax.Add(Round2(net.Mul(l.TaxRate).Div(hundred)))
	}
	out.Total = Round2(base.SubtotalExclTax.Sub(discount).Add(out.TotalTax))
	return out
}

func clampDiscount(discount, subtotal decimal.Decimal) decimal.Decimal {
	if discount.Sign() < 0 {
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}

// AllocatorByName resolves a configured allocation strategy. Unknown names
// fall back to the blended rate.
func AllocatorByName(name string, zeroSubtotalRate decimal.Decimal) DiscountAllocator {
	switch name {
	case "prorata", "pro-rata", "pro_rata":
		return ProRata{}
	default:
		return BlendedRate{ZeroSubtotalRate: zeroSubtotalRate}
	}
}
