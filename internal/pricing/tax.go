package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to two decimal places.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// ComputeTax returns the tax amount and the tax-inclusive price for a
// tax-exclusive price and a percentage rate. Both results are rounded at the
// point of derivation.
func ComputeTax(priceExcl, ratePercent decimal.Decimal) (taxAmount, priceIncl decimal.Decimal) {
	taxAmount = Round2(priceExcl.Mul(ratePercent).Div(hundred))
	priceIncl = Round2(priceExcl.Add(taxAmount))
	return taxAmount, priceIncl
}

// Snapshot is the unit price/tax captured when a product first enters a cart.
type Snapshot struct {
	UnitPriceExcl decimal.Decimal
	TaxRate       decimal.Decimal
	UnitTax       decimal.Decimal
	UnitPriceIncl decimal.Decimal
}

// NewSnapshot captures the unit values for a catalog price and tax rate.
func NewSnapshot(priceExcl, ratePercent decimal.Decimal) Snapshot {
	priceExcl = Round2(priceExcl)
	tax, incl := ComputeTax(priceExcl, ratePercent)
	return Snapshot{
		UnitPriceExcl: priceExcl,
		TaxRate:       ratePercent,
		UnitTax:       tax,
		UnitPriceIncl: incl,
	}
}

// Line is a snapshot multiplied out by quantity.
type Line struct {
	Snapshot
	Qty          int
	LineSubtotal decimal.Decimal
	LineTax      decimal.Decimal
	LineTotal    decimal.Decimal
}

// Line derives the line totals for qty units of the snapshot.
func (s Snapshot) Line(qty int) Line {
	q := decimal.NewFromInt(int64(qty))
	return Line{
		Snapshot:     s,
		Qty:          qty,
		LineSubtotal: Round2(s.UnitPriceExcl.Mul(q)),
		LineTax:      Round2(s.UnitTax.Mul(q)),
		LineTotal:    Round2(s.UnitPriceIncl.Mul(q)),
	}
}
