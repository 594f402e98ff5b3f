package cart

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/pricing"
)

// ItemView is the public shape of a line item.
type ItemView struct {
	ProductID        string `json:"productId"`
	Quantity         int32  `json:"quantity"`
	UnitPriceExclTax string `json:"unitPriceExclTax"`
	TaxRatePercent   string `json:"taxRatePercent"`
	UnitTaxAmount    string `json:"unitTaxAmount"`
	UnitPriceInclTax string `json:"unitPriceInclTax"`
	LineSubtotal     string `json:"lineSubtotal"`
	LineTax          string `json:"lineTax"`
	LineTotal        string `json:"lineTotal"`
}

// View is the refreshed cart returned by every operation.
type View struct {
	ID              string     `json:"id"`
	UserID          *string    `json:"userId"`
	SessionID       *string    `json:"sessionId"`
	VoucherCode     *string    `json:"voucherCode"`
	Items           []ItemView `json:"items"`
	SubtotalExclTax string     `json:"subtotalExclTax"`
	TotalTax        string     `json:"totalTax"`
	Discount        string     `json:"discount"`
	Total           string     `json:"total"`
	State           State      `json:"state"`
	Version         int64      `json:"version"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func newView(c db.Cart, items []db.CartItem) View {
	v := View{
		ID:              UUIDString(c.ID),
		UserID:          nullableUUID(c.UserID),
		SessionID:       nullableText(c.AnonID),
		VoucherCode:     nullableText(c.AppliedVoucherCode),
		Items:           make([]ItemView, 0, len(items)),
		SubtotalExclTax: money(c.Subtotal),
		TotalTax:        money(c.TaxTotal),
		Discount:        money(c.DiscountTotal),
		Total:           money(c.GrandTotal),
		State:           stateOf(c, len(items)),
		Version:         c.Version,
	}
	for _, it := range items {
		v.Items = append(v.Items, ItemView{
			ProductID:        UUIDString(it.ProductID),
			Quantity:         it.Qty,
			UnitPriceExclTax: money(it.UnitPrice),
			TaxRatePercent:   it.TaxRate.String(),
			UnitTaxAmount:    money(it.UnitTax),
			UnitPriceInclTax: money(it.UnitPriceIncl),
			LineSubtotal:     money(it.LineSubtotal),
			LineTax:          money(it.LineTax),
			LineTotal:        money(it.LineTotal),
		})
	}
	return v
}

func stateOf(c db.Cart, itemCount int) State {
	return State{
		HasItems:        itemCount > 0,
		VoucherAttached: hasVoucher(c),
	}
}

func hasVoucher(c db.Cart) bool {
	return c.AppliedVoucherCode.Valid && c.AppliedVoucherCode.String != ""
}

func snapshotOf(it db.CartItem) pricing.Snapshot {
	return pricing.Snapshot{
		UnitPriceExcl: it.UnitPrice,
		TaxRate:       it.TaxRate,
		UnitTax:       it.UnitTax,
		UnitPriceIncl: it.UnitPriceIncl,
	}
}

func nullableText(v pgtype.Text) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func nullableUUID(v pgtype.UUID) *string {
	if !v.Valid {
		return nil
	}
	s := UUIDString(v)
	return &s
}
