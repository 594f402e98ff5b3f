package cart

import "github.com/noah-isme/toko-cart/internal/pricing"

// State is the cart's two orthogonal flags. A cart moves between empty and
// populated through item mutations; the voucher flag is set by apply and
// cleared by remove, clear, or self-detachment during recalculation.
type State struct {
	HasItems        bool `json:"hasItems"`
	VoucherAttached bool `json:"voucherAttached"`
}

// Outcome describes the result of one recalculation.
type Outcome struct {
	Before State
	After  State
	Totals pricing.Totals
	// DetachReason is the voucher rejection code that caused a detachment.
	DetachReason string
}

// VoucherDetached reports whether recalculation dropped a previously attached voucher.
func (o Outcome) VoucherDetached() bool {
	return o.Before.VoucherAttached && !o.After.VoucherAttached && o.DetachReason != ""
}
