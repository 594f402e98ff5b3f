package cart

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// driftTolerance bounds |total - (subtotal + tax)| for the pre-discount sums.
var driftTolerance = decimal.New(1, -2)

const detachEmptyCart = "EMPTY_CART"

func linesOf(items []db.CartItem) []pricing.Line {
	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, snapshotOf(it).Line(int(it.Qty)))
	}
	return lines
}

// recalculate derives the four cart totals from the current lines and the
// cart's voucher and writes them with the (possibly cleared) voucher code.
// It must run in the transaction that holds the cart row lock.
func (s *Service) recalculate(ctx context.Context, q Querier, c db.Cart) (Outcome, error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveRecalc(time.Since(start)) }()

	items, err := q.ListCartItems(ctx, c.ID)
	if err != nil {
		return Outcome{}, err
	}
	lines := linesOf(items)
	base := pricing.Aggregate(lines)
	if drift := base.Drift(); drift.GreaterThan(driftTolerance) {
		s.Logger.Warn().
			Str("cart_id", UUIDString(c.ID)).
			Str("drift", drift.String()).
			Msg("cart line totals drifted from subtotal plus tax")
	}

	out := Outcome{Before: stateOf(c, len(items)), Totals: base}
	code := c.AppliedVoucherCode
	if out.Before.VoucherAttached {
		reason, totals, err := s.applyAttached(ctx, q, c, lines, base)
		if err != nil {
			return Outcome{}, err
		}
		if reason != "" {
			out.DetachReason = reason
			code = pgtype.Text{}
		} else {
			out.Totals = totals
		}
	}

	previous := c.AppliedVoucherCode.String
	c.AppliedVoucherCode = code
	out.After = stateOf(c, len(items))
	if out.VoucherDetached() {
		s.Metrics.VoucherDetachedInc(out.DetachReason)
		s.Logger.Info().
			Str("cart_id", UUIDString(c.ID)).
			Str("voucher", previous).
			Str("reason", out.DetachReason).
			Msg("voucher detached during recalculation")
	}
	err = q.UpdateCartTotals(ctx, db.UpdateCartTotalsParams{
		ID:                 c.ID,
		AppliedVoucherCode: code,
		Subtotal:           out.Totals.SubtotalExclTax,
		TaxTotal:           out.Totals.TotalTax,
		DiscountTotal:      out.Totals.Discount,
		GrandTotal:         out.Totals.Total,
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// applyAttached re-validates the attached voucher. It returns a non-empty
// reason when the voucher must be detached, otherwise the discounted totals.
func (s *Service) applyAttached(ctx context.Context, q Querier, c db.Cart, lines []pricing.Line, base pricing.Totals) (string, pricing.Totals, error) {
	if len(lines) == 0 {
		return detachEmptyCart, base, nil
	}
	eval, err := s.vouchers(q).Evaluate(ctx, c.AppliedVoucherCode.String, c.UserID, base.SubtotalExclTax)
	if err != nil {
		if voucher.IsRejection(err) {
			return voucher.Reason(err), base, nil
		}
		return "", base, err
	}
	return "", s.allocator().Allocate(lines, base, eval.Discount), nil
}
