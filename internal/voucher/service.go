package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/db"
)

// Querier captures the database methods required by the voucher service.
type Querier interface {
	GetVoucherByCode(ctx context.Context, code string) (db.Voucher, error)
	GetVoucherByCodeForUpdate(ctx context.Context, code string) (db.Voucher, error)
	CountVoucherUsageByUser(ctx context.Context, arg db.CountVoucherUsageByUserParams) (int64, error)
	GetVoucherUsageByOrder(ctx context.Context, arg db.GetVoucherUsageByOrderParams) (db.VoucherUsage, error)
	InsertVoucherUsage(ctx context.Context, arg db.InsertVoucherUsageParams) error
	IncreaseVoucherUsedCount(ctx context.Context, id pgtype.UUID) error
}

// Evaluation is the outcome of a successful voucher check.
type Evaluation struct {
	Code     string
	Rule     Rule
	Discount decimal.Decimal
}

// Service evaluates vouchers against cart subtotals and records usage at checkout.
type Service struct {
	Q                   Querier
	Now                 func() time.Time
	DefaultPerUserLimit int
}

// WithQuerier returns a copy of the service bound to q, typically a transaction.
func (s *Service) WithQuerier(q Querier) *Service {
	cp := *s
	cp.Q = q
	return &cp
}

// Evaluate loads the voucher by code and validates it for the customer and
// tax-exclusive subtotal. customerID may be invalid for anonymous carts.
func (s *Service) Evaluate(ctx context.Context, code string, customerID pgtype.UUID, subtotal decimal.Decimal) (Evaluation, error) {
	if s == nil || s.Q == nil {
		return Evaluation{}, errors.New("voucher service not configured")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return Evaluation{}, ErrInvalidCode
	}
	v, err := s.Q.GetVoucherByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evaluation{}, ErrInvalidCode
		}
		return Evaluation{}, fmt.Errorf("load voucher: %w", err)
	}
	rule := RuleFromModel(v)
	rule.PerCustomerLimit = s.effectivePerUserLimit(v)
	if rule.PerCustomerLimit > 0 && customerID.Valid {
		used, err := s.Q.CountVoucherUsageByUser(ctx, db.CountVoucherUsageByUserParams{VoucherID: v.ID, UserID: customerID})
		if err != nil {
			return Evaluation{}, fmt.Errorf("count voucher usage: %w", err)
		}
		rule.CustomerKnown = true
		rule.CustomerUses = int32(used)
	}
	if err := rule.Validate(s.now(), subtotal); err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Code: v.Code, Rule: rule, Discount: rule.Discount(subtotal)}, nil
}

// Settle records voucher usage for a finalized order and bumps the global
// counter. It is idempotent per order and must run inside the checkout
// transaction; the cart engine never calls it.
func (s *Service) Settle(ctx context.Context, code string, orderID pgtype.UUID, userID pgtype.UUID, amount decimal.Decimal) error {
	if s == nil || s.Q == nil {
		return errors.New("voucher service not configured")
	}
	if strings.TrimSpace(code) == "" || !orderID.Valid {
		return nil
	}
	v, err := s.Q.GetVoucherByCodeForUpdate(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if amount.Sign() < 0 {
		amount = decimal.Zero
	}
	_, err = s.Q.GetVoucherUsageByOrder(ctx, db.GetVoucherUsageByOrderParams{VoucherID: v.ID, OrderID: orderID})
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if err := s.Q.InsertVoucherUsage(ctx, db.InsertVoucherUsageParams{
		VoucherID: v.ID,
		UserID:    userID,
		OrderID:   orderID,
		Amount:    amount,
	}); err != nil {
		return err
	}
	return s.Q.IncreaseVoucherUsedCount(ctx, v.ID)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) effectivePerUserLimit(v db.Voucher) int32 {
	if v.PerUserLimit.Valid && v.PerUserLimit.Int32 > 0 {
		return v.PerUserLimit.Int32
	}
	if s.DefaultPerUserLimit > 0 {
		return int32(s.DefaultPerUserLimit)
	}
	return 0
}

// RuleFromModel converts a stored voucher into a Rule. Per-customer fields
// are left for the caller to fill.
func RuleFromModel(v db.Voucher) Rule {
	rule := Rule{
		Code:      v.Code,
		Active:    v.Status == db.VoucherStatusActive,
		Kind:      Kind(v.Kind),
		Value:     v.Value,
		MinOrder:  v.MinOrder,
		UsedCount: v.UsedCount,
	}
	if v.MaxDiscount.Valid {
		maxDiscount := v.MaxDiscount.Decimal
		rule.MaxDiscount = &maxDiscount
	}
	if v.ValidFrom.Valid {
		from := v.ValidFrom.Time
		rule.ValidFrom = &from
	}
	if v.ValidTo.Valid {
		to := v.ValidTo.Time
		rule.ValidTo = &to
	}
	if v.UsageLimit.Valid {
		limit := v.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	return rule
}
