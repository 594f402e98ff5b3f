package db

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

type DiscountKind string

const (
	DiscountKindPercentage  DiscountKind = "percentage"
	DiscountKindFixedAmount DiscountKind = "fixed_amount"
)

type VoucherStatus string

const (
	VoucherStatusActive   VoucherStatus = "active"
	VoucherStatusInactive VoucherStatus = "inactive"
)

// Cart is a row of the carts table. Exactly one of UserID and AnonID is valid.
type Cart struct {
	ID                 pgtype.UUID
	UserID             pgtype.UUID
	AnonID             pgtype.Text
	AppliedVoucherCode pgtype.Text
	Subtotal           decimal.Decimal
	TaxTotal           decimal.Decimal
	DiscountTotal      decimal.Decimal
	GrandTotal         decimal.Decimal
	// Version increases with every totals write.
	Version   int64
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// CartItem is a row of cart_items. The unit columns are written once on insert.
type CartItem struct {
	ID            pgtype.UUID
	CartID        pgtype.UUID
	ProductID     pgtype.UUID
	Qty           int32
	UnitPrice     decimal.Decimal
	TaxRate       decimal.Decimal
	UnitTax       decimal.Decimal
	UnitPriceIncl decimal.Decimal
	LineSubtotal  decimal.Decimal
	LineTax       decimal.Decimal
	LineTotal     decimal.Decimal
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type Product struct {
	ID        pgtype.UUID
	Title     string
	Status    ProductStatus
	Stock     int32
	Price     decimal.Decimal
	TaxRate   decimal.Decimal
	UpdatedAt pgtype.Timestamptz
}

type Voucher struct {
	ID           pgtype.UUID
	Code         string
	Kind         DiscountKind
	Value        decimal.Decimal
	MaxDiscount  decimal.NullDecimal
	MinOrder     decimal.Decimal
	ValidFrom    pgtype.Timestamptz
	ValidTo      pgtype.Timestamptz
	UsageLimit   pgtype.Int4
	PerUserLimit pgtype.Int4
	UsedCount    int32
	Status       VoucherStatus
	CreatedAt    pgtype.Timestamptz
}

type VoucherUsage struct {
	ID        pgtype.UUID
	VoucherID pgtype.UUID
	UserID    pgtype.UUID
	OrderID   pgtype.UUID
	Amount    decimal.Decimal
	CreatedAt pgtype.Timestamptz
}
