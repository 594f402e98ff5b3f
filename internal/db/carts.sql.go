package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const cartColumns = `id, user_id, anon_id, applied_voucher_code, subtotal, tax_total, discount_total, grand_total, version, created_at, updated_at`

func scanCart(row pgx.Row) (Cart, error) {
	var (
		c                                 Cart
		subtotal, tax, discount, grandTot pgtype.Numeric
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.AnonID,
		&c.AppliedVoucherCode,
		&subtotal,
		&tax,
		&discount,
		&grandTot,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Cart{}, err
	}
	c.Subtotal = Decimal(subtotal)
	c.TaxTotal = Decimal(tax)
	c.DiscountTotal = Decimal(discount)
	c.GrandTotal = Decimal(grandTot)
	return c, nil
}

const getCartByID = `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`

func (q *Queries) GetCartByID(ctx context.Context, id pgtype.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getCartByID, id))
}

const getCartByIDForUpdate = `SELECT ` + cartColumns + ` FROM carts WHERE id = $1 FOR UPDATE`

// GetCartByIDForUpdate locks the cart row until the surrounding transaction ends.
func (q *Queries) GetCartByIDForUpdate(ctx context.Context, id pgtype.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getCartByIDForUpdate, id))
}

const getCartVersion = `SELECT version FROM carts WHERE id = $1`

// GetCartVersion returns the cart's write counter without loading its items.
func (q *Queries) GetCartVersion(ctx context.Context, id pgtype.UUID) (int64, error) {
	var v int64
	err := q.db.QueryRow(ctx, getCartVersion, id).Scan(&v)
	return v, err
}

const getCartByUser = `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`

func (q *Queries) GetCartByUser(ctx context.Context, userID pgtype.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getCartByUser, userID))
}

const getCartByAnon = `SELECT ` + cartColumns + ` FROM carts WHERE anon_id = $1`

func (q *Queries) GetCartByAnon(ctx context.Context, anonID pgtype.Text) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getCartByAnon, anonID))
}

const createCart = `INSERT INTO carts (user_id, anon_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING
RETURNING ` + cartColumns

type CreateCartParams struct {
	UserID pgtype.UUID
	AnonID pgtype.Text
}

// CreateCart inserts a zero-state cart. It returns pgx.ErrNoRows when a cart
// for the same identity already exists.
func (q *Queries) CreateCart(ctx context.Context, arg CreateCartParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, createCart, arg.UserID, arg.AnonID))
}

const updateCartTotals = `UPDATE carts
SET applied_voucher_code = $2,
    subtotal = $3,
    tax_total = $4,
    discount_total = $5,
    grand_total = $6,
    version = version + 1,
    updated_at = now()
WHERE id = $1`

type UpdateCartTotalsParams struct {
	ID                 pgtype.UUID
	AppliedVoucherCode pgtype.Text
	Subtotal           decimal.Decimal
	TaxTotal           decimal.Decimal
	DiscountTotal      decimal.Decimal
	GrandTotal         decimal.Decimal
}

// UpdateCartTotals writes the voucher reference and the four totals in one
// statement and bumps the cart version.
func (q *Queries) UpdateCartTotals(ctx context.Context, arg UpdateCartTotalsParams) error {
	_, err := q.db.Exec(ctx, updateCartTotals,
		arg.ID,
		arg.AppliedVoucherCode,
		Numeric(arg.Subtotal),
		Numeric(arg.TaxTotal),
		Numeric(arg.DiscountTotal),
		Numeric(arg.GrandTotal),
	)
	return err
}

const deleteCart = `DELETE FROM carts WHERE id = $1`

func (q *Queries) DeleteCart(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteCart, id)
	return err
}
