package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const cartItemColumns = `id, cart_id, product_id, qty, unit_price, tax_rate, unit_tax, unit_price_incl, line_subtotal, line_tax, line_total, created_at, updated_at`

func scanCartItem(row pgx.Row) (CartItem, error) {
	var (
		it                                 CartItem
		unitPrice, rate, unitTax, unitIncl pgtype.Numeric
		lineSubtotal, lineTax, lineTotal   pgtype.Numeric
	)
	err := row.Scan(
		&it.ID,
		&it.CartID,
		&it.ProductID,
		&it.Qty,
		&unitPrice,
		&rate,
		&unitTax,
		&unitIncl,
		&lineSubtotal,
		&lineTax,
		&lineTotal,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return CartItem{}, err
	}
	it.UnitPrice = Decimal(unitPrice)
	it.TaxRate = Decimal(rate)
	it.UnitTax = Decimal(unitTax)
	it.UnitPriceIncl = Decimal(unitIncl)
	it.LineSubtotal = Decimal(lineSubtotal)
	it.LineTax = Decimal(lineTax)
	it.LineTotal = Decimal(lineTotal)
	return it, nil
}

const listCartItems = `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 ORDER BY created_at, id`

func (q *Queries) ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]CartItem, error) {
	rows, err := q.db.Query(ctx, listCartItems, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const findCartItemByProduct = `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 AND product_id = $2`

type FindCartItemByProductParams struct {
	CartID    pgtype.UUID
	ProductID pgtype.UUID
}

func (q *Queries) FindCartItemByProduct(ctx context.Context, arg FindCartItemByProductParams) (CartItem, error) {
	return scanCartItem(q.db.QueryRow(ctx, findCartItemByProduct, arg.CartID, arg.ProductID))
}

const createCartItem = `INSERT INTO cart_items (
    cart_id, product_id, qty, unit_price, tax_rate, unit_tax, unit_price_incl, line_subtotal, line_tax, line_total
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + cartItemColumns

type CreateCartItemParams struct {
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
}

func (q *Queries) CreateCartItem(ctx context.Context, arg CreateCartItemParams) (CartItem, error) {
	return scanCartItem(q.db.QueryRow(ctx, createCartItem,
		arg.CartID,
		arg.ProductID,
		arg.Qty,
		Numeric(arg.UnitPrice),
		Numeric(arg.TaxRate),
		Numeric(arg.UnitTax),
		Numeric(arg.UnitPriceIncl),
		Numeric(arg.LineSubtotal),
		Numeric(arg.LineTax),
		Numeric(arg.LineTotal),
	))
}

// Unit columns are deliberately absent: the price snapshot never changes.
const updateCartItemQty = `UPDATE cart_items
SET qty = $2, line_subtotal = $3, line_tax = $4, line_total = $5, updated_at = now()
WHERE id = $1
RETURNING ` + cartItemColumns

type UpdateCartItemQtyParams struct {
	ID           pgtype.UUID
	Qty          int32
	LineSubtotal decimal.Decimal
	LineTax      decimal.Decimal
	LineTotal    decimal.Decimal
}

func (q *Queries) UpdateCartItemQty(ctx context.Context, arg UpdateCartItemQtyParams) (CartItem, error) {
	return scanCartItem(q.db.QueryRow(ctx, updateCartItemQty,
		arg.ID,
		arg.Qty,
		Numeric(arg.LineSubtotal),
		Numeric(arg.LineTax),
		Numeric(arg.LineTotal),
	))
}

const deleteCartItem = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

type DeleteCartItemParams struct {
	CartID    pgtype.UUID
	ProductID pgtype.UUID
}

func (q *Queries) DeleteCartItem(ctx context.Context, arg DeleteCartItemParams) error {
	_, err := q.db.Exec(ctx, deleteCartItem, arg.CartID, arg.ProductID)
	return err
}

const deleteCartItems = `DELETE FROM cart_items WHERE cart_id = $1`

func (q *Queries) DeleteCartItems(ctx context.Context, cartID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteCartItems, cartID)
	return err
}
