package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, title, status, stock, price, tax_rate, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p           Product
		price, rate pgtype.Numeric
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Status, &p.Stock, &price, &rate, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	p.Price = Decimal(price)
	p.TaxRate = Decimal(rate)
	return p, nil
}

const getProduct = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

func (q *Queries) GetProduct(ctx context.Context, id pgtype.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const getProductForShare = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR SHARE`

// GetProductForShare blocks concurrent stock updates for the rest of the transaction.
func (q *Queries) GetProductForShare(ctx context.Context, id pgtype.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProductForShare, id))
}
