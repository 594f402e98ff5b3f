// Package db is the hand-written pgx query layer for carts, cart items,
// catalog products and vouchers. It follows the shape of sqlc output so
// callers can swap a Queries bound to a pool for one bound to a transaction.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// New binds the queries to the given connection.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries exposes typed statements.
type Queries struct {
	db DBTX
}

// WithTx returns a copy of the queries bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
