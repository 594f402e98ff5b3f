package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/resilience"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// Querier is the store surface the cart engine needs inside a transaction.
type Querier interface {
	voucher.Querier

	GetCartByID(ctx context.Context, id pgtype.UUID) (db.Cart, error)
	GetCartByIDForUpdate(ctx context.Context, id pgtype.UUID) (db.Cart, error)
	GetCartVersion(ctx context.Context, id pgtype.UUID) (int64, error)
	GetCartByUser(ctx context.Context, userID pgtype.UUID) (db.Cart, error)
	GetCartByAnon(ctx context.Context, anonID pgtype.Text) (db.Cart, error)
	CreateCart(ctx context.Context, arg db.CreateCartParams) (db.Cart, error)
	UpdateCartTotals(ctx context.Context, arg db.UpdateCartTotalsParams) error
	DeleteCart(ctx context.Context, id pgtype.UUID) error

	ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]db.CartItem, error)
	FindCartItemByProduct(ctx context.Context, arg db.FindCartItemByProductParams) (db.CartItem, error)
	CreateCartItem(ctx context.Context, arg db.CreateCartItemParams) (db.CartItem, error)
	UpdateCartItemQty(ctx context.Context, arg db.UpdateCartItemQtyParams) (db.CartItem, error)
	DeleteCartItem(ctx context.Context, arg db.DeleteCartItemParams) error
	DeleteCartItems(ctx context.Context, cartID pgtype.UUID) error

	GetProduct(ctx context.Context, id pgtype.UUID) (db.Product, error)
	GetProductForShare(ctx context.Context, id pgtype.UUID) (db.Product, error)
}

// TxRunner runs fn inside one transaction. fn's error rolls everything back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Querier) error) error
}

const (
	maxTxAttempts = 3
	txRetryBase   = 10 * time.Millisecond
)

// PoolRunner runs transactions on a pgx pool. Serialization failures and
// deadlocks are retried a bounded number of times.
type PoolRunner struct {
	Pool *pgxpool.Pool
}

// RunInTx implements TxRunner.
func (p PoolRunner) RunInTx(ctx context.Context, fn func(Querier) error) error {
	if p.Pool == nil {
		return errors.New("cart: database pool not configured")
	}
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = p.runOnce(ctx, fn)
		if err == nil || !retryable(err) || attempt == maxTxAttempts {
			break
		}
		if sleepErr := resilience.Sleep(ctx, resilience.Backoff(txRetryBase, attempt, 0.2)); sleepErr != nil {
			return err
		}
	}
	if err == nil || !retryable(err) {
		return err
	}
	return fmt.Errorf("cart: transaction failed after %d attempts: %w", maxTxAttempts, err)
}

func (p PoolRunner) runOnce(ctx context.Context, fn func(Querier) error) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	if err := fn(db.New(p.Pool).WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	}
	return false
}
