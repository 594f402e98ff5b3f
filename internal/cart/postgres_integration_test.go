//go:build integration

package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("cart"),
		postgres.WithUsername("cart"),
		postgres.WithPassword("cart"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(url))

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func insertProduct(t *testing.T, pool *pgxpool.Pool, price, rate string, stock int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, title, price, tax_rate, stock) VALUES ($1, $2, $3::numeric, $4::numeric, $5)`,
		id, "p-"+id[:8], price, rate, stock)
	require.NoError(t, err)
	return id
}

func TestPostgresConcurrentMutationsKeepTotalsConsistent(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	svc := &Service{
		Tx:        PoolRunner{Pool: pool},
		Vouchers:  &voucher.Service{Now: time.Now},
		Allocator: pricing.BlendedRate{},
		Metrics:   obs.NewCartMetrics("integration", prometheus.NewRegistry()),
		Now:       time.Now,
	}

	kept := insertProduct(t, pool, "2.50", "10", 1000)
	churned := insertProduct(t, pool, "7.00", "7", 1000)
	cart := sessionCart(t, svc, "concurrent")

	const adders, churners = 20, 10
	var wg sync.WaitGroup
	errs := make(chan error, adders+2*churners)
	for i := 0; i < adders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, cart.ID, kept, 1)
			errs <- err
		}()
	}
	// each churner removes after its own add, so the last write is always a removal
	for i := 0; i < churners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, cart.ID, churned, 1)
			errs <- err
			_, err = svc.RemoveItem(ctx, cart.ID, churned)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := svc.Get(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.Equal(t, kept, view.Items[0].ProductID)
	require.EqualValues(t, adders, view.Items[0].Quantity)
	requireMoney(t, "50.00", view.SubtotalExclTax)
	requireMoney(t, "5.00", view.TotalTax)
	requireMoney(t, "55.00", view.Total)
	require.EqualValues(t, adders+2*churners, view.Version)

	// stored totals agree with the stored lines
	var lineSum, grand decimal.Decimal
	err = pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(i.line_total), 0)::text, c.grand_total::text
		 FROM carts c LEFT JOIN cart_items i ON i.cart_id = c.id
		 WHERE c.id = $1 GROUP BY c.grand_total`, cart.ID).Scan(&lineSum, &grand)
	require.NoError(t, err)
	require.True(t, lineSum.Equal(grand), "lines %s, cart %s", lineSum, grand)
}

func TestPostgresLineQuantityBound(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	svc := &Service{
		Tx:        PoolRunner{Pool: pool},
		Vouchers:  &voucher.Service{Now: time.Now},
		Allocator: pricing.BlendedRate{},
		Metrics:   obs.NewCartMetrics("integration", prometheus.NewRegistry()),
		Now:       time.Now,
	}
	pid := insertProduct(t, pool, "99999999.99", "10", 50000)
	cart := sessionCart(t, svc, "bound")

	_, err := svc.AddItem(ctx, cart.ID, pid, MaxLineQuantity+1)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	view, err := svc.AddItem(ctx, cart.ID, pid, 1)
	require.NoError(t, err)
	requireMoney(t, "109999999.99", view.Total)
}
