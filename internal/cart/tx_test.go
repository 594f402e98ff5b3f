package cart

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		{fmt.Errorf("lock cart: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), true},
		{&pgconn.PgError{Code: pgerrcode.UniqueViolation}, false},
		{errors.New("plain"), false},
		{ErrOutOfStock, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, retryable(tc.err), "%v", tc.err)
	}
}

func TestPoolRunnerRequiresPool(t *testing.T) {
	err := PoolRunner{}.RunInTx(context.Background(), func(Querier) error { return nil })
	require.EqualError(t, err, "cart: database pool not configured")
}
