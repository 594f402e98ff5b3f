package common_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/common"
)

func newIdem(t *testing.T) (*miniredis.Miniredis, common.Idem) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, common.Idem{R: client, TTL: time.Minute}
}

func TestIdemReplaysStoredResponse(t *testing.T) {
	_, idem := newIdem(t)
	var calls int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		common.Data(w, http.StatusCreated, map[string]string{"id": "cart-1"})
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/carts/c1/items", nil)
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		common.IdentityMiddleware(h).ServeHTTP(rec, req)
		return rec
	}

	first := do()
	require.Equal(t, http.StatusCreated, first.Code)
	second := do()
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get(common.HeaderReplayed))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestIdemInFlightConflict(t *testing.T) {
	_, idem := newIdem(t)
	started := make(chan struct{})
	release := make(chan struct{})
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("Idempotency-Key", "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-started

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Idempotency-Key", "k")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), common.CodeIdempotentReplay)

	close(release)
	<-done
}

func TestIdemServerErrorsAreNotStored(t *testing.T) {
	_, idem := newIdem(t)
	var calls int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "boom", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("Idempotency-Key", "retry")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestIdemScopedByRequester(t *testing.T) {
	_, idem := newIdem(t)
	var calls int32
	h := common.IdentityMiddleware(idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	})))
	for _, sid := range []string{"s1", "s2"} {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("Idempotency-Key", "same")
		req.Header.Set(common.HeaderSessionID, sid)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
