package security

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoBody(t *testing.T, captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		*captured = string(data)
		w.WriteHeader(http.StatusOK)
	})
}

func TestBodyLimitAllowsWithinLimit(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 32}.Middleware(echoBody(t, &captured))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/carts/x/items", strings.NewReader(`{"quantity":2}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"quantity":2}`, captured)
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 5}.Middleware(echoBody(t, &captured))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts", strings.NewReader("excessive"))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Empty(t, captured)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "PAYLOAD_TOO_LARGE", body.Error.Code)
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 5}.Middleware(echoBody(t, &captured))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts", strings.NewReader("abc"))
	req.ContentLength = 100
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
