package common

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type ctxKey string

const (
	userIDKey    ctxKey = "identity/user-id"
	sessionIDKey ctxKey = "identity/session-id"
)

// Identity headers. Authentication happens upstream; the gateway forwards the
// verified user id in HeaderUserID.
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
	SessionCookie   = "cart_session"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithSessionID stores the anonymous session identifier on the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the anonymous session identifier from the context if present.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// IdentityMiddleware copies the caller's user and session identifiers from
// headers (or the session cookie) onto the request context.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if uid := strings.TrimSpace(r.Header.Get(HeaderUserID)); uid != "" {
			ctx = WithUserID(ctx, uid)
		}
		sid := strings.TrimSpace(r.Header.Get(HeaderSessionID))
		if sid == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				sid = strings.TrimSpace(c.Value)
			}
		}
		if sid != "" {
			ctx = WithSessionID(ctx, sid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequesterKey identifies the caller for rate limiting and idempotency
// scoping: the user id, else the session id, else the client IP.
func RequesterKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	if uid, ok := UserID(r.Context()); ok {
		return "user:" + uid
	}
	if sid, ok := SessionID(r.Context()); ok {
		return "session:" + sid
	}
	return "ip:" + ClientIP(r)
}

// ClientIP attempts to determine the real client IP address from the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		if first, _, found := strings.Cut(ip, ","); found {
			return strings.TrimSpace(first)
		}
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
