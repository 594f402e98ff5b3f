package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter counts one event for key and decides whether it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Fixed is a fixed-window limiter backed by ulule/limiter.
type Fixed struct {
	L *limiter.Limiter
}

// Allow implements Limiter.
func (f Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := f.L.Get(ctx, key)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		Reset:     time.Unix(lctx.Reset, 0),
	}, nil
}

// NewRedisStore returns a ulule store sharing the application's Redis client.
func NewRedisStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "cart_rl"})
}

// New builds a Limiter for a formatted rate such as "120-M". strategy picks
// "sliding" (Redis sorted sets) or the default fixed window.
func New(strategy, formatted string, store limiter.Store, rdb *redis.Client) (Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "sliding":
		return Sliding{Client: rdb, Prefix: "cart_rl_sw:", Window: rate.Period, Max: int(rate.Limit)}, nil
	default:
		if store == nil {
			return nil, fmt.Errorf("fixed window limiter requires a store")
		}
		return Fixed{L: limiter.New(store, rate)}, nil
	}
}
