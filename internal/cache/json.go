package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-cart/internal/resilience"
)

// JSON stores JSON documents in Redis under a fixed TTL. A nil *JSON or one
// without a client is a valid no-op cache.
type JSON struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *resilience.Breaker
}

// NewJSON constructs a cache helper. A non-positive ttl disables writes.
func NewJSON(client *redis.Client, ttl time.Duration) *JSON {
	return &JSON{client: client, ttl: ttl}
}

// WithBreaker guards reads and writes with b. While the breaker is open the
// cache behaves as if it were empty.
func (c *JSON) WithBreaker(b *resilience.Breaker) *JSON {
	c.breaker = b
	return c
}

func (c *JSON) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get unmarshals the cached document into dst and reports whether the key existed.
func (c *JSON) Get(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" || !c.breaker.Allow(ctx) {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.breaker.Report(ctx, nil)
		return false, nil
	}
	c.breaker.Report(ctx, err)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set serialises v and stores it with the configured TTL.
func (c *JSON) Set(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.breaker.Allow(ctx) {
		return nil
	}
	err = c.client.Set(ctx, key, data, c.ttl).Err()
	c.breaker.Report(ctx, err)
	return err
}

// Delete drops the given keys. Invalidation bypasses the breaker.
func (c *JSON) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
