package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a Store with a Redis read-through cache for the common
// "already done" lookup, grounded on common/mredis/redis.go's connection
// pattern. Writes always go to the underlying Store first; Redis is purely
// an accelerator and is never the source of truth.
type CachedStore struct {
	Store
	Redis *redis.Client
	TTL   time.Duration
}

func NewCachedStore(store Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &CachedStore{Store: store, Redis: client, TTL: ttl}
}

func cacheKey(handler, key string) string {
	return "idem:" + handler + ":" + key
}

// FastDoneCheck reports whether Redis believes (handler, key) already
// completed, without touching Postgres. A false negative is always safe —
// the caller falls through to the authoritative Store.Lookup.
func (c *CachedStore) FastDoneCheck(ctx context.Context, handler, key string) bool {
	val, err := c.Redis.Get(ctx, cacheKey(handler, key)).Result()
	return err == nil && val == StateDone
}

func (c *CachedStore) Complete(ctx context.Context, handler, key string) error {
	if err := c.Store.Complete(ctx, handler, key); err != nil {
		return err
	}

	// best-effort cache population; a miss here only costs a DB round trip
	// on the next duplicate delivery, never a correctness issue.
	c.Redis.Set(ctx, cacheKey(handler, key), StateDone, c.TTL)

	return nil
}
