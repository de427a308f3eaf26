package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZanzyTHEbar/team-pulse/internal/resilience"
)

// RedisCache stores entries in Redis so every replica sees the same views
// and the same invalidations.
type RedisCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	namespace string
	breaker   *resilience.CircuitBreaker

	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
}

// NewRedisCache creates a cache whose keys live under namespace.
// After repeated Redis failures reads and writes are skipped for a while
// and served as misses; deletes are always attempted.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, namespace string) *RedisCache {
	return &RedisCache{
		client:    client,
		ttl:       ttl,
		namespace: namespace,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  15 * time.Second,
		}),
	}
}

func (c *RedisCache) key(k string) string {
	return c.namespace + k
}

// Get retrieves an item. Redis failures are logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	var data []byte
	err := c.breaker.Call(func() error {
		var err error
		data, err = c.client.Get(ctx, c.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil || data == nil {
		if err != nil && !errors.Is(err, resilience.ErrOpen) {
			c.errors.Add(1)
			slog.Warn("Redis cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return data, true
}

// Set stores an item with the cache TTL
func (c *RedisCache) Set(ctx context.Context, key string, data []byte) {
	err := c.breaker.Call(func() error {
		return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
	})
	if err != nil && !errors.Is(err, resilience.ErrOpen) {
		c.errors.Add(1)
		slog.Warn("Redis cache set failed", "key", key, "error", err)
	}
}

// Delete removes items
func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		c.errors.Add(1)
		slog.Warn("Redis cache delete failed", "keys", keys, "error", err)
	}
}

// DeletePrefix removes every key under prefix using SCAN
func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) {
	iter := c.client.Scan(ctx, 0, c.key(prefix)+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			c.del(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.errors.Add(1)
		slog.Warn("Redis cache scan failed", "prefix", prefix, "error", err)
	}
	if len(batch) > 0 {
		c.del(ctx, batch)
	}
}

func (c *RedisCache) del(ctx context.Context, keys []string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.errors.Add(1)
		slog.Warn("Redis cache delete failed", "count", len(keys), "error", err)
	}
}

// Backend names the storage behind the cache
func (c *RedisCache) Backend() string {
	return "redis"
}

// Stats returns cache statistics
func (c *RedisCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"backend":     "redis",
		"namespace":   c.namespace,
		"hits":        c.hits.Load(),
		"misses":      c.misses.Load(),
		"errors":      c.errors.Load(),
		"ttl_seconds": c.ttl.Seconds(),
		"breaker":     c.breaker.Stats(),
	}
}
