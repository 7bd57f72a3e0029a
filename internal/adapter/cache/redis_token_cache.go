package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/badgr-bridge/internal/token"
)

// RedisTokenCache implements token.Cache backed by Redis. Token pairs live
// here and nowhere else, so every server process sees a consistent view.
type RedisTokenCache struct {
	client redis.UniversalClient
}

var _ token.Cache = (*RedisTokenCache)(nil)

// NewRedisTokenCache constructs a Redis-backed token cache.
func NewRedisTokenCache(client redis.UniversalClient) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

// Get returns the cached value, or "" when the key is absent or expired.
func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("load token: %w", err)
	}
	return value, nil
}

// SetEx overwrites the key with a fresh TTL.
func (c *RedisTokenCache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// Delete removes the key. Missing keys are not an error.
func (c *RedisTokenCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
