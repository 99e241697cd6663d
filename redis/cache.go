package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values and monotonically increasing version counters.
// Readers embed the version of a scope in their cache key, so bumping the
// version invalidates every value of the scope without scanning keys.
type Cache struct {
	client *redis.Client
	prefix string
}

func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get decodes the value at key into dest. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), raw, ttl).Err()
}

// GetVersion returns the current version of a scope, 0 when never bumped or
// when redis fails.
func (c *Cache) GetVersion(ctx context.Context, versionKey string) int64 {
	if c == nil || c.client == nil {
		return 0
	}
	v, err := c.client.Get(ctx, c.key(versionKey)).Int64()
	if err != nil {
		return 0
	}
	return v
}

// IncrementVersion bumps the version of a scope.
func (c *Cache) IncrementVersion(ctx context.Context, versionKey string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Incr(ctx, c.key(versionKey))
}
