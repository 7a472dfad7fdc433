package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maisondore/newsletter/internal/pkg/logger"
)

const generationKey = "newsletter:cache:gen"

// RedisCache stores listings in Redis under generation-prefixed keys.
// InvalidateAll bumps the generation counter, which makes every existing
// key unreachable; the short TTL reaps the orphans.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed cache over an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "newsletter:cache"}
}

func (c *RedisCache) key(ctx context.Context, key string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, key), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	fullKey, err := c.key(ctx, key)
	if err != nil {
		logger.Warn("cache: redis generation read failed", "error", err)
		return nil, false
	}
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("cache: redis get failed", "error", err)
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	fullKey, err := c.key(ctx, key)
	if err != nil {
		logger.Warn("cache: redis generation read failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, fullKey, value, ttl).Err(); err != nil {
		logger.Warn("cache: redis set failed", "error", err)
	}
}

func (c *RedisCache) InvalidateAll(ctx context.Context) {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		logger.Warn("cache: redis invalidate failed", "error", err)
	}
}
