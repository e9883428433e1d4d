// Package cache stores generated answers so repeated questions against the
// same index generation skip the LLM.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// DefaultKeyPrefix namespaces answer keys in a shared Redis.
const DefaultKeyPrefix = "medguide:answer:"

// Ensure RedisCache implements the interface.
var _ port.AnswerCache = (*RedisCache)(nil)

// RedisCache keeps answers in Redis with a fixed TTL.
type RedisCache struct {
	redis     *goredis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis %s: %w", port.ErrBackendUnavailable, addr, err)
	}
	return newRedisCache(client, ttl, DefaultKeyPrefix), nil
}

func newRedisCache(client *goredis.Client, ttl time.Duration, prefix string) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{redis: client, ttl: ttl, keyPrefix: prefix}
}

// Get returns nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.AnnotatedAnswer, error) {
	data, err := c.redis.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		slog.Debug("answer cache miss", "key", key)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var answer domain.AnnotatedAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		slog.Warn("dropping corrupt cache entry", "key", key, "error", err)
		_ = c.redis.Del(ctx, c.keyPrefix+key).Err()
		return nil, nil
	}
	slog.Debug("answer cache hit", "key", key)
	return &answer, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, answer *domain.AnnotatedAnswer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.redis.Set(ctx, c.keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Clear removes every answer under the key prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.redis.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Warn("failed to delete cache key", "key", iter.Val(), "error", err)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}

	slog.Info("answer cache cleared", "deleted", deleted)
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
