package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ViewCache is a JSON-backed Redis cache for read projections of type T.
// A zero TTL keeps keys until they are deleted.
type ViewCache[T any] struct {
	client *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewViewCache[T any](client *goredis.Client, ttl time.Duration, logger *slog.Logger) *ViewCache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewCache[T]{client: client, ttl: ttl, logger: logger}
}

// Get returns (nil, false) on a miss, a Redis error or an undecodable value.
func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.WarnContext(ctx, "view cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.WarnContext(ctx, "view cache entry undecodable", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	return &v, true
}

// Set stores value under key. Failures are logged, never returned: a missed
// cache write only costs a later store read.
func (c *ViewCache[T]) Set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.ErrorContext(ctx, "view cache marshal failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "view cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (c *ViewCache[T]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.WarnContext(ctx, "view cache delete failed", slog.String("key", key), slog.Any("error", err))
	}
}
