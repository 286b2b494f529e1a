package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Allow counts one hit against key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// redisLimiter is a fixed-window counter shared by every instance of the service.
type redisLimiter struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb redis.UniversalClient, prefix string, limit int, window time.Duration) Limiter {
	return &redisLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := fmt.Sprintf("%s:%s:%d", l.prefix, key, time.Now().UnixNano()/int64(l.window))

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(l.limit), nil
}

type noLimit struct{}

// NewNoLimit disables rate limiting; used when no Redis is configured.
func NewNoLimit() Limiter { return noLimit{} }

func (noLimit) Allow(ctx context.Context, key string) (bool, error) { return true, nil }
