package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const window = time.Minute

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Compile-time check to ensure RedisLimiter implements Limiter
var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter is a fixed one-minute window counter per key. Redis errors
// fail open.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	now    func() time.Time
	log    zerolog.Logger
}

func NewRedisLimiter(client *redis.Client, perMinute int, log zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(perMinute),
		now:    time.Now,
		log:    log.With().Str("component", "ratelimit").Logger(),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	k := fmt.Sprintf("ratelimit:%s:%d", key, l.now().Unix()/int64(window.Seconds()))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
		return true, err
	}
	return incr.Val() <= l.limit, nil
}

func (l *RedisLimiter) Close() error { return l.client.Close() }

// Nop allows everything.
type Nop struct{}

func (Nop) Allow(context.Context, string) (bool, error) { return true, nil }
