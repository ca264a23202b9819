package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hypeindex/enhancement/internal/logger"
)

// RedisLimiter is a sliding-window limiter backed by Redis, for deployments
// where the submission limit must be shared across processes. It implements
// the same KeyLimiter interface as the in-memory Limiter.
//
// Windows are modeled as a counter with a TTL set on first increment, which
// matches the reset-after-fixed-window semantics of the in-memory limiter.
type RedisLimiter struct {
	client    *redis.Client
	prefix    string
	windowLen time.Duration
	max       int
	logger    logger.Logger
}

// NewRedisLimiter creates a Redis-backed limiter. prefix namespaces the keys
// so independent limiters on the same Redis never collide.
func NewRedisLimiter(client *redis.Client, prefix string, windowLen time.Duration, max int, log logger.Logger) *RedisLimiter {
	if windowLen <= 0 {
		windowLen = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisLimiter{
		client:    client,
		prefix:    prefix,
		windowLen: windowLen,
		max:       max,
		logger:    log,
	}
}

// Allow increments the key's counter, starting the window TTL on first use.
// Redis errors fail open: blocking all submissions on a limiter outage would
// be worse than briefly not limiting.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := l.prefix + ":" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.Warn("rate limiter redis incr failed, failing open",
			logger.String("key", key),
			logger.Error(err),
		)
		return true
	}

	if count == 1 {
		if err := l.client.PExpire(ctx, redisKey, l.windowLen).Err(); err != nil {
			l.logger.Warn("rate limiter redis expire failed",
				logger.String("key", key),
				logger.Error(err),
			)
		}
	}

	return count <= int64(l.max)
}
