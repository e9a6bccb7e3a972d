// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the Redis-backed limiter used when several replicas
// share one budget per caller.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the caller's counter and starts the window on
// the first hit. It returns 1 while the count is within the limit.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

// RedisRateLimiter is a fixed-window limiter shared by every replica through
// Redis. When Redis cannot be reached the request is let through.
type RedisRateLimiter struct {
	rdb     redis.Scripter
	limit   int
	window  time.Duration
	prefix  string
	keyFn   KeyFunc
	timeout time.Duration
}

// NewRedisRateLimiter allows limit requests per window per key.
func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, keyFn KeyFunc) *RedisRateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if keyFn == nil {
		keyFn = KeyByActorOrIP()
	}
	return &RedisRateLimiter{
		rdb:     rdb,
		limit:   limit,
		window:  window,
		prefix:  "nutrichat:ratelimit:",
		keyFn:   keyFn,
		timeout: 200 * time.Millisecond,
	}
}

// Allow reports whether key still has budget in the current window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()
	n, err := fixedWindowScript.Run(ctx, rl.rdb, []string{rl.prefix + key}, rl.limit, rl.window.Milliseconds()).Int()
	if err != nil {
		return true, err
	}
	return n == 1, nil
}

// Handler enforces the shared limit.
func (rl *RedisRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		ok, err := rl.Allow(c.Request.Context(), rl.keyFn(c))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("redis rate limiter unavailable, allowing request")
		}
		if ok {
			c.Next()
			return
		}
		tooManyRequests(c, rl.window)
	}
}
