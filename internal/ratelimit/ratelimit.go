// Package ratelimit is the sliding-window rate limiter (C5): a single
// atomic script against the shared cache, gated by a circuit breaker
// that fails open (allows the request) once the cache is unhealthy
// rather than turning a cache outage into a full outage of the API.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/preflight/governor/internal/cache"
)

// slidingWindowScript implements the four-step algorithm atomically:
// trim entries older than the window, count what remains, deny (with a
// reset derived from the oldest surviving entry) if at or over the
// limit, otherwise record this request and refresh the key's TTL.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window_ms)
local count = redis.call('ZCARD', key)

if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset_ms = window_ms
	if oldest[2] then
		reset_ms = (tonumber(oldest[2]) + window_ms) - now
		if reset_ms < 0 then reset_ms = 0 end
	end
	return {0, count, reset_ms}
end

redis.call('ZADD', key, now, now .. '-' .. ARGV[4])
redis.call('PEXPIRE', key, window_ms + 1000)
return {1, count + 1, 0}
`

const window = 60 * time.Second

// Result is the outcome of a single Allow check.
type Result struct {
	Allowed           bool
	Limit             int
	Remaining         int
	ResetAfterSeconds int
}

// Limiter evaluates the sliding-window script through a circuit breaker.
type Limiter struct {
	cache   *cache.Gateway
	script  *cache.Script
	breaker *gobreaker.CircuitBreaker
}

func New(c *cache.Gateway) *Limiter {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-cache",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Limiter{cache: c, script: cache.NewScript(slidingWindowScript), breaker: breaker}
}

// Allow checks whether key (an API key id or client IP) may proceed
// under limit requests per 60-second sliding window. A seq value
// disambiguates same-millisecond requests in the sorted set; callers
// pass a monotonically increasing counter or a random suffix.
//
// On a cache outage (circuit open or script evaluation failing), Allow
// fails open: the request is allowed and Result reports the configured
// limit as fully available, since a rate limiter that cannot observe
// state must not become an outage amplifier.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, seq string) (Result, error) {
	nowMS := time.Now().UnixMilli()
	windowMS := window.Milliseconds()

	raw, err := l.breaker.Execute(func() (any, error) {
		return l.cache.Eval(ctx, l.script, []string{rateLimitKey(key)}, nowMS, windowMS, limit, seq)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{Allowed: true, Limit: limit, Remaining: limit}, nil
		}
		return Result{Allowed: true, Limit: limit, Remaining: limit}, fmt.Errorf("rate limit check degraded, failing open: %w", err)
	}

	fields, ok := raw.([]any)
	if !ok || len(fields) != 3 {
		return Result{Allowed: true, Limit: limit, Remaining: limit}, fmt.Errorf("unexpected rate limit script reply: %#v", raw)
	}

	allowed := toInt64(fields[0]) == 1
	count := toInt64(fields[1])
	resetMS := toInt64(fields[2])

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:           allowed,
		Limit:             limit,
		Remaining:         remaining,
		ResetAfterSeconds: int((time.Duration(resetMS) * time.Millisecond).Round(time.Second).Seconds()),
	}, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}
