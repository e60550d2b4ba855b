// Package cache is the shared cache gateway (C3): a thin wrapper over a
// single Redis client providing the key/value, sorted-set and scripted
// atomic operations the rate limiter, LSH index and token blocklist
// build on. Every operation tolerates cache unavailability by returning
// ErrUnavailable; callers decide their own degraded behaviour.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any error talking to the cache backend.
var ErrUnavailable = errors.New("cache: unavailable")

// Gateway wraps a redis client.
type Gateway struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Gateway {
	return &Gateway{rdb: rdb}
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Ping reports whether the cache is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return wrap(g.rdb.Ping(ctx).Err())
}

// Set stores value at key with the given TTL (0 = no expiry).
func (g *Gateway) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return wrap(g.rdb.Set(ctx, key, value, ttl).Err())
}

// Get returns the string value at key, or redis.Nil itself (unwrapped)
// if absent.
func (g *Gateway) Get(ctx context.Context, key string) (string, error) {
	v, err := g.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", err
		}
		return "", wrap(err)
	}
	return v, nil
}

// Exists reports whether key is present.
func (g *Gateway) Exists(ctx context.Context, key string) (bool, error) {
	n, err := g.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

// Del deletes one or more keys.
func (g *Gateway) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap(g.rdb.Del(ctx, keys...).Err())
}

// SAdd adds members to a set.
func (g *Gateway) SAdd(ctx context.Context, key string, members ...any) error {
	return wrap(g.rdb.SAdd(ctx, key, members...).Err())
}

// SRem removes members from a set.
func (g *Gateway) SRem(ctx context.Context, key string, members ...any) error {
	return wrap(g.rdb.SRem(ctx, key, members...).Err())
}

// SMembers returns every member of a set.
func (g *Gateway) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := g.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return v, nil
}

// Pipeline exposes the underlying client's pipeliner for callers (LSH
// index, rate limiter) that need to batch several commands atomically
// at the network level.
func (g *Gateway) Pipeline() redis.Pipeliner {
	return g.rdb.Pipeline()
}

// Script is a server-side Lua script addressed by its SHA1 digest. It is
// loaded lazily: EVALSHA is attempted first, and on a NOSCRIPT error the
// script body is sent once with EVAL, which runs it and also caches it
// on the server for later EVALSHA calls. This mirrors how a client reloads a script transparently
// after a Redis restart without caching scripts forever.
type Script struct {
	body string
	sha  string
}

// NewScript prepares a script for repeated atomic evaluation.
func NewScript(body string) *Script {
	sum := sha1.Sum([]byte(body))
	return &Script{body: body, sha: hex.EncodeToString(sum[:])}
}

// Eval runs the script, reloading it on a NOSCRIPT failure.
func (g *Gateway) Eval(ctx context.Context, s *Script, keys []string, args ...any) (any, error) {
	res, err := g.rdb.EvalSha(ctx, s.sha, keys, args...).Result()
	if err == nil {
		return res, nil
	}
	if redis.HasErrorPrefix(err, "NOSCRIPT") {
		res, err = g.rdb.Eval(ctx, s.body, keys, args...).Result()
		if err != nil {
			return nil, wrap(err)
		}
		return res, nil
	}
	return nil, wrap(err)
}

// Raw exposes the underlying client for operations (ZADD, ZREM,
// ZRANGEBYSCORE, etc.) that don't yet have a dedicated wrapper; new
// gateway methods should be added here rather than leaking *redis.Client
// further than the packages that already depend on this one.
func (g *Gateway) Raw() *redis.Client {
	return g.rdb
}
