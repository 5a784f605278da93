// Package ratelimit enforces per-key request budgets over a fixed
// one-minute window backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter answers whether a request identified by an API key may proceed
// under its plan's per-minute budget.
type Limiter interface {
	Check(ctx context.Context, identifier string, plan model.PlanTier) (Result, error)
}

const window = time.Minute

// requestsPerMinute maps each plan tier to its request budget.
var requestsPerMinute = map[model.PlanTier]int{
	model.PlanFree:  100,
	model.PlanHobby: 300,
	model.PlanPro:   1000,
}

// limitFor falls back to the free budget for unknown tiers.
func limitFor(plan model.PlanTier) int {
	if limit, ok := requestsPerMinute[plan]; ok {
		return limit
	}
	return requestsPerMinute[model.PlanFree]
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

type redisLimiter struct {
	client        redis.UniversalClient
	limiterLogger zerolog.Logger
}

// NewRedisLimiter creates a Limiter backed by the given Redis client.
func NewRedisLimiter(client redis.UniversalClient, logger zerolog.Logger) Limiter {
	return &redisLimiter{
		client:        client,
		limiterLogger: logger.With().Str("service", "RateLimiter").Logger(),
	}
}

func (l *redisLimiter) Check(ctx context.Context, identifier string, plan model.PlanTier) (Result, error) {
	limit := limitFor(plan)
	key := fmt.Sprintf("rate_limit:%s", identifier)

	raw, err := rateLimitScript.Run(ctx, l.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check for %s: %w", identifier, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Result{}, fmt.Errorf("unexpected rate limit response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return Result{}, fmt.Errorf("unexpected rate limit count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return Result{}, fmt.Errorf("unexpected rate limit ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: remaining,
		Reset:     time.Now().Add(time.Duration(ttlMs) * time.Millisecond),
	}, nil
}

// Noop allows every request. Used when no Redis URL is configured so a
// missing limiter never blocks uploads.
type Noop struct{}

func (Noop) Check(ctx context.Context, identifier string, plan model.PlanTier) (Result, error) {
	limit := limitFor(plan)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		Reset:     time.Now().Add(window),
	}, nil
}
