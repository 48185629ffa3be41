// Package ratelimit throttles run starts per user with Redis-backed
// fixed-window counters. Limits are tiered by workflow cost: workflows
// heavy on AI nodes get a tighter budget than plain pipelines.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aiwf/engine/common/logger"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Result reports the outcome of one limit check.
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter checks run-start budgets against Redis. The Lua script keeps
// increment and expiry atomic, so concurrent API replicas share one
// counter without races.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	log    *logger.Logger
}

func New(client *redis.Client, log *logger.Logger) *Limiter {
	return &Limiter{
		redis:  client,
		script: redis.NewScript(rateLimitScript),
		log:    log,
	}
}

// CheckRunStart enforces the per-user budget for the workflow's tier.
// Each tier has its own counter so a burst of heavy runs cannot starve
// cheap ones.
func (l *Limiter) CheckRunStart(ctx context.Context, userID string, tier Tier) (*Result, error) {
	key := fmt.Sprintf("rate_limit:user:%s:tier:%s", userID, tier)
	cfg := tier.Config()
	return l.check(ctx, key, cfg.Limit, cfg.WindowSeconds)
}

// CheckGlobal enforces the service-wide run-start budget.
func (l *Limiter) CheckGlobal(ctx context.Context) (*Result, error) {
	return l.check(ctx, "rate_limit:global", globalLimit, globalWindowSeconds)
}

func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check for %s: %w", key, err)
	}

	fields, ok := raw.([]interface{})
	if !ok || len(fields) != 4 {
		return nil, fmt.Errorf("rate limit script returned unexpected shape for %s", key)
	}

	res := &Result{
		Allowed:           fields[0].(int64) == 1,
		CurrentCount:      fields[1].(int64),
		Limit:             fields[2].(int64),
		RetryAfterSeconds: fields[3].(int64),
	}
	if !res.Allowed {
		l.log.Warn("rate limit exceeded",
			"key", key,
			"current", res.CurrentCount,
			"limit", res.Limit,
			"retry_after", res.RetryAfterSeconds)
	}
	return res, nil
}

// Reset clears a counter. Used by tests and admin tooling.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, key).Err()
}
