// Package ratelimit provides a redis-backed token bucket guarding the
// submission and approval-action endpoints. Disabled by default; when
// off, every request is allowed.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stewardhq/steward/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// tokenBucketScript refills at `rate` tokens per second up to `burst`
// and takes one token per call, atomically on the redis side.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(bucket[1])
local ts = tonumber(bucket[2])
if tokens == nil then
  tokens = burst
  ts = now
end

local elapsed = math.max(0, now - ts)
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, math.ceil(burst / rate) + 60)
return allowed
`)

// Limiter answers whether one more action is allowed for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) (bool, error) { return true, nil }

type tokenBucket struct {
	client *redis.Client
	prefix string
	rate   float64
	burst  int
	log    *zap.Logger
}

func (b *tokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixMilli()) / 1000.0
	result, err := tokenBucketScript.Run(ctx, b.client,
		[]string{fmt.Sprintf("ratelimit:%s:%s", b.prefix, key)},
		b.rate, b.burst, now,
	).Int()
	if err != nil {
		// Fail open: an unreachable limiter must not block approvals.
		b.log.Warn("rate limiter unavailable", zap.Error(err))
		return true, nil
	}
	return result == 1, nil
}

// Limiters bundles the per-endpoint limiters.
type Limiters struct {
	Submit         Limiter
	ApprovalAction Limiter
}

func New(cfg config.Config, log *zap.Logger) Limiters {
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RedisAddr == "" {
		return Limiters{Submit: allowAll{}, ApprovalAction: allowAll{}}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
	})
	log = log.Named("ratelimit")

	return Limiters{
		Submit: &tokenBucket{
			client: client,
			prefix: "submit",
			rate:   cfg.RateLimit.SubmitRate,
			burst:  cfg.RateLimit.SubmitBurst,
			log:    log,
		},
		ApprovalAction: &tokenBucket{
			client: client,
			prefix: "approval",
			rate:   cfg.RateLimit.ApprovalActionRate,
			burst:  cfg.RateLimit.ApprovalBurst,
			log:    log,
		},
	}
}

var Module = fx.Module("ratelimit",
	fx.Provide(New),
)
