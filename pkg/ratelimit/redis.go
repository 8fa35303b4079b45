package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter 多实例共享配额，计数保存在 Redis
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRedisRateLimiter creates a new RedisRateLimiter
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
	}
}

// Allow checks if the request is allowed
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	res, err := r.limiter.Allow(ctx, key, toRedisLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return fromRedisResult(res), nil
}

func toRedisLimit(limit Limit) redis_rate.Limit {
	burst := limit.Burst
	if burst <= 0 {
		burst = max(limit.Rate, 1)
	}
	return redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  burst,
	}
}

func fromRedisResult(res *redis_rate.Result) *Result {
	out := &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
	}
	// 放行时 redis_rate 返回 -1
	if !out.Allowed && res.RetryAfter > 0 {
		out.RetryAfter = res.RetryAfter
	}
	return out
}
