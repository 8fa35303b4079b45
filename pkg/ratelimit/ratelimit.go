// Package ratelimit 提供按 key 区分的限流：进程内令牌桶与基于 Redis 的 GCRA 实现
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	// Allow checks if the request is allowed for the given key and limit
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit defines the rate limit rule
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// 空闲超过 idleTTL 的 key 在下一次清扫时移除
const idleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	limit    Limit
	lastSeen time.Time
}

// MemoryRateLimiter 基于 x/time/rate，每个 key 一个令牌桶
// 同一 key 的 Limit 变化时重建令牌桶，空闲 key 定期清除
type MemoryRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryRateLimiter creates a new MemoryRateLimiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow checks if the request is allowed
func (m *MemoryRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.now()
	l := m.limiter(key, limit, now)

	r := l.ReserveN(now, 1)
	if !r.OK() {
		return &Result{Allowed: false}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &Result{Allowed: false, RetryAfter: delay}, nil
	}
	return &Result{Allowed: true, Remaining: int(l.TokensAt(now))}, nil
}

func (m *MemoryRateLimiter) limiter(key string, limit Limit, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(now)
	if e, ok := m.limiters[key]; ok && e.limit == limit {
		e.lastSeen = now
		return e.limiter
	}
	every := rate.Inf
	if limit.Rate > 0 && limit.Period > 0 {
		every = rate.Every(limit.Period / time.Duration(limit.Rate))
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = max(limit.Rate, 1)
	}
	e := &limiterEntry{limiter: rate.NewLimiter(every, burst), limit: limit, lastSeen: now}
	m.limiters[key] = e
	return e.limiter
}

// sweep 每个 idleTTL 周期至多遍历一次，调用方持有 mu
func (m *MemoryRateLimiter) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < idleTTL {
		return
	}
	m.lastSweep = now
	for key, e := range m.limiters {
		if now.Sub(e.lastSeen) > idleTTL {
			delete(m.limiters, key)
		}
	}
}
