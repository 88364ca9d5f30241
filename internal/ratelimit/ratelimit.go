// Package ratelimit throttles abuse-prone endpoints per client key.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key may proceed. When it may
// not, retryAfter says how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// Memory is a per-process token bucket limiter: max requests per window,
// refilled evenly across the window.
type Memory struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	limiters  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemory(max int, window time.Duration) *Memory {
	return &Memory{
		max:      max,
		window:   window,
		now:      time.Now,
		limiters: make(map[string]*visitor),
	}
}

// WithClock makes the limiter read time from now.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)
	v, ok := m.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(m.window/time.Duration(m.max)), m.max)}
		m.limiters[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, m.window, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

// sweep drops visitors idle for a whole window; their buckets are full again.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for k, v := range m.limiters {
		if now.Sub(v.lastSeen) >= m.window {
			delete(m.limiters, k)
		}
	}
}

// Redis is a fixed-window counter shared by every instance of the service.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

func NewRedis(rdb redis.UniversalClient, prefix string, max int, window time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, max: max, window: window}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := r.prefix + key
	n, err := r.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := r.rdb.PExpire(ctx, k, r.window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis expire: %w", err)
		}
	}
	if n <= int64(r.max) {
		return true, 0, nil
	}
	ttl, err := r.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis pttl: %w", err)
	}
	if ttl <= 0 {
		// counter lost its expiry; restart the window
		if err := r.rdb.PExpire(ctx, k, r.window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis expire: %w", err)
		}
		ttl = r.window
	}
	return false, ttl, nil
}
