// Package ratelimit implements the sliding-window limiter guarding quote
// submission. Redis backs it when configured; otherwise a process-local
// window is used.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// Result describes one Allow decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter is the wait until the oldest hit leaves the window.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.Reset.Sub(now); d > 0 {
		return d
	}
	return 0
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// MemoryLimiter keeps hit timestamps per key.
type MemoryLimiter struct {
	Limit  int
	Window time.Duration

	mu    sync.Mutex
	hits  map[string][]time.Time
	calls int
	now   func() time.Time
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{Limit: limit, Window: window, hits: make(map[string][]time.Time), now: time.Now}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := m.now()
	cutoff := now.Add(-m.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%1024 == 0 {
		m.sweep(cutoff)
	}

	window := prune(m.hits[key], cutoff)
	res := Result{Limit: m.Limit}
	if len(window) < m.Limit {
		window = append(window, now)
		res.Allowed = true
	}
	m.hits[key] = window
	res.Remaining = m.Limit - len(window)
	res.Reset = window[0].Add(m.Window)
	return res, nil
}

func (m *MemoryLimiter) sweep(cutoff time.Time) {
	for k, v := range m.hits {
		if v = prune(v, cutoff); len(v) == 0 {
			delete(m.hits, k)
		} else {
			m.hits[k] = v
		}
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// RedisLimiter stores each hit as a sorted-set member scored by its unix
// milliseconds, so the window slides with the clock.
type RedisLimiter struct {
	Client *redis.Client
	Limit  int
	Window time.Duration
	Prefix string

	now func() time.Time
}

func NewRedis(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{Client: client, Limit: limit, Window: window, Prefix: "ratelimit:", now: time.Now}
}

// OpenRedis parses a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := r.now()
	nowMs := now.UnixMilli()
	cutoff := nowMs - r.Window.Milliseconds()
	k := r.Prefix + key
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
		p.ZAdd(ctx, k, redis.Z{Score: float64(nowMs), Member: member})
		card = p.ZCard(ctx, k)
		oldest = p.ZRangeWithScores(ctx, k, 0, 0)
		p.PExpire(ctx, k, r.Window)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	count := int(card.Val())
	res := Result{Limit: r.Limit, Allowed: count <= r.Limit}
	if !res.Allowed {
		// rejected hits do not hold a slot in the window
		if err := r.Client.ZRem(ctx, k, member).Err(); err != nil {
			return Result{}, err
		}
		count--
	}
	res.Remaining = r.Limit - count
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	res.Reset = now.Add(r.Window)
	if z := oldest.Val(); len(z) > 0 {
		res.Reset = time.UnixMilli(int64(z[0].Score)).Add(r.Window)
	}
	return res, nil
}
