package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemorySlidingWindow(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(5, time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "quote:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
		assert.Equal(t, 4-i, res.Remaining)
		now = now.Add(10 * time.Second)
	}

	res, err := l.Allow(ctx, "quote:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 10*time.Second, res.RetryAfter(now))

	other, err := l.Allow(ctx, "quote:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	// first hit leaves the window
	now = now.Add(10*time.Second + time.Millisecond)
	res, err = l.Allow(ctx, "quote:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemorySweepDropsIdleKeys(t *testing.T) {
	l := NewMemory(1, time.Second)
	now := time.Now()
	l.now = func() time.Time { return now }
	_, _ = l.Allow(context.Background(), "a")
	now = now.Add(time.Hour)
	l.sweep(now.Add(-l.Window))
	assert.Empty(t, l.hits)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Result, error) {
	return Result{}, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) })
	h := Middleware(NewMemory(1, time.Minute), "quote", zaptest.NewLogger(t))(ok)

	req := httptest.NewRequest(http.MethodPost, "/api/quote", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too many requests")
}

func TestMiddlewareFailsOpen(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(failingLimiter{}, "quote", zaptest.NewLogger(t))(ok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/quote", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedisSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := OpenRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	l := NewRedis(client, 2, time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "quote:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
		assert.Equal(t, 1-i, res.Remaining)
		now = now.Add(10 * time.Second)
	}

	res, err := l.Allow(ctx, "quote:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 40*time.Second, res.RetryAfter(now))

	members, err := mr.ZMembers("ratelimit:quote:1.2.3.4")
	require.NoError(t, err)
	assert.Len(t, members, 2, "rejected hit is removed from the window")
	assert.True(t, mr.TTL("ratelimit:quote:1.2.3.4") > 0)

	now = now.Add(41 * time.Second)
	res, err = l.Allow(ctx, "quote:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "first hit has left the window")
	assert.Equal(t, 0, res.Remaining)

	other, err := l.Allow(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := OpenRedis(context.Background(), "redis://"+addr)
	assert.Error(t, err)

	_, err = OpenRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
