package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestRateLimiterDeniesAfterLimitAndResets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiterWithClock(clock.now)

	for i := 0; i < 3; i++ {
		require.True(t, rl.Check("k", 3, time.Minute), "call %d should pass", i+1)
	}
	assert.False(t, rl.Check("k", 3, time.Minute), "4th call must be denied")
	assert.True(t, rl.Check("other", 3, time.Minute), "keys are independent")

	clock.t = clock.t.Add(59 * time.Second)
	assert.False(t, rl.Check("k", 3, time.Minute))

	clock.t = clock.t.Add(time.Second)
	assert.True(t, rl.Check("k", 3, time.Minute), "window expired, counter resets")
	assert.True(t, rl.Check("k", 3, time.Minute))
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter()
	limited := 0
	h := RateLimit(rl, RateLimitPolicy{
		Name:      "POST /api/bookings",
		Limit:     1,
		Window:    time.Minute,
		OnLimited: func(*http.Request) { limited++ },
	}, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"rate_limited"`)
	assert.Equal(t, 1, limited)

	other := httptest.NewRequest(http.MethodPost, "/api/bookings", nil)
	other.RemoteAddr = "198.51.100.7:5555"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := NewRedisRateLimiter(rdb, "test")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "ip", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "ip", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute)
	ok, err = rl.Allow(ctx, "ip", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, context.DeadlineExceeded
}

func TestRateLimitFailOpenPolicy(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	rr := httptest.NewRecorder()
	RateLimit(brokenLimiter{}, RateLimitPolicy{Name: "x", Limit: 1, Window: time.Second, FailOpen: true}, nil)(next).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	RateLimit(brokenLimiter{}, RateLimitPolicy{Name: "x", Limit: 1, Window: time.Second}, nil)(next).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(r))
	r.Header.Set("X-Real-Ip", "192.0.2.9")
	assert.Equal(t, "192.0.2.9", ClientIP(r))
	r.Header.Set("X-Forwarded-For", "192.0.2.44")
	assert.Equal(t, "192.0.2.44", ClientIP(r))
}
