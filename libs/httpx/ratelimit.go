package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter decides whether one more call for key fits into the current window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimiter is a process-local fixed-window counter. It is not shared
// between instances and never evicts keys.
type RateLimiter struct {
	mu       sync.Mutex
	now      func() time.Time
	visitors map[string]*visitor
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithClock(time.Now)
}

func NewRateLimiterWithClock(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		now:      now,
		visitors: map[string]*visitor{},
	}
}

// Check reports whether the call is allowed. The first call for a key, or the
// first after its window expired, opens a new window with count 1.
func (rl *RateLimiter) Check(key string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v := rl.visitors[key]
	if v == nil || !now.Before(v.resetTime) {
		rl.visitors[key] = &visitor{
			count:     1,
			resetTime: now.Add(window),
		}
		return true
	}

	if v.count >= limit {
		return false
	}
	v.count++
	return true
}

func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	return rl.Check(key, limit, window), nil
}

// RateLimitPolicy configures RateLimit for one route.
type RateLimitPolicy struct {
	// Name prefixes the client key, e.g. "POST /api/bookings".
	Name     string
	Limit    int
	Window   time.Duration
	FailOpen bool
	// OnLimited is called for every rejected request.
	OnLimited func(r *http.Request)
}

func RateLimit(l Limiter, p RateLimitPolicy, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := p.Name + ":" + ClientIP(r)
			ok, err := l.Allow(r.Context(), key, p.Limit, p.Window)
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err, "key", key)
				}
				if !p.FailOpen {
					WriteError(w, http.StatusServiceUnavailable, "rate_limiter_unavailable", "rate limiter unavailable")
					return
				}
				ok = true
			}
			if !ok {
				if p.OnLimited != nil {
					p.OnLimited(r)
				}
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-Ip, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
