package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// window counts one client's requests until resetAt.
type window struct {
	count   int
	resetAt time.Time
}

// ipLimiter is a fixed-window counter per client address. Kiosks share few
// addresses, so expired windows are swept at most once per period.
type ipLimiter struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	windows map[string]window
	swept   time.Time
	now     func() time.Time
}

func newIPLimiter(limit int, period time.Duration) *ipLimiter {
	return &ipLimiter{
		limit:   limit,
		period:  period,
		windows: make(map[string]window),
		now:     time.Now,
	}
}

// allow records one request for key. When the window is full it returns false
// and the time left until it resets.
func (l *ipLimiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.period {
		for k, w := range l.windows {
			if !now.Before(w.resetAt) {
				delete(l.windows, k)
			}
		}
		l.swept = now
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(l.period)}
	}
	if w.count >= l.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	l.windows[key] = w
	return true, 0
}

// RateLimit allows limit requests per client address in each period. A
// non-positive limit disables it. It keys on RemoteAddr, so mount it after
// chi's RealIP.
func RateLimit(limit int, period time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		limiter := newIPLimiter(limit, period)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			ok, wait := limiter.allow(key)
			if !ok {
				zerolog.Ctx(r.Context()).Warn().Str("client", key).Dur("retry_in", wait).Msg("rate limited")
				w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests","code":"rate_limited"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey is the host part of RemoteAddr, or RemoteAddr itself when it
// carries no port.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
