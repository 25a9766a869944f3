package transporthttp

import (
	"math"
	"net/http"
	"sync"
	"time"
)

// APIKeyAuth allows an optional list of API keys; if the list is empty, auth is bypassed.
// Keys are expected in header: X-API-Key.
func APIKeyAuth(allowed map[string]struct{}) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if _, ok := allowed[key]; !ok {
				WriteProblem(w, http.StatusUnauthorized, "unauthorized", "invalid or missing API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter is a token bucket shared by every request through the middleware.
// It starts full and refills continuously at limit tokens per minute.
type rateLimiter struct {
	mu       sync.Mutex
	capacity float64
	perSec   float64
	tokens   float64
	last     time.Time
}

func newRateLimiter(limitPerMin int, now time.Time) *rateLimiter {
	return &rateLimiter{
		capacity: float64(limitPerMin),
		perSec:   float64(limitPerMin) / 60,
		tokens:   float64(limitPerMin),
		last:     now,
	}
}

// allow refills the bucket for the time elapsed since the previous call and takes
// one token if available.
func (l *rateLimiter) allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elapsed := now.Sub(l.last); elapsed > 0 {
		l.tokens = math.Min(l.capacity, l.tokens+elapsed.Seconds()*l.perSec)
	}
	l.last = now
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// RateLimitPerMinute limits every request of the handler it wraps; mount it only
// on the routes that need it. A non-positive limit disables it.
func RateLimitPerMinute(limitPerMin int, clock func() time.Time) func(http.Handler) http.Handler {
	if limitPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newRateLimiter(limitPerMin, clock())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clock()) {
				w.Header().Set("Retry-After", "3")
				WriteProblem(w, http.StatusTooManyRequests, "rate limit exceeded", "try again later", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
