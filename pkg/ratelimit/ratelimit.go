package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// window tracks one tenant's submissions inside the current fixed window
type window struct {
	count   int
	started time.Time
}

// WindowLimiter implements per-tenant fixed-window submission quotas.
// Increment-and-check is a single operation under the lock, so concurrent
// submissions from one tenant cannot race past the quota. Windows reset
// lazily on expiry rather than by a sweeper.
type WindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	size    time.Duration
	now     func() time.Time
}

// NewWindowLimiter creates a limiter with the given window size
func NewWindowLimiter(size time.Duration) *WindowLimiter {
	if size <= 0 {
		size = 60 * time.Second
	}
	return &WindowLimiter{
		windows: make(map[string]*window),
		size:    size,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (l *WindowLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow increments the tenant's counter and reports whether the submission
// fits the quota. The (quota+1)th call inside one window returns false.
func (l *WindowLimiter) Allow(tenant string, quota int) bool {
	if quota <= 0 {
		return true // unmetered tenant
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[tenant]
	if !ok || now.Sub(w.started) >= l.size {
		w = &window{started: now}
		l.windows[tenant] = w
	}

	w.count++
	return w.count <= quota
}

// Usage returns the current count for a tenant, zero once the window expired
func (l *WindowLimiter) Usage(tenant string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[tenant]
	if !ok || l.now().Sub(w.started) >= l.size {
		return 0
	}
	return w.count
}

// BurstLimiter provides per-client token-bucket limiting for the HTTP
// surface, independent of tenant quotas
type BurstLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

// NewBurstLimiter creates a burst limiter
// rps: requests per second, burst: maximum burst size
func NewBurstLimiter(rps float64, burst int) *BurstLimiter {
	return &BurstLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow checks if a request under the given key should be allowed
func (l *BurstLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware creates an HTTP middleware enforcing the burst limit
func (l *BurstLimiter) Middleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(keyFunc(r)) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc extracts the client IP as the burst limit key
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}
