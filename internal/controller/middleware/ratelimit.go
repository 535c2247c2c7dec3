package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter limits requests per client address with a token bucket.
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*cachedLimiter
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithTTL sets how long an idle client's bucket is kept (default: 5m).
func WithTTL(ttl time.Duration) Option {
	return func(rl *RateLimiter) { rl.ttl = ttl }
}

// WithBurst sets the bucket size (default: 1).
func WithBurst(burst int) Option {
	return func(rl *RateLimiter) { rl.burst = burst }
}

// NewRateLimiter allows perMinute requests per client. Zero or less means unlimited.
func NewRateLimiter(perMinute int, opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		limit:    rate.Inf,
		burst:    1,
		ttl:      5 * time.Minute,
		now:      time.Now,
		limiters: make(map[string]*cachedLimiter),
	}
	if perMinute > 0 {
		rl.limit = rate.Limit(float64(perMinute) / 60)
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.limit != rate.Inf && !rl.get(clientKey(r)).Allow() {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if cached, ok := rl.limiters[key]; ok && now.Before(cached.expiresAt) {
		cached.expiresAt = now.Add(rl.ttl)
		return cached.limiter
	}

	// Drop idle buckets while holding the lock anyway.
	for k, c := range rl.limiters {
		if !now.Before(c.expiresAt) {
			delete(rl.limiters, k)
		}
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[key] = &cachedLimiter{limiter: limiter, expiresAt: now.Add(rl.ttl)}
	return limiter
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
