package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per session
type Limiter struct {
	limiters        map[string]*rate.Limiter
	mu              sync.Mutex
	rate            rate.Limit
	burst           int
	requestsPerHour int
}

// NewLimiter creates a new rate limiter
// requestsPerHour: analyses allowed per hour per session (e.g., 100)
// burst: max analyses in a burst (e.g., 10)
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	return &Limiter{
		limiters:        make(map[string]*rate.Limiter),
		rate:            rate.Limit(float64(requestsPerHour) / 3600.0),
		burst:           burst,
		requestsPerHour: requestsPerHour,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow reports whether a request for key may proceed now and consumes a token if so
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Tokens returns the current number of available tokens for key
func (l *Limiter) Tokens(key string) float64 {
	return l.get(key).Tokens()
}

// RetryAfter is how long until key has a token again.
func (l *Limiter) RetryAfter(key string) time.Duration {
	lim := l.get(key)
	r := lim.Reserve()
	defer r.Cancel()
	return r.Delay()
}

// Limit is the configured hourly allowance.
func (l *Limiter) Limit() int {
	return l.requestsPerHour
}

// Forget drops the bucket for key, e.g. when its session closes.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}
