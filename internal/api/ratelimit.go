package api

import (
	"sync"
	"time"
)

const (
	defaultRateLimit  = 100
	defaultRateWindow = time.Minute
)

// rateLimiter is a simple in-memory sliding-window limiter keyed by client IP
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration

	now func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// allow records a request for key and reports whether it is under the limit
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	recent := rl.requests[key][:0]
	for _, at := range rl.requests[key] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= rl.limit {
		rl.requests[key] = recent
		return false
	}

	rl.requests[key] = append(recent, now)
	return true
}

// remaining returns the request budget left for key within the current window
func (rl *rateLimiter) remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	used := 0
	for _, at := range rl.requests[key] {
		if at.After(cutoff) {
			used++
		}
	}

	if used > rl.limit {
		return 0
	}
	return rl.limit - used
}
