package handlers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxLimiters bounds the number of tracked endpoints.
const maxLimiters = 10000

// RateLimiter keeps one token bucket per endpoint slug.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns a limiter allowing requestsPerSecond with burst per
// endpoint. A non-positive rate disables limiting.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// AllowRequest reports whether the endpoint may accept another request.
func (rl *RateLimiter) AllowRequest(key string) bool {
	if rl == nil || rl.rate <= 0 {
		return true
	}
	return rl.limiter(key).AllowN(rl.now(), 1)
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	if len(rl.limiters) >= maxLimiters {
		var oldestKey string
		var oldest time.Time
		for k, entry := range rl.limiters {
			if oldestKey == "" || entry.lastSeen.Before(oldest) {
				oldestKey, oldest = k, entry.lastSeen
			}
		}
		delete(rl.limiters, oldestKey)
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// Cleanup drops limiters idle for longer than maxIdle and returns how many
// were removed.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-maxIdle)
	for k, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, k)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(maxIdle)
			}
		}
	}()
}
