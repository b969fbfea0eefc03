// Package ratelimit implements per-key fixed-window request limits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/wlanctl/internal/clock"
)

// Limiter manages rate limiting for multiple keys under one policy.
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock

	limiters map[string]*bucket
	mu       sync.RWMutex
}

// bucket implements a token bucket that refills once per interval
type bucket struct {
	tokens   int
	lastFill time.Time
	lastSeen time.Time
	mu       sync.Mutex
}

// NewLimiter allows limit requests per key in every interval. A nil clock
// uses clock.Default.
func NewLimiter(limit int, interval time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Default
	}
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    clk,
		limiters: make(map[string]*bucket),
	}
}

func (l *Limiter) get(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, exists := l.limiters[key]
	if !exists {
		now := l.clock.Now()
		b = &bucket{tokens: l.limit, lastFill: now, lastSeen: now}
		l.limiters[key] = b
	}
	return b
}

// Allow checks if a request for the given key is allowed
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN checks if n requests are allowed and takes them if so.
func (l *Limiter) AllowN(key string, n int) bool {
	b := l.get(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.clock.Now()
	b.lastSeen = now
	if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}

	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// RetryAfter returns how long key must wait for its next refill.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.RLock()
	b, ok := l.limiters[key]
	l.mu.RUnlock()
	if !ok {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens > 0 {
		return 0
	}
	return max(0, l.interval-l.clock.Since(b.lastFill))
}

// Reset clears rate limit for a specific key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// CleanupExpired removes buckets not used within maxAge.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key, b := range l.limiters {
		b.mu.Lock()
		if now.Sub(b.lastSeen) > maxAge {
			delete(l.limiters, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup removes expired buckets every interval until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.CleanupExpired(maxAge)
			}
		}
	}()
}
