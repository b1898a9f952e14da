// Package ratecontrol provides per-key token-bucket rate limiting for
// inbound client messages.
package ratecontrol

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per key. A key is typically a connection
// or client identifier.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter

	perSecond float64
	burst     int
}

// New creates a limiter allowing requestsPerInterval events per interval
// for each key, with bursts up to requestsPerInterval.
func New(requestsPerInterval int, interval time.Duration) *Limiter {
	if requestsPerInterval <= 0 {
		requestsPerInterval = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Limiter{
		buckets:   make(map[string]*rate.Limiter),
		perSecond: float64(requestsPerInterval) / interval.Seconds(),
		burst:     requestsPerInterval,
	}
}

// Allow reports whether an event for key is within its rate limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		l.mu.Lock()
		b, ok = l.buckets[key]
		if !ok {
			b = rate.NewLimiter(rate.Limit(l.perSecond), l.burst)
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}
	return b.Allow()
}

// Forget drops the bucket for key, releasing its state when a connection
// goes away.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
