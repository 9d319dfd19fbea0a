// Package ratelimit provides a sliding-window admission counter keyed by
// caller identity.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts requests per key over a sliding window. Timestamps older
// than the window are evicted on every check, so memory stays bounded by the
// number of keys times the threshold.
type Limiter struct {
	window    time.Duration
	threshold int

	mu   sync.Mutex
	hits map[string][]time.Time

	now func() time.Time
}

// New returns a limiter admitting at most threshold calls per key within
// window.
func New(window time.Duration, threshold int) *Limiter {
	return &Limiter{
		window:    window,
		threshold: threshold,
		hits:      make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Allow records an attempt for key and reports whether it is admitted. When
// denied, retryAfter estimates how long until the oldest counted attempt
// leaves the window.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[key][:0]
	for _, ts := range l.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.threshold {
		l.hits[key] = kept
		return false, kept[0].Sub(cutoff)
	}

	l.hits[key] = append(kept, now)
	return true, 0
}

// Reset drops all recorded attempts for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
}
