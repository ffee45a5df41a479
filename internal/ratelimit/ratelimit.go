package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a per-key request budget within a sliding window. Keys
// are typically client IPs.
type Limiter struct {
	mu     sync.Mutex
	seen   map[string][]time.Time
	max    int
	window time.Duration
}

// New creates a Limiter allowing max requests per window per key. A max of
// zero or less disables limiting: Allow always returns true.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		seen:   make(map[string][]time.Time),
		max:    max,
		window: window,
	}
}

// Allow reports whether the key is within budget, recording the request
// when it is.
func (l *Limiter) Allow(key string) bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	recent := l.seen[key][:0]
	for _, ts := range l.seen[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.max {
		l.seen[key] = recent
		return false
	}

	l.seen[key] = append(recent, time.Now())
	return true
}

// Prune drops keys whose every recorded request has aged out of the
// window, bounding memory across many one-off clients.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	for key, stamps := range l.seen {
		live := false
		for _, ts := range stamps {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.seen, key)
		}
	}
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
