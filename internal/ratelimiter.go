package internal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by client address.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
	sweeps int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for key and reports whether it fits in the window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	windowStart := now.Add(-r.window)
	recent := trimBefore(r.hits[key], windowStart)
	if len(recent) >= r.limit {
		r.hits[key] = recent
		return false
	}
	r.hits[key] = append(recent, now)

	r.sweeps++
	if r.sweeps >= 256 {
		r.sweeps = 0
		for k, stamps := range r.hits {
			if kept := trimBefore(stamps, windowStart); len(kept) > 0 {
				r.hits[k] = kept
			} else {
				delete(r.hits, k)
			}
		}
	}
	return true
}

func trimBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for _, ts := range stamps {
		if ts.After(cutoff) {
			stamps[idx] = ts
			idx++
		}
	}
	return stamps[:idx]
}
