package main

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

type RateLimitStats struct {
	ActiveClients  int `json:"active_clients"`
	TrackedRequest int `json:"total_requests_tracked"`
	PerMinute      int `json:"limit_per_minute"`
}

// RateLimiter admits up to perMinute requests per client over a sliding
// 60-second window. A rejected request is never recorded, so hammering a
// limited endpoint does not extend the lockout.
type RateLimiter struct {
	perMinute       int
	cleanupInterval time.Duration
	now             func() time.Time

	mu          sync.Mutex
	buckets     map[string][]time.Time
	lastCleanup time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute:       perMinute,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
		buckets:         make(map[string][]time.Time),
	}
}

// Allow reports whether a request from client may proceed right now.
// Rejection is an outcome, not an error.
func (rl *RateLimiter) Allow(client string) bool {
	now := rl.now()
	cutoff := now.Add(-rateWindow)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.maybeCleanup(now)

	recent := pruneBefore(rl.buckets[client], cutoff)
	if len(recent) >= rl.perMinute {
		rl.buckets[client] = recent
		return false
	}

	rl.buckets[client] = append(recent, now)
	return true
}

func (rl *RateLimiter) Stats() RateLimitStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tracked := 0
	for _, b := range rl.buckets {
		tracked += len(b)
	}

	return RateLimitStats{
		ActiveClients:  len(rl.buckets),
		TrackedRequest: tracked,
		PerMinute:      rl.perMinute,
	}
}

// maybeCleanup drops buckets for clients with no requests inside the window.
// It runs at most once per cleanupInterval so idle buckets bound memory
// without paying a full sweep on every call.
func (rl *RateLimiter) maybeCleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < rl.cleanupInterval {
		return
	}

	cutoff := now.Add(-rateWindow)
	for client, bucket := range rl.buckets {
		recent := pruneBefore(bucket, cutoff)
		if len(recent) == 0 {
			delete(rl.buckets, client)
			continue
		}

		rl.buckets[client] = recent
	}

	rl.lastCleanup = now
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	return kept
}
