// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package cache

import (
	"sync"
	"time"
)

// RateLimiter is a keyed sliding-window limiter. Each key gets a circular
// bucket buffer covering the window; a request is allowed when the summed
// bucket counts are below the limit.
//
// The limiter owns no goroutines. Time advances through the injected
// clock, and stale keys are reclaimed by an explicit Sweep call that the
// supervisor schedules. Both choices keep the limiter deterministic under
// test.
type RateLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter

	limit      int64
	windowSize time.Duration
	numBuckets int

	now func() time.Time
}

const defaultBuckets = 10

// NewRateLimiter creates a limiter allowing limit requests per window per
// key. A nil now falls back to time.Now.
func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		counters:   make(map[string]*windowCounter),
		limit:      int64(limit),
		windowSize: window,
		numBuckets: defaultBuckets,
		now:        now,
	}
}

// Allow reports whether a request for key is within the limit, counting
// it when allowed. Rejected requests are not counted, so a client cannot
// extend its own lockout by retrying.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	counter, ok := rl.counters[key]
	if !ok {
		counter = newWindowCounter(rl.windowSize, rl.numBuckets, rl.now())
		rl.counters[key] = counter
	}

	now := rl.now()
	if counter.count(now) >= rl.limit {
		return false
	}
	counter.increment(now)
	return true
}

// Remaining returns how many requests the key has left in the current
// window.
func (rl *RateLimiter) Remaining(key string) int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	counter, ok := rl.counters[key]
	if !ok {
		return rl.limit
	}
	left := rl.limit - counter.count(rl.now())
	if left < 0 {
		return 0
	}
	return left
}

// Sweep drops keys with no activity in the current window and returns
// how many were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, counter := range rl.counters {
		if counter.count(now) == 0 {
			delete(rl.counters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counters)
}

// windowCounter is a circular buffer of per-bucket counts. Callers hold
// the limiter lock; the counter itself is not safe for concurrent use.
type windowCounter struct {
	buckets    []int64
	bucketSize time.Duration
	current    int
	lastUpdate time.Time
}

func newWindowCounter(window time.Duration, numBuckets int, now time.Time) *windowCounter {
	return &windowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: window / time.Duration(numBuckets),
		lastUpdate: now,
	}
}

func (w *windowCounter) increment(now time.Time) {
	w.advance(now)
	w.buckets[w.current]++
}

func (w *windowCounter) count(now time.Time) int64 {
	w.advance(now)
	var total int64
	for _, c := range w.buckets {
		total += c
	}
	return total
}

// advance rotates the buffer by the number of whole buckets elapsed,
// zeroing buckets that have left the window.
func (w *windowCounter) advance(now time.Time) {
	elapsed := now.Sub(w.lastUpdate)
	n := int(elapsed / w.bucketSize)
	if n <= 0 {
		return
	}
	if n >= len(w.buckets) {
		for i := range w.buckets {
			w.buckets[i] = 0
		}
		w.current = 0
	} else {
		for i := 0; i < n; i++ {
			w.current = (w.current + 1) % len(w.buckets)
			w.buckets[w.current] = 0
		}
	}
	w.lastUpdate = now
}
