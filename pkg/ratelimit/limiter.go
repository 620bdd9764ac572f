// Package ratelimit implements the per-key token bucket the dispatcher
// consults before invoking a rate-limited handler. Unlike a byte-rate
// limiter that blocks the caller until tokens are available, Check never
// blocks: it reports admit/deny immediately, which is what a dispatch path
// that must stay non-suspending on the fast path needs.
package ratelimit

import (
	"sync"
	"time"
)

// Policy describes one handler's (or group's) rate-limit configuration.
type Policy struct {
	// BurstCapacity is the maximum number of tokens a bucket can hold.
	BurstCapacity int64
	// RefillPerSecond is how many tokens are added back per second of
	// elapsed time.
	RefillPerSecond float64
	// Group, if non-empty, makes every Check call sharing the same Group
	// name (independent of key) draw from one bucket rather than a
	// per-key bucket — the "cross-opcode shared bucket" case.
	Group string
}

type bucket struct {
	mu       sync.Mutex
	capacity int64
	rate     float64
	tokens   float64
	last     time.Time
	touched  time.Time
}

func newBucket(p Policy) *bucket {
	now := time.Now()
	return &bucket{
		capacity: p.BurstCapacity,
		rate:     p.RefillPerSecond,
		tokens:   float64(p.BurstCapacity),
		last:     now,
		touched:  now,
	}
}

func (b *bucket) check() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.touched = now

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > float64(b.capacity) {
			b.tokens = float64(b.capacity)
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *bucket) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.touched)
}

// Limiter holds one bucket per (key, policy-group) pair encountered so far.
// It is safe for concurrent use by many goroutines.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	idleThreshold time.Duration
}

// New constructs a Limiter. idleThreshold bounds how long a bucket with no
// Check calls survives before Evict can reclaim it; zero disables eviction
// eligibility entirely (buckets live forever).
func New(idleThreshold time.Duration) *Limiter {
	return &Limiter{
		buckets:       make(map[string]*bucket),
		idleThreshold: idleThreshold,
	}
}

// Check consumes one token from the bucket for (key, policy), creating the
// bucket lazily on first use, and reports whether the request is admitted.
// When policy.Group is set, key is ignored in favor of the group name, so
// every caller sharing that group draws from one bucket.
func (l *Limiter) Check(key string, policy Policy) bool {
	bucketKey := key
	if policy.Group != "" {
		bucketKey = "group:" + policy.Group
	}

	l.mu.Lock()
	b, ok := l.buckets[bucketKey]
	if !ok {
		b = newBucket(policy)
		l.buckets[bucketKey] = b
	}
	l.mu.Unlock()

	return b.check()
}

// Evict removes buckets that have not been touched in idleThreshold,
// returning the number reclaimed. Safe to call periodically from a
// maintenance goroutine; does not block concurrent Check calls for long.
func (l *Limiter) Evict() int {
	if l.idleThreshold <= 0 {
		return 0
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	reclaimed := 0
	for key, b := range l.buckets {
		if b.idleSince(now) >= l.idleThreshold {
			delete(l.buckets, key)
			reclaimed++
		}
	}
	return reclaimed
}

// Len reports the current number of tracked buckets, primarily for tests
// and observability.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
