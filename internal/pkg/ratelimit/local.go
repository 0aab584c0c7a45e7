package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultLocalCapacity bounds the in-process bucket map.
const DefaultLocalCapacity = 10000

type bucket struct {
	count         int
	windowStarted time.Time
}

// LocalLimiter is the process-local fallback. Same fixed-window algorithm as
// the Redis limiter, but only consistent within one process. Eviction is a
// best-effort memory bound, not an LRU: expired buckets go first, then
// arbitrary ones until the map fits.
type LocalLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity int

	now func() time.Time // test hook
}

func NewLocalLimiter(capacity int) *LocalLimiter {
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	return &LocalLimiter{
		buckets:  make(map[string]*bucket),
		capacity: capacity,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Take(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		return Result{Allowed: false, Remaining: 0, RetryAfter: window}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.windowStarted.Add(window)) {
		if !ok && len(l.buckets) >= l.capacity {
			l.evictLocked(now, window)
		}
		l.buckets[key] = &bucket{count: 1, windowStarted: now}
		return Result{Allowed: true, Remaining: limit - 1}, nil
	}

	if b.count >= limit {
		retry := b.windowStarted.Add(window).Sub(now)
		if retry < minRetryAfter {
			retry = minRetryAfter
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	b.count++
	return Result{Allowed: true, Remaining: limit - b.count}, nil
}

// evictLocked drops expired buckets first, then arbitrary ones until the map
// is back under capacity. Callers hold l.mu.
func (l *LocalLimiter) evictLocked(now time.Time, window time.Duration) {
	for key, b := range l.buckets {
		if !now.Before(b.windowStarted.Add(window)) {
			delete(l.buckets, key)
		}
	}
	for key := range l.buckets {
		if len(l.buckets) < l.capacity {
			break
		}
		delete(l.buckets, key)
	}
}

// Len reports the current bucket count (used by tests and the health probe).
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
