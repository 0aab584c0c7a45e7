package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of taking one unit from a bucket.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter provides an atomic "take one unit from bucket" operation with
// fixed-window semantics. Implementations must be safe for concurrent use;
// the Redis-backed implementation is additionally consistent across
// processes.
type Limiter interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// minRetryAfter keeps callers from busy-looping when a window is about to
// roll over.
const minRetryAfter = time.Second
