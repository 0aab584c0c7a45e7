package ratelimit

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// FailoverLimiter tries the durable limiter first and degrades to the local
// one on any failure. During a Redis outage limits become per-instance
// rather than global; that availability-over-fairness tradeoff is
// intentional, so errors are logged and absorbed, never returned.
type FailoverLimiter struct {
	primary  Limiter
	fallback Limiter
}

func NewFailoverLimiter(primary, fallback Limiter) *FailoverLimiter {
	return &FailoverLimiter{primary: primary, fallback: fallback}
}

func (l *FailoverLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	res, err := l.primary.Take(ctx, key, limit, window)
	if err == nil {
		return res, nil
	}

	log.Warnf("[RateLimit] durable limiter unavailable, using local fallback: %v", err)
	return l.fallback.Take(ctx, key, limit, window)
}
