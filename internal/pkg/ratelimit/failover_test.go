package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubLimiter struct {
	res   Result
	err   error
	calls int
}

func (s *stubLimiter) Take(context.Context, string, int, time.Duration) (Result, error) {
	s.calls++
	return s.res, s.err
}

func TestFailoverLimiterPrefersPrimary(t *testing.T) {
	primary := &stubLimiter{res: Result{Allowed: true, Remaining: 4}}
	fallback := &stubLimiter{res: Result{Allowed: false}}
	l := NewFailoverLimiter(primary, fallback)

	res, err := l.Take(context.Background(), "k", 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Remaining != 4 {
		t.Fatalf("expected primary result, got %+v", res)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not be consulted when primary succeeds")
	}
}

func TestFailoverLimiterDegradesOnPrimaryError(t *testing.T) {
	primary := &stubLimiter{err: errors.New("connection refused")}
	fallback := &stubLimiter{res: Result{Allowed: true, Remaining: 1}}
	l := NewFailoverLimiter(primary, fallback)

	res, err := l.Take(context.Background(), "k", 2, time.Minute)
	if err != nil {
		t.Fatalf("primary failure must be absorbed, got error: %v", err)
	}
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("expected fallback result, got %+v", res)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fallback.calls)
	}
}
