package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubReserver struct {
	mu    sync.Mutex
	rows  map[string]bool
	err   error
	calls int
}

func newStubReserver() *stubReserver {
	return &stubReserver{rows: map[string]bool{}}
}

func (s *stubReserver) ReserveWebhookEvent(_ context.Context, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	key := rec.Provider + ":" + rec.EventID
	if s.rows[key] {
		return false, nil
	}
	s.rows[key] = true
	return true, nil
}

func reserve(g *Guard, provider, eventID string) bool {
	return g.Reserve(context.Background(), Record{Provider: provider, EventID: eventID})
}

func TestGuardDurablePath(t *testing.T) {
	store := newStubReserver()
	g := NewGuard(store)

	if !reserve(g, "dodo", "evt_1") {
		t.Fatalf("first reservation should win")
	}
	if reserve(g, "dodo", "evt_1") {
		t.Fatalf("replay of evt_1 should be a duplicate")
	}
	if !reserve(g, "dodo", "evt_2") {
		t.Fatalf("distinct event id should reserve")
	}
	if !reserve(g, "stripe", "evt_1") {
		t.Fatalf("same event id under another provider is a distinct key")
	}
}

func TestGuardFallsBackWhenStoreUnreachable(t *testing.T) {
	store := newStubReserver()
	store.err = errors.New("dial tcp: connection refused")
	g := NewGuard(store)

	if !reserve(g, "dodo", "evt_1") {
		t.Fatalf("fallback should grant the first reservation")
	}
	if reserve(g, "dodo", "evt_1") {
		t.Fatalf("fallback should catch the duplicate")
	}

	// Store recovers: durable path takes over again.
	store.err = nil
	if !reserve(g, "dodo", "evt_3") {
		t.Fatalf("recovered store should reserve new events")
	}
}

func TestGuardLocalConcurrentReserve(t *testing.T) {
	store := newStubReserver()
	store.err = errors.New("unreachable")
	g := NewGuard(store)

	const workers = 32
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() { wins <- reserve(g, "dodo", "evt_race") }()
	}

	granted := 0
	for i := 0; i < workers; i++ {
		if <-wins {
			granted++
		}
	}
	if granted != 1 {
		t.Fatalf("exactly one concurrent reservation may win, got %d", granted)
	}
}

func TestGuardLocalTTLPruning(t *testing.T) {
	store := newStubReserver()
	store.err = errors.New("unreachable")
	g := NewGuard(store)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	if !reserve(g, "dodo", "evt_old") {
		t.Fatalf("initial reservation should win")
	}

	// Providers only retry within a bounded window; after the TTL the entry
	// may be forgotten and the event reserved again.
	now = now.Add(25 * time.Hour)
	for i := 0; i < pruneEvery; i++ {
		reserve(g, "dodo", fmt.Sprintf("filler_%d", i))
	}
	if !reserve(g, "dodo", "evt_old") {
		t.Fatalf("expired entry should have been pruned")
	}
}

func TestGuardLocalCapacityBound(t *testing.T) {
	store := newStubReserver()
	store.err = errors.New("unreachable")
	g := NewGuard(store)
	g.capacity = 16

	for i := 0; i < 200; i++ {
		reserve(g, "dodo", fmt.Sprintf("evt_%d", i))
	}

	g.mu.Lock()
	size := len(g.seen)
	g.mu.Unlock()
	if size > 16 {
		t.Fatalf("fallback map exceeded capacity: %d", size)
	}
}
