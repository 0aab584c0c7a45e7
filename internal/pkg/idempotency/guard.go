package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Record carries what the durable store persists alongside the idempotency
// key: the event type and raw payload for auditing.
type Record struct {
	Provider  string
	EventID   string
	EventType string
	Payload   string
}

// Reserver is the durable insert-or-ignore primitive over the unique
// (provider, eventID) constraint. It returns true when this call created
// the row. A duplicate is (false, nil); an error means the store could not
// be reached, not that the event was seen before.
type Reserver interface {
	ReserveWebhookEvent(ctx context.Context, rec Record) (bool, error)
}

const (
	defaultTTL      = 24 * time.Hour
	defaultCapacity = 50000
	pruneEvery      = 256
)

// Guard reserves a (provider, eventID) pair exactly once. The durable store
// is authoritative; when it is unreachable the guard degrades to a
// process-local map, which weakens cross-instance idempotency to
// per-instance idempotency for the duration of the outage.
type Guard struct {
	durable Reserver

	mu    sync.Mutex
	seen  map[string]time.Time
	calls uint64

	ttl      time.Duration
	capacity int
	now      func() time.Time // test hook
}

func NewGuard(durable Reserver) *Guard {
	return &Guard{
		durable:  durable,
		seen:     make(map[string]time.Time),
		ttl:      defaultTTL,
		capacity: defaultCapacity,
		now:      time.Now,
	}
}

// Reserve reports whether the caller is first to see this event and should
// proceed. false means duplicate: the provider already got a 2xx for this
// event, so the caller short-circuits with a success response.
func (g *Guard) Reserve(ctx context.Context, rec Record) bool {
	created, err := g.durable.ReserveWebhookEvent(ctx, rec)
	if err == nil {
		return created
	}

	log.Warnf("[Idempotency] durable store unavailable, using local fallback: %v", err)
	return g.reserveLocal(rec.Provider + ":" + rec.EventID)
}

// reserveLocal is a single atomic check-and-set on the fallback map; a
// read-then-write split would double-admit concurrent retries.
func (g *Guard) reserveLocal(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	g.calls++
	if g.calls%pruneEvery == 0 || len(g.seen) >= g.capacity {
		g.pruneLocked(now)
	}

	if _, dup := g.seen[key]; dup {
		return false
	}
	g.seen[key] = now
	return true
}

// pruneLocked drops entries past the TTL, then arbitrary entries until the
// map is back under capacity. Callers hold g.mu.
func (g *Guard) pruneLocked(now time.Time) {
	for key, seenAt := range g.seen {
		if now.Sub(seenAt) > g.ttl {
			delete(g.seen, key)
		}
	}
	for key := range g.seen {
		if len(g.seen) < g.capacity {
			break
		}
		delete(g.seen, key)
	}
}
