package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/brandping/BrandPing/app/models"
	"github.com/brandping/BrandPing/internal/pkg/idempotency"
	"gorm.io/gorm"
)

type fakeRepo struct {
	profiles  map[string]*models.Profile // keyed by id
	byEmail   map[string]*models.Profile
	patches   []Patch
	lookupErr error
}

func newFakeRepo(profiles ...*models.Profile) *fakeRepo {
	r := &fakeRepo{profiles: map[string]*models.Profile{}, byEmail: map[string]*models.Profile{}}
	for _, p := range profiles {
		r.profiles[p.ID] = p
		if p.Email != "" {
			r.byEmail[p.Email] = p
		}
	}
	return r
}

func (r *fakeRepo) GetProfileByID(_ context.Context, id string) (*models.Profile, error) {
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	if p, ok := r.profiles[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetProfileByEmail(_ context.Context, email string) (*models.Profile, error) {
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	if p, ok := r.byEmail[email]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ApplyBillingPatch(_ context.Context, profileID string, patch Patch) (*models.Profile, error) {
	p, ok := r.profiles[profileID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r.patches = append(r.patches, patch)
	p.PlanTier = patch.PlanTier
	p.BillingMode = patch.BillingMode
	p.PlanSelectedAt = patch.PlanSelectedAt
	p.TrialStartedAt = patch.TrialStartedAt
	p.TrialEndsAt = patch.TrialEndsAt
	return p, nil
}

func (r *fakeRepo) ReserveWebhookEvent(context.Context, idempotency.Record) (bool, error) {
	return true, nil
}

func (r *fakeRepo) MarkWebhookProcessed(context.Context, string, string, error) error {
	return nil
}

func TestServiceApplyPaidEvent(t *testing.T) {
	repo := newFakeRepo(&models.Profile{ID: "u_1", Email: "ada@example.com"})
	svc := NewService(repo)

	ev := Event{Kind: EventPaid, ExternalUserID: "u_1", Tier: "growth_15"}
	updated, applied, err := svc.Apply(context.Background(), ev, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatalf("paid event should be applied")
	}
	if updated.BillingMode != models.BillingModePaid || updated.PlanTier != "growth_15" {
		t.Fatalf("profile not reconciled: %+v", updated)
	}
	if len(repo.patches) != 1 {
		t.Fatalf("expected exactly one patch write, got %d", len(repo.patches))
	}
}

func TestServiceApplyResolvesByEmailWhenIDMissing(t *testing.T) {
	repo := newFakeRepo(&models.Profile{ID: "u_1", Email: "ada@example.com"})
	svc := NewService(repo)

	ev := Event{Kind: EventPaid, ExternalUserID: "u_gone", CustomerEmail: "ada@example.com", Tier: "starter_5"}
	updated, applied, err := svc.Apply(context.Background(), ev, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied || updated.ID != "u_1" {
		t.Fatalf("expected email fallback to resolve u_1, got %+v", updated)
	}
}

func TestServiceApplyUnknownIdentity(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	ev := Event{Kind: EventPaid, ExternalUserID: "u_none", CustomerEmail: "no@one.example"}
	_, _, err := svc.Apply(context.Background(), ev, testNow)
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestServiceApplyStoreFailurePropagates(t *testing.T) {
	repo := newFakeRepo(&models.Profile{ID: "u_1"})
	repo.lookupErr = errors.New("driver: bad connection")
	svc := NewService(repo)

	ev := Event{Kind: EventPaid, ExternalUserID: "u_1"}
	if _, _, err := svc.Apply(context.Background(), ev, testNow); err == nil {
		t.Fatalf("profile store failure must propagate, it has no fallback")
	}
}

func TestServiceApplyInformationalEventWritesNothing(t *testing.T) {
	repo := newFakeRepo(&models.Profile{ID: "u_1"})
	svc := NewService(repo)

	ev := Event{Kind: EventOther, ExternalUserID: "u_1"}
	_, applied, err := svc.Apply(context.Background(), ev, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Fatalf("informational events must not be applied")
	}
	if len(repo.patches) != 0 {
		t.Fatalf("informational event wrote %d patches", len(repo.patches))
	}
}
