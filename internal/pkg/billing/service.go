package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brandping/BrandPing/app/models"
	"gorm.io/gorm"
)

// ErrProfileNotFound means the event's user identity resolved to no profile.
// Distinct from store failures: the former is the sender's problem (400),
// the latter a dependency failure (502).
var ErrProfileNotFound = errors.New("billing: no profile for webhook user identity")

// Service reconciles billing state from verified, non-duplicate webhook
// events.
type Service struct {
	repo Repository
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Repo exposes the underlying repository for wiring (idempotency guard,
// processed-event bookkeeping).
func (s *Service) Repo() Repository {
	return s.repo
}

// Apply resolves the event's profile, computes the reconciliation patch and
// persists it. The returned bool is false when the event was informational
// and nothing was written.
func (s *Service) Apply(ctx context.Context, ev Event, now time.Time) (*models.Profile, bool, error) {
	profile, err := s.resolveProfile(ctx, ev)
	if err != nil {
		return nil, false, err
	}

	patch, ok := ComputePatch(profile, ev, now)
	if !ok {
		return profile, false, nil
	}

	updated, err := s.repo.ApplyBillingPatch(ctx, profile.ID, patch)
	if err != nil {
		return nil, false, fmt.Errorf("billing: apply patch for profile %s: %w", profile.ID, err)
	}
	return updated, true, nil
}

func (s *Service) resolveProfile(ctx context.Context, ev Event) (*models.Profile, error) {
	if ev.ExternalUserID != "" {
		p, err := s.repo.GetProfileByID(ctx, ev.ExternalUserID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("billing: profile lookup by id: %w", err)
		}
		// Fall through to the email lookup: some providers omit our user id
		// from metadata on renewal events.
	}

	if ev.CustomerEmail != "" {
		p, err := s.repo.GetProfileByEmail(ctx, ev.CustomerEmail)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("billing: profile lookup by email: %w", err)
		}
	}

	return nil, ErrProfileNotFound
}
