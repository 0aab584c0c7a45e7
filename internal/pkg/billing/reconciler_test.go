package billing

import (
	"testing"
	"time"

	"github.com/brandping/BrandPing/app/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func paidEvent(tier string) Event {
	return Event{Type: "payment.succeeded", Kind: EventPaid, Tier: tier}
}

func trialEvent(tier string, days int) Event {
	return Event{Type: "checkout.session.completed", Kind: EventTrialCheckout, Tier: tier, TrialDays: days}
}

func TestComputePatchPaidEvent(t *testing.T) {
	profile := &models.Profile{ID: "p1"}

	patch, ok := ComputePatch(profile, paidEvent("growth_15"), testNow)
	if !ok {
		t.Fatalf("paid event must produce a patch")
	}
	if patch.BillingMode != models.BillingModePaid || patch.PlanTier != "growth_15" {
		t.Fatalf("unexpected patch %+v", patch)
	}
	if patch.PlanSelectedAt == nil || !patch.PlanSelectedAt.Equal(testNow) {
		t.Fatalf("PlanSelectedAt should be set to now on first selection")
	}
	if patch.TrialStartedAt != nil || patch.TrialEndsAt != nil {
		t.Fatalf("paid patch must clear trial fields")
	}
}

func TestComputePatchPaidIsIdempotent(t *testing.T) {
	selected := testNow.Add(-48 * time.Hour)
	profile := &models.Profile{
		ID:             "p1",
		PlanTier:       "growth_15",
		BillingMode:    models.BillingModePaid,
		PlanSelectedAt: &selected,
	}

	patch, ok := ComputePatch(profile, paidEvent("growth_15"), testNow)
	if !ok {
		t.Fatalf("paid event must produce a patch")
	}
	if patch.BillingMode != models.BillingModePaid || patch.PlanTier != "growth_15" {
		t.Fatalf("unexpected patch %+v", patch)
	}
	if patch.PlanSelectedAt == nil || !patch.PlanSelectedAt.Equal(selected) {
		t.Fatalf("PlanSelectedAt is set at most once; got %v", patch.PlanSelectedAt)
	}
}

func TestComputePatchMonotonicity(t *testing.T) {
	// A stale trial-checkout event delivered after the profile went paid must
	// not downgrade it, whatever the event's trial metadata says.
	selected := testNow.Add(-time.Hour)
	profile := &models.Profile{
		ID:             "p1",
		PlanTier:       "growth_15",
		BillingMode:    models.BillingModePaid,
		PlanSelectedAt: &selected,
	}

	patch, ok := ComputePatch(profile, trialEvent("starter_5", 2), testNow)
	if !ok {
		t.Fatalf("stale checkout on a paid profile still recomputes the paid patch")
	}
	if patch.BillingMode != models.BillingModePaid {
		t.Fatalf("billing mode regressed to %q", patch.BillingMode)
	}
	if patch.PlanTier != "growth_15" {
		t.Fatalf("tier regressed to %q from the stale event's metadata", patch.PlanTier)
	}
	if patch.TrialStartedAt != nil || patch.TrialEndsAt != nil {
		t.Fatalf("trial fields must stay cleared on a paid profile")
	}
}

func TestComputePatchTrialStart(t *testing.T) {
	profile := &models.Profile{ID: "p1"}

	patch, ok := ComputePatch(profile, trialEvent("starter_5", 2), testNow)
	if !ok {
		t.Fatalf("trial checkout must produce a patch")
	}
	if patch.BillingMode != models.BillingModeTrial || patch.PlanTier != "starter_5" {
		t.Fatalf("unexpected patch %+v", patch)
	}
	if patch.TrialStartedAt == nil || !patch.TrialStartedAt.Equal(testNow) {
		t.Fatalf("TrialStartedAt should be now")
	}
	wantEnds := testNow.AddDate(0, 0, 2)
	if patch.TrialEndsAt == nil || !patch.TrialEndsAt.Equal(wantEnds) {
		t.Fatalf("TrialEndsAt = %v, want %v", patch.TrialEndsAt, wantEnds)
	}
}

func TestComputePatchTrialReplayDoesNotRestartClock(t *testing.T) {
	started := testNow.Add(-24 * time.Hour)
	ends := started.AddDate(0, 0, 2)
	selected := started
	profile := &models.Profile{
		ID:             "p1",
		PlanTier:       "starter_5",
		BillingMode:    models.BillingModeTrial,
		PlanSelectedAt: &selected,
		TrialStartedAt: &started,
		TrialEndsAt:    &ends,
	}

	first, ok := ComputePatch(profile, trialEvent("starter_5", 2), testNow)
	if !ok {
		t.Fatalf("trial replay must still produce a patch")
	}
	second, ok := ComputePatch(profile, trialEvent("starter_5", 2), testNow.Add(time.Hour))
	if !ok {
		t.Fatalf("trial replay must still produce a patch")
	}

	for _, patch := range []Patch{first, second} {
		if patch.TrialStartedAt == nil || !patch.TrialStartedAt.Equal(started) {
			t.Fatalf("replay moved TrialStartedAt to %v", patch.TrialStartedAt)
		}
		if patch.TrialEndsAt == nil || !patch.TrialEndsAt.Equal(ends) {
			t.Fatalf("replay moved TrialEndsAt to %v", patch.TrialEndsAt)
		}
	}
}

func TestComputePatchTrialWithoutEndGetsOneRebuilt(t *testing.T) {
	// A row with a trial start but no end can only come from manual edits;
	// the patch must still bound the trial, anchored to the original start.
	started := testNow.Add(-24 * time.Hour)
	profile := &models.Profile{
		ID:             "p1",
		PlanTier:       "starter_5",
		BillingMode:    models.BillingModeTrial,
		TrialStartedAt: &started,
	}

	patch, ok := ComputePatch(profile, trialEvent("starter_5", 2), testNow)
	if !ok {
		t.Fatalf("trial replay must still produce a patch")
	}
	if patch.TrialStartedAt == nil || !patch.TrialStartedAt.Equal(started) {
		t.Fatalf("rebuild moved TrialStartedAt to %v", patch.TrialStartedAt)
	}
	wantEnds := started.AddDate(0, 0, 2)
	if patch.TrialEndsAt == nil || !patch.TrialEndsAt.Equal(wantEnds) {
		t.Fatalf("TrialEndsAt = %v, want %v", patch.TrialEndsAt, wantEnds)
	}
}

func TestComputePatchIgnoresInformationalEvents(t *testing.T) {
	profiles := []*models.Profile{
		{ID: "fresh"},
		{ID: "paying", BillingMode: models.BillingModePaid, PlanTier: "growth_15"},
	}
	for _, profile := range profiles {
		if _, ok := ComputePatch(profile, Event{Type: "payment.failed", Kind: EventOther}, testNow); ok {
			t.Fatalf("informational event produced a patch for profile %s", profile.ID)
		}
	}
}

func TestComputePatchUnknownTierFallsBack(t *testing.T) {
	patch, ok := ComputePatch(&models.Profile{ID: "p1"}, paidEvent("vip_999"), testNow)
	if !ok {
		t.Fatalf("paid event must produce a patch")
	}
	if patch.PlanTier != TierStarter {
		t.Fatalf("unknown tier should fall back to %q, got %q", TierStarter, patch.PlanTier)
	}
}
