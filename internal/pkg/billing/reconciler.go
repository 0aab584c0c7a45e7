package billing

import (
	"time"

	"github.com/brandping/BrandPing/app/models"
)

// Patch is the next billing state for a profile, computed from one event
// plus the current snapshot. It is applied as a filtered update; the
// reconciler itself performs no side effects.
type Patch struct {
	PlanTier       string
	BillingMode    string
	PlanSelectedAt *time.Time
	TrialStartedAt *time.Time
	TrialEndsAt    *time.Time
}

// ComputePatch maps a verified, non-duplicate event to a profile patch. The
// second return is false when the event is informational and nothing should
// be written.
//
// The state machine is monotonic over billingMode: deliveries may arrive in
// any order, and a profile that reached "paid" never moves back to "trial"
// here. Only a fresh purchase flow could do that, and webhook replay is not
// that flow.
func ComputePatch(profile *models.Profile, ev Event, now time.Time) (Patch, bool) {
	switch {
	case ev.Kind == EventPaid:
		return paidPatch(profile, ev, now), true
	case ev.Kind == EventTrialCheckout && profile.IsPaid():
		// Stale checkout event after a completed payment: recompute the paid
		// state instead of trusting the older event's trial metadata.
		return paidPatch(profile, ev, now), true
	case ev.Kind == EventTrialCheckout:
		return trialPatch(profile, ev, now), true
	default:
		return Patch{}, false
	}
}

func paidPatch(profile *models.Profile, ev Event, now time.Time) Patch {
	tier := NormalizeTier(ev.Tier)
	if profile.IsPaid() && ev.Kind != EventPaid && profile.PlanTier != "" {
		// Out-of-order delivery: keep the tier the payment established.
		tier = profile.PlanTier
	}

	return Patch{
		PlanTier:       tier,
		BillingMode:    models.BillingModePaid,
		PlanSelectedAt: selectedAt(profile, now),
		TrialStartedAt: nil,
		TrialEndsAt:    nil,
	}
}

func trialPatch(profile *models.Profile, ev Event, now time.Time) Patch {
	started := profile.TrialStartedAt
	ends := profile.TrialEndsAt
	if started == nil {
		s := now
		e := now.AddDate(0, 0, ev.TrialDays)
		started, ends = &s, &e
	} else if ends == nil {
		// A started trial must have an end; rebuild it from the original
		// start so a half-written row cannot become an unbounded trial.
		e := started.AddDate(0, 0, ev.TrialDays)
		ends = &e
	}
	// On replay the original trial window stands; replays never extend or
	// restart the clock.

	return Patch{
		PlanTier:       NormalizeTier(ev.Tier),
		BillingMode:    models.BillingModeTrial,
		PlanSelectedAt: selectedAt(profile, now),
		TrialStartedAt: started,
		TrialEndsAt:    ends,
	}
}

// selectedAt preserves an existing plan-selection timestamp; it is set at
// most once and never cleared.
func selectedAt(profile *models.Profile, now time.Time) *time.Time {
	if profile.PlanSelectedAt != nil {
		return profile.PlanSelectedAt
	}
	return &now
}
