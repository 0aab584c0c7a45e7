package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EventKind is the classification of a webhook event. Classification happens
// once at parse time; the reconciler never probes raw metadata itself.
type EventKind int

const (
	// EventOther is informational: acknowledged but never applied.
	EventOther EventKind = iota
	// EventPaid is a completed payment or renewal.
	EventPaid
	// EventTrialCheckout is a completed checkout that requests a trial.
	EventTrialCheckout
)

// Event is the transient, parsed form of one webhook delivery.
type Event struct {
	Type           string
	Kind           EventKind
	Metadata       map[string]string
	CustomerEmail  string
	ExternalUserID string
	Tier           string
	TrialDays      int
}

// HasUserIdentity reports whether the event can be resolved to a profile.
func (e Event) HasUserIdentity() bool {
	return e.ExternalUserID != "" || e.CustomerEmail != ""
}

type eventEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Metadata map[string]any `json:"metadata"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// ParseEvent decodes a provider payload into the tagged Event union.
func ParseEvent(raw []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("billing: malformed webhook payload: %w", err)
	}

	meta := make(map[string]string, len(env.Data.Metadata))
	for key, val := range env.Data.Metadata {
		switch v := val.(type) {
		case string:
			meta[key] = v
		case float64:
			meta[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			meta[key] = strconv.FormatBool(v)
		}
	}

	ev := Event{
		Type:           strings.ToLower(strings.TrimSpace(env.Type)),
		Metadata:       meta,
		CustomerEmail:  strings.TrimSpace(env.Data.Customer.Email),
		ExternalUserID: strings.TrimSpace(meta["user_id"]),
		Tier:           meta["plan"],
	}
	if days, err := strconv.Atoi(meta["trial_days"]); err == nil && days > 0 {
		ev.TrialDays = days
	}
	ev.Kind = classify(ev)
	return ev, nil
}

// isSuccessType lists the provider event types that represent a completed
// outcome. Everything else is informational.
func isSuccessType(eventType string) bool {
	switch eventType {
	case "payment.succeeded", "subscription.active", "subscription.renewed", "checkout.session.completed":
		return true
	default:
		return false
	}
}

func classify(ev Event) EventKind {
	if !isSuccessType(ev.Type) {
		return EventOther
	}
	if ev.Metadata["billing_mode"] == "trial" && ev.TrialDays > 0 {
		return EventTrialCheckout
	}
	return EventPaid
}
