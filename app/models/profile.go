package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Billing modes a profile can be in. An empty string means the user has not
// selected a plan yet.
const (
	BillingModeTrial = "trial"
	BillingModePaid  = "paid"
)

// Profile is the billing-state owner for a user. The webhook reconciler only
// ever patches the billing columns; everything else is managed by the
// onboarding flow.
type Profile struct {
	ID              string     `gorm:"type:char(36);primaryKey" json:"id"`
	Email           string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	PlanTier        string     `gorm:"type:varchar(50);default:''" json:"plan_tier"`
	BillingMode     string     `gorm:"type:varchar(20);default:''" json:"billing_mode"`
	PlanSelectedAt  *time.Time `json:"plan_selected_at"`
	TrialStartedAt  *time.Time `json:"trial_started_at"`
	TrialEndsAt     *time.Time `json:"trial_ends_at"`
	SlackWebhookURL string     `gorm:"type:varchar(500);default:''" json:"-"`
	APIKeyHash      string     `gorm:"type:char(64);default:'';index" json:"-"`
	OnboardingDone  bool       `gorm:"default:false" json:"onboarding_done"`
	IsActive        bool       `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// IsPaid reports whether the profile has completed a successful payment.
func (p *Profile) IsPaid() bool {
	return p.BillingMode == BillingModePaid
}

// TrialActive reports whether a started trial is still running at now.
func (p *Profile) TrialActive(now time.Time) bool {
	return p.BillingMode == BillingModeTrial &&
		p.TrialEndsAt != nil && now.Before(*p.TrialEndsAt)
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
