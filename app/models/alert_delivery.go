package models

import "time"

// Alert delivery states. Failed deliveries are retried with backoff until
// they either succeed or exhaust their retry budget and move to dead_letter.
const (
	AlertStatusPending    = "pending"
	AlertStatusSent       = "sent"
	AlertStatusFailed     = "failed"
	AlertStatusDeadLetter = "dead_letter"
)

// AlertDelivery tracks one Slack notification owed to a user for a mention
// match. Uniqueness over (user, mention, keyword) keeps redelivered matches
// from double-alerting.
type AlertDelivery struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        string     `gorm:"type:char(36);not null;index:ux_alert_deliveries_user_mention_keyword,unique,priority:1" json:"user_id"`
	MentionID     uint       `gorm:"not null;index:ux_alert_deliveries_user_mention_keyword,unique,priority:2" json:"mention_id"`
	KeywordID     string     `gorm:"type:char(36);not null;index:ux_alert_deliveries_user_mention_keyword,unique,priority:3" json:"keyword_id"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RetryCount    int        `gorm:"default:0" json:"retry_count"`
	NextAttemptAt time.Time  `gorm:"index" json:"next_attempt_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	LastError     string     `gorm:"type:varchar(800)" json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
