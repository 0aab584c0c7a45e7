package models

import "time"

// Mention is one discussion item found by the polling worker. The worker
// upserts on (platform, external_id); this service only reads these rows.
type Mention struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Platform       string    `gorm:"type:varchar(30);not null;index:ux_mentions_platform_external,unique,priority:1" json:"platform"`
	ExternalID     string    `gorm:"type:varchar(191);not null;index:ux_mentions_platform_external,unique,priority:2" json:"external_id"`
	URL            string    `gorm:"type:varchar(500);not null" json:"url"`
	Title          string    `gorm:"type:varchar(500)" json:"title"`
	BodyExcerpt    string    `gorm:"type:text" json:"body_excerpt"`
	Author         string    `gorm:"type:varchar(191)" json:"author"`
	Community      string    `gorm:"type:varchar(191)" json:"community"`
	PublishedAt    time.Time `gorm:"index" json:"published_at"`
	RawPayloadJSON string    `gorm:"type:longtext" json:"-"`
	FetchedAt      time.Time `gorm:"autoCreateTime" json:"fetched_at"`
}

// MentionMatch links a mention to the user keyword it matched.
type MentionMatch struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"type:char(36);not null;index:ux_mention_matches_user_mention_keyword,unique,priority:1" json:"user_id"`
	MentionID    uint      `gorm:"not null;index:ux_mention_matches_user_mention_keyword,unique,priority:2" json:"mention_id"`
	KeywordID    string    `gorm:"type:char(36);not null;index:ux_mention_matches_user_mention_keyword,unique,priority:3" json:"keyword_id"`
	BrandID      *string   `gorm:"type:char(36)" json:"brand_id,omitempty"`
	MatchedQuery string    `gorm:"type:varchar(200);not null" json:"matched_query"`
	CreatedAt    time.Time `json:"created_at"`
}
