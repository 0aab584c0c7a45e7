package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Keyword is a tracked search query owned by a user, optionally attached to
// a brand. The polling worker matches mentions against active keywords.
type Keyword struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:char(36);not null;index" json:"user_id"`
	BrandID   *string   `gorm:"type:char(36);index" json:"brand_id,omitempty"`
	Query     string    `gorm:"type:varchar(200);not null" json:"query"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (k *Keyword) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}
