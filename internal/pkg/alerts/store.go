package alerts

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/brandping/BrandPing/app/models"
)

// Retry policy for failed Slack deliveries.
const (
	MaxRetries   = 3
	retryBackoff = time.Minute
	backoffCap   = 30 * time.Minute

	// claimLease must exceed a worker's send timeout; a crashed worker's
	// claim expires after this long and the sweeper picks the row up again.
	claimLease = 2 * time.Minute
)

// Store loads due alert deliveries and records delivery outcomes.
type Store interface {
	DueDeliveryIDs(ctx context.Context, now time.Time, limit int) ([]uint, error)
	ClaimDelivery(ctx context.Context, deliveryID uint, now time.Time) (bool, error)
	LoadAlert(ctx context.Context, deliveryID uint) (PendingAlert, error)
	MarkSent(ctx context.Context, deliveryID uint, now time.Time) error
	MarkFailed(ctx context.Context, deliveryID uint, now time.Time, sendErr error) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DueDeliveryIDs returns pending deliveries whose next attempt is due,
// oldest first.
func (s *gormStore) DueDeliveryIDs(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.AlertDelivery{}).
		Where("status = ? AND next_attempt_at <= ?", models.AlertStatusPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ClaimDelivery takes exclusive ownership of a due pending delivery by
// pushing next_attempt_at past the lease window in one guarded update. The
// WHERE clause is the lock: a delivery already claimed (or already resolved)
// matches zero rows, so at most one worker sends it even when the sweeper
// enqueued the same ID twice. MarkSent/MarkFailed run under this claim, which
// also keeps the retry bookkeeping single-writer.
func (s *gormStore) ClaimDelivery(ctx context.Context, deliveryID uint, now time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).
		Model(&models.AlertDelivery{}).
		Where("id = ? AND status = ? AND next_attempt_at <= ?", deliveryID, models.AlertStatusPending, now).
		Update("next_attempt_at", now.Add(claimLease))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// LoadAlert joins the delivery with its mention, keyword, brand, and the
// owner's Slack webhook URL.
func (s *gormStore) LoadAlert(ctx context.Context, deliveryID uint) (PendingAlert, error) {
	db := s.db.WithContext(ctx)

	var delivery models.AlertDelivery
	if err := db.First(&delivery, deliveryID).Error; err != nil {
		return PendingAlert{}, err
	}

	var mention models.Mention
	if err := db.First(&mention, delivery.MentionID).Error; err != nil {
		return PendingAlert{}, err
	}

	var keyword models.Keyword
	if err := db.First(&keyword, "id = ?", delivery.KeywordID).Error; err != nil {
		return PendingAlert{}, err
	}

	brandName := ""
	if keyword.BrandID != nil {
		var brand models.Brand
		if err := db.First(&brand, "id = ?", *keyword.BrandID).Error; err == nil {
			brandName = brand.Name
		}
	}

	var profile models.Profile
	if err := db.First(&profile, "id = ?", delivery.UserID).Error; err != nil {
		return PendingAlert{}, err
	}

	return PendingAlert{
		DeliveryID: delivery.ID,
		Mention:    mention,
		BrandName:  brandName,
		Query:      keyword.Query,
		WebhookURL: profile.SlackWebhookURL,
	}, nil
}

func (s *gormStore) MarkSent(ctx context.Context, deliveryID uint, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.AlertDelivery{}).
		Where("id = ?", deliveryID).
		Updates(map[string]any{
			"status":     models.AlertStatusSent,
			"sent_at":    now,
			"last_error": "",
		}).Error
}

// MarkFailed bumps the retry counter and schedules the next attempt with
// exponential backoff. After MaxRetries failures the delivery is parked in
// dead_letter and never retried automatically.
func (s *gormStore) MarkFailed(ctx context.Context, deliveryID uint, now time.Time, sendErr error) error {
	var delivery models.AlertDelivery
	if err := s.db.WithContext(ctx).First(&delivery, deliveryID).Error; err != nil {
		return err
	}

	retries := delivery.RetryCount + 1
	updates := map[string]any{
		"retry_count": retries,
		"last_error":  truncateError(sendErr),
	}
	if retries >= MaxRetries {
		updates["status"] = models.AlertStatusDeadLetter
	} else {
		updates["status"] = models.AlertStatusPending
		updates["next_attempt_at"] = now.Add(BackoffDelay(retries))
	}

	return s.db.WithContext(ctx).
		Model(&models.AlertDelivery{}).
		Where("id = ?", deliveryID).
		Updates(updates).Error
}

// BackoffDelay returns the wait before attempt retries+1: one minute doubled
// per failed attempt, capped at thirty minutes.
func BackoffDelay(retries int) time.Duration {
	delay := retryBackoff
	for i := 1; i < retries; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 800 {
		msg = msg[:800]
	}
	return msg
}
