package billing

import (
	"context"
	"time"

	"github.com/brandping/BrandPing/app/models"
	"github.com/brandping/BrandPing/internal/pkg/idempotency"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// reserveTimeout bounds the duplicate-detection insert so a slow database
// degrades to the guard's local fallback instead of stalling the request.
const reserveTimeout = 3 * time.Second

// Repository provides the DB operations used by the billing service and the
// webhook pipeline.
type Repository interface {
	GetProfileByID(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	ApplyBillingPatch(ctx context.Context, profileID string, patch Patch) (*models.Profile, error)
	ReserveWebhookEvent(ctx context.Context, rec idempotency.Record) (bool, error)
	MarkWebhookProcessed(ctx context.Context, provider, eventID string, processingErr error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyBillingPatch performs a filtered update of the billing columns and
// returns the updated row. Zero affected rows is an error: the caller
// resolved this profile moments ago.
func (r *gormRepository) ApplyBillingPatch(ctx context.Context, profileID string, patch Patch) (*models.Profile, error) {
	updates := map[string]interface{}{
		"plan_tier":        patch.PlanTier,
		"billing_mode":     patch.BillingMode,
		"plan_selected_at": patch.PlanSelectedAt,
		"trial_started_at": patch.TrialStartedAt,
		"trial_ends_at":    patch.TrialEndsAt,
	}

	tx := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", profileID).Updates(updates)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var p models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", profileID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ReserveWebhookEvent inserts the idempotency row, ignoring conflicts on the
// unique (provider, provider_event_id) index. RowsAffected tells us whether
// this call won the race; losing is not an error.
func (r *gormRepository) ReserveWebhookEvent(ctx context.Context, rec idempotency.Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, reserveTimeout)
	defer cancel()

	event := models.WebhookEvent{
		Provider:        rec.Provider,
		ProviderEventID: rec.EventID,
		EventType:       rec.EventType,
		PayloadJSON:     rec.Payload,
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(&event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// MarkWebhookProcessed records the processing outcome on the event row.
// Best-effort: when the reservation was served by the local fallback there
// is no row to update.
func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, provider, eventID string, processingErr error) error {
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": errMsg,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Updates(updates).Error
}
