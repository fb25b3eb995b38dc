package repository

import (
	"time"

	"github.com/StefanMaier/MarketFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// productSyncStateRepository implements the ProductSyncStateRepository interface
type productSyncStateRepository struct {
	db *gorm.DB
}

// NewProductSyncStateRepository creates a new product sync state repository instance
func NewProductSyncStateRepository(db *gorm.DB) ProductSyncStateRepository {
	return &productSyncStateRepository{db: db}
}

func (r *productSyncStateRepository) GetByExternalID(externalID string) (*models.ProductSyncState, error) {
	var state models.ProductSyncState
	if err := r.db.Where("external_id = ?", externalID).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *productSyncStateRepository) ListByAccount(accountID uint) ([]models.ProductSyncState, error) {
	var states []models.ProductSyncState
	err := r.db.Where("account_id = ?", accountID).Find(&states).Error
	return states, err
}

// Watermark returns the newest successful sync timestamp for the account, or
// nil when nothing has ever been synced (full fetch required).
func (r *productSyncStateRepository) Watermark(accountID uint) (*time.Time, error) {
	var state models.ProductSyncState
	err := r.db.
		Where("account_id = ? AND last_synced_at IS NOT NULL", accountID).
		Order("last_synced_at DESC").
		First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return state.LastSyncedAt, nil
}

// RecordSuccess upserts the state row with a fresh watermark and clears any
// previous error.
func (r *productSyncStateRepository) RecordSuccess(accountID uint, externalID string, syncedAt time.Time) error {
	state := &models.ProductSyncState{
		ExternalID:   externalID,
		AccountID:    accountID,
		LastSyncedAt: &syncedAt,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_synced_at": syncedAt,
			"last_error":     "",
			"retry_count":    0,
			"updated_at":     time.Now(),
		}),
	}).Create(state).Error
}

// RecordError upserts the state row with the failure and bumps the retry
// counter. The watermark is left untouched.
func (r *productSyncStateRepository) RecordError(accountID uint, externalID string, syncErr string) error {
	state := &models.ProductSyncState{
		ExternalID: externalID,
		AccountID:  accountID,
		LastError:  syncErr,
		RetryCount: 1,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_error":  syncErr,
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now(),
		}),
	}).Create(state).Error
}
