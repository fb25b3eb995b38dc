package repository

import (
	"time"

	"github.com/StefanMaier/MarketFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// marketplaceAccountRepository implements the MarketplaceAccountRepository interface
type marketplaceAccountRepository struct {
	db *gorm.DB
}

// NewMarketplaceAccountRepository creates a new marketplace account repository instance
func NewMarketplaceAccountRepository(db *gorm.DB) MarketplaceAccountRepository {
	return &marketplaceAccountRepository{db: db}
}

func (r *marketplaceAccountRepository) GetByID(id uint) (*models.MarketplaceAccount, error) {
	var account models.MarketplaceAccount
	if err := r.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *marketplaceAccountRepository) GetByUserID(userID uint) (*models.MarketplaceAccount, error) {
	var account models.MarketplaceAccount
	if err := r.db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// First returns the oldest connected account. Single-account installations
// use it to resolve the default account when no explicit id is given.
func (r *marketplaceAccountRepository) First() (*models.MarketplaceAccount, error) {
	var account models.MarketplaceAccount
	if err := r.db.Order("id ASC").First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// Upsert creates or replaces the account connected for a user. The unique
// index on user_id keeps it at most one account per local user.
func (r *marketplaceAccountRepository) Upsert(account *models.MarketplaceAccount) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"seller_id",
			"nickname",
			"access_token",
			"refresh_token",
			"token_scope",
			"expires_at",
			"updated_at",
		}),
	}).Create(account).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ?", account.UserID).First(account).Error
}

// UpdateTokens overwrites the stored token pair in a single UPDATE so no
// partial write is ever visible.
func (r *marketplaceAccountRepository) UpdateTokens(id uint, accessToken, refreshToken, scope string, expiresAt time.Time) error {
	return r.db.Model(&models.MarketplaceAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_scope":   scope,
			"expires_at":    expiresAt,
		}).Error
}

func (r *marketplaceAccountRepository) Delete(id uint) error {
	return r.db.Delete(&models.MarketplaceAccount{}, id).Error
}
