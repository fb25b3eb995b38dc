package repository

import (
	"github.com/StefanMaier/MarketFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// productRepository implements the ProductRepository interface
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository instance
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// Upsert writes the catalog row keyed by external id. Last writer wins at the
// row level; sync jobs and webhook processing may interleave here.
func (r *productRepository) Upsert(product *models.Product) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_id",
			"title",
			"brand",
			"price",
			"currency_id",
			"available_qty",
			"condition",
			"permalink",
			"thumbnail_url",
			"description",
			"active",
			"remote_updated",
			"updated_at",
		}),
	}).Create(product).Error
}

func (r *productRepository) GetByExternalID(externalID string) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("external_id = ?", externalID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) CountByAccount(accountID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Product{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}
