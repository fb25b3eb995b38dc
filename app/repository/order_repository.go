package repository

import (
	"github.com/StefanMaier/MarketFox/app/models"
	"gorm.io/gorm"
)

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

func (r *orderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByReference(reference string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Where("reference = ?", reference).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ApplyPaymentUpdate writes the payment-derived fields in one UPDATE. The
// write carries the full field set every time, so reapplying the same mapping
// is idempotent apart from the updated_at timestamp.
func (r *orderRepository) ApplyPaymentUpdate(id uint, update OrderPaymentUpdate) error {
	values := map[string]interface{}{
		"status":                  update.Status,
		"payment_status":          update.PaymentStatus,
		"provider_payment_id":     update.ProviderPaymentID,
		"provider_payment_status": update.ProviderPaymentStatus,
		"payment_method":          update.PaymentMethod,
		"payment_detail_json":     update.PaymentDetailJSON,
	}
	if update.PaidAt != nil {
		values["paid_at"] = update.PaidAt
	}
	return r.db.Model(&models.Order{}).Where("id = ?", id).Updates(values).Error
}
