package models

import "time"

// Order status values the reconciliation engine may write.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Payment status values derived from provider payment state.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusPaid       = "paid"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// Order is the storefront order referenced by the reconciliation engine. The
// correlation key (Reference) is assigned at checkout and echoed back by the
// payment provider; the reconciler is the only writer of the payment-derived
// fields after creation.
type Order struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	UserID                uint       `gorm:"index" json:"user_id"`
	Reference             string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_orders_reference" json:"reference"`
	Status                string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus         string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"`
	ProviderPaymentID     string     `gorm:"type:varchar(64);default:'';index" json:"provider_payment_id"`
	ProviderPaymentStatus string     `gorm:"type:varchar(50);default:''" json:"provider_payment_status"`
	PaymentMethod         string     `gorm:"type:varchar(50);default:''" json:"payment_method"`
	PaymentDetailJSON     string     `gorm:"type:longtext" json:"-"`
	TotalAmount           float64    `gorm:"not null;default:0" json:"total_amount"`
	PaidAt                *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
