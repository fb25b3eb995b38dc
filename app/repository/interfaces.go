package repository

import (
	"time"

	"github.com/StefanMaier/MarketFox/app/models"
	"gorm.io/gorm"
)

// MarketplaceAccountRepository defines database operations for connected
// marketplace seller accounts.
type MarketplaceAccountRepository interface {
	GetByID(id uint) (*models.MarketplaceAccount, error)
	GetByUserID(userID uint) (*models.MarketplaceAccount, error)
	First() (*models.MarketplaceAccount, error)
	Upsert(account *models.MarketplaceAccount) error
	UpdateTokens(id uint, accessToken, refreshToken, scope string, expiresAt time.Time) error
	Delete(id uint) error
}

// SyncJobRepository defines database operations for the sync job ledger.
type SyncJobRepository interface {
	Create(job *models.SyncJob) error
	GetByID(id string) (*models.SyncJob, error)
	MarkRunning(id string, total int) error
	IncrementProcessed(id string) error
	Finish(id string, status models.SyncJobStatus, lastError string) error
	List(limit, offset int) ([]models.SyncJob, int64, error)
	FindStaleRunning(heartbeatBefore time.Time) ([]models.SyncJob, error)
}

// ProductSyncStateRepository defines database operations for per-product sync
// watermarks.
type ProductSyncStateRepository interface {
	GetByExternalID(externalID string) (*models.ProductSyncState, error)
	ListByAccount(accountID uint) ([]models.ProductSyncState, error)
	Watermark(accountID uint) (*time.Time, error)
	RecordSuccess(accountID uint, externalID string, syncedAt time.Time) error
	RecordError(accountID uint, externalID string, syncErr string) error
}

// WebhookEventRepository defines database operations for the payment webhook
// event log.
type WebhookEventRepository interface {
	Create(event *models.PaymentWebhookEvent) error
	GetByID(id uint) (*models.PaymentWebhookEvent, error)
	Annotate(id uint, eventType, paymentID, correlationKey string) error
	MarkProcessed(id uint) error
	MarkFailed(id uint, processingErr string, retryable bool, nextAttemptAt *time.Time) error
	MarkSkipped(id uint, reason string) error
	MarkExhausted(id uint) error
	ListDueForRetry(now time.Time, maxAttempts, limit int) ([]models.PaymentWebhookEvent, error)
	ListExhausted(limit, offset int) ([]models.PaymentWebhookEvent, int64, error)
}

// OrderRepository defines the order operations the reconciliation engine
// needs. Orders themselves are created by the checkout flow, not here.
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByReference(reference string) (*models.Order, error)
	ApplyPaymentUpdate(id uint, update OrderPaymentUpdate) error
}

// OrderPaymentUpdate carries the payment-derived fields the reconciler is
// allowed to write on an order.
type OrderPaymentUpdate struct {
	Status                string
	PaymentStatus         string
	ProviderPaymentID     string
	ProviderPaymentStatus string
	PaymentMethod         string
	PaymentDetailJSON     string
	PaidAt                *time.Time
}

// ProductRepository defines catalog operations used by sync jobs.
type ProductRepository interface {
	Upsert(product *models.Product) error
	GetByExternalID(externalID string) (*models.Product, error)
	CountByAccount(accountID uint) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	MarketplaceAccount MarketplaceAccountRepository
	SyncJob            SyncJobRepository
	ProductSyncState   ProductSyncStateRepository
	WebhookEvent       WebhookEventRepository
	Order              OrderRepository
	Product            ProductRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		MarketplaceAccount: NewMarketplaceAccountRepository(db),
		SyncJob:            NewSyncJobRepository(db),
		ProductSyncState:   NewProductSyncStateRepository(db),
		WebhookEvent:       NewWebhookEventRepository(db),
		Order:              NewOrderRepository(db),
		Product:            NewProductRepository(db),
	}
}
