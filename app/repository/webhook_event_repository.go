package repository

import (
	"time"

	"github.com/StefanMaier/MarketFox/app/models"
	"gorm.io/gorm"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Create(event *models.PaymentWebhookEvent) error {
	return r.db.Create(event).Error
}

func (r *webhookEventRepository) GetByID(id uint) (*models.PaymentWebhookEvent, error) {
	var event models.PaymentWebhookEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// Annotate stores fields derived from the payload after the durable write.
// Empty values are skipped so later annotations never erase earlier ones.
func (r *webhookEventRepository) Annotate(id uint, eventType, paymentID, correlationKey string) error {
	values := map[string]interface{}{}
	if eventType != "" {
		values["event_type"] = eventType
	}
	if paymentID != "" {
		values["payment_id"] = paymentID
	}
	if correlationKey != "" {
		values["correlation_key"] = correlationKey
	}
	if len(values) == 0 {
		return nil
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(values).Error
}

func (r *webhookEventRepository) MarkProcessed(id uint) error {
	now := time.Now()
	return r.db.Model(&models.PaymentWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status": models.WebhookStatusProcessed,
			"processing_error":  "",
			"retryable":         false,
			"attempts":          gorm.Expr("attempts + 1"),
			"next_attempt_at":   nil,
			"processed_at":      now,
		}).Error
}

func (r *webhookEventRepository) MarkFailed(id uint, processingErr string, retryable bool, nextAttemptAt *time.Time) error {
	return r.db.Model(&models.PaymentWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status": models.WebhookStatusFailed,
			"processing_error":  processingErr,
			"retryable":         retryable,
			"attempts":          gorm.Expr("attempts + 1"),
			"next_attempt_at":   nextAttemptAt,
		}).Error
}

// MarkSkipped annotates events that are logged for audit but never handed to
// the reconciler (e.g. deliveries without a payment id).
func (r *webhookEventRepository) MarkSkipped(id uint, reason string) error {
	return r.db.Model(&models.PaymentWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status": models.WebhookStatusSkipped,
			"processing_error":  reason,
			"retryable":         false,
		}).Error
}

func (r *webhookEventRepository) MarkExhausted(id uint) error {
	return r.db.Model(&models.PaymentWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status": models.WebhookStatusExhausted,
			"retryable":         false,
			"next_attempt_at":   nil,
		}).Error
}

// ListDueForRetry returns failed retryable events whose backoff has elapsed
// and whose attempt budget is not yet spent, oldest first.
func (r *webhookEventRepository) ListDueForRetry(now time.Time, maxAttempts, limit int) ([]models.PaymentWebhookEvent, error) {
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultWebhookMaxAttempts
	}
	var events []models.PaymentWebhookEvent
	err := r.db.
		Where("processing_status = ? AND retryable = ? AND attempts < ?", models.WebhookStatusFailed, true, maxAttempts).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ListExhausted surfaces permanently failed events for operator inspection.
func (r *webhookEventRepository) ListExhausted(limit, offset int) ([]models.PaymentWebhookEvent, int64, error) {
	var total int64
	if err := r.db.Model(&models.PaymentWebhookEvent{}).
		Where("processing_status = ?", models.WebhookStatusExhausted).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []models.PaymentWebhookEvent
	err := r.db.
		Where("processing_status = ?", models.WebhookStatusExhausted).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, total, err
}
