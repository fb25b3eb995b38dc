package models

import "time"

// Processing status of a logged payment webhook delivery.
const (
	WebhookStatusReceived  = "received"
	WebhookStatusProcessed = "processed"
	WebhookStatusFailed    = "failed"
	WebhookStatusSkipped   = "skipped"
	WebhookStatusExhausted = "exhausted"
)

// DefaultWebhookMaxAttempts bounds how often a failed retryable event is
// re-reconciled before it is parked as exhausted.
const DefaultWebhookMaxAttempts = 5

// PaymentWebhookEvent is the append-only log of every accepted payment webhook
// delivery. The raw request is persisted before any business interpretation;
// only the processing annotation fields are ever updated afterwards. This log
// is the source of truth for audit and retry.
type PaymentWebhookEvent struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	EventType        string     `gorm:"type:varchar(100);default:'';index" json:"event_type"`
	Method           string     `gorm:"type:varchar(10);not null" json:"method"`
	URL              string     `gorm:"type:varchar(500);not null" json:"url"`
	HeadersJSON      string     `gorm:"type:text" json:"headers_json"`
	Body             string     `gorm:"type:longtext" json:"body"`
	SourceIP         string     `gorm:"type:varchar(45);index" json:"source_ip"`
	PaymentID        string     `gorm:"type:varchar(64);default:'';index" json:"payment_id"`
	CorrelationKey   string     `gorm:"type:varchar(191);default:'';index" json:"correlation_key"`
	ProcessingStatus string     `gorm:"type:varchar(20);not null;default:'received';index" json:"processing_status"`
	ProcessingError  string     `gorm:"type:text" json:"processing_error,omitempty"`
	Retryable        bool       `gorm:"not null;default:false" json:"retryable"`
	Attempts         int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt    *time.Time `gorm:"type:timestamp;default:null;index" json:"next_attempt_at,omitempty"`
	ProcessedAt      *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RetryDue reports whether the event is eligible for another reconciliation
// attempt at the given time.
func (e *PaymentWebhookEvent) RetryDue(now time.Time, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultWebhookMaxAttempts
	}
	if e.ProcessingStatus != WebhookStatusFailed || !e.Retryable {
		return false
	}
	if e.Attempts >= maxAttempts {
		return false
	}
	return e.NextAttemptAt == nil || !e.NextAttemptAt.After(now)
}
