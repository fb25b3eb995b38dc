package models

import "time"

// Freshness classification of a product's sync state.
const (
	SyncFreshnessInSync      = "in_sync"
	SyncFreshnessNeverSynced = "never_synced"
	SyncFreshnessErrored     = "errored"
	SyncFreshnessStale       = "stale"
)

// DefaultFreshnessWindow is how old a successful sync may be before the
// product counts as stale.
const DefaultFreshnessWindow = 24 * time.Hour

// ProductSyncState tracks the per-product synchronization watermark and the
// outcome of the last attempt. One row per externally identified product.
type ProductSyncState struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ExternalID   string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_product_sync_states_external" json:"external_id"`
	AccountID    uint       `gorm:"not null;index" json:"account_id"`
	LastSyncedAt *time.Time `gorm:"type:timestamp;default:null" json:"last_synced_at,omitempty"`
	LastError    string     `gorm:"type:text" json:"last_error,omitempty"`
	RetryCount   int        `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Freshness classifies the sync state relative to now using the given window.
func (s *ProductSyncState) Freshness(now time.Time, window time.Duration) string {
	if s.LastError != "" {
		return SyncFreshnessErrored
	}
	if s.LastSyncedAt == nil {
		return SyncFreshnessNeverSynced
	}
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if now.Sub(*s.LastSyncedAt) > window {
		return SyncFreshnessStale
	}
	return SyncFreshnessInSync
}
