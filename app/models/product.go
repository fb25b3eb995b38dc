package models

import "time"

// Product is a local catalog row mirrored from the marketplace listing.
// Catalog upserts are last-writer-wins at the row level; webhook processing
// and sync jobs may interleave freely on these rows.
type Product struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ExternalID    string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_products_external" json:"external_id"`
	AccountID     uint       `gorm:"not null;index" json:"account_id"`
	Title         string     `gorm:"type:varchar(500);not null" json:"title"`
	Brand         string     `gorm:"type:varchar(200);default:''" json:"brand"`
	Price         float64    `gorm:"not null;default:0" json:"price"`
	CurrencyID    string     `gorm:"type:varchar(10);default:''" json:"currency_id"`
	AvailableQty  int        `gorm:"not null;default:0" json:"available_qty"`
	Condition     string     `gorm:"type:varchar(20);default:''" json:"condition"`
	Permalink     string     `gorm:"type:varchar(500);default:''" json:"permalink"`
	ThumbnailURL  string     `gorm:"type:varchar(500);default:''" json:"thumbnail_url"`
	Description   string     `gorm:"type:longtext" json:"description"`
	Active        bool       `gorm:"not null;default:true;index" json:"active"`
	RemoteUpdated *time.Time `gorm:"type:timestamp;default:null" json:"remote_updated,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
