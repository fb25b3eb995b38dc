package models

import "time"

// TokenSafetyMargin is the minimum remaining validity a token must have to be
// handed out without a refresh.
const TokenSafetyMargin = 5 * time.Minute

// MarketplaceAccount stores the OAuth credentials of a connected marketplace
// seller account. Created on successful OAuth callback, mutated on token
// refresh, removed on disconnect. Only one account may exist per local user.
type MarketplaceAccount struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;uniqueIndex:ux_marketplace_accounts_user" json:"user_id"`
	SellerID     string     `gorm:"type:varchar(64);not null;index" json:"seller_id"`
	Nickname     string     `gorm:"type:varchar(200);default:''" json:"nickname"`
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	TokenScope   string     `gorm:"type:varchar(255);default:''" json:"token_scope"`
	ExpiresAt    *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TokenValid reports whether the stored access token still has more than the
// safety margin of validity left.
func (a *MarketplaceAccount) TokenValid(now time.Time) bool {
	if a.AccessToken == "" || a.ExpiresAt == nil {
		return false
	}
	return a.ExpiresAt.After(now.Add(TokenSafetyMargin))
}

// TokenNeedsRefresh reports whether a refresh is required before the token can
// be used for API calls.
func (a *MarketplaceAccount) TokenNeedsRefresh(now time.Time) bool {
	return !a.TokenValid(now) && a.RefreshToken != ""
}
