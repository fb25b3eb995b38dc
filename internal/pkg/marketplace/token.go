package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
)

// ErrTokenRefresh signals that the marketplace rejected the refresh token.
// This is fatal for the account: the seller must re-authenticate, no retry
// will help.
var ErrTokenRefresh = errors.New("marketplace rejected the refresh token")

// TokenStatus is a read-only view of an account's token health.
type TokenStatus struct {
	Valid        bool       `json:"valid"`
	NeedsRefresh bool       `json:"needs_refresh"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// TokenService owns the OAuth token lifecycle of connected marketplace
// accounts. Concurrent callers needing a refresh for the same account
// collapse into a single refresh-token exchange, since the marketplace
// invalidates a refresh token after first use.
type TokenService struct {
	accounts repository.MarketplaceAccountRepository
	client   *Client

	mu           sync.Mutex
	accountLocks map[uint]*sync.Mutex
}

// NewTokenService creates a token service for the given account store.
func NewTokenService(accounts repository.MarketplaceAccountRepository, client *Client) *TokenService {
	return &TokenService{
		accounts:     accounts,
		client:       client,
		accountLocks: make(map[uint]*sync.Mutex),
	}
}

var (
	globalTokenService *TokenService
	tokenServiceOnce   sync.Once
)

// GetTokenService returns the global token service (singleton). Sharing one
// instance keeps the per-account refresh locks process-wide.
func GetTokenService() *TokenService {
	tokenServiceOnce.Do(func() {
		repos := repository.GetGlobalFactory()
		globalTokenService = NewTokenService(repos.GetMarketplaceAccountRepository(), NewClientFromEnv())
	})
	return globalTokenService
}

// GetValidToken returns an access token with more than the safety margin of
// validity left, refreshing transparently when needed.
func (s *TokenService) GetValidToken(ctx context.Context, accountID uint) (string, error) {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return "", fmt.Errorf("load marketplace account %d: %w", accountID, err)
	}
	if account.TokenValid(time.Now()) {
		return account.AccessToken, nil
	}

	lock := s.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	account, err = s.accounts.GetByID(accountID)
	if err != nil {
		return "", fmt.Errorf("load marketplace account %d: %w", accountID, err)
	}
	if account.TokenValid(time.Now()) {
		return account.AccessToken, nil
	}

	refreshed, err := s.refreshLocked(ctx, account)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// CheckValidity reports token health without mutating any state.
func (s *TokenService) CheckValidity(accountID uint) (*TokenStatus, error) {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &TokenStatus{
		Valid:        account.TokenValid(now),
		NeedsRefresh: account.TokenNeedsRefresh(now),
		ExpiresAt:    account.ExpiresAt,
	}, nil
}

// Refresh forces an immediate refresh-token exchange for the account.
func (s *TokenService) Refresh(ctx context.Context, accountID uint) (*models.MarketplaceAccount, error) {
	lock := s.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	return s.refreshLocked(ctx, account)
}

// refreshLocked performs the exchange and persists the new pair atomically.
// Callers must hold the account lock.
func (s *TokenService) refreshLocked(ctx context.Context, account *models.MarketplaceAccount) (*models.MarketplaceAccount, error) {
	if account.RefreshToken == "" {
		return nil, fmt.Errorf("account %d has no refresh token: %w", account.ID, ErrTokenRefresh)
	}

	token, err := s.client.RefreshAccessToken(ctx, account.RefreshToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			log.Errorf("[Token] Refresh rejected for account %d (status %d), re-authentication required", account.ID, apiErr.StatusCode)
			return nil, fmt.Errorf("refresh account %d: %w", account.ID, ErrTokenRefresh)
		}
		return nil, fmt.Errorf("refresh account %d: %w", account.ID, err)
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if err := s.accounts.UpdateTokens(account.ID, token.AccessToken, token.RefreshToken, token.Scope, expiresAt); err != nil {
		return nil, fmt.Errorf("persist refreshed token for account %d: %w", account.ID, err)
	}
	log.Infof("[Token] Refreshed token for account %d, valid until %s", account.ID, expiresAt.Format(time.RFC3339))

	account.AccessToken = token.AccessToken
	account.RefreshToken = token.RefreshToken
	account.TokenScope = token.Scope
	account.ExpiresAt = &expiresAt
	return account, nil
}

func (s *TokenService) lockFor(accountID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[accountID] = lock
	}
	return lock
}
