package controllers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/cache"
	"github.com/StefanMaier/MarketFox/internal/pkg/marketplace"
)

const (
	oauthStateKeyPrefix = "marketplace_oauth_state:"
	oauthStateTTL       = 10 * time.Minute
)

// HandleTokenStatus reports token health for the addressed account without
// touching the stored tokens.
func HandleTokenStatus(c *fiber.Ctx) error {
	account, err := resolveAccount(c)
	if err != nil {
		return err
	}

	status, err := marketplace.GetTokenService().CheckValidity(account.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "token_status_failed"})
	}
	return c.JSON(status)
}

// HandleTokenRefresh forces a refresh-token exchange for the addressed
// account. A rejected refresh token means the seller must reconnect.
func HandleTokenRefresh(c *fiber.Ctx) error {
	account, err := resolveAccount(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	refreshed, err := marketplace.GetTokenService().Refresh(ctx, account.ID)
	if err != nil {
		if errors.Is(err, marketplace.ErrTokenRefresh) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "refresh_rejected",
				"message": "the marketplace rejected the refresh token, reconnect the account",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "refresh_failed"})
	}

	return c.JSON(fiber.Map{"ok": true, "expires_at": refreshed.ExpiresAt})
}

// HandleMarketplaceConnect starts the OAuth authorization flow for a local
// user. The state is parked in Redis so the callback can verify it without a
// session.
func HandleMarketplaceConnect(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(strings.TrimSpace(c.Query("user_id")), 10, 32)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_user_id"})
	}

	state, err := generateOAuthState(24)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "state_generation_failed"})
	}
	if err := cache.Set(oauthStateKeyPrefix+state, strconv.FormatUint(userID, 10), oauthStateTTL); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "state_store_failed"})
	}

	url, err := marketplace.NewClientFromEnv().AuthorizeURLWithState(state)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "oauth_not_configured"})
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandleMarketplaceCallback completes the OAuth flow: verifies the state,
// exchanges the code and stores the connected account with its token pair.
func HandleMarketplaceCallback(c *fiber.Ctx) error {
	if oauthErr := strings.TrimSpace(c.Query("error")); oauthErr != "" {
		msg := c.Query("error_description", oauthErr)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "oauth_denied", "message": msg})
	}

	state := strings.TrimSpace(c.Query("state"))
	if state == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_state"})
	}
	storedUserID, err := cache.Get(oauthStateKeyPrefix + state)
	if err != nil || storedUserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "state_mismatch"})
	}
	_ = cache.Delete(oauthStateKeyPrefix + state)

	userID, err := strconv.ParseUint(storedUserID, 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "state_mismatch"})
	}

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_code"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	token, err := marketplace.NewClientFromEnv().ExchangeCode(ctx, code)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "code_exchange_failed"})
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	account := &models.MarketplaceAccount{
		UserID:       uint(userID),
		SellerID:     strconv.FormatInt(token.SellerID, 10),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenScope:   token.Scope,
		ExpiresAt:    &expiresAt,
	}
	if err := repository.GetGlobalFactory().GetMarketplaceAccountRepository().Upsert(account); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "account_store_failed"})
	}

	return c.JSON(fiber.Map{"ok": true, "account_id": account.ID, "seller_id": account.SellerID})
}

func generateOAuthState(size int) (string, error) {
	if size < 16 {
		size = 16
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
