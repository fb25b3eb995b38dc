package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
)

// GetClientIP determines the actual client IP address considering proxies.
// Proxy headers win over the socket address because the app usually sits
// behind Cloudflare or nginx.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	if xff := c.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain a list of IPs - the first one is the original client IP
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	ip := c.IP()
	// Unwrap IPv4-mapped-IPv6 addresses (::ffff:192.168.1.1)
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}

// resolveAccount loads the marketplace account addressed by the request. An
// explicit account_id query parameter wins; without one the single connected
// account is used, which covers the common one-shop installation.
func resolveAccount(c *fiber.Ctx) (*models.MarketplaceAccount, error) {
	repo := repository.GetGlobalFactory().GetMarketplaceAccountRepository()

	if raw := strings.TrimSpace(c.Query("account_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid account_id")
		}
		account, err := repo.GetByID(uint(id))
		if err != nil {
			return nil, fiber.NewError(fiber.StatusNotFound, "marketplace account not found")
		}
		return account, nil
	}

	account, err := repo.First()
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fiber.NewError(fiber.StatusNotFound, "no marketplace account connected")
		}
		return nil, fiber.NewError(fiber.StatusInternalServerError, "account lookup failed")
	}
	return account, nil
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
