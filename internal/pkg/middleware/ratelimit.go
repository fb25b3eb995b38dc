package middleware

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/StefanMaier/MarketFox/internal/pkg/cache"
	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

// WebhookRateLimiter limits webhook deliveries per source IP with a sliding
// window. Counters live in Redis so the limit holds across restarts and
// across processes.
func WebhookRateLimiter() fiber.Handler {
	max := env.GetEnvInt("WEBHOOK_RATE_LIMIT", 20)
	window := env.GetEnvDuration("WEBHOOK_RATE_WINDOW", time.Minute)

	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           limiterStorage(),
		KeyGenerator: func(c *fiber.Ctx) string {
			return "webhook_rate:" + limiterClientIP(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		},
	})
}

// limiterStorage builds a Redis-backed fiber storage from the shared cache
// client configuration. Database 1 keeps limiter keys away from cache data.
func limiterStorage() *redis.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func limiterClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	return c.IP()
}
