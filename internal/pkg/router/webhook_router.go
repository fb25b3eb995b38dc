package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/StefanMaier/MarketFox/app/controllers"
	"github.com/StefanMaier/MarketFox/internal/pkg/middleware"
)

type WebhookRouter struct {
}

// InstallRouter registers the payment webhook endpoint. It sits outside the
// /api group: the provider calls it directly and it carries its own
// per-source rate limit.
func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/payment/:secretToken", middleware.WebhookRateLimiter(), controllers.HandlePaymentWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
