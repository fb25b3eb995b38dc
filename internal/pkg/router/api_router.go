package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/StefanMaier/MarketFox/app/controllers"
	"github.com/StefanMaier/MarketFox/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Token lifecycle
	v1.Get("/token-status", controllers.HandleTokenStatus)
	v1.Post("/refresh-token", controllers.HandleTokenRefresh)
	v1.Get("/marketplace/connect", controllers.HandleMarketplaceConnect)
	v1.Get("/marketplace/callback", controllers.HandleMarketplaceCallback)

	// Catalog synchronization
	v1.Post("/sync/run", controllers.HandleSyncRun)
	v1.Post("/sync/item/:externalId", controllers.HandleSyncItem)
	v1.Get("/sync/jobs", controllers.HandleSyncJobs)
	v1.Get("/sync/jobs/:id", controllers.HandleSyncJob)
	v1.Get("/sync/state", controllers.HandleSyncStates)

	// Operator surface
	admin := v1.Group("/admin", middleware.AdminAPIKeyMiddleware())
	admin.Get("/webhook-events/exhausted", controllers.HandleExhaustedWebhookEvents)
	admin.Post("/webhook-events/:id/replay", controllers.HandleWebhookEventReplay)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
