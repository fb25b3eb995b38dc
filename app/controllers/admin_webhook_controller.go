package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/payment"
)

// HandleExhaustedWebhookEvents lists webhook events that ran out of retry
// budget and now need operator attention.
func HandleExhaustedWebhookEvents(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	events, total, err := repository.GetGlobalFactory().GetWebhookEventRepository().ListExhausted(limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_list_failed"})
	}

	items := make([]fiber.Map, 0, len(events))
	for i := range events {
		items = append(items, webhookEventResponse(&events[i]))
	}
	return c.JSON(fiber.Map{"events": items, "total": total})
}

// HandleWebhookEventReplay re-runs reconciliation for one logged event,
// regardless of its retry budget. Meant for operators after fixing the root
// cause of an exhausted event.
func HandleWebhookEventReplay(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event_id"})
	}

	event, err := repository.GetGlobalFactory().GetWebhookEventRepository().GetByID(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event_not_found"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := payment.GetReconciler().ReplayEvent(ctx, event)
	if err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"ok":             true,
		"applied":        result.Applied,
		"order_status":   result.OrderStatus,
		"payment_status": result.PaymentStatus,
	})
}

func webhookEventResponse(event *models.PaymentWebhookEvent) fiber.Map {
	return fiber.Map{
		"id":               event.ID,
		"event_type":       event.EventType,
		"payment_id":       event.PaymentID,
		"correlation_key":  event.CorrelationKey,
		"status":           event.ProcessingStatus,
		"processing_error": event.ProcessingError,
		"attempts":         event.Attempts,
		"source_ip":        event.SourceIP,
		"received_at":      event.CreatedAt,
	}
}
