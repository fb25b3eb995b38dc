package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/StefanMaier/MarketFox/internal/pkg/payment"
)

// HandlePaymentWebhook receives payment provider notifications. The delivery
// is durably logged before any interpretation, then reconciled inline. The
// provider only needs to know whether we stored the delivery: reconciliation
// failures are retried from the event log and never turn into a non-2xx ack.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	ingestor := payment.GetIngestor()

	if !ingestor.ValidateSecret(c.Params("secretToken")) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_secret"})
	}

	event, err := ingestor.Ingest(payment.IngestInput{
		Method:   c.Method(),
		URL:      c.OriginalURL(),
		Headers:  c.GetReqHeaders(),
		Body:     append([]byte(nil), c.BodyRaw()...),
		SourceIP: GetClientIP(c),
	})
	if err != nil {
		if errors.Is(err, payment.ErrMissingPaymentID) {
			// Stored and marked skipped; the provider sent us nothing actionable.
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_payment_id", "event_id": event.ID})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := payment.GetReconciler().ProcessEvent(ctx, event); err != nil {
		log.Warnf("[Webhook] Event %d: reconciliation deferred to retry: %v", event.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "event_id": event.ID})
}
