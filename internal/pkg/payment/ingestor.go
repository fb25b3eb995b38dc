package payment

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

// IngestInput is the raw inbound webhook delivery.
type IngestInput struct {
	Method   string
	URL      string
	Headers  map[string][]string
	Body     []byte
	SourceIP string
}

// webhookEnvelope is the minimal provider event shape. Everything beyond the
// payment id is treated as untrusted hints.
type webhookEnvelope struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// Ingestor durably records every accepted webhook delivery before any
// business interpretation. The event log it writes is the unit of recovery:
// reconciliation and retry both work from it, never from memory.
type Ingestor struct {
	events repository.WebhookEventRepository
	secret string
}

// NewIngestor creates an ingestor over the given event log.
func NewIngestor(events repository.WebhookEventRepository) *Ingestor {
	return &Ingestor{
		events: events,
		secret: strings.TrimSpace(env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")),
	}
}

// ValidateSecret compares the URL path token against the configured secret in
// constant time. Mismatches are rejected before anything is persisted to the
// event log.
func (i *Ingestor) ValidateSecret(token string) bool {
	if i.secret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(i.secret)) == 1
}

// Ingest persists the raw delivery, then extracts the payment id best-effort.
// The returned event is always durably stored when err is nil or
// ErrMissingPaymentID; only a storage failure yields a nil event.
func (i *Ingestor) Ingest(in IngestInput) (*models.PaymentWebhookEvent, error) {
	headersJSON, merr := json.Marshal(in.Headers)
	if merr != nil {
		headersJSON = []byte("{}")
	}

	event := &models.PaymentWebhookEvent{
		Method:           in.Method,
		URL:              in.URL,
		HeadersJSON:      string(headersJSON),
		Body:             string(in.Body),
		SourceIP:         in.SourceIP,
		ProcessingStatus: models.WebhookStatusReceived,
	}

	// Durable-first: the row exists before any interpretation happens.
	if err := i.events.Create(event); err != nil {
		return nil, fmt.Errorf("persist webhook event: %w", err)
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(in.Body, &envelope); err != nil {
		log.Warnf("[Ingestor] Event %d: unparsable payload: %v", event.ID, err)
		i.skip(event, "unparsable payload: "+err.Error())
		return event, ErrMissingPaymentID
	}

	event.EventType = strings.TrimSpace(envelope.Type)
	if event.EventType == "" {
		event.EventType = strings.TrimSpace(envelope.Action)
	}
	event.PaymentID = envelope.Data.ID.String()

	if event.PaymentID == "" {
		log.Warnf("[Ingestor] Event %d: payload carries no payment id", event.ID)
		i.skip(event, ErrMissingPaymentID.Error())
		return event, ErrMissingPaymentID
	}

	if err := i.events.Annotate(event.ID, event.EventType, event.PaymentID, ""); err != nil {
		log.Errorf("[Ingestor] Event %d: annotation failed: %v", event.ID, err)
	}
	return event, nil
}

func (i *Ingestor) skip(event *models.PaymentWebhookEvent, reason string) {
	if err := i.events.MarkSkipped(event.ID, reason); err != nil {
		log.Errorf("[Ingestor] Event %d: could not mark skipped: %v", event.ID, err)
	}
	event.ProcessingStatus = models.WebhookStatusSkipped
	event.ProcessingError = reason
}
