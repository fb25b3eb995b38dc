package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/cache"
	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

const (
	reconcileLockPrefix = "reconcile_lock:ref:"
	reconcileLockTTL    = 30 * time.Second

	// retryBackoffBase is doubled per attempt when scheduling the next try.
	retryBackoffBase = time.Minute
)

// statusMapping is the fixed provider-status translation table.
type statusMapping struct {
	orderStatus   string
	paymentStatus string
}

var statusMappings = map[string]statusMapping{
	"approved":   {models.OrderStatusProcessing, models.PaymentStatusPaid},
	"rejected":   {models.OrderStatusCancelled, models.PaymentStatusFailed},
	"cancelled":  {models.OrderStatusCancelled, models.PaymentStatusFailed},
	"refunded":   {models.OrderStatusRefunded, models.PaymentStatusRefunded},
	"pending":    {models.OrderStatusPending, models.PaymentStatusPending},
	"in_process": {models.OrderStatusProcessing, models.PaymentStatusProcessing},
}

// MapProviderStatus translates a provider payment status into the internal
// order/payment status pair. ok is false for unrecognized statuses, which
// leave the order unchanged.
func MapProviderStatus(providerStatus string) (string, string, bool) {
	m, ok := statusMappings[providerStatus]
	if !ok {
		return "", "", false
	}
	return m.orderStatus, m.paymentStatus, true
}

// ReconciliationResult describes what one reconcile pass did.
type ReconciliationResult struct {
	OrderID        uint   `json:"order_id"`
	OrderStatus    string `json:"order_status"`
	PaymentStatus  string `json:"payment_status"`
	ProviderStatus string `json:"provider_status"`
	Applied        bool   `json:"applied"`
}

// StatusNotifier receives order status changes as fire-and-forget tasks. Its
// failure must never affect reconciliation outcome.
type StatusNotifier interface {
	NotifyOrderStatus(orderID uint, reference, orderStatus, paymentStatus string)
}

// Reconciler maps payment events onto local orders. It is the only writer of
// order payment fields after order creation.
type Reconciler struct {
	orders   repository.OrderRepository
	events   repository.WebhookEventRepository
	provider ProviderAPI
	notifier StatusNotifier

	maxAttempts int
}

// NewReconciler wires a reconciler. notifier may be nil.
func NewReconciler(orders repository.OrderRepository, events repository.WebhookEventRepository, provider ProviderAPI, notifier StatusNotifier) *Reconciler {
	return &Reconciler{
		orders:      orders,
		events:      events,
		provider:    provider,
		notifier:    notifier,
		maxAttempts: env.GetEnvInt("WEBHOOK_MAX_ATTEMPTS", models.DefaultWebhookMaxAttempts),
	}
}

// Reconcile runs the full event-to-order pipeline for a logged webhook event.
func (r *Reconciler) Reconcile(ctx context.Context, event *models.PaymentWebhookEvent) (*ReconciliationResult, error) {
	if event.PaymentID == "" {
		return nil, ErrMissingPaymentID
	}

	// The webhook payload is minimal and untrusted; always fetch the full
	// payment record from the provider.
	payment, err := r.provider.GetPayment(ctx, event.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", event.PaymentID, err)
	}

	reference := payment.ExternalReference
	if reference == "" {
		return nil, ErrMissingCorrelationKey
	}
	if err := r.events.Annotate(event.ID, "", "", reference); err != nil {
		log.Errorf("[Reconciler] Event %d: could not annotate correlation key: %v", event.ID, err)
	}

	// Two concurrent deliveries for the same order must not race on the
	// status write.
	lockKey := reconcileLockPrefix + reference
	owner := fmt.Sprintf("event:%d", event.ID)
	if err := r.acquireReferenceLock(ctx, lockKey, owner); err != nil {
		return nil, err
	}
	defer func() {
		if err := cache.ReleaseLock(lockKey, owner); err != nil {
			log.Errorf("[Reconciler] Could not release lock for %s: %v", reference, err)
		}
	}()

	order, err := r.orders.GetByReference(reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reference %s: %w", reference, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("look up order %s: %w", reference, err)
	}

	result := &ReconciliationResult{
		OrderID:        order.ID,
		ProviderStatus: payment.Status,
	}

	orderStatus, paymentStatus, ok := MapProviderStatus(payment.Status)
	if !ok {
		log.Warnf("[Reconciler] Unrecognized provider status %q for payment %s, order %d left unchanged",
			payment.Status, event.PaymentID, order.ID)
		result.OrderStatus = order.Status
		result.PaymentStatus = order.PaymentStatus
		return result, nil
	}

	update := repository.OrderPaymentUpdate{
		Status:                orderStatus,
		PaymentStatus:         paymentStatus,
		ProviderPaymentID:     event.PaymentID,
		ProviderPaymentStatus: payment.Status,
		PaymentMethod:         payment.PaymentMethodID,
		PaymentDetailJSON:     string(payment.Raw),
	}
	if paymentStatus == models.PaymentStatusPaid && order.PaidAt == nil {
		now := time.Now()
		update.PaidAt = &now
	}
	if err := r.orders.ApplyPaymentUpdate(order.ID, update); err != nil {
		return nil, fmt.Errorf("apply payment update to order %d: %w", order.ID, err)
	}

	result.OrderStatus = orderStatus
	result.PaymentStatus = paymentStatus
	result.Applied = true

	// Redelivered webhooks converge on the same state; only an actual status
	// change is worth a notification.
	if r.notifier != nil && order.Status != orderStatus {
		r.notifier.NotifyOrderStatus(order.ID, reference, orderStatus, paymentStatus)
	}
	return result, nil
}

// ProcessEvent reconciles a logged event and writes the outcome annotation
// back to the event log.
func (r *Reconciler) ProcessEvent(ctx context.Context, event *models.PaymentWebhookEvent) (*ReconciliationResult, error) {
	result, err := r.Reconcile(ctx, event)
	if err == nil {
		if merr := r.events.MarkProcessed(event.ID); merr != nil {
			log.Errorf("[Reconciler] Event %d: could not mark processed: %v", event.ID, merr)
		}
		return result, nil
	}

	retryable := IsRetryable(err)
	var nextAttempt *time.Time
	if retryable && event.Attempts+1 < r.maxAttempts {
		next := time.Now().Add(backoffFor(event.Attempts))
		nextAttempt = &next
	}
	if merr := r.events.MarkFailed(event.ID, err.Error(), retryable, nextAttempt); merr != nil {
		log.Errorf("[Reconciler] Event %d: could not mark failed: %v", event.ID, merr)
	}
	log.Warnf("[Reconciler] Event %d failed (retryable=%v): %v", event.ID, retryable, err)
	return nil, err
}

// ReplayEvent re-runs one event on operator request, outside the retry
// budget. A replayed exhausted event that fails again goes back to exhausted
// instead of vanishing into failed-with-spent-budget, where neither the retry
// scheduler nor the exhausted listing would see it.
func (r *Reconciler) ReplayEvent(ctx context.Context, event *models.PaymentWebhookEvent) (*ReconciliationResult, error) {
	wasExhausted := event.ProcessingStatus == models.WebhookStatusExhausted
	result, err := r.ProcessEvent(ctx, event)
	if err != nil && wasExhausted {
		if merr := r.events.MarkExhausted(event.ID); merr != nil {
			log.Errorf("[Reconciler] Event %d: could not re-park as exhausted: %v", event.ID, merr)
		}
	}
	return result, err
}

// MaxAttempts exposes the configured retry budget.
func (r *Reconciler) MaxAttempts() int {
	return r.maxAttempts
}

// acquireReferenceLock spins briefly on the per-reference lock. Contention
// windows are short (one UPDATE), so a bounded wait suffices.
func (r *Reconciler) acquireReferenceLock(ctx context.Context, key, owner string) error {
	for attempt := 0; attempt < 20; attempt++ {
		acquired, err := cache.AcquireLock(key, owner, reconcileLockTTL)
		if err != nil {
			return fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("reconcile lock busy for key %s", key)
}

// backoffFor doubles the base delay per prior attempt.
func backoffFor(attempts int) time.Duration {
	backoff := retryBackoffBase
	for i := 0; i < attempts; i++ {
		backoff *= 2
	}
	return backoff
}
