package payment

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/cache"
)

// requireTestRedis points the shared cache client at a reachable Redis or
// skips the test.
func requireTestRedis(t *testing.T) {
	t.Helper()

	hosts := []string{os.Getenv("CACHE_HOST"), "cache", "localhost", "127.0.0.1"}
	port := os.Getenv("CACHE_PORT")
	if port == "" {
		port = "6379"
	}
	password := os.Getenv("CACHE_PASSWORD")

	var lastErr error
	for _, host := range hosts {
		if host == "" {
			continue
		}
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, port),
			Password: password,
			DB:       14,
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := client.Ping(ctx).Result()
		cancel()
		if err == nil {
			cache.SetClient(client)
			return
		}
		lastErr = err
		_ = client.Close()
	}
	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
}

// fakeProvider serves canned payment records.
type fakeProvider struct {
	payment *Payment
	err     error
	calls   int
}

func (p *fakeProvider) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.payment, nil
}

// fakeOrderRepo is an in-memory single-order store. ApplyPaymentUpdate
// mutates the stored order so redeliveries see the converged state.
type fakeOrderRepo struct {
	mu      sync.Mutex
	order   *models.Order
	updates []repository.OrderPaymentUpdate
}

func (r *fakeOrderRepo) Create(order *models.Order) error { return nil }

func (r *fakeOrderRepo) GetByID(id uint) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order == nil || r.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	o := *r.order
	return &o, nil
}

func (r *fakeOrderRepo) GetByReference(reference string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order == nil || r.order.Reference != reference {
		return nil, gorm.ErrRecordNotFound
	}
	o := *r.order
	return &o, nil
}

func (r *fakeOrderRepo) ApplyPaymentUpdate(id uint, update repository.OrderPaymentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	r.order.Status = update.Status
	r.order.PaymentStatus = update.PaymentStatus
	r.order.ProviderPaymentID = update.ProviderPaymentID
	r.order.ProviderPaymentStatus = update.ProviderPaymentStatus
	r.order.PaymentMethod = update.PaymentMethod
	r.order.PaymentDetailJSON = update.PaymentDetailJSON
	if update.PaidAt != nil {
		r.order.PaidAt = update.PaidAt
	}
	return nil
}

// fakeEventLog records the annotation calls the engine makes against the
// webhook event log.
type fakeEventLog struct {
	mu        sync.Mutex
	events    map[uint]*models.PaymentWebhookEvent
	nextID    uint
	processed []uint
	failed    []failedMark
	skipped   []uint
	exhausted []uint
	due       []models.PaymentWebhookEvent
}

type failedMark struct {
	id            uint
	processingErr string
	retryable     bool
	nextAttemptAt *time.Time
}

func newFakeEventLog() *fakeEventLog {
	return &fakeEventLog{events: make(map[uint]*models.PaymentWebhookEvent), nextID: 1}
}

func (l *fakeEventLog) Create(event *models.PaymentWebhookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	event.ID = l.nextID
	l.nextID++
	stored := *event
	l.events[event.ID] = &stored
	return nil
}

func (l *fakeEventLog) GetByID(id uint) (*models.PaymentWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	event, ok := l.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	e := *event
	return &e, nil
}

func (l *fakeEventLog) Annotate(id uint, eventType, paymentID, correlationKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if event, ok := l.events[id]; ok {
		if eventType != "" {
			event.EventType = eventType
		}
		if paymentID != "" {
			event.PaymentID = paymentID
		}
		if correlationKey != "" {
			event.CorrelationKey = correlationKey
		}
	}
	return nil
}

func (l *fakeEventLog) MarkProcessed(id uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed = append(l.processed, id)
	if event, ok := l.events[id]; ok {
		event.ProcessingStatus = models.WebhookStatusProcessed
	}
	return nil
}

func (l *fakeEventLog) MarkFailed(id uint, processingErr string, retryable bool, nextAttemptAt *time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, failedMark{id: id, processingErr: processingErr, retryable: retryable, nextAttemptAt: nextAttemptAt})
	if event, ok := l.events[id]; ok {
		event.ProcessingStatus = models.WebhookStatusFailed
		event.ProcessingError = processingErr
		event.Retryable = retryable
		event.Attempts++
		event.NextAttemptAt = nextAttemptAt
	}
	return nil
}

func (l *fakeEventLog) MarkSkipped(id uint, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skipped = append(l.skipped, id)
	if event, ok := l.events[id]; ok {
		event.ProcessingStatus = models.WebhookStatusSkipped
		event.ProcessingError = reason
	}
	return nil
}

func (l *fakeEventLog) MarkExhausted(id uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exhausted = append(l.exhausted, id)
	if event, ok := l.events[id]; ok {
		event.ProcessingStatus = models.WebhookStatusExhausted
	}
	return nil
}

func (l *fakeEventLog) ListDueForRetry(now time.Time, maxAttempts, limit int) ([]models.PaymentWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.PaymentWebhookEvent(nil), l.due...), nil
}

func (l *fakeEventLog) ListExhausted(limit, offset int) ([]models.PaymentWebhookEvent, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.PaymentWebhookEvent
	for _, id := range l.exhausted {
		if event, ok := l.events[id]; ok {
			out = append(out, *event)
		}
	}
	return out, int64(len(out)), nil
}

// fakeNotifier records status-change notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) NotifyOrderStatus(orderID uint, reference, orderStatus, paymentStatus string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("%d:%s:%s:%s", orderID, reference, orderStatus, paymentStatus))
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}
