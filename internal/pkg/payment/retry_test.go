package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanMaier/MarketFox/app/models"
)

func TestRunOnceNoDueEvents(t *testing.T) {
	events := newFakeEventLog()
	provider := &fakeProvider{}
	r := NewReconciler(&fakeOrderRepo{}, events, provider, nil)
	s := NewRetryScheduler(events, r)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 0, provider.calls)
}

func TestRunOnceReconcilesDueEvent(t *testing.T) {
	requireTestRedis(t)

	orders := &fakeOrderRepo{order: &models.Order{
		ID:        3,
		Reference: "ORD-retry-ok",
		Status:    models.OrderStatusPending,
	}}
	events := newFakeEventLog()
	provider := &fakeProvider{payment: &Payment{
		ID:                321,
		Status:            "approved",
		ExternalReference: "ORD-retry-ok",
	}}
	r := NewReconciler(orders, events, provider, nil)
	s := NewRetryScheduler(events, r)

	event := &models.PaymentWebhookEvent{PaymentID: "321", Attempts: 1, Retryable: true}
	require.NoError(t, events.Create(event))
	events.due = []models.PaymentWebhookEvent{*event}

	require.NoError(t, s.RunOnce(context.Background()))

	require.Len(t, orders.updates, 1)
	assert.Equal(t, []uint{event.ID}, events.processed)
	assert.Empty(t, events.exhausted)
}

func TestRetrySucceedsOnceOrderAppears(t *testing.T) {
	requireTestRedis(t)

	orders := &fakeOrderRepo{}
	events := newFakeEventLog()
	provider := &fakeProvider{payment: &Payment{
		ID:                555,
		Status:            "approved",
		ExternalReference: "ORD-late-commit",
	}}
	r := NewReconciler(orders, events, provider, nil)
	s := NewRetryScheduler(events, r)

	// Webhook beat the order-creation transaction.
	event := &models.PaymentWebhookEvent{PaymentID: "555"}
	require.NoError(t, events.Create(event))
	_, err := r.ProcessEvent(context.Background(), event)
	require.Error(t, err)
	require.Len(t, events.failed, 1)
	assert.True(t, events.failed[0].retryable)

	// The order commits, then the scheduler picks the event up.
	orders.mu.Lock()
	orders.order = &models.Order{ID: 11, Reference: "ORD-late-commit", Status: models.OrderStatusPending}
	orders.mu.Unlock()
	failed, gerr := events.GetByID(event.ID)
	require.NoError(t, gerr)
	events.due = []models.PaymentWebhookEvent{*failed}

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []uint{event.ID}, events.processed)
	require.Len(t, orders.updates, 1)
	assert.Equal(t, models.PaymentStatusPaid, orders.updates[0].PaymentStatus)
}

func TestRunOnceExhaustsSpentBudget(t *testing.T) {
	events := newFakeEventLog()
	provider := &fakeProvider{err: &ProviderError{StatusCode: 500}}
	r := NewReconciler(&fakeOrderRepo{}, events, provider, nil)
	s := NewRetryScheduler(events, r)

	event := &models.PaymentWebhookEvent{PaymentID: "654", Attempts: r.MaxAttempts() - 1, Retryable: true}
	require.NoError(t, events.Create(event))
	events.due = []models.PaymentWebhookEvent{*event}

	require.NoError(t, s.RunOnce(context.Background()))

	require.Len(t, events.failed, 1)
	assert.True(t, events.failed[0].retryable)
	assert.Equal(t, []uint{event.ID}, events.exhausted)
}

func TestRunOncePermanentFailureNotExhausted(t *testing.T) {
	events := newFakeEventLog()
	provider := &fakeProvider{err: &ProviderError{StatusCode: 400, Body: "bad id"}}
	r := NewReconciler(&fakeOrderRepo{}, events, provider, nil)
	s := NewRetryScheduler(events, r)

	event := &models.PaymentWebhookEvent{PaymentID: "987", Attempts: r.MaxAttempts() - 1, Retryable: true}
	require.NoError(t, events.Create(event))
	events.due = []models.PaymentWebhookEvent{*event}

	require.NoError(t, s.RunOnce(context.Background()))

	// Permanent failures are simply marked failed; exhausted is reserved for
	// spent retry budgets.
	require.Len(t, events.failed, 1)
	assert.False(t, events.failed[0].retryable)
	assert.Empty(t, events.exhausted)
}
