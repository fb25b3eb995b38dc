package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanMaier/MarketFox/app/models"
)

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		providerStatus string
		orderStatus    string
		paymentStatus  string
		ok             bool
	}{
		{"approved", models.OrderStatusProcessing, models.PaymentStatusPaid, true},
		{"rejected", models.OrderStatusCancelled, models.PaymentStatusFailed, true},
		{"cancelled", models.OrderStatusCancelled, models.PaymentStatusFailed, true},
		{"refunded", models.OrderStatusRefunded, models.PaymentStatusRefunded, true},
		{"pending", models.OrderStatusPending, models.PaymentStatusPending, true},
		{"in_process", models.OrderStatusProcessing, models.PaymentStatusProcessing, true},
		{"charged_back", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		orderStatus, paymentStatus, ok := MapProviderStatus(tt.providerStatus)
		assert.Equal(t, tt.ok, ok, "status %q", tt.providerStatus)
		assert.Equal(t, tt.orderStatus, orderStatus, "status %q", tt.providerStatus)
		assert.Equal(t, tt.paymentStatus, paymentStatus, "status %q", tt.providerStatus)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"missing payment id", ErrMissingPaymentID, false},
		{"missing correlation key", ErrMissingCorrelationKey, false},
		{"wrapped missing correlation key", errors.Join(errors.New("ctx"), ErrMissingCorrelationKey), false},
		{"order not found", ErrOrderNotFound, true},
		{"provider 500", &ProviderError{StatusCode: 500}, true},
		{"provider 503", &ProviderError{StatusCode: 503}, true},
		{"provider 429", &ProviderError{StatusCode: 429}, true},
		{"provider 404", &ProviderError{StatusCode: 404}, false},
		{"provider 401", &ProviderError{StatusCode: 401}, false},
		{"transport failure", errors.New("connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestBackoffFor(t *testing.T) {
	assert.Equal(t, time.Minute, backoffFor(0))
	assert.Equal(t, 2*time.Minute, backoffFor(1))
	assert.Equal(t, 4*time.Minute, backoffFor(2))
	assert.Equal(t, 16*time.Minute, backoffFor(4))
}

func TestReconcileAppliesApprovedPayment(t *testing.T) {
	requireTestRedis(t)

	orders := &fakeOrderRepo{order: &models.Order{
		ID:        7,
		Reference: "ORD-approved-1",
		Status:    models.OrderStatusPending,
	}}
	events := newFakeEventLog()
	provider := &fakeProvider{payment: &Payment{
		ID:                991122,
		Status:            "approved",
		ExternalReference: "ORD-approved-1",
		PaymentMethodID:   "visa",
		Raw:               []byte(`{"id":991122,"status":"approved"}`),
	}}
	notifier := &fakeNotifier{}
	r := NewReconciler(orders, events, provider, notifier)

	event := &models.PaymentWebhookEvent{PaymentID: "991122"}
	require.NoError(t, events.Create(event))

	result, err := r.ProcessEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, models.OrderStatusProcessing, result.OrderStatus)
	assert.Equal(t, models.PaymentStatusPaid, result.PaymentStatus)

	require.Len(t, orders.updates, 1)
	update := orders.updates[0]
	assert.Equal(t, "991122", update.ProviderPaymentID)
	assert.Equal(t, "approved", update.ProviderPaymentStatus)
	assert.Equal(t, "visa", update.PaymentMethod)
	require.NotNil(t, update.PaidAt, "first paid transition must stamp PaidAt")

	assert.Equal(t, []uint{event.ID}, events.processed)
	assert.Equal(t, 1, notifier.count())

	stored, err := events.GetByID(event.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-approved-1", stored.CorrelationKey)
}

func TestReconcileRedeliveryConverges(t *testing.T) {
	requireTestRedis(t)

	orders := &fakeOrderRepo{order: &models.Order{
		ID:        8,
		Reference: "ORD-redelivery-1",
		Status:    models.OrderStatusPending,
	}}
	events := newFakeEventLog()
	provider := &fakeProvider{payment: &Payment{
		ID:                445566,
		Status:            "approved",
		ExternalReference: "ORD-redelivery-1",
	}}
	notifier := &fakeNotifier{}
	r := NewReconciler(orders, events, provider, notifier)

	event := &models.PaymentWebhookEvent{PaymentID: "445566"}
	require.NoError(t, events.Create(event))

	first, err := r.Reconcile(context.Background(), event)
	require.NoError(t, err)
	require.True(t, first.Applied)
	firstPaidAt := orders.order.PaidAt
	require.NotNil(t, firstPaidAt)

	redelivery := &models.PaymentWebhookEvent{PaymentID: "445566"}
	require.NoError(t, events.Create(redelivery))

	second, err := r.Reconcile(context.Background(), redelivery)
	require.NoError(t, err)
	assert.True(t, second.Applied)

	// Same state again: PaidAt keeps its first value, nobody gets re-notified.
	require.Len(t, orders.updates, 2)
	assert.Nil(t, orders.updates[1].PaidAt)
	assert.Equal(t, firstPaidAt, orders.order.PaidAt)
	assert.Equal(t, 1, notifier.count())
}

func TestReconcileOrderNotFound(t *testing.T) {
	requireTestRedis(t)

	orders := &fakeOrderRepo{}
	events := newFakeEventLog()
	provider := &fakeProvider{payment: &Payment{
		ID:                777,
		Status:            "approved",
		ExternalReference: "ORD-not-created-yet",
	}}
	r := NewReconciler(orders, events, provider, nil)

	event := &models.PaymentWebhookEvent{PaymentID: "777"}
	require.NoError(t, events.Create(event))

	_, err := r.Reconcile(context.Background(), event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrderNotFound))
	assert.True(t, IsRetryable(err), "the order-creation race must stay retryable")
}

func TestReconcileUnknownProviderStatus(t *testing.T) {
	requireTestRedis(t)

	orders := &fakeOrderRepo{order: &models.Order{
		ID:            9,
		Reference:     "ORD-unknown-status",
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}}
	events := newFakeEventLog()
	provider := &fakeProvider{payment: &Payment{
		ID:                888,
		Status:            "charged_back",
		ExternalReference: "ORD-unknown-status",
	}}
	r := NewReconciler(orders, events, provider, nil)

	event := &models.PaymentWebhookEvent{PaymentID: "888"}
	require.NoError(t, events.Create(event))

	result, err := r.Reconcile(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, models.OrderStatusPending, result.OrderStatus)
	assert.Empty(t, orders.updates, "unrecognized status must not touch the order")
}

func TestReconcileMissingCorrelationKey(t *testing.T) {
	orders := &fakeOrderRepo{}
	events := newFakeEventLog()
	provider := &fakeProvider{payment: &Payment{ID: 999, Status: "approved"}}
	r := NewReconciler(orders, events, provider, nil)

	event := &models.PaymentWebhookEvent{PaymentID: "999"}
	require.NoError(t, events.Create(event))

	_, err := r.Reconcile(context.Background(), event)
	assert.True(t, errors.Is(err, ErrMissingCorrelationKey))
	assert.False(t, IsRetryable(err))
}

func TestReconcileMissingPaymentID(t *testing.T) {
	provider := &fakeProvider{}
	r := NewReconciler(&fakeOrderRepo{}, newFakeEventLog(), provider, nil)

	_, err := r.Reconcile(context.Background(), &models.PaymentWebhookEvent{})
	assert.True(t, errors.Is(err, ErrMissingPaymentID))
	assert.Equal(t, 0, provider.calls)
}

func TestProcessEventPermanentProviderFailure(t *testing.T) {
	events := newFakeEventLog()
	provider := &fakeProvider{err: &ProviderError{StatusCode: 404, Body: "payment not found"}}
	r := NewReconciler(&fakeOrderRepo{}, events, provider, nil)

	event := &models.PaymentWebhookEvent{PaymentID: "123"}
	require.NoError(t, events.Create(event))

	_, err := r.ProcessEvent(context.Background(), event)
	require.Error(t, err)

	require.Len(t, events.failed, 1)
	mark := events.failed[0]
	assert.False(t, mark.retryable)
	assert.Nil(t, mark.nextAttemptAt, "permanent failures get no retry slot")
}

func TestProcessEventSchedulesBackoff(t *testing.T) {
	events := newFakeEventLog()
	provider := &fakeProvider{err: &ProviderError{StatusCode: 503}}
	r := NewReconciler(&fakeOrderRepo{}, events, provider, nil)

	event := &models.PaymentWebhookEvent{PaymentID: "123", Attempts: 1}
	require.NoError(t, events.Create(event))

	before := time.Now()
	_, err := r.ProcessEvent(context.Background(), event)
	require.Error(t, err)

	require.Len(t, events.failed, 1)
	mark := events.failed[0]
	assert.True(t, mark.retryable)
	require.NotNil(t, mark.nextAttemptAt)
	// Second attempt has one prior failure, so the delay doubles once.
	assert.False(t, mark.nextAttemptAt.Before(before.Add(2*time.Minute)))
	assert.False(t, mark.nextAttemptAt.After(time.Now().Add(2*time.Minute+time.Second)))
}

func TestReplayFailureKeepsEventExhausted(t *testing.T) {
	events := newFakeEventLog()
	provider := &fakeProvider{err: &ProviderError{StatusCode: 503}}
	r := NewReconciler(&fakeOrderRepo{}, events, provider, nil)

	event := &models.PaymentWebhookEvent{PaymentID: "321", Attempts: r.MaxAttempts()}
	require.NoError(t, events.Create(event))
	require.NoError(t, events.MarkExhausted(event.ID))
	parked, err := events.GetByID(event.ID)
	require.NoError(t, err)

	_, err = r.ReplayEvent(context.Background(), parked)
	require.Error(t, err)

	// The failure is annotated, but the event stays on the exhausted list.
	require.Len(t, events.failed, 1)
	current, err := events.GetByID(event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusExhausted, current.ProcessingStatus)
}

func TestReplayFailedEventStaysFailed(t *testing.T) {
	events := newFakeEventLog()
	provider := &fakeProvider{err: &ProviderError{StatusCode: 503}}
	r := NewReconciler(&fakeOrderRepo{}, events, provider, nil)

	event := &models.PaymentWebhookEvent{PaymentID: "322", Attempts: 1, ProcessingStatus: models.WebhookStatusFailed}
	require.NoError(t, events.Create(event))

	_, err := r.ReplayEvent(context.Background(), event)
	require.Error(t, err)

	current, gerr := events.GetByID(event.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.WebhookStatusFailed, current.ProcessingStatus)
	assert.Empty(t, events.exhausted)
}

func TestProcessEventBudgetCutoff(t *testing.T) {
	events := newFakeEventLog()
	provider := &fakeProvider{err: &ProviderError{StatusCode: 500}}
	r := NewReconciler(&fakeOrderRepo{}, events, provider, nil)

	event := &models.PaymentWebhookEvent{PaymentID: "123", Attempts: r.MaxAttempts() - 1}
	require.NoError(t, events.Create(event))

	_, err := r.ProcessEvent(context.Background(), event)
	require.Error(t, err)

	require.Len(t, events.failed, 1)
	mark := events.failed[0]
	assert.True(t, mark.retryable)
	assert.Nil(t, mark.nextAttemptAt, "last allowed attempt must not schedule another")
}
