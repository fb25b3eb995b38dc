package payment

import (
	"sync"

	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/notify"
)

var (
	globalIngestor   *Ingestor
	globalReconciler *Reconciler
	globalScheduler  *RetryScheduler
	paymentOnce      sync.Once
)

// GetIngestor returns the global webhook ingestor (singleton).
func GetIngestor() *Ingestor {
	paymentOnce.Do(buildGlobals)
	return globalIngestor
}

// GetReconciler returns the global payment reconciler (singleton).
func GetReconciler() *Reconciler {
	paymentOnce.Do(buildGlobals)
	return globalReconciler
}

// GetRetryScheduler returns the global webhook retry scheduler (singleton).
func GetRetryScheduler() *RetryScheduler {
	paymentOnce.Do(buildGlobals)
	return globalScheduler
}

func buildGlobals() {
	repos := repository.GetGlobalFactory()
	events := repos.GetWebhookEventRepository()

	globalIngestor = NewIngestor(events)
	globalReconciler = NewReconciler(
		repos.GetOrderRepository(),
		events,
		NewClientFromEnv(),
		notify.GetNotifier(),
	)
	globalScheduler = NewRetryScheduler(events, globalReconciler)
}
