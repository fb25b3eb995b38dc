package payment

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

const (
	defaultRetryInterval = time.Minute
	defaultRetryBatch    = 50
)

// RetryScheduler periodically re-reconciles logged webhook events whose last
// attempt failed with a retryable error. Events that exhaust their attempt
// budget are parked as exhausted for operator inspection, never dropped.
type RetryScheduler struct {
	events     repository.WebhookEventRepository
	reconciler *Reconciler
	interval   time.Duration
	batchSize  int

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRetryScheduler creates a scheduler with intervals from the environment.
func NewRetryScheduler(events repository.WebhookEventRepository, reconciler *Reconciler) *RetryScheduler {
	return &RetryScheduler{
		events:     events,
		reconciler: reconciler,
		interval:   env.GetEnvDuration("WEBHOOK_RETRY_INTERVAL", defaultRetryInterval),
		batchSize:  env.GetEnvInt("WEBHOOK_RETRY_BATCH", defaultRetryBatch),
	}
}

// Start launches the retry loop.
func (s *RetryScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)
	s.running = true

	s.wg.Add(1)
	go s.loop()
	log.Infof("[RetryScheduler] Started (interval=%s, batch=%d)", s.interval, s.batchSize)
}

// Stop terminates the loop and waits for in-flight work.
func (s *RetryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	log.Info("[RetryScheduler] Stopped")
}

// IsRunning reports whether the scheduler loop is active.
func (s *RetryScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RetryScheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ticker.C:
			if err := s.RunOnce(context.Background()); err != nil {
				log.Errorf("[RetryScheduler] Pass failed: %v", err)
			}
		}
	}
}

// RunOnce processes one batch of due events.
func (s *RetryScheduler) RunOnce(ctx context.Context) error {
	maxAttempts := s.reconciler.MaxAttempts()
	due, err := s.events.ListDueForRetry(time.Now(), maxAttempts, s.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}
	log.Infof("[RetryScheduler] Retrying %d webhook events", len(due))

	for idx := range due {
		event := &due[idx]
		if _, err := s.reconciler.ProcessEvent(ctx, event); err != nil {
			// ProcessEvent already annotated the failure; park the event
			// when its budget is spent.
			if IsRetryable(err) && event.Attempts+1 >= maxAttempts {
				if merr := s.events.MarkExhausted(event.ID); merr != nil {
					log.Errorf("[RetryScheduler] Event %d: could not mark exhausted: %v", event.ID, merr)
				} else {
					log.Warnf("[RetryScheduler] Event %d exhausted after %d attempts", event.ID, event.Attempts+1)
				}
			}
			continue
		}
		log.Infof("[RetryScheduler] Event %d reconciled on retry", event.ID)
	}
	return nil
}
