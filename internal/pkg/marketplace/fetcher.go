package marketplace

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

// ErrRateLimitExceeded is returned when the marketplace throttles a request
// and the single retry is throttled again.
var ErrRateLimitExceeded = errors.New("marketplace rate limit exceeded")

const (
	// DefaultMinDelay is the default pause between consecutive requests.
	DefaultMinDelay = 500 * time.Millisecond
	// BackoffFactor scales the base delay after a 429 before the one retry.
	BackoffFactor = 5
)

// Fetcher serializes outbound marketplace calls on one logical lane and
// enforces a minimum delay between them. A 429 response triggers one longer
// backoff and exactly one retry of the same request; a second 429 surfaces
// ErrRateLimitExceeded. All other error classes (401/403/5xx) pass through
// untouched; retry policy for those belongs to the job level, not here.
type Fetcher struct {
	inner    HTTPDoer
	minDelay time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewFetcher creates a rate-limited fetcher with the given inter-request delay.
func NewFetcher(inner HTTPDoer, minDelay time.Duration) *Fetcher {
	if inner == nil {
		inner = &http.Client{Timeout: 30 * time.Second}
	}
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	return &Fetcher{inner: inner, minDelay: minDelay}
}

// NewFetcherFromEnv creates a fetcher configured via MARKETPLACE_FETCH_DELAY.
func NewFetcherFromEnv() *Fetcher {
	return NewFetcher(nil, env.GetEnvDuration("MARKETPLACE_FETCH_DELAY", DefaultMinDelay))
}

// Do executes the request on the lane. Callers on the same fetcher are
// serialized so the configured delay is meaningful.
func (f *Fetcher) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.waitForSlot(req); err != nil {
		return nil, err
	}
	resp, err := f.inner.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}
	resp.Body.Close()

	// Throttled: back off once, then retry the same request exactly once.
	backoff := f.minDelay * BackoffFactor
	log.Warnf("[Fetcher] 429 from marketplace for %s, backing off %s before retry", req.URL.Path, backoff)
	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	case <-time.After(backoff):
	}

	f.lastRequest = time.Now()
	resp, err = f.inner.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, ErrRateLimitExceeded
	}
	return resp, nil
}

// waitForSlot sleeps until the minimum inter-request delay has elapsed.
func (f *Fetcher) waitForSlot(req *http.Request) error {
	elapsed := time.Since(f.lastRequest)
	if wait := f.minDelay - elapsed; wait > 0 {
		select {
		case <-req.Context().Done():
			return req.Context().Err()
		case <-time.After(wait):
		}
	}
	f.lastRequest = time.Now()
	return nil
}
