package payment

import (
	"errors"
	"fmt"
	"net/http"
)

// Data-integrity failures. No amount of retrying manufactures missing data,
// so these are never retried.
var (
	ErrMissingPaymentID      = errors.New("webhook payload carries no payment id")
	ErrMissingCorrelationKey = errors.New("payment carries no external reference")
)

// ErrOrderNotFound is retryable: the order-creation transaction may not have
// committed yet when the webhook arrived.
var ErrOrderNotFound = errors.New("no order matches the payment's external reference")

// ProviderError carries a non-2xx response from the payment provider API.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider API error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsRetryable classifies reconciliation errors. Transient provider trouble
// (5xx, 429) and the order-creation race are retryable; data-integrity
// failures and provider 4xx are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingPaymentID) || errors.Is(err, ErrMissingCorrelationKey) {
		return false
	}
	if errors.Is(err, ErrOrderNotFound) {
		return true
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.StatusCode >= http.StatusInternalServerError ||
			providerErr.StatusCode == http.StatusTooManyRequests
	}
	// Transport-level failures (timeouts, connection resets) are transient.
	return true
}
