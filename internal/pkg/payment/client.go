package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

const defaultProviderAPIBaseURL = "https://api.mercadopago.com"

// Payment is the provider's full payment detail. The webhook payload itself
// is minimal and untrusted; reconciliation always works from this record.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	PaymentMethodID   string  `json:"payment_method_id"`
	PaymentTypeID     string  `json:"payment_type_id"`
	DateApproved      string  `json:"date_approved"`

	// Raw keeps the provider response verbatim for the order audit trail.
	Raw json.RawMessage `json:"-"`
}

// ProviderAPI fetches payment details from the payment provider. Narrow
// interface so the reconciler can be tested without network.
type ProviderAPI interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// Client is the HTTP implementation of ProviderAPI.
type Client struct {
	APIBaseURL  string
	AccessToken string
	HTTPClient  *http.Client
}

// NewClientFromEnv builds a provider client from PAYMENT_* environment settings.
func NewClientFromEnv() *Client {
	return &Client{
		APIBaseURL:  strings.TrimSpace(env.GetEnv("PAYMENT_API_BASE_URL", defaultProviderAPIBaseURL)),
		AccessToken: strings.TrimSpace(env.GetEnv("PAYMENT_ACCESS_TOKEN", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetPayment fetches the full payment record by provider payment id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s", strings.TrimRight(c.APIBaseURL, "/"), url.PathEscape(paymentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, err
	}
	payment.Raw = json.RawMessage(body)
	return &payment, nil
}
