package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

const (
	defaultAuthorizeURL = "https://auth.mercadolibre.com/authorization"
	defaultTokenURL     = "https://api.mercadolibre.com/oauth/token"
	defaultAPIBaseURL   = "https://api.mercadolibre.com"
)

// HTTPDoer executes a single HTTP request. Satisfied by *http.Client and by
// the rate-limited Fetcher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the marketplace OAuth and item APIs. Token-grant calls use
// the plain HTTP client; catalog calls go through the injected doer so the
// orchestrator can route them over a rate-limited lane.
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string

	HTTPClient HTTPDoer
}

// TokenResponse is the marketplace token-grant response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	SellerID     int64  `json:"user_id"`
}

// Attribute is one entry of an item's attribute list.
type Attribute struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ValueName string `json:"value_name"`
}

// Item is a marketplace listing as returned by the item detail endpoint.
type Item struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Price             float64     `json:"price"`
	CurrencyID        string      `json:"currency_id"`
	AvailableQuantity int         `json:"available_quantity"`
	Condition         string      `json:"condition"`
	Permalink         string      `json:"permalink"`
	Thumbnail         string      `json:"thumbnail"`
	Status            string      `json:"status"`
	LastUpdated       time.Time   `json:"last_updated"`
	SellerCustomField string      `json:"seller_custom_field"`
	Attributes        []Attribute `json:"attributes"`
}

// ItemPage is one page of the seller's active-item listing.
type ItemPage struct {
	Results []string `json:"results"`
	Paging  struct {
		Total  int `json:"total"`
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	} `json:"paging"`
}

// APIError carries a non-2xx marketplace response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace API error: status=%d body=%s", e.StatusCode, e.Body)
}

// NewClientFromEnv builds a client from MARKETPLACE_* environment settings.
func NewClientFromEnv() *Client {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("MARKETPLACE_REDIRECT_URI", ""))
	if redirectURI == "" && base != "" {
		redirectURI = base + "/marketplace/callback"
	}

	return &Client{
		ClientID:     strings.TrimSpace(env.GetEnv("MARKETPLACE_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("MARKETPLACE_CLIENT_SECRET", "")),
		RedirectURI:  redirectURI,
		AuthorizeURL: strings.TrimSpace(env.GetEnv("MARKETPLACE_AUTHORIZE_URL", defaultAuthorizeURL)),
		TokenURL:     strings.TrimSpace(env.GetEnv("MARKETPLACE_TOKEN_URL", defaultTokenURL)),
		APIBaseURL:   strings.TrimSpace(env.GetEnv("MARKETPLACE_API_BASE_URL", defaultAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// AuthorizeURLWithState returns the seller-facing OAuth consent URL.
func (c *Client) AuthorizeURLWithState(state string) (string, error) {
	if strings.TrimSpace(c.ClientID) == "" {
		return "", errors.New("MARKETPLACE_CLIENT_ID is not configured")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return "", errors.New("MARKETPLACE_REDIRECT_URI is not configured")
	}
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid MARKETPLACE_AUTHORIZE_URL: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode trades an OAuth authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", strings.TrimSpace(code))
	form.Set("redirect_uri", c.RedirectURI)
	return c.tokenGrant(ctx, form)
}

// RefreshAccessToken performs the refresh-token grant. The marketplace
// invalidates a refresh token after first use, so callers must guard against
// concurrent refreshes for the same account.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is required")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", strings.TrimSpace(refreshToken))
	return c.tokenGrant(ctx, form)
}

func (c *Client) tokenGrant(ctx context.Context, form url.Values) (*TokenResponse, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, errors.New("MARKETPLACE_CLIENT_ID/MARKETPLACE_CLIENT_SECRET are not configured")
	}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("marketplace token grant returned empty access_token")
	}
	return &out, nil
}

// ListItems fetches one page of the seller's active item ids.
func (c *Client) ListItems(ctx context.Context, doer HTTPDoer, accessToken, sellerID string, offset, limit int) (*ItemPage, error) {
	endpoint := fmt.Sprintf("%s/users/%s/items/search?status=active&offset=%d&limit=%d",
		strings.TrimRight(c.APIBaseURL, "/"), url.PathEscape(sellerID), offset, limit)

	var page ItemPage
	if err := c.getJSON(ctx, doer, accessToken, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListItemsUpdatedSince fetches one page of seller item ids changed after the
// watermark. A nil watermark yields the full active listing.
func (c *Client) ListItemsUpdatedSince(ctx context.Context, doer HTTPDoer, accessToken, sellerID string, since *time.Time, offset, limit int) (*ItemPage, error) {
	endpoint := fmt.Sprintf("%s/users/%s/items/search?status=active&offset=%d&limit=%d",
		strings.TrimRight(c.APIBaseURL, "/"), url.PathEscape(sellerID), offset, limit)
	if since != nil {
		endpoint += "&last_updated_from=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	var page ItemPage
	if err := c.getJSON(ctx, doer, accessToken, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetItem fetches the full detail of a single listing.
func (c *Client) GetItem(ctx context.Context, doer HTTPDoer, accessToken, itemID string) (*Item, error) {
	endpoint := fmt.Sprintf("%s/items/%s", strings.TrimRight(c.APIBaseURL, "/"), url.PathEscape(itemID))

	var item Item
	if err := c.getJSON(ctx, doer, accessToken, endpoint, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItemDescription fetches the plain-text description of a listing.
func (c *Client) GetItemDescription(ctx context.Context, doer HTTPDoer, accessToken, itemID string) (string, error) {
	endpoint := fmt.Sprintf("%s/items/%s/description", strings.TrimRight(c.APIBaseURL, "/"), url.PathEscape(itemID))

	var out struct {
		PlainText string `json:"plain_text"`
	}
	if err := c.getJSON(ctx, doer, accessToken, endpoint, &out); err != nil {
		return "", err
	}
	return out.PlainText, nil
}

func (c *Client) getJSON(ctx context.Context, doer HTTPDoer, accessToken, endpoint string, out interface{}) error {
	if doer == nil {
		doer = c.HTTPClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(accessToken))
	req.Header.Set("Accept", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.Unmarshal(body, out)
}
