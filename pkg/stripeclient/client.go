/**
 * @description
 * This package provides a minimal client for the Stripe REST API. It covers
 * the two touch points the marketplace needs: creating a payment intent for a
 * subscription checkout, and verifying signed webhook callbacks.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// Client is a client for the Stripe API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new Stripe client. An empty baseURL uses the public API.
func NewClient(baseURL string, secretKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		secretKey:  strings.TrimSpace(secretKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// PaymentIntentParams describes the intent to create. Amount is in the
// smallest currency unit.
type PaymentIntentParams struct {
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// PaymentIntent is the subset of the Stripe payment intent object the marketplace reads.
type PaymentIntent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

// APIError is an error response returned by Stripe.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("stripe returned status %d", e.StatusCode)
}

// CreatePaymentIntent creates a payment intent with automatic payment methods enabled.
func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	if c.secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}
	if params.Amount <= 0 {
		return nil, fmt.Errorf("payment intent amount must be positive")
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	keys := make([]string, 0, len(params.Metadata))
	for key := range params.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		form.Set("metadata["+key+"]", params.Metadata[key])
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to stripe: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			return nil, envelope.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var intent PaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &intent, nil
}
