// Package payment wraps the Khalti ePayment gateway API. Two calls are used:
// initiate, which opens a checkout session and returns the hosted payment URL,
// and lookup, which is the server-side source of truth for a payment's state.
// Callback query parameters from the browser redirect are never trusted on
// their own; activation always re-verifies via lookup.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/threateye/threateye-backend/internal/config"
)

// Payment states reported by the lookup endpoint.
const (
	StatusCompleted = "Completed"
	StatusPending   = "Pending"
	StatusRefunded  = "Refunded"
	StatusExpired   = "Expired"
	StatusCanceled  = "User canceled"
)

// InitiateRequest is the payload for opening a checkout session.
type InitiateRequest struct {
	ReturnURL         string `json:"return_url"`
	WebsiteURL        string `json:"website_url"`
	Amount            int    `json:"amount"` // paisa
	PurchaseOrderID   string `json:"purchase_order_id"`
	PurchaseOrderName string `json:"purchase_order_name"`
	// CustomerInfo identifies the payer on the gateway's hosted checkout page.
	CustomerInfo *CustomerInfo `json:"customer_info,omitempty"`
}

// CustomerInfo is the payer identity shown at checkout.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// InitiateResponse carries the session identifier and the hosted checkout URL.
type InitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
}

// LookupResponse is the gateway's authoritative view of a payment.
type LookupResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int    `json:"total_amount"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Refunded      bool   `json:"refunded"`
}

// Gateway is the checkout surface services depend on; satisfied by *KhaltiClient
// and by test fakes.
type Gateway interface {
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error)
	Lookup(ctx context.Context, pidx string) (*LookupResponse, error)
}

// KhaltiClient talks to the Khalti ePayment API.
type KhaltiClient struct {
	apiURL     string
	secretKey  string
	httpClient *http.Client
}

// NewKhaltiClient creates a client for the configured Khalti environment
// (sandbox or live, selected by the API URL).
func NewKhaltiClient(cfg *config.KhaltiConfig) *KhaltiClient {
	apiURL := cfg.APIURL
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return &KhaltiClient{
		apiURL:    apiURL,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Initiate opens a checkout session and returns the pidx and hosted payment URL.
func (c *KhaltiClient) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	var resp InitiateResponse
	if err := c.post(ctx, "epayment/initiate/", req, &resp); err != nil {
		return nil, err
	}
	if resp.Pidx == "" {
		return nil, fmt.Errorf("khalti initiate: response missing pidx")
	}
	return &resp, nil
}

// Lookup fetches the current state of a payment session.
func (c *KhaltiClient) Lookup(ctx context.Context, pidx string) (*LookupResponse, error) {
	payload := map[string]string{"pidx": pidx}
	var resp LookupResponse
	if err := c.post(ctx, "epayment/lookup/", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *KhaltiClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("khalti %s: marshal payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("khalti %s: build request: %w", path, err)
	}
	req.Header.Set("Authorization", "Key "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("khalti %s: %w", path, err)
	}
	defer resp.Body.Close()

	// Read before checking status so the gateway's error body is available for logs.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("khalti %s: read response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("khalti %s: status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("khalti %s: decode response: %w", path, err)
	}
	return nil
}
