package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client represents a Paymob Accept API client
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Paymob client with the given configuration
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Create HTTP client with reasonable timeout
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() Config {
	return c.config
}

// Authenticate exchanges the API key for a short-lived bearer token.
// This is the first of the three calls of a payment initiation.
func (c *Client) Authenticate(ctx context.Context) (*AuthResponse, error) {
	resp, err := c.doRequest(ctx, "auth/tokens", AuthRequest{APIKey: c.config.APIKey})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	var authResp AuthResponse
	if err := json.Unmarshal(resp, &authResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth response: %w", err)
	}
	if authResp.Token == "" {
		return nil, ErrAuthFailed
	}
	return &authResp, nil
}

// RegisterOrder registers the order with the gateway. The merchant order ID
// must be unique per gateway account; the public order number serves here.
func (c *Client) RegisterOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if req.Currency == "" {
		req.Currency = c.config.Currency
	}

	resp, err := c.doRequest(ctx, "ecommerce/orders", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderRegistration, err)
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(resp, &orderResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order response: %w", err)
	}
	if orderResp.ID == 0 {
		return nil, ErrOrderRegistration
	}
	return &orderResp, nil
}

// RequestPaymentKey obtains the single-use token the payment iframe consumes
func (c *Client) RequestPaymentKey(ctx context.Context, req PaymentKeyRequest) (*PaymentKeyResponse, error) {
	if req.Currency == "" {
		req.Currency = c.config.Currency
	}
	if req.IntegrationID == 0 {
		req.IntegrationID = c.config.IntegrationID
	}
	if req.Expiration == 0 {
		req.Expiration = 3600
	}

	resp, err := c.doRequest(ctx, "acceptance/payment_keys", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentKey, err)
	}

	var keyResp PaymentKeyResponse
	if err := json.Unmarshal(resp, &keyResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment key response: %w", err)
	}
	if keyResp.Token == "" {
		return nil, ErrPaymentKey
	}
	return &keyResp, nil
}

// IframeURL builds the hosted checkout URL for a payment token
func (c *Client) IframeURL(paymentToken string) string {
	return fmt.Sprintf("%s/acceptance/iframes/%d?payment_token=%s",
		c.config.BaseURL, c.config.IframeID, paymentToken)
}

// doRequest performs an HTTP request to the Paymob Accept API
func (c *Client) doRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.config.BaseURL, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
