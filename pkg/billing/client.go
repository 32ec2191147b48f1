// Package billing is a typed client for the Ascendraa customer billing API.
//
// The client is a thin request/response wrapper: it owns no cache and applies
// no retries. Callers wanting cached reads and mutation-driven invalidation
// should use the sdk package, which layers both on top of this client.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const maxErrorBodyBytes int64 = 64 * 1024

// Config holds the credentials and endpoint for a Client.
type Config struct {
	// APIURL is the base URL of the billing API, e.g. "https://api.ascendraa.com".
	APIURL string
	// PublicKey identifies the business. Must start with "pk_".
	PublicKey string
	// CustomerToken scopes requests to one customer. Must start with "cat_".
	CustomerToken string
}

func (c Config) validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return &ConfigError{Field: "api url", Reason: "is required"}
	}
	if c.PublicKey == "" {
		return &ConfigError{Field: "public key", Reason: "is required"}
	}
	if !strings.HasPrefix(c.PublicKey, "pk_") {
		return &ConfigError{Field: "public key", Reason: `must start with "pk_"`}
	}
	if c.CustomerToken == "" {
		return &ConfigError{Field: "customer token", Reason: "is required"}
	}
	if !strings.HasPrefix(c.CustomerToken, "cat_") {
		return &ConfigError{Field: "customer token", Reason: `must start with "cat_"`}
	}
	return nil
}

// Client issues authenticated requests to the billing API.
//
// Credentials may be rotated at any time with SetCustomerToken and
// SetPublicKey; headers are read from the live values when each request is
// built, so a rotation affects only calls issued after it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu            sync.RWMutex
	publicKey     string
	customerToken string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The default client has
// no timeout; deadlines are the caller's responsibility via context or a
// configured client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for debug-level request logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a billing API client. Credential format violations are
// reported synchronously as *ConfigError before any request is made.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		baseURL:       strings.TrimSuffix(strings.TrimSpace(cfg.APIURL), "/"),
		httpClient:    &http.Client{},
		logger:        zerolog.Nop(),
		publicKey:     cfg.PublicKey,
		customerToken: cfg.CustomerToken,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SetCustomerToken rotates the customer token used by subsequent calls.
// In-flight requests keep the credentials they were built with.
func (c *Client) SetCustomerToken(token string) {
	c.mu.Lock()
	c.customerToken = token
	c.mu.Unlock()
}

// SetPublicKey rotates the public key used by subsequent calls.
func (c *Client) SetPublicKey(key string) {
	c.mu.Lock()
	c.publicKey = key
	c.mu.Unlock()
}

// Check returns the current entitlement state for the ref.
func (c *Client) Check(ctx context.Context, ref Ref) (*CheckResult, error) {
	if ref.IsZero() {
		return nil, &ValidationError{Reason: "either a feature id or an event name must be provided"}
	}

	body := checkRequest{FeatureID: ref.FeatureID(), EventName: ref.EventName()}
	var result CheckResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/customers/check", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Track records an incremental usage event of the given value against the
// ref. Metadata is passed through to the server opaquely.
func (c *Client) Track(ctx context.Context, ref Ref, value float64, metadata map[string]any) (*TrackResult, error) {
	if ref.IsZero() {
		return nil, &ValidationError{Reason: "either a feature id or an event name must be provided"}
	}

	body := usageRequest{
		FeatureID: ref.FeatureID(),
		EventName: ref.EventName(),
		Value:     value,
		Metadata:  metadata,
	}
	var result TrackResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/customers/track", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetUsage overwrites the usage for the ref with an absolute value.
func (c *Client) SetUsage(ctx context.Context, ref Ref, value float64, metadata map[string]any) (*SetUsageResult, error) {
	if ref.IsZero() {
		return nil, &ValidationError{Reason: "either a feature id or an event name must be provided"}
	}

	body := usageRequest{
		FeatureID: ref.FeatureID(),
		EventName: ref.EventName(),
		Value:     value,
		Metadata:  metadata,
	}
	var result SetUsageResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/customers/usage", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetCustomer returns the customer record with its attached features.
//
// The endpoint requires business-level credentials rather than a customer
// token; the client does not enforce this, it is a deployment concern.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, &ValidationError{Reason: "customer id must be provided"}
	}

	var result Customer
	path := "/api/v1/customers/" + url.PathEscape(customerID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateCheckout opens a checkout session for the given plan. The server
// validates the amount (minimum 1); out-of-range values come back as a
// RequestError, not a local failure.
func (c *Client) CreateCheckout(ctx context.Context, planID string, amount float64, opts *CheckoutOptions) (*CheckoutSession, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, &ValidationError{Reason: "plan id must be provided"}
	}

	body := checkoutRequest{PlanID: planID, Amount: amount}
	if opts != nil {
		body.Email = opts.Email
		body.Name = opts.Name
		body.Phone = opts.Phone
		body.Currency = opts.Currency
		body.CallbackURL = opts.CallbackURL
		body.Metadata = opts.Metadata
	}

	var result CheckoutSession
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/customers/checkout", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RevokeSubscription cancels the given subscription. With an empty id the
// server revokes all active subscriptions for the customer; the request body
// is then an empty object, not an error.
func (c *Client) RevokeSubscription(ctx context.Context, subscriptionID string) (*RevokeResult, error) {
	body := revokeRequest{SubscriptionID: subscriptionID}
	var result RevokeResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/customers/revoke_subscription", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body for %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}

	c.mu.RLock()
	token, key := c.customerToken, c.publicKey
	c.mu.RUnlock()

	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("X-Public-Key", key)
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("path", path).Err(err).Msg("billing request failed before a response was received")
		return &TransportError{Err: err}
	}
	defer response.Body.Close()

	c.logger.Debug().Str("method", method).Str("path", path).Int("status", response.StatusCode).Msg("billing request completed")

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return newRequestError(response)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s %s: %w", method, path, err)
	}
	return nil
}

// newRequestError extracts the server message from an error response. The
// resulting error never carries credentials: only the status code and the
// server-provided message (or a generic fallback) are included.
func newRequestError(response *http.Response) error {
	message := fmt.Sprintf("request failed with status %d", response.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	if err == nil && len(raw) > 0 {
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
			message = payload.Message
		}
	}

	return &RequestError{Status: response.StatusCode, Message: message}
}
