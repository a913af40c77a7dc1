package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// Client is the main Supabase client. It is safe for concurrent use and is
// constructed once at startup and injected into every repository.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *CircuitBreaker

	// Derived values
	baseURL string
	restURL string
	authURL string

	// Sub-clients
	auth     *AuthClient
	database *DatabaseClient
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := strings.TrimRight(cfg.ProjectURL, "/")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid project URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid project URL scheme: %q", parsedURL.Scheme)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		config:     cfg,
		httpClient: httpClient,
		baseURL:    baseURL,
		restURL:    baseURL + "/rest/v1",
		authURL:    baseURL + "/auth/v1",
	}
	if cfg.Breaker.FailureThreshold > 0 {
		c.breaker = NewCircuitBreaker(cfg.Breaker)
	}

	c.auth = &AuthClient{client: c}
	c.database = &DatabaseClient{client: c}

	return c, nil
}

// Auth returns the auth client.
func (c *Client) Auth() *AuthClient {
	return c.auth
}

// Database returns the database client.
func (c *Client) Database() *DatabaseClient {
	return c.database
}

// From is shorthand for Database().From(table).
func (c *Client) From(table string) *QueryBuilder {
	return c.database.From(table)
}

// Breaker exposes the circuit breaker (nil when disabled).
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// =============================================================================
// Internal HTTP Methods
// =============================================================================

// request performs an HTTP request authenticated with the configured key.
func (c *Client) request(ctx context.Context, method, urlPath string, body []byte, headers map[string]string) ([]byte, int, error) {
	return c.requestWithToken(ctx, method, urlPath, body, headers, c.config.APIKey)
}

// requestWithServiceKey performs an HTTP request with the service role key.
func (c *Client) requestWithServiceKey(ctx context.Context, method, urlPath string, body []byte, headers map[string]string) ([]byte, int, error) {
	key := c.config.ServiceKey
	if key == "" {
		key = c.config.APIKey
	}
	return c.requestWithToken(ctx, method, urlPath, body, headers, key)
}

// requestWithToken performs an HTTP request with a bearer token.
func (c *Client) requestWithToken(ctx context.Context, method, urlPath string, body []byte, headers map[string]string, accessToken string) ([]byte, int, error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return nil, 0, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlPath, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.buildHeaders(headers) {
		req.Header.Set(k, v)
	}
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordOutcome(err, 0)
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.recordOutcome(err, 0)
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	c.recordOutcome(nil, resp.StatusCode)
	return respBody, resp.StatusCode, nil
}

// recordOutcome feeds the breaker. Only transport failures and 5xx count
// against the upstream; 4xx are caller errors.
func (c *Client) recordOutcome(err error, statusCode int) {
	if c.breaker == nil {
		return
	}
	switch {
	case err != nil:
		c.breaker.RecordFailure(err)
	case statusCode >= 500:
		c.breaker.RecordFailure(fmt.Errorf("upstream status %d", statusCode))
	default:
		c.breaker.RecordSuccess()
	}
}

// buildHeaders builds request headers.
func (c *Client) buildHeaders(extra map[string]string) map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}

	for k, v := range c.config.DefaultHeaders {
		headers[k] = v
	}

	for k, v := range extra {
		headers[k] = v
	}

	return headers
}

// parseError parses an error response.
func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code             string `json:"code"`
		Message          string `json:"message"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		Error            string `json:"error"`
		ErrorCode        string `json:"error_code"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return &Error{
			Code:       "unknown",
			Message:    strings.TrimSpace(string(body)),
			StatusCode: statusCode,
		}
	}

	// PGRST116: single-row fetch matched zero (or many) rows.
	if errResp.Code == "PGRST116" || statusCode == http.StatusNotAcceptable {
		return ErrNotFound
	}

	code := errResp.Code
	if code == "" {
		code = errResp.ErrorCode
	}
	if code == "" {
		code = errResp.Error
	}

	msg := errResp.Message
	if msg == "" {
		msg = errResp.ErrorDescription
	}
	if msg == "" {
		msg = errResp.Msg
	}
	if msg == "" {
		msg = errResp.Error
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	return &Error{
		Code:       code,
		Message:    msg,
		Details:    errResp.Details,
		Hint:       errResp.Hint,
		StatusCode: statusCode,
	}
}
