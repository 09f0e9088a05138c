package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sealpost/sealpost/internal/retry"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the default number of retries for idempotent requests.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the initial retry delay.
	DefaultRetryDelay = time.Second
)

// Config holds explicit client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Client is the HTTP client for a sealpost daemon.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      *retry.Config
	logger     *slog.Logger
}

// Option configures the API client.
type Option func(*Config)

// WithAPIKey sets the API key sent in X-API-Key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithRetries sets the number of retries for idempotent requests.
// Zero disables retries.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries <= 0 {
			retries = -1
		}
		c.MaxRetries = retries
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// New creates a client for baseURL using functional options.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := Config{BaseURL: baseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewClient(cfg)
}

// NewClient creates a client from explicit configuration. A zero
// MaxRetries selects the default; a negative one disables retries.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must be http or https: %q", cfg.BaseURL)
	}

	rc := retry.Default()
	switch {
	case cfg.MaxRetries > 0:
		rc.MaxRetries = cfg.MaxRetries
	case cfg.MaxRetries < 0:
		rc.MaxRetries = 0
	default:
		rc.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay > 0 {
		rc.BaseDelay = cfg.RetryDelay
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		retry:      rc,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doJSON sends an optional JSON body and decodes a JSON result.
// Idempotent requests are retried on transient statuses.
func (c *Client) doJSON(ctx context.Context, method, path string, idempotent bool, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}
	resp, err := c.do(ctx, method, path, idempotent, "application/json", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// do performs the request and returns a 2xx response with an open body.
func (c *Client) do(ctx context.Context, method, path string, idempotent bool, contentType string, payload []byte) (*http.Response, error) {
	url := c.baseURL + path
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if idempotent && attempt < c.retry.MaxRetries {
				c.logger.Debug("request failed, retrying", "method", method, "path", path, "attempt", attempt+1, "error", err)
				if werr := c.retry.Wait(ctx, attempt); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, &NetworkError{Err: err, URL: url, Attempt: attempt + 1}
		}

		if resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := parseErrorResponse(resp)
		resp.Body.Close()
		if idempotent && c.retry.ShouldRetry(attempt, resp.StatusCode) {
			c.logger.Debug("retryable status", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt+1)
			if werr := c.retry.Wait(ctx, attempt); werr != nil {
				return nil, werr
			}
			continue
		}
		return nil, apiErr
	}
}

func parseErrorResponse(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       errResp.Error,
			Message:    errResp.Message,
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

// rejectOrErr turns a ledger rejection response into *ledger.RejectError.
func rejectOrErr(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if rej := apiErr.Reject(); rej != nil {
			return rej
		}
	}
	return err
}

func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
