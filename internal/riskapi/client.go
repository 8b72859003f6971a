// Package riskapi is the HTTP client for the risk analytics backend.
package riskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/bookrisk/internal/logger"
	"github.com/rewired-gh/bookrisk/internal/metrics"
)

var (
	// ErrNoTickData is returned when the backend has no ticks to replay for a market.
	ErrNoTickData = errors.New("no tick data available for market")
	// ErrInvalidJSON wraps response bodies that fail to parse.
	ErrInvalidJSON = errors.New("invalid JSON response")
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, body)
}

// ClientConfig controls timeouts, retries, and rate limiting.
type ClientConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	RateLimit  float64 // requests per second, 0 = unlimited
	Burst      int
	// StaleAfter marks events stale when the backend omits is_stale.
	StaleAfter time.Duration
}

// DefaultClientConfig returns conservative defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		RateLimit:  5,
		Burst:      5,
		StaleAfter: 120 * time.Minute,
	}
}

// Client provides access to the risk analytics API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	staleAfter time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for baseURL. The base is fixed for the
// client's lifetime; build a second client for the stream backend.
func NewClient(baseURL string, cfg ClientConfig, opts ...ClientOption) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest performs a GET with retry logic. 5xx responses and transport
// errors are retried with linear backoff; other non-2xx codes are returned
// as *StatusError immediately.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	requestID := uuid.NewString()
	endpoint := endpointLabel(path)
	start := time.Now()

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			c.metrics.RecordAPIRetry(endpoint)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.retryDelay):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.RecordAPIRequest(endpoint, 0, time.Since(start).Seconds())
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Debug("Request %s %s failed (attempt %d): %v", requestID, path, i+1, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.metrics.RecordAPIRequest(endpoint, resp.StatusCode, time.Since(start).Seconds())
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			logger.Debug("Request %s %s got %d (attempt %d)", requestID, path, resp.StatusCode, i+1)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	body, err := c.doRequest(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidJSON, path, err)
	}
	return nil
}

// getList decodes a list body. The backend answers with either a bare array
// or {"items": [...]}; any other shape yields an empty list.
func getList[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	body, err := c.doRequest(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return decodeList[T](path, body)
}

func decodeList[T any](path string, body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, path)
	}

	out := []T{}
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidJSON, path, err)
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var wrapped struct {
			Items *[]T `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidJSON, path, err)
		}
		if wrapped.Items == nil {
			logger.Warn("Response from %s is an object without items, treating as empty", path)
			return out, nil
		}
		if *wrapped.Items != nil {
			out = *wrapped.Items
		}
	default:
		logger.Warn("Response from %s is not a list, treating as empty", path)
	}
	return out, nil
}

// endpointLabel collapses path parameters so metric cardinality stays bounded.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 {
		switch parts[0] {
		case "events", "markets":
			if parts[1] != "book-risk-focus" && parts[1] != "by-date-snapshots" {
				parts[1] = "{id}"
			}
		case "leagues":
			parts[1] = "{league}"
		}
	}
	return "/" + strings.Join(parts, "/")
}
