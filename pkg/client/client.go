// Package client provides the HTTP adapter shared by every dataspace service
// binding: connector management APIs, discovery services and the digital
// twin registry. It adds authentication headers, throttling, retries with
// backoff, metrics and structured logging around a plain *http.Client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/auth"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for HTTP adapter operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tractusx_http_requests_total",
		Help: "Total dataspace API requests by service, method and status",
	}, []string{"service", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tractusx_http_request_duration_seconds",
		Help:    "Dataspace API request duration in seconds by service",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"service"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tractusx_http_errors_total",
		Help: "Total dataspace API errors by class",
	}, []string{"class"})
)

// maxErrorBody caps how much of an error response body is kept on APIError.
const maxErrorBody = 64 << 10

// Client is an HTTP adapter bound to one remote service.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Name labels metrics and logs, e.g. "edc-management" or "dtr".
	Name string

	// BaseURL is prepended to relative request paths.
	BaseURL string

	// Headers are sent with every request (e.g. X-Api-Key).
	Headers map[string]string

	// Auth adds per-request authorization headers. Optional.
	Auth auth.Authorizer

	UserAgent string
	Timeout   time.Duration

	// RateLimit is the maximum requests per second; 0 disables throttling.
	RateLimit float64
	RateBurst int

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(name, baseURL string) Config {
	retry := DefaultRetryConfig()
	return Config{
		Name:           name,
		BaseURL:        baseURL,
		UserAgent:      "tractusx-sdk-go/0.1.0",
		Timeout:        30 * time.Second,
		RateBurst:      1,
		MaxRetries:     retry.MaxAttempts - 1,
		InitialBackoff: retry.InitialBackoff,
		MaxBackoff:     retry.MaxBackoff,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("service name is required")
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
		}
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
		retry:   retry,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentClient).With().Str("service", cfg.Name).Logger(),
	}, nil
}

// Do performs an HTTP request with throttling, authentication and retries.
// 4xx responses are returned to the caller untouched; 5xx, 429 and network
// failures are retried and surface as errors once attempts run out.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	service := c.config.Name

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(service).Observe(time.Since(startTime).Seconds())
	}()

	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
	if c.config.Auth != nil {
		if err := c.config.Auth.AddAuthHeader(ctx, req.Header); err != nil {
			return nil, fmt.Errorf("add auth header: %w", err)
		}
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Msg("Executing request")

	var resp *http.Response
	err := retryWithBackoff(ctx, c.retry, c.logger, func() (ErrorClass, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter: %w", err)
			}
		}

		attempt := req
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return "", fmt.Errorf("rewind request body: %w", err)
			}
			attempt = req.Clone(ctx)
			attempt.Body = body
		}

		r, err := c.httpClient.Do(attempt)
		if err != nil {
			requestsTotal.WithLabelValues(service, req.Method, "network_error").Inc()
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			if ctx.Err() != nil {
				return "", err
			}
			c.logger.Warn().Err(err).Str("url", req.URL.Redacted()).Msg("HTTP request failed")
			return ErrorClassNetwork, err
		}

		requestsTotal.WithLabelValues(service, req.Method, strconv.Itoa(r.StatusCode)).Inc()

		errClass := classifyStatus(r.StatusCode)
		if errClass == "" {
			resp = r
			return "", nil
		}

		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("url", req.URL.Redacted()).
			Int("status", r.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Request returned error status")

		if shouldRetry(errClass) {
			body, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
			r.Body.Close()
			return errClass, &APIError{
				Service:    service,
				StatusCode: r.StatusCode,
				ErrorClass: errClass,
				Message:    r.Status,
				Body:       body,
			}
		}

		// Client errors are the caller's to interpret.
		resp = r
		return errClass, nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// NewRequest builds a request against path (relative to BaseURL unless
// absolute). body may be nil, []byte holding JSON, or any value that is
// marshalled to JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		var data []byte
		switch b := body.(type) {
		case []byte:
			data = b
		case json.RawMessage:
			data = b
		default:
			data, err = json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal request body: %w", err)
			}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, path, nil, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.send(ctx, http.MethodPut, path, nil, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.send(ctx, http.MethodDelete, path, nil, nil)
}

// JSON performs a request and decodes a successful JSON response into out.
// out may be nil to discard the body. Non-2xx responses yield *APIError.
func (c *Client) JSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.NewRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	return c.DoJSON(req, out)
}

// DoJSON executes a prepared request like JSON does. Callers use it to set
// per-request headers.
func (c *Client) DoJSON(req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Service:    c.config.Name,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
			Body:       data,
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s response: %w", c.config.Name, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	req, err := c.NewRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *Client) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if c.config.BaseURL == "" {
		return "", fmt.Errorf("relative path %q requires a base url", path)
	}
	if path == "" {
		return strings.TrimRight(c.config.BaseURL, "/"), nil
	}
	return JoinURL(c.config.BaseURL, path), nil
}

// JoinURL joins URL parts with single slashes, trimming leading and trailing
// slashes from every part.
func JoinURL(parts ...string) string {
	trimmed := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			trimmed = append(trimmed, part)
		}
	}
	return strings.Join(trimmed, "/")
}

// Name returns the service name the client was configured with.
func (c *Client) Name() string {
	return c.config.Name
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
