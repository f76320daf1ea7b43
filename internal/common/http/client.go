package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"edge-redirector/internal/circuitbreaker"
	"edge-redirector/internal/common/errors"
)

// ClientConfig holds HTTP client configuration
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Transport           http.RoundTripper
}

// DefaultClientConfig returns default HTTP client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// ClientOption is a function that modifies ClientConfig
type ClientOption func(*ClientConfig)

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithMaxIdleConnsPerHost sets the maximum number of idle connections per host
func WithMaxIdleConnsPerHost(max int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxIdleConnsPerHost = max
	}
}

// WithTransport sets a custom transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *ClientConfig) {
		c.Transport = transport
	}
}

// NewHTTPClient creates a new HTTP client with the given options
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := DefaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// RequestOptions describes one API call
type RequestOptions struct {
	Method  string
	URL     string
	Body    io.Reader
	Headers map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// DecodeJSON unmarshals the response body into v
func (r *Response) DecodeJSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.InternalError("failed to decode response body", err)
	}
	return nil
}

// HTTPClientWrapper wraps http.Client with a circuit breaker and a rate limiter
type HTTPClientWrapper struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.GoBreakerAdapter
	rateLimiter    *rate.Limiter
}

// NewHTTPClientWrapper creates a wrapper around a client built from opts
func NewHTTPClientWrapper(opts ...ClientOption) *HTTPClientWrapper {
	return &HTTPClientWrapper{client: NewHTTPClient(opts...)}
}

// WithCircuitBreaker guards every request with a breaker using cfg
func (w *HTTPClientWrapper) WithCircuitBreaker(name string, cfg circuitbreaker.Config) *HTTPClientWrapper {
	w.circuitBreaker = circuitbreaker.NewGoBreaker(name, cfg, nil)
	return w
}

// WithRateLimiter caps outgoing requests. A non-positive limit disables limiting.
func (w *HTTPClientWrapper) WithRateLimiter(limit rate.Limit, burst int) *HTTPClientWrapper {
	if limit <= 0 {
		w.rateLimiter = nil
		return w
	}
	if burst < 1 {
		burst = 1
	}
	w.rateLimiter = rate.NewLimiter(limit, burst)
	return w
}

// Request executes one HTTP request. Non-2xx answers are returned together with
// an *errors.AppError classified by status code.
func (w *HTTPClientWrapper) Request(ctx context.Context, opts *RequestOptions) (*Response, error) {
	if w.rateLimiter != nil {
		if err := w.rateLimiter.Wait(ctx); err != nil {
			return nil, errors.RateLimitError(opts.URL)
		}
	}

	var (
		response *Response
		err      error
	)
	if w.circuitBreaker != nil {
		err = w.circuitBreaker.Execute(ctx, func() error {
			var reqErr error
			response, reqErr = w.executeRequest(ctx, opts)
			return reqErr
		})
	} else {
		response, err = w.executeRequest(ctx, opts)
	}

	return response, err
}

func (w *HTTPClientWrapper) executeRequest(ctx context.Context, opts *RequestOptions) (*Response, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, opts.Body)
	if err != nil {
		return nil, errors.InternalError("failed to create request", err)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.TimeoutError(opts.Method+" "+opts.URL, err)
		}
		return nil, errors.ConnectionError("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ConnectionError("failed to read response body", err)
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return response, nil
	}

	return response, errors.FromHTTPStatus(resp.StatusCode,
		fmt.Sprintf("%s %s: HTTP %d: %s", opts.Method, opts.URL, resp.StatusCode, summarize(body)))
}

func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// JSONBody encodes v for use as RequestOptions.Body
func JSONBody(v interface{}) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.InternalError("failed to encode request body", err)
	}
	return bytes.NewReader(data), nil
}

// GetCircuitBreaker returns the circuit breaker, if any
func (w *HTTPClientWrapper) GetCircuitBreaker() *circuitbreaker.GoBreakerAdapter {
	return w.circuitBreaker
}
