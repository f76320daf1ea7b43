// Package fastly talks to the Fastly management API and publishes compiled
// snippets to a service.
package fastly

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"edge-redirector/internal/circuitbreaker"
	"edge-redirector/internal/common/errors"
	commonhttp "edge-redirector/internal/common/http"
	"edge-redirector/internal/compiler"
)

// DefaultBaseURL is the public Fastly API endpoint.
const DefaultBaseURL = "https://api.fastly.com"

// KeyHeader carries the API token on every call.
const KeyHeader = "Fastly-Key"

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	Transport http.RoundTripper
}

// Client is a minimal Fastly API client covering the calls needed to swap VCL
// snippets on a new service version.
type Client struct {
	baseURL string
	http    *commonhttp.HTTPClientWrapper
}

// NewClient builds a Client. Zero values fall back to DefaultBaseURL and a 30s timeout.
func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []commonhttp.ClientOption{commonhttp.WithTimeout(timeout)}
	if cfg.Transport != nil {
		opts = append(opts, commonhttp.WithTransport(cfg.Transport))
	}

	wrapper := commonhttp.NewHTTPClientWrapper(opts...).
		WithCircuitBreaker("fastly-api", circuitbreaker.FastlyAPIConfig).
		WithRateLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)

	return &Client{baseURL: base, http: wrapper}
}

// Version is one entry of a service's version list.
type Version struct {
	Number int  `json:"number"`
	Active bool `json:"active"`
}

type serviceDetails struct {
	ID       string    `json:"id"`
	Versions []Version `json:"versions"`
}

// snippetRequest is the body of a snippet upload.
type snippetRequest struct {
	Name    string `json:"name"`
	Dynamic int    `json:"dynamic"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ActiveVersion returns the number of the currently active version of serviceID.
func (c *Client) ActiveVersion(ctx context.Context, key, serviceID string) (int, error) {
	resp, err := c.do(ctx, key, http.MethodGet, c.servicePath(serviceID), nil)
	if err != nil {
		return 0, err
	}

	var details serviceDetails
	if err := resp.DecodeJSON(&details); err != nil {
		return 0, err
	}
	for _, v := range details.Versions {
		if v.Active {
			return v.Number, nil
		}
	}
	return 0, errors.NotFoundError(fmt.Sprintf("active version of service %s", serviceID))
}

// CloneVersion copies version into a new draft version and returns its number.
func (c *Client) CloneVersion(ctx context.Context, key, serviceID string, version int) (int, error) {
	resp, err := c.do(ctx, key, http.MethodPut, c.versionPath(serviceID, version)+"/clone", nil)
	if err != nil {
		return 0, err
	}

	var cloned Version
	if err := resp.DecodeJSON(&cloned); err != nil {
		return 0, err
	}
	if cloned.Number == 0 {
		return 0, errors.InternalError("clone response carries no version number", nil)
	}
	return cloned.Number, nil
}

// DeleteSnippet removes a snippet from a draft version. A missing snippet is
// not an error.
func (c *Client) DeleteSnippet(ctx context.Context, key, serviceID string, version int, name string) error {
	path := c.versionPath(serviceID, version) + "/snippet/" + url.PathEscape(name)
	_, err := c.do(ctx, key, http.MethodDelete, path, nil)
	if errors.IsType(err, errors.ErrTypeNotFound) {
		return nil
	}
	return err
}

// CreateSnippet uploads a regular (versioned) snippet.
func (c *Client) CreateSnippet(ctx context.Context, key, serviceID string, version int, s compiler.Snippet) error {
	body, err := commonhttp.JSONBody(snippetRequest{
		Name:    s.Name,
		Dynamic: 0,
		Type:    s.Type,
		Content: s.Content,
	})
	if err != nil {
		return err
	}

	_, err = c.do(ctx, key, http.MethodPost, c.versionPath(serviceID, version)+"/snippet", body)
	return err
}

// ActivateVersion makes version the live configuration of serviceID.
func (c *Client) ActivateVersion(ctx context.Context, key, serviceID string, version int) error {
	_, err := c.do(ctx, key, http.MethodPut, c.versionPath(serviceID, version)+"/activate", nil)
	return err
}

func (c *Client) servicePath(serviceID string) string {
	return "/service/" + url.PathEscape(serviceID)
}

func (c *Client) versionPath(serviceID string, version int) string {
	return fmt.Sprintf("%s/version/%d", c.servicePath(serviceID), version)
}

// Health fails while the circuit breaker in front of the API is open.
func (c *Client) Health(ctx context.Context) error {
	if cb := c.http.GetCircuitBreaker(); cb != nil && cb.IsOpen() {
		return errors.ConnectionError("fastly API circuit breaker is open", nil)
	}
	return nil
}

func (c *Client) do(ctx context.Context, key, method, path string, body io.Reader) (*commonhttp.Response, error) {
	headers := map[string]string{
		KeyHeader: key,
		"Accept":  "application/json",
	}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}

	return c.http.Request(ctx, &commonhttp.RequestOptions{
		Method:  method,
		URL:     c.baseURL + path,
		Body:    body,
		Headers: headers,
	})
}
