package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
)

// Options configures the order backend client
type Options struct {
	BaseURL     string
	ImportPath  string
	ListPath    string
	ConfirmPath string

	// Timeout for individual requests (default: 30s)
	Timeout time.Duration

	// RateLimit in requests per second; zero disables throttling
	RateLimit float64
	RateBurst int

	// Transport allows injecting a custom HTTP transport (for tests)
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Client talks to the order-management backend on behalf of one credential
type Client struct {
	opts        Options
	httpClient  *http.Client
	rateLimiter RateLimiter
	logger      *slog.Logger
}

// NewClient creates a client that sends cred as a bearer token on every request
func NewClient(opts Options, cred domain.Credential) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	base := &http.Client{Transport: opts.Transport}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.Token,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = opts.Timeout

	return &Client{
		opts:        opts,
		httpClient:  httpClient,
		rateLimiter: NewRateLimiter(opts.RateLimit, opts.RateBurst),
		logger:      opts.Logger,
	}
}

// response is a fully read HTTP response
type response struct {
	StatusCode int
	Body       []byte
}

// IsSuccess returns true if the status code is 2xx
func (r *response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (c *Client) endpoint(path string, params url.Values) (string, error) {
	u, err := url.Parse(c.opts.BaseURL + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String(), nil
}

// do executes exactly one request. It never retries.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body io.Reader, contentType string) (*response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	target, err := c.endpoint(path, params)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency", time.Since(start).Round(time.Millisecond),
	)

	return &response{StatusCode: resp.StatusCode, Body: data}, nil
}
