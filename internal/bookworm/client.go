package bookworm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sha1n/mcp-bookworm-server/internal/metrics"
	"github.com/sha1n/mcp-bookworm-server/internal/query"
)

var (
	// ErrMissingEndpoint indicates a client built without a service endpoint
	ErrMissingEndpoint = errors.New("no endpoint specified")

	// ErrRemote indicates the counting service answered with a non-2xx status
	ErrRemote = errors.New("counting service error")
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 512

// Fetcher sends a query document to a counting service and returns the raw
// JSON response.
type Fetcher interface {
	Fetch(ctx context.Context, q any) ([]byte, error)
	Endpoint() string
}

// Client talks to a counting service over HTTP. Queries travel JSON-encoded
// in the queryTerms parameter of a GET request.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
		}
	}
}

// WithClientLogger sets the logger for request tracing.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the service at endpoint.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the service URL the client was created with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// URL returns the request URL for q.
func (c *Client) URL(q any) (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to encode query: %w", err)
	}
	sep := "?"
	if strings.Contains(c.endpoint, "?") {
		sep = "&"
	}
	return c.endpoint + sep + "queryTerms=" + url.QueryEscape(string(data)), nil
}

// Fetch sends q and returns the response body.
func (c *Client) Fetch(ctx context.Context, q any) (body []byte, err error) {
	method := methodOf(q)
	requestID := uuid.NewString()
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.ObserveFetch(method, elapsed, err)
		c.logger.DebugContext(ctx, "Query finished", "request_id", requestID, "method", method,
			"elapsed", elapsed, "error", err)
	}()

	reqURL, err := c.URL(q)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Running query", "request_id", requestID, "url", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody] + "..."
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrRemote, resp.Status, snippet)
	}

	return body, nil
}

// methodOf extracts the service method for metrics labels.
func methodOf(q any) string {
	switch t := q.(type) {
	case query.Descriptor:
		return t.Method
	case *query.Descriptor:
		return t.Method
	case map[string]any:
		if m, ok := t["method"].(string); ok {
			return m
		}
	}
	return "unknown"
}
