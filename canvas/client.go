/*
Package canvas is the Canvas LMS adapter for the reconciliation engine.

PURPOSE:
  Implements the engine's RosterProvider and LMSClient interfaces against
  the Canvas REST API: enrollments for the roster, quiz-backed assignments
  for the assessment list, and quiz extensions for reading and writing
  per-student time-limit overrides.

KEY CONCEPTS:
  - Client: Authenticated REST client with Link-header pagination
  - APIError: Typed non-2xx failure with status predicates (errors.go)
  - Fake: In-memory double for demo mode and handler tests (fake.go)

UNIT CONVENTION:
  Canvas stores a quiz extension as EXTRA minutes on top of the quiz's
  base time limit. The engine works in TOTAL minutes everywhere. The
  conversion happens here and only here: reads add the base back on,
  writes subtract it off (assessments.go).

USAGE:
  client, err := canvas.New("https://canvas.example.edu", token,
      canvas.WithTimeout(30*time.Second),
      canvas.WithLogger(logger),
  )

SEE ALSO:
  - roster.go: Enrollment listing
  - assessments.go: Quiz snapshot and override writes
  - courses.go: Teacher course listing
*/
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/adapt/rap-engine/rap"
)

// The client is the production implementation of both engine-facing
// interfaces.
var (
	_ rap.RosterProvider = (*Client)(nil)
	_ rap.LMSClient      = (*Client)(nil)
)

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 100
)

// clientConfig collects the optional knobs applied by Options.
type clientConfig struct {
	httpClient *http.Client
	logger     *zap.Logger
	timeout    time.Duration
	pageSize   int
}

// Option configures optional Client behavior.
type Option func(*clientConfig)

// WithHTTPClient substitutes the underlying HTTP client, primarily for
// tests. A custom client's own timeout wins over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithLogger attaches a logger for request-level diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithPageSize sets the per_page value used on paginated listings.
func WithPageSize(n int) Option {
	return func(c *clientConfig) { c.pageSize = n }
}

// Client talks to one Canvas instance on behalf of one access token.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	log      *zap.Logger
	pageSize int
}

// New builds a Canvas client for the given instance URL and access token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("canvas: base URL is required")
	}
	if token == "" {
		return nil, fmt.Errorf("canvas: access token is required")
	}

	cfg := clientConfig{
		logger:   zap.NewNop(),
		timeout:  defaultTimeout,
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.pageSize <= 0 {
		cfg.pageSize = defaultPageSize
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     cfg.httpClient,
		log:      cfg.logger,
		pageSize: cfg.pageSize,
	}, nil
}

// ReadTokenFile loads a Canvas access token from a file, trimming
// surrounding whitespace.
func ReadTokenFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read canvas token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("canvas token file %s is empty", path)
	}
	return token, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do issues one authenticated request and returns the raw body plus the
// response headers. Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, url, operation string, body []byte) ([]byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: build request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("canvas request", zap.String("method", method), zap.String("url", url))
	res, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read response: %w", operation, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, nil, newAPIError(operation, res.StatusCode, apiMessage(payload, res.StatusCode))
	}
	return payload, res.Header, nil
}

func (c *Client) get(ctx context.Context, operation, url string) ([]byte, error) {
	payload, _, err := c.do(ctx, http.MethodGet, url, operation, nil)
	return payload, err
}

func (c *Client) postJSON(ctx context.Context, operation, url string, body any) ([]byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", operation, err)
	}
	payload, _, err := c.do(ctx, http.MethodPost, url, operation, buf)
	return payload, err
}

// getPaginated follows Canvas Link headers until the listing is exhausted
// and returns the concatenated array elements.
func (c *Client) getPaginated(ctx context.Context, operation, url string) ([]gjson.Result, error) {
	var rows []gjson.Result
	for url != "" {
		payload, header, err := c.do(ctx, http.MethodGet, url, operation, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, gjson.ParseBytes(payload).Array()...)
		url = nextPageURL(header.Get("Link"))
	}
	return rows, nil
}

// nextPageURL extracts the rel="next" target from a Canvas Link header.
// Empty when the current page is the last one.
func nextPageURL(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		segments := strings.SplitN(part, ";", 2)
		if len(segments) < 2 || !strings.Contains(segments[1], `rel="next"`) {
			continue
		}
		url := strings.TrimSpace(segments[0])
		url = strings.TrimPrefix(url, "<")
		url = strings.TrimSuffix(url, ">")
		return url
	}
	return ""
}

// apiMessage digs the human-readable message out of a Canvas error body.
func apiMessage(payload []byte, status int) string {
	if msg := gjson.GetBytes(payload, "errors.0.message"); msg.Exists() {
		return msg.String()
	}
	if msg := gjson.GetBytes(payload, "message"); msg.Exists() {
		return msg.String()
	}
	return http.StatusText(status)
}
