// Package newsclient is the request layer for the remote news/insight
// service. It issues one HTTP request per call: no retries and no caching.
// Every failure is returned as an *Error whose Kind tells the caller whether
// the service was unreachable, answered with a failure, or sent a body of
// the wrong shape.
package newsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/seenimoa/finmarket/internal/infra"
	"github.com/seenimoa/finmarket/pkg/models"
)

const (
	// DefaultTimeout bounds every request when Config.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "finmarket/dev"

	maxErrorBody    = 1024
	maxResponseBody = 8 << 20
)

// Config configures a Client. BaseURL is the service root, e.g.
// "http://10.0.2.2:8000"; paths such as /api/news are resolved against it.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	APIToken  string // sent as a bearer token when set
}

// Filters narrows a news request. The zero value requests every category.
type Filters struct {
	Category models.Category
	Limit    int
	Page     int
}

// Client talks to the remote news/insight service.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	token     string
	logger    *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is
// respected as-is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for per-request debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the service at cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	c := &Client{
		base:      base,
		http:      &http.Client{Timeout: timeout},
		userAgent: ua,
		token:     cfg.APIToken,
		logger:    infra.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root the client was configured with.
func (c *Client) BaseURL() string { return c.base.String() }

// FetchNews returns the news items matching f. Category filtering is applied
// by the service; CategoryAll omits the parameter.
func (c *Client) FetchNews(ctx context.Context, f Filters) ([]models.NewsItem, error) {
	q := url.Values{}
	if f.Category != "" && f.Category != models.CategoryAll {
		q.Set("category", string(f.Category))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}

	const op = "GET /api/news"
	var resp newsResponse
	if err := c.do(ctx, op, http.MethodGet, "/api/news", q, nil, &resp); err != nil {
		return nil, err
	}
	items, err := resp.items()
	if err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return items, nil
}

// FetchInsights asks the service to compute an insight for the symbols.
func (c *Client) FetchInsights(ctx context.Context, symbols []string) (models.InsightSummary, error) {
	if len(symbols) == 0 {
		return models.InsightSummary{}, ErrNoSymbols
	}

	const op = "POST /api/insights"
	var resp insightResponse
	body := insightRequest{Symbols: symbols}
	if err := c.do(ctx, op, http.MethodPost, "/api/insights", nil, body, &resp); err != nil {
		return models.InsightSummary{}, err
	}
	insight, err := resp.insight()
	if err != nil {
		return models.InsightSummary{}, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return insight, nil
}

// FetchNewsSummary returns the extended view of a single item.
func (c *Client) FetchNewsSummary(ctx context.Context, id int64) (*models.NewsDetail, error) {
	op := "GET /api/news/{id}/summary"
	path := "/api/news/" + strconv.FormatInt(id, 10) + "/summary"

	var resp newsDetailResponse
	if err := c.do(ctx, op, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	detail, err := resp.detail()
	if err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return detail, nil
}

// Health reports the service's own health endpoint.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	const op = "GET /health"
	var h models.Health
	if err := c.do(ctx, op, http.MethodGet, "/health", nil, nil, &h); err != nil {
		return nil, err
	}
	if h.Status == "" {
		return nil, &Error{Kind: KindDecode, Op: op, Err: fmt.Errorf("missing status")}
	}
	return &h, nil
}

// do performs one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body, out any) error {
	u := c.base.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "op", op, "url", u.String(), "elapsed", time.Since(start), "err", err)
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request done", "op", op, "url", u.String(), "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{
			Kind:       KindService,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return nil
}
