// Package client fetches single pages of a paginated listing endpoint over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/listing-harvester/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_requests_total",
		Help: "Total listing requests by HTTP status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_request_duration_seconds",
		Help:    "Listing request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_request_errors_total",
		Help: "Total failed listing requests by error class",
	}, []string{"class"})
)

// DefaultUserAgent is a desktop browser user agent. Listing APIs that sit
// behind bot protection reject obvious non-browser clients.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

var _ pagination.PageFetcher = (*Client)(nil)

// Client fetches listing pages. It implements pagination.PageFetcher.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	headers    http.Header
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the absolute listing URL. Existing query parameters are kept.
	Endpoint string

	// PageParam is the query parameter carrying the page index.
	PageParam string

	// Client identification
	UserAgent string
	Origin    string
	Referer   string

	// BearerToken goes into "Authorization: Bearer <token>".
	// Empty sends the literal placeholder "null".
	BearerToken string

	// AuthToken goes into the custom X-Authorization header when set.
	AuthToken string

	// Headers are added on top of the standard set and override it.
	Headers map[string]string

	// RequestTimeout bounds a single page request.
	RequestTimeout time.Duration

	// Connection pool. MaxConnsPerHost should be at least the harvester's
	// primary concurrency.
	MaxConnsPerHost int
	MaxIdleConns    int
}

// DefaultConfig returns the default configuration for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:        endpoint,
		PageParam:       "page",
		UserAgent:       DefaultUserAgent,
		Headers:         map[string]string{"Accept-Language": "en-GB,en-US;q=0.9,en;q=0.8"},
		RequestTimeout:  30 * time.Second,
		MaxConnsPerHost: 50,
		MaxIdleConns:    100,
	}
}

// New creates a new listing client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an http(s) URL (got %q)", cfg.Endpoint)
	}
	if endpoint.Host == "" {
		return nil, fmt.Errorf("endpoint has no host (got %q)", cfg.Endpoint)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be > 0 (got %s)", cfg.RequestTimeout)
	}

	if cfg.MaxConnsPerHost < 1 {
		return nil, fmt.Errorf("max_conns_per_host must be >= 1 (got %d)", cfg.MaxConnsPerHost)
	}

	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.MaxConnsPerHost
	transport.MaxIdleConnsPerHost = cfg.MaxConnsPerHost
	transport.MaxIdleConns = max(cfg.MaxIdleConns, cfg.MaxConnsPerHost)

	return &Client{
		httpClient: &http.Client{Transport: transport},
		endpoint:   endpoint,
		headers:    buildHeaders(cfg),
		config:     cfg,
		logger:     log.With().Str("component", "listing-client").Logger(),
	}, nil
}

// buildHeaders assembles the header set sent with every page request.
func buildHeaders(cfg Config) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("User-Agent", cfg.UserAgent)
	h.Set("X-Requested-With", "XMLHttpRequest")

	token := cfg.BearerToken
	if token == "" {
		token = "null"
	}
	h.Set("Authorization", "Bearer "+token)

	if cfg.AuthToken != "" {
		h.Set("X-Authorization", cfg.AuthToken)
	}
	if cfg.Origin != "" {
		h.Set("Origin", cfg.Origin)
	}
	if cfg.Referer != "" {
		h.Set("Referer", cfg.Referer)
	}

	for key, value := range cfg.Headers {
		h.Set(key, value)
	}
	return h
}

// pageBody is the expected response shape. Data is a pointer so a missing
// or null data key can be told apart from an empty page.
type pageBody struct {
	Data     *[]pagination.Record `json:"data"`
	LastPage int                  `json:"last_page"`
	Total    int                  `json:"total"`
}

// FetchPage requests one page. Every failure is returned in the result's
// Err, never as a panic; there is no retry here.
func (c *Client) FetchPage(ctx context.Context, page int) pagination.PageResult {
	if page < 1 {
		return pagination.Failed(page, fmt.Errorf("%w (got %d)", ErrInvalidPage, page))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(page), nil)
	if err != nil {
		return pagination.Failed(page, fmt.Errorf("create request: %w", err))
	}
	req.Header = c.headers.Clone()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		class := ErrorClassNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			class = ErrorClassTimeout
		}
		requestsTotal.WithLabelValues(string(class)).Inc()
		return c.fail(&FetchError{Page: page, ErrorClass: class, Err: err})
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return c.fail(&FetchError{
			Page:       page,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		})
	}

	var body pageBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		class := ErrorClassDecode
		if errors.Is(err, context.DeadlineExceeded) {
			class = ErrorClassTimeout
		}
		return c.fail(&FetchError{
			Page:       page,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    "decode body",
			Err:        fmt.Errorf("%w: %v", ErrMalformedBody, err),
		})
	}
	if body.Data == nil {
		return c.fail(&FetchError{
			Page:       page,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode body",
			Err:        ErrMissingData,
		})
	}

	c.logger.Debug().
		Int("page", page).
		Int("records", len(*body.Data)).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")

	return pagination.PageResult{
		Page:     page,
		Records:  *body.Data,
		LastPage: body.LastPage,
		Total:    body.Total,
	}
}

func (c *Client) fail(fe *FetchError) pagination.PageResult {
	errorsTotal.WithLabelValues(string(fe.ErrorClass)).Inc()
	c.logger.Debug().
		Err(fe).
		Int("page", fe.Page).
		Int("status_code", fe.StatusCode).
		Str("error_class", string(fe.ErrorClass)).
		Msg("Page fetch failed")
	return pagination.Failed(fe.Page, fe)
}

// pageURL returns the endpoint with the page parameter set.
func (c *Client) pageURL(page int) string {
	u := *c.endpoint
	q := u.Query()
	q.Set(c.config.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Headers returns a copy of the header set sent with every request.
func (c *Client) Headers() http.Header {
	return c.headers.Clone()
}

// Close releases idle pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
