package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/listing-harvester/internal/testutil"
)

func newTestClient(t *testing.T, endpoint string, mutate func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig(endpoint)
	cfg.RequestTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	valid := DefaultConfig("https://example.com/api/items/")

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:        "empty endpoint",
			mutate:      func(c *Config) { c.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint is required",
		},
		{
			name:        "non-http endpoint",
			mutate:      func(c *Config) { c.Endpoint = "ftp://example.com/items" },
			expectError: true,
			errorMsg:    `endpoint must be an http(s) URL (got "ftp://example.com/items")`,
		},
		{
			name:        "endpoint without host",
			mutate:      func(c *Config) { c.Endpoint = "https:///items" },
			expectError: true,
			errorMsg:    `endpoint has no host (got "https:///items")`,
		},
		{
			name:        "empty user agent",
			mutate:      func(c *Config) { c.UserAgent = "" },
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "zero timeout",
			mutate:      func(c *Config) { c.RequestTimeout = 0 },
			expectError: true,
			errorMsg:    "request_timeout must be > 0 (got 0s)",
		},
		{
			name:        "zero pool",
			mutate:      func(c *Config) { c.MaxConnsPerHost = 0 },
			expectError: true,
			errorMsg:    "max_conns_per_host must be >= 1 (got 0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			c, err := New(cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://example.com/api/items/")

	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.PageParam != "page" {
		t.Errorf("PageParam = %q, want page", cfg.PageParam)
	}
	if cfg.MaxConnsPerHost < 50 {
		t.Errorf("MaxConnsPerHost = %d, should cover the default concurrency of 50", cfg.MaxConnsPerHost)
	}
	if cfg.UserAgent == "" {
		t.Error("UserAgent should be set")
	}
}

func TestHeaders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   map[string]string
		absent []string
	}{
		{
			name: "defaults",
			want: map[string]string{
				"Accept":           "application/json",
				"Authorization":    "Bearer null",
				"X-Requested-With": "XMLHttpRequest",
				"User-Agent":       DefaultUserAgent,
			},
			absent: []string{"X-Authorization", "Origin", "Referer"},
		},
		{
			name: "tokens and origin",
			mutate: func(c *Config) {
				c.BearerToken = "abc"
				c.AuthToken = "00028c2d"
				c.Origin = "https://www.example.com"
				c.Referer = "https://www.example.com/"
			},
			want: map[string]string{
				"Authorization":   "Bearer abc",
				"X-Authorization": "00028c2d",
				"Origin":          "https://www.example.com",
				"Referer":         "https://www.example.com/",
			},
		},
		{
			name: "extra headers override",
			mutate: func(c *Config) {
				c.Headers = map[string]string{"Accept": "application/vnd.api+json", "DNT": "1"}
			},
			want: map[string]string{
				"Accept": "application/vnd.api+json",
				"Dnt":    "1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, "https://example.com/items", tt.mutate)
			h := c.Headers()

			for key, value := range tt.want {
				if got := h.Get(key); got != value {
					t.Errorf("header %s = %q, want %q", key, got, value)
				}
			}
			for _, key := range tt.absent {
				if got := h.Get(key); got != "" {
					t.Errorf("header %s = %q, want absent", key, got)
				}
			}
		})
	}
}

func TestFetchPage_Success(t *testing.T) {
	mock := testutil.NewMockAPI(4, 3)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.AuthToken = "secret" })

	res := c.FetchPage(context.Background(), 2)
	if !res.Success() {
		t.Fatalf("FetchPage() failed: %v", res.Err)
	}
	if res.Page != 2 {
		t.Errorf("Page = %d, want 2", res.Page)
	}
	if len(res.Records) != 3 {
		t.Errorf("len(Records) = %d, want 3", len(res.Records))
	}
	if res.LastPage != 4 || res.Total != 12 {
		t.Errorf("LastPage/Total = %d/%d, want 4/12", res.LastPage, res.Total)
	}
	if !strings.Contains(string(res.Records[0]), testutil.RecordID(2, 0)) {
		t.Errorf("Records[0] = %s, want record %s", res.Records[0], testutil.RecordID(2, 0))
	}

	if mock.RequestCount(2) != 1 {
		t.Errorf("page 2 requested %d times, want 1", mock.RequestCount(2))
	}
	h := mock.LastRequestHeader()
	if h.Get("X-Authorization") != "secret" {
		t.Errorf("X-Authorization = %q, want secret", h.Get("X-Authorization"))
	}
	if h.Get("Authorization") != "Bearer null" {
		t.Errorf("Authorization = %q, want Bearer null", h.Get("Authorization"))
	}
}

func TestFetchPage_KeepsEndpointQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data": [], "last_page": 1, "total": 0}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/items?sort=date&page=99", nil)

	res := c.FetchPage(context.Background(), 7)
	if !res.Success() {
		t.Fatalf("FetchPage() failed: %v", res.Err)
	}
	if gotQuery != "page=7&sort=date" {
		t.Errorf("query = %q, want page=7&sort=date", gotQuery)
	}
}

func TestFetchPage_EmptyDataIsSuccess(t *testing.T) {
	mock := testutil.NewMockAPI(1, 0)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), nil)

	res := c.FetchPage(context.Background(), 1)
	if !res.Success() {
		t.Fatalf("FetchPage() failed: %v", res.Err)
	}
	if res.Records == nil || len(res.Records) != 0 {
		t.Errorf("Records = %v, want empty non-nil slice", res.Records)
	}
}

func TestFetchPage_Failures(t *testing.T) {
	tests := []struct {
		name       string
		resp       testutil.MockResponse
		wantClass  ErrorClass
		wantStatus int
		wantErr    error
	}{
		{
			name:       "server error",
			resp:       testutil.NewServerErrorResponse(),
			wantClass:  ErrorClassServer,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "rate limited",
			resp:       testutil.NewRateLimitResponse(),
			wantClass:  ErrorClassRateLimit,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "forbidden",
			resp:       testutil.NewForbiddenResponse(),
			wantClass:  ErrorClassClient,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "malformed body",
			resp:       testutil.NewMalformedResponse(),
			wantClass:  ErrorClassDecode,
			wantStatus: http.StatusOK,
			wantErr:    ErrMalformedBody,
		},
		{
			name:       "missing data",
			resp:       testutil.NewMissingDataResponse(3, 30),
			wantClass:  ErrorClassDecode,
			wantStatus: http.StatusOK,
			wantErr:    ErrMissingData,
		},
		{
			name:       "null data",
			resp:       testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"data": null, "last_page": 3, "total": 30}`},
			wantClass:  ErrorClassDecode,
			wantStatus: http.StatusOK,
			wantErr:    ErrMissingData,
		},
		{
			name:       "data is not an array",
			resp:       testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"data": {"id": 1}, "last_page": 3}`},
			wantClass:  ErrorClassDecode,
			wantStatus: http.StatusOK,
			wantErr:    ErrMalformedBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI(3, 10)
			defer mock.Close()
			mock.SetResponse(2, tt.resp)

			c := newTestClient(t, mock.URL(), nil)

			res := c.FetchPage(context.Background(), 2)
			if res.Success() {
				t.Fatal("Expected failure, got success")
			}
			if res.Page != 2 {
				t.Errorf("Page = %d, want 2", res.Page)
			}
			if len(res.Records) != 0 {
				t.Errorf("failed result carries %d records", len(res.Records))
			}

			var fe *FetchError
			if !errors.As(res.Err, &fe) {
				t.Fatalf("Err = %T %v, want *FetchError", res.Err, res.Err)
			}
			if fe.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", fe.ErrorClass, tt.wantClass)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.wantStatus)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want errors.Is %v", res.Err, tt.wantErr)
			}
		})
	}
}

func TestFetchPage_Timeout(t *testing.T) {
	mock := testutil.NewMockAPI(2, 1)
	defer mock.Close()
	mock.SetResponse(2, testutil.NewSlowResponse(testutil.NewPageResponse(2, 2, 1), time.Second))

	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.RequestTimeout = 50 * time.Millisecond })

	start := time.Now()
	res := c.FetchPage(context.Background(), 2)
	if res.Success() {
		t.Fatal("Expected timeout failure, got success")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("FetchPage took %v, per-request timeout not applied", elapsed)
	}
	if got := ClassOf(res.Err); got != ErrorClassTimeout {
		t.Errorf("ClassOf(err) = %q, want %q (err: %v)", got, ErrorClassTimeout, res.Err)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want errors.Is context.DeadlineExceeded", res.Err)
	}
}

func TestFetchPage_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL + "/items"
	server.Close()

	c := newTestClient(t, endpoint, nil)

	res := c.FetchPage(context.Background(), 1)
	if res.Success() {
		t.Fatal("Expected network failure, got success")
	}
	if got := ClassOf(res.Err); got != ErrorClassNetwork {
		t.Errorf("ClassOf(err) = %q, want %q (err: %v)", got, ErrorClassNetwork, res.Err)
	}
}

func TestFetchPage_InvalidPage(t *testing.T) {
	mock := testutil.NewMockAPI(3, 1)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), nil)

	for _, page := range []int{0, -1} {
		res := c.FetchPage(context.Background(), page)
		if !errors.Is(res.Err, ErrInvalidPage) {
			t.Errorf("FetchPage(%d) err = %v, want ErrInvalidPage", page, res.Err)
		}
	}
	if mock.TotalRequests() != 0 {
		t.Errorf("TotalRequests() = %d, want 0", mock.TotalRequests())
	}
}

func TestFetchPage_Concurrent(t *testing.T) {
	const pages = 30

	mock := testutil.NewMockAPI(pages, 2)
	defer mock.Close()

	c := newTestClient(t, mock.URL(), nil)

	var wg sync.WaitGroup
	failures := make(chan error, pages)
	for page := 1; page <= pages; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			if res := c.FetchPage(context.Background(), page); !res.Success() {
				failures <- res.Err
			}
		}(page)
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Errorf("concurrent fetch failed: %v", err)
	}
	if mock.TotalRequests() != pages {
		t.Errorf("TotalRequests() = %d, want %d", mock.TotalRequests(), pages)
	}
}
