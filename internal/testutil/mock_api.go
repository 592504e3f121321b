// Package testutil provides a mock paginated listing API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// ListingPath is the path the mock serves the listing on.
const ListingPath = "/api/items/searchItem/"

// MockResponse defines a canned response for one page request.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable paginated listing server.
//
// By default it serves lastPage pages of perPage records each, shaped
// {"data": [...], "last_page": N, "total": M}. Individual pages can be
// overridden permanently or for their next few requests.
type MockAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	lastPage  int
	perPage   int
	overrides map[int]MockResponse
	transient map[int][]MockResponse
	requests  map[int]int
	inFlight  int
	peak      int
	header    http.Header
}

// NewMockAPI creates a mock listing with lastPage pages of perPage records.
func NewMockAPI(lastPage, perPage int) *MockAPI {
	m := &MockAPI{
		lastPage:  lastPage,
		perPage:   perPage,
		overrides: make(map[int]MockResponse),
		transient: make(map[int][]MockResponse),
		requests:  make(map[int]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ListingPath, m.handleListing)
	m.server = httptest.NewServer(mux)

	return m
}

// URL returns the full listing endpoint URL.
func (m *MockAPI) URL() string {
	return m.server.URL + ListingPath
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetResponse makes every request for page return resp.
func (m *MockAPI) SetResponse(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[page] = resp
}

// FailNext makes the next n requests for page return resp, after which the
// page is served normally again.
func (m *MockAPI) FailNext(page, n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.transient[page] = append(m.transient[page], resp)
	}
}

// RequestCount returns how many requests were made for page.
func (m *MockAPI) RequestCount(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[page]
}

// TotalRequests returns the number of listing requests served.
func (m *MockAPI) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

// PeakInFlight returns the highest number of requests handled at once.
func (m *MockAPI) PeakInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.header
}

// RecordID returns the id the mock assigns to record i of page.
func RecordID(page, i int) string {
	return fmt.Sprintf("p%d-%d", page, i)
}

func (m *MockAPI) handleListing(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, `{"error": "invalid page"}`, http.StatusBadRequest)
			return
		}
		page = n
	}

	m.mu.Lock()
	m.requests[page]++
	m.header = r.Header.Clone()
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}

	resp, ok := m.overrides[page]
	if queue := m.transient[page]; len(queue) > 0 {
		resp, ok = queue[0], true
		m.transient[page] = queue[1:]
	}
	lastPage, perPage := m.lastPage, m.perPage
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if !ok {
		resp = NewPageResponse(page, lastPage, perPage)
	}
	write(w, r, resp)
}

func write(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewPageResponse builds the regular 200 response for page of a listing
// with lastPage pages of perPage records.
func NewPageResponse(page, lastPage, perPage int) MockResponse {
	ids := make([]string, 0, perPage)
	if page <= lastPage {
		for i := 0; i < perPage; i++ {
			ids = append(ids, RecordID(page, i))
		}
	}
	return NewDataResponse(lastPage, lastPage*perPage, ids...)
}

// NewDataResponse builds a 200 response carrying one {"id": ...} record per id.
func NewDataResponse(lastPage, total int, ids ...string) MockResponse {
	type item struct {
		ID string `json:"id"`
	}
	data := make([]item, 0, len(ids))
	for _, id := range ids {
		data = append(data, item{ID: id})
	}

	body, _ := json.Marshal(map[string]any{
		"data":      data,
		"last_page": lastPage,
		"total":     total,
	})
	return MockResponse{StatusCode: http.StatusOK, Body: string(body)}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers:    map[string]string{"Retry-After": "1"},
	}
}

// NewForbiddenResponse creates a 403 response, as sent to unrecognised clients.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"error": "Forbidden"}`,
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
	}
}

// NewMissingDataResponse creates a 200 response without a data key.
func NewMissingDataResponse(lastPage, total int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"last_page": %d, "total": %d}`, lastPage, total),
	}
}

// NewSlowResponse wraps resp with a delay before it is written.
func NewSlowResponse(resp MockResponse, delay time.Duration) MockResponse {
	resp.Delay = delay
	return resp
}
