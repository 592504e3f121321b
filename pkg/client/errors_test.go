package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   ErrorClass
	}{
		{name: "bad request", statusCode: 400, expected: ErrorClassClient},
		{name: "forbidden", statusCode: 403, expected: ErrorClassClient},
		{name: "not found", statusCode: 404, expected: ErrorClassClient},
		{name: "too many requests", statusCode: 429, expected: ErrorClassRateLimit},
		{name: "internal server error", statusCode: 500, expected: ErrorClassServer},
		{name: "bad gateway", statusCode: 502, expected: ErrorClassServer},
		{name: "not modified", statusCode: 304, expected: ErrorClassUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.statusCode); got != tt.expected {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FetchError
		expected string
	}{
		{
			name: "status with wrapped error",
			err: &FetchError{
				Page:       4,
				StatusCode: 200,
				ErrorClass: ErrorClassDecode,
				Message:    "decode body",
				Err:        ErrMissingData,
			},
			expected: "page 4: decode error (status 200): decode body: response body has no data array",
		},
		{
			name: "status only",
			err: &FetchError{
				Page:       2,
				StatusCode: 503,
				ErrorClass: ErrorClassServer,
				Message:    "503 Service Unavailable",
			},
			expected: "page 2: server error (status 503): 503 Service Unavailable",
		},
		{
			name: "transport error",
			err: &FetchError{
				Page:       9,
				ErrorClass: ErrorClassNetwork,
				Err:        errors.New("connection refused"),
			},
			expected: "page 9: network error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	fe := &FetchError{Page: 1, ErrorClass: ErrorClassDecode, Err: ErrMissingData}

	if !errors.Is(fe, ErrMissingData) {
		t.Error("errors.Is should see through FetchError")
	}

	wrapped := fmt.Errorf("discovery: %w", fe)
	var target *FetchError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find the FetchError")
	}
	if target.Page != 1 {
		t.Errorf("Page = %d, want 1", target.Page)
	}
}

func TestClassOf(t *testing.T) {
	if got := ClassOf(&FetchError{ErrorClass: ErrorClassTimeout}); got != ErrorClassTimeout {
		t.Errorf("ClassOf(FetchError) = %q, want %q", got, ErrorClassTimeout)
	}
	if got := ClassOf(fmt.Errorf("x: %w", &FetchError{ErrorClass: ErrorClassServer})); got != ErrorClassServer {
		t.Errorf("ClassOf(wrapped) = %q, want %q", got, ErrorClassServer)
	}
	if got := ClassOf(errors.New("plain")); got != "" {
		t.Errorf("ClassOf(plain) = %q, want empty", got)
	}
}
