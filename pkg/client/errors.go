package client

import (
	"errors"
	"fmt"
)

// Errors returned inside failed page results.
var (
	// ErrInvalidPage is returned for page indices below 1. No request is made.
	ErrInvalidPage = errors.New("page index must be >= 1")

	// ErrMalformedBody is returned when a 2xx body is not valid JSON of the
	// expected shape.
	ErrMalformedBody = errors.New("malformed response body")

	// ErrMissingData is returned when a 2xx body has no data array.
	ErrMissingData = errors.New("response body has no data array")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassUnexpected represents non-2xx responses below 400.
	ErrorClassUnexpected ErrorClass = "unexpected_status"

	// ErrorClassTimeout represents requests that hit their deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents unusable 2xx bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// FetchError describes why a page could not be fetched.
type FetchError struct {
	Page       int
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Err != nil:
		return fmt.Sprintf("page %d: %s error (status %d): %s: %v",
			e.Page, e.ErrorClass, e.StatusCode, e.Message, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("page %d: %s error (status %d): %s",
			e.Page, e.ErrorClass, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("page %d: %s error: %v", e.Page, e.ErrorClass, e.Err)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass of err, or "" when err is not a *FetchError.
func ClassOf(err error) ErrorClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.ErrorClass
	}
	return ""
}

// classifyStatus categorizes a non-2xx status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ErrorClassUnexpected
	}
}
