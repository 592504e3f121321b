package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscovery is matched by every *DiscoveryError.
	ErrDiscovery = errors.New("discovery fetch failed")

	// ErrInterrupted is returned together with a partial Result when the
	// run's context ends before all passes finish.
	ErrInterrupted = errors.New("harvest interrupted")

	// ErrNilFetcher is returned by New when no PageFetcher is given.
	ErrNilFetcher = errors.New("page fetcher is required")
)

// DiscoveryError reports that page 1 could not be fetched, so the page range
// is unknown and the run was aborted.
type DiscoveryError struct {
	Err error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDiscovery, e.Err)
}

// Unwrap lets errors.Is match both ErrDiscovery and the fetch cause.
func (e *DiscoveryError) Unwrap() []error {
	return []error{ErrDiscovery, e.Err}
}
