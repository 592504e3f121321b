package pagination

import (
	"context"
	"encoding/json"
)

// Record is one item of the listing, kept as the raw JSON the upstream sent.
// The harvester never looks inside it.
type Record = json.RawMessage

// PageResult is the outcome of fetching a single page.
// Err is nil on success; Records, LastPage and Total are only meaningful then.
type PageResult struct {
	Page     int
	Records  []Record
	LastPage int
	Total    int
	Err      error
}

// Success reports whether the page was fetched and carried a data payload.
func (r PageResult) Success() bool {
	return r.Err == nil
}

// Failed builds a failed result for page.
func Failed(page int, err error) PageResult {
	return PageResult{Page: page, Err: err}
}

// PageFetcher fetches one page of the listing.
// Implementations must be safe for concurrent use and must report every
// fault through PageResult.Err rather than panicking.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) PageResult
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, page int) PageResult

// FetchPage calls f(ctx, page).
func (f PageFetcherFunc) FetchPage(ctx context.Context, page int) PageResult {
	return f(ctx, page)
}
