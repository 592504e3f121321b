// Package pagination harvests every page of a paginated listing endpoint.
//
// The upstream reports its page count in the body of every page
// ({"data": [...], "last_page": N, "total": M}). A Harvester fetches page 1 to
// learn N, then fetches pages 2..N in parallel under a concurrency cap and
// retries the pages that failed once, at a lower cap.
//
// Example usage:
//
//	fetcher, _ := client.New(client.DefaultConfig("https://example.com/api/items/"))
//	h, _ := pagination.New(fetcher, pagination.DefaultConfig(), logger)
//	result, err := h.Harvest(ctx)
//
// The harvester:
//   - Fetches page 1 once and reuses its records (page 1 is never dispatched again)
//   - Aborts with a *DiscoveryError when page 1 fails
//   - Dispatches one goroutine per remaining page through a Gate (default 50 slots)
//   - Merges results on the calling goroutine only, in completion order
//   - Retries the sorted failed pages once through a second Gate (default 10 slots)
//   - Returns a partial Result and ErrInterrupted when ctx is cancelled mid-run
package pagination
