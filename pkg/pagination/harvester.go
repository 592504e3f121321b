package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds harvester configuration.
type Config struct {
	// Concurrency is the maximum number of page fetches in flight during the
	// primary pass.
	Concurrency int

	// RetryConcurrency is the maximum number of page fetches in flight during
	// the retry pass.
	RetryConcurrency int

	// RunTimeout bounds the whole run. Zero means no bound. Expiry is handled
	// like a cancellation and yields a partial result.
	RunTimeout time.Duration

	// ProgressEvery logs a progress line every N merged pages.
	ProgressEvery int

	// Progress, when set, receives a snapshot after every merge.
	Progress ProgressFunc
}

// DefaultConfig returns the default harvester configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:      50,
		RetryConcurrency: 10,
		ProgressEvery:    50,
	}
}

// Harvester fetches every page of a listing through a PageFetcher.
// A Harvester holds no per-run state and may run several harvests at once.
type Harvester struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a harvester. Non-positive limits fall back to the defaults.
func New(fetcher PageFetcher, config Config, logger zerolog.Logger) (*Harvester, error) {
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	if config.RunTimeout < 0 {
		return nil, fmt.Errorf("run_timeout must be >= 0 (got %s)", config.RunTimeout)
	}

	defaults := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.RetryConcurrency <= 0 {
		config.RetryConcurrency = defaults.RetryConcurrency
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = defaults.ProgressEvery
	}

	return &Harvester{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}, nil
}

// Config returns the effective configuration.
func (h *Harvester) Config() Config {
	return h.config
}

// Harvest runs discovery, the primary pass and the retry pass.
//
// It returns a *DiscoveryError and an aborted Result when page 1 fails.
// When ctx ends first it returns the records merged so far in a partial
// Result together with an error wrapping ErrInterrupted.
func (h *Harvester) Harvest(ctx context.Context) (*Result, error) {
	if h.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.RunTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	r := &run{
		id:      id,
		h:       h,
		agg:     NewAggregator(),
		phase:   PhaseIdle,
		logger:  h.logger.With().Str("run_id", id).Logger(),
		started: time.Now(),
	}

	r.setPhase(PhaseDiscovering)
	first := r.fetch(ctx, PassDiscovery, 1)
	if !first.Success() {
		if ctx.Err() != nil {
			return r.interrupt(ctx)
		}
		r.logger.Error().Err(first.Err).Msg("Discovery fetch failed - aborting run")
		return r.finish(StatusAborted, PhaseAborted), &DiscoveryError{Err: first.Err}
	}

	r.agg.SetDiscovery(first.LastPage, first.Total)
	r.agg.Merge(first)

	r.logger.Info().
		Int("last_page", first.LastPage).
		Int("total_items", first.Total).
		Int("concurrency", h.config.Concurrency).
		Msg("Starting parallel page fetch")

	// Page 1 came from discovery and is not dispatched again.
	r.setPhase(PhaseDispatched)
	if _, err := r.runPass(ctx, PassPrimary, pageRange(2, first.LastPage), h.config.Concurrency); err != nil {
		return r.interrupt(ctx)
	}
	r.firstPassFailed = r.agg.FailedCount()

	if retryQueue := r.agg.FailedPages(); len(retryQueue) > 0 {
		r.logger.Warn().
			Int("failed_pages", len(retryQueue)).
			Int("concurrency", h.config.RetryConcurrency).
			Msg("Retrying failed pages")

		r.setPhase(PhaseRetryDispatched)
		n, err := r.runPass(ctx, PassRetry, retryQueue, h.config.RetryConcurrency)
		r.retryDispatched = n
		if err != nil {
			return r.interrupt(ctx)
		}
	}

	res := r.finish(StatusComplete, PhaseDone)
	r.logger.Info().
		Int("records", res.RecordCount()).
		Int("total_items", res.TotalItems).
		Int("failed_pages", len(res.FailedPages)).
		Dur("duration", res.Duration).
		Msg("Harvest complete")

	return res, nil
}

// run is the state of a single Harvest call. Everything except the fetch
// goroutines' calls to fetch runs on the goroutine that called Harvest.
type run struct {
	id      string
	h       *Harvester
	agg     *Aggregator
	phase   Phase
	logger  zerolog.Logger
	started time.Time

	firstPassFailed int
	retryDispatched int
}

// runPass dispatches pages through a fresh gate and merges every result.
// It returns the number of pages dispatched, and a non-nil error when ctx
// ended before the pass finished.
func (r *run) runPass(ctx context.Context, pass Pass, pages []int, limit int) (int, error) {
	collecting := PhaseCollecting
	if pass == PassRetry {
		collecting = PhaseRetryCollecting
	}

	gate := NewGate(pass, limit)

	// Buffered for every page so abandoned fetches never block on send.
	results := make(chan PageResult, len(pages))
	dispatchedCh := make(chan int, 1)

	go r.dispatch(ctx, gate, pass, pages, results, dispatchedCh)
	r.setPhase(collecting)

	dispatched := -1
	completed := 0
	for dispatched < 0 || completed < dispatched {
		select {
		case <-ctx.Done():
			return max(dispatched, completed), ctx.Err()
		case n := <-dispatchedCh:
			dispatched = n
			dispatchedCh = nil
		case res := <-results:
			r.merge(pass, res)
			completed++
			r.report(pass, completed, len(pages))
		}
	}

	if dispatched < len(pages) {
		return dispatched, ctx.Err()
	}

	r.logger.Debug().
		Str("pass", string(pass)).
		Int("pages", dispatched).
		Int("peak_in_flight", gate.Peak()).
		Msg("Pass complete")

	return dispatched, nil
}

// dispatch starts one fetch goroutine per page, each holding a gate slot.
// It stops dispatching as soon as ctx is done and reports how many pages it
// started.
func (r *run) dispatch(ctx context.Context, gate *Gate, pass Pass, pages []int, results chan<- PageResult, dispatched chan<- int) {
	n := 0
	defer func() { dispatched <- n }()

	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		if err := gate.Acquire(ctx); err != nil {
			break
		}
		n++

		go func(page int) {
			defer gate.Release()
			results <- r.fetch(ctx, pass, page)
		}(page)
	}

	if n < len(pages) {
		r.logger.Debug().
			Str("pass", string(pass)).
			Int("dispatched", n).
			Int("skipped", len(pages)-n).
			Msg("Dispatch stopped (context done)")
	}
}

// fetch runs on fetch goroutines and must not touch the aggregator.
func (r *run) fetch(ctx context.Context, pass Pass, page int) PageResult {
	res := r.h.fetcher.FetchPage(ctx, page)
	res.Page = page
	observePage(pass, res)
	return res
}

func (r *run) merge(pass Pass, res PageResult) {
	r.agg.Merge(res)
	if res.Success() {
		r.logger.Debug().
			Str("pass", string(pass)).
			Int("page", res.Page).
			Int("records", len(res.Records)).
			Msg("Page merged")
		return
	}

	event := r.logger.Warn().Err(res.Err).Str("pass", string(pass)).Int("page", res.Page)
	if pass == PassRetry {
		event.Msg("Page retry failed - giving up")
	} else {
		event.Msg("Page fetch failed - queued for retry")
	}
}

func (r *run) report(pass Pass, completed, total int) {
	if fn := r.h.config.Progress; fn != nil {
		fn(Progress{
			RunID:     r.id,
			Phase:     r.phase,
			Completed: completed,
			Total:     total,
			Failed:    r.agg.FailedCount(),
			Records:   r.agg.RecordCount(),
		})
	}

	if completed%r.h.config.ProgressEvery == 0 || completed == total {
		r.logger.Info().
			Str("pass", string(pass)).
			Int("completed", completed).
			Int("total", total).
			Int("failed", r.agg.FailedCount()).
			Int("records", r.agg.RecordCount()).
			Float64("progress_pct", float64(completed)/float64(total)*100).
			Msg("Fetch progress")
	}
}

func (r *run) setPhase(phase Phase) {
	r.logger.Debug().
		Str("from", string(r.phase)).
		Str("to", string(phase)).
		Msg("Phase transition")
	r.phase = phase

	if fn := r.h.config.Progress; fn != nil {
		fn(Progress{
			RunID:   r.id,
			Phase:   phase,
			Failed:  r.agg.FailedCount(),
			Records: r.agg.RecordCount(),
		})
	}
}

func (r *run) interrupt(ctx context.Context) (*Result, error) {
	at := r.phase
	res := r.finish(StatusPartial, PhaseInterrupted)

	r.logger.Warn().
		Str("phase", string(at)).
		Int("records", res.RecordCount()).
		Int("failed_pages", len(res.FailedPages)).
		Msg("Harvest interrupted - returning partial result")

	return res, fmt.Errorf("%w during %s: %w", ErrInterrupted, at, context.Cause(ctx))
}

func (r *run) finish(status Status, phase Phase) *Result {
	r.setPhase(phase)
	elapsed := time.Since(r.started)

	harvestRunsTotal.WithLabelValues(string(status)).Inc()
	harvestRunDuration.Observe(elapsed.Seconds())
	harvestFailedPages.Set(float64(r.agg.FailedCount()))

	return &Result{
		RunID:           r.id,
		Status:          status,
		Phase:           phase,
		Records:         r.agg.Records(),
		LastPage:        r.agg.LastPage(),
		TotalItems:      r.agg.TotalItems(),
		PagesSucceeded:  r.agg.PagesSucceeded(),
		FirstPassFailed: r.firstPassFailed,
		RetryDispatched: r.retryDispatched,
		FailedPages:     r.agg.FailedPages(),
		Failures:        r.agg.Failures(),
		StartedAt:       r.started,
		Duration:        elapsed,
	}
}

// pageRange returns [from, to], or nil when to < from.
func pageRange(from, to int) []int {
	if to < from {
		return nil
	}
	pages := make([]int, 0, to-from+1)
	for page := from; page <= to; page++ {
		pages = append(pages, page)
	}
	return pages
}
