// Package export writes harvested records to downstream targets.
//
// A Sink receives one Batch per run. Partial batches (interrupted runs) are
// written under a separate name so they never overwrite a complete export.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/listing-harvester/pkg/pagination"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyRunID indicates a batch without a run identifier.
	ErrEmptyRunID = errors.New("batch has no run id")

	// ErrNoSinks indicates an export with no configured targets.
	ErrNoSinks = errors.New("no export sinks configured")
)

// Batch is the output of one harvest run.
type Batch struct {
	RunID       string
	Endpoint    string
	Records     []pagination.Record
	LastPage    int
	TotalItems  int
	FailedPages []int

	// Partial marks a batch from an interrupted run.
	Partial bool

	StartedAt time.Time
	Duration  time.Duration
}

// FromResult builds a Batch from a harvest result.
func FromResult(res *pagination.Result, endpoint string) Batch {
	return Batch{
		RunID:       res.RunID,
		Endpoint:    endpoint,
		Records:     res.Records,
		LastPage:    res.LastPage,
		TotalItems:  res.TotalItems,
		FailedPages: res.FailedPages,
		Partial:     res.Partial(),
		StartedAt:   res.StartedAt,
		Duration:    res.Duration,
	}
}

// Status is "partial" for interrupted runs and "complete" otherwise.
func (b Batch) Status() string {
	if b.Partial {
		return "partial"
	}
	return "complete"
}

func (b Batch) validate() error {
	if b.RunID == "" {
		return ErrEmptyRunID
	}
	return nil
}

// Sink is an export target.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Export writes the batch. Re-exporting the same run replaces the
	// previous export of that run.
	Export(ctx context.Context, b Batch) error
}

// Multi exports to every sink in order. A failing sink does not stop the
// others; all errors are returned joined.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string {
	return "multi"
}

// Export implements Sink.
func (m Multi) Export(ctx context.Context, b Batch) error {
	if len(m) == 0 {
		return ErrNoSinks
	}

	logger := log.With().Str("component", "export").Str("run_id", b.RunID).Logger()

	var errs []error
	for _, sink := range m {
		start := time.Now()
		if err := sink.Export(ctx, b); err != nil {
			logger.Error().Err(err).Str("sink", sink.Name()).Msg("Export failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		logger.Info().
			Str("sink", sink.Name()).
			Int("records", len(b.Records)).
			Bool("partial", b.Partial).
			Dur("duration", time.Since(start)).
			Msg("Export written")
	}
	return errors.Join(errs...)
}
