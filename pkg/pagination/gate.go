package pagination

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of page fetches in flight at once.
// Slots are granted in FIFO order.
type Gate struct {
	pass     Pass
	limit    int
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewGate creates a gate with limit slots. A limit below 1 is raised to 1.
func NewGate(pass Pass, limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{
		pass:  pass,
		limit: limit,
		sem:   semaphore.NewWeighted(int64(limit)),
	}
}

// Acquire blocks until a slot is free or ctx is done.
// Every successful Acquire must be paired with exactly one Release.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	n := g.inFlight.Add(1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	harvestInFlight.WithLabelValues(string(g.pass)).Set(float64(n))
	return nil
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	n := g.inFlight.Add(-1)
	harvestInFlight.WithLabelValues(string(g.pass)).Set(float64(n))
	g.sem.Release(1)
}

// Limit returns the number of slots.
func (g *Gate) Limit() int {
	return g.limit
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of slots ever held at once.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}
