package pagination

import "time"

// Phase is a state of the harvest state machine.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseDiscovering     Phase = "discovering"
	PhaseDispatched      Phase = "dispatched"
	PhaseCollecting      Phase = "collecting"
	PhaseRetryDispatched Phase = "retry_dispatched"
	PhaseRetryCollecting Phase = "retry_collecting"
	PhaseDone            Phase = "done"
	PhaseAborted         Phase = "aborted"
	PhaseInterrupted     Phase = "interrupted"
)

// Pass labels which round a fetch belongs to.
type Pass string

const (
	PassDiscovery Pass = "discovery"
	PassPrimary   Pass = "primary"
	PassRetry     Pass = "retry"
)

// Status is the final designation of a run.
type Status string

const (
	// StatusComplete means every pass ran to the end. Pages may still be
	// listed in FailedPages.
	StatusComplete Status = "complete"

	// StatusPartial means the run was interrupted; Records holds what had
	// been merged up to that point.
	StatusPartial Status = "partial"

	// StatusAborted means discovery failed and nothing was harvested.
	StatusAborted Status = "aborted"
)

// Result is the aggregate handed to the export collaborator.
type Result struct {
	RunID  string
	Status Status
	Phase  Phase

	Records    []Record
	LastPage   int
	TotalItems int

	PagesSucceeded  int
	FirstPassFailed int
	RetryDispatched int
	FailedPages     []int
	Failures        map[int]error

	StartedAt time.Time
	Duration  time.Duration
}

// Partial reports whether the result comes from an interrupted run.
func (r *Result) Partial() bool {
	return r.Status == StatusPartial
}

// RecordCount returns len(r.Records).
func (r *Result) RecordCount() int {
	return len(r.Records)
}

// Progress is a snapshot passed to a ProgressFunc after every merge.
type Progress struct {
	RunID     string
	Phase     Phase
	Completed int // results merged in the current pass
	Total     int // pages in the current pass
	Failed    int // pages in the failed set
	Records   int
}

// ProgressFunc receives progress snapshots. It is called from the
// goroutine running Harvest.
type ProgressFunc func(Progress)
