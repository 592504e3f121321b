package pagination

import "sort"

// Aggregator accumulates page results for one harvest run.
//
// It is not safe for concurrent use: the harvester merges from a single
// goroutine. Merging the same successful page twice duplicates its records;
// keeping that from happening is the dispatcher's job.
type Aggregator struct {
	records    []Record
	failed     map[int]error
	succeeded  int
	lastPage   int
	totalItems int
	discovered bool
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		failed: make(map[int]error),
	}
}

// SetDiscovery records the page and item counts read from page 1.
// Only the first call has any effect.
func (a *Aggregator) SetDiscovery(lastPage, totalItems int) {
	if a.discovered {
		return
	}
	a.lastPage = lastPage
	a.totalItems = totalItems
	a.discovered = true
}

// Merge folds one page result into the aggregate.
// A success appends its records and clears the page from the failed set;
// a failure puts the page in the failed set with its cause.
func (a *Aggregator) Merge(res PageResult) {
	if !res.Success() {
		a.failed[res.Page] = res.Err
		return
	}

	delete(a.failed, res.Page)
	a.records = append(a.records, res.Records...)
	a.succeeded++
	harvestRecordsTotal.Add(float64(len(res.Records)))
}

// Records returns the merged records in completion order.
func (a *Aggregator) Records() []Record {
	return a.records
}

// RecordCount returns the number of merged records.
func (a *Aggregator) RecordCount() int {
	return len(a.records)
}

// FailedPages returns the currently failed page indices in ascending order.
func (a *Aggregator) FailedPages() []int {
	pages := make([]int, 0, len(a.failed))
	for page := range a.failed {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// Failures returns a copy of the failed set with the last cause per page.
func (a *Aggregator) Failures() map[int]error {
	out := make(map[int]error, len(a.failed))
	for page, err := range a.failed {
		out[page] = err
	}
	return out
}

// FailedCount returns the size of the failed set.
func (a *Aggregator) FailedCount() int {
	return len(a.failed)
}

// PagesSucceeded returns the number of successful merges.
func (a *Aggregator) PagesSucceeded() int {
	return a.succeeded
}

// LastPage returns the page count discovered from page 1.
func (a *Aggregator) LastPage() int {
	return a.lastPage
}

// TotalItems returns the item count discovered from page 1.
func (a *Aggregator) TotalItems() int {
	return a.totalItems
}
