package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for harvest runs.
var (
	harvestPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_pages_total",
		Help: "Total page fetches by pass and outcome",
	}, []string{"pass", "outcome"})

	harvestInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "harvest_inflight_fetches",
		Help: "Page fetches currently holding a concurrency gate slot",
	}, []string{"pass"})

	harvestRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_records_total",
		Help: "Total records merged into harvest results",
	})

	harvestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_runs_total",
		Help: "Total harvest runs by final status",
	}, []string{"status"})

	harvestRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_run_duration_seconds",
		Help:    "Wall time of harvest runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
	})

	harvestFailedPages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_failed_pages",
		Help: "Pages still failing at the end of the last run",
	})
)

func observePage(pass Pass, res PageResult) {
	outcome := "success"
	if !res.Success() {
		outcome = "failure"
	}
	harvestPagesTotal.WithLabelValues(string(pass), outcome).Inc()
}
