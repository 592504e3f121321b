package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExportsTotal counts export attempts by sink and outcome.
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_exports_total",
			Help: "Total export attempts by sink and outcome",
		},
		[]string{"sink", "outcome"}, // outcome: "ok", "error"
	)

	// ExportedRecords counts records written by sink.
	ExportedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_exported_records_total",
			Help: "Total records written by sink",
		},
		[]string{"sink"},
	)
)

func observe(sink string, records int, err error) {
	if err != nil {
		ExportsTotal.WithLabelValues(sink, "error").Inc()
		return
	}
	ExportsTotal.WithLabelValues(sink, "ok").Inc()
	ExportedRecords.WithLabelValues(sink).Add(float64(records))
}
