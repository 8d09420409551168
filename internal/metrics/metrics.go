package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahnspiegel_api_calls_total",
			Help: "Total timetable API calls",
		},
		[]string{"endpoint", "status"},
	)

	StopsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahnspiegel_stops_extracted_total",
			Help: "Stop records extracted from raw documents",
		},
		[]string{"feed"},
	)

	CanonicalRowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bahnspiegel_canonical_rows_written_total",
			Help: "Canonical stop facts written to daily columnar files",
		},
	)

	RowsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahnspiegel_warehouse_rows_inserted_total",
			Help: "New rows appended to warehouse tables",
		},
		[]string{"table"},
	)

	UnresolvedForeignKeys = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bahnspiegel_unresolved_foreign_keys_total",
			Help: "Candidate rows skipped because a dimension join found no match",
		},
		[]string{"table"},
	)
)
