package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WarningsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_warnings_recorded_total",
			Help: "Total enforcement warnings recorded, by warning type",
		},
		[]string{"warn_type"},
	)

	OrphanRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenancy_orphan_rows",
			Help: "Rows with a null tenant id found by the last detection pass, per table",
		},
		[]string{"table"},
	)

	RowsRemediated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_rows_remediated_total",
			Help: "Orphan rows assigned a tenant id, per table and strategy",
		},
		[]string{"table", "strategy"},
	)

	ConstraintsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenancy_constraints_applied_total",
			Help: "NOT NULL tenant constraints applied to tables",
		},
	)

	WorkerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_active_goroutines",
			Help: "Number of active worker goroutines per pool",
		},
		[]string{"pool"},
	)

	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Total jobs processed by workers, per pool",
		},
		[]string{"pool"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(WarningsRecorded)
	prometheus.MustRegister(OrphanRows)
	prometheus.MustRegister(RowsRemediated)
	prometheus.MustRegister(ConstraintsApplied)
	prometheus.MustRegister(WorkerActive)
	prometheus.MustRegister(JobsProcessed)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
