package alumni

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	rowsTotal   *prometheus.CounterVec
	jobsTotal   *prometheus.CounterVec
	rowDuration prometheus.Histogram
	running     prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alumni_import",
			Name:      "rows_total",
			Help:      "Total number of staged rows attempted, by result.",
		}, []string{"result"}),
		jobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alumni_import",
			Name:      "jobs_finished_total",
			Help:      "Total number of import runs that reached a final status.",
		}, []string{"status"}),
		rowDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alumni_import",
			Name:      "row_duration_seconds",
			Help:      "Latency of validating and committing one row.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		running: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "alumni_import",
			Name:      "jobs_running",
			Help:      "Import jobs currently processed by this instance.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
