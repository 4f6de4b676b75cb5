package metrics

import "github.com/prometheus/client_golang/prometheus"

// Calculation Prometheus metrics.
var (
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disagg",
			Name:      "tasks_total",
			Help:      "Total number of disaggregation tasks",
		},
		[]string{"status"}, // "ok" / "error"
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "disagg",
			Name:      "task_duration_seconds",
			Help:      "Disaggregation task duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	RupturesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "disagg",
			Name:      "ruptures_processed_total",
			Help:      "Total ruptures read and folded by tasks",
		},
	)

	MatricesMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "disagg",
			Name:      "matrices_merged_total",
			Help:      "Partial result matrices folded into the accumulator",
		},
	)

	PMFsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "disagg",
			Name:      "pmfs_saved_total",
			Help:      "Probability mass functions persisted",
		},
	)
)

var calcMetricsRegistered bool

// RegisterCalcMetrics registers Prometheus calculation metrics. Must be called once from main.
func RegisterCalcMetrics() {
	if calcMetricsRegistered {
		return
	}
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(RupturesProcessed)
	prometheus.MustRegister(MatricesMerged)
	prometheus.MustRegister(PMFsSaved)
	calcMetricsRegistered = true
}
