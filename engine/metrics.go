package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bibin-skaria/jarslim/internal/types"
)

// MetricsCollector records per-archive outcomes of a run on its own registry,
// so several runs in one process do not share counters.
type MetricsCollector struct {
	registry *prometheus.Registry

	tasks    *prometheus.CounterVec
	bytesIn  *prometheus.CounterVec
	bytesOut *prometheus.CounterVec
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

// NewMetricsCollector creates a collector with all metrics registered.
func NewMetricsCollector() *MetricsCollector {
	m := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarslim",
			Name:      "archives_total",
			Help:      "Archives processed by mode and terminal state",
		}, []string{"mode", "state"}),
		bytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarslim",
			Name:      "archive_bytes_in_total",
			Help:      "Size of the input archives",
		}, []string{"mode"}),
		bytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarslim",
			Name:      "archive_bytes_out_total",
			Help:      "Size of the produced files",
		}, []string{"mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jarslim",
			Name:      "archive_duration_seconds",
			Help:      "Time spent on one archive",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"mode"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarslim",
			Name:      "runs_total",
			Help:      "Runs by mode and outcome",
		}, []string{"mode", "outcome"}),
	}
	m.registry.MustRegister(m.tasks, m.bytesIn, m.bytesOut, m.duration, m.runs)
	return m
}

// RecordTask adds one task outcome.
func (m *MetricsCollector) RecordTask(mode types.Mode, result *types.TaskResult) {
	if m == nil {
		return
	}
	state := "failed"
	if result.Success() {
		state = "done"
	}
	m.tasks.WithLabelValues(string(mode), state).Inc()
	m.bytesIn.WithLabelValues(string(mode)).Add(float64(result.BytesIn))
	m.bytesOut.WithLabelValues(string(mode)).Add(float64(result.BytesOut))
	m.duration.WithLabelValues(string(mode)).Observe(result.Duration.Seconds())
}

// RecordRun adds the outcome of a whole run.
func (m *MetricsCollector) RecordRun(result *types.RunResult) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case result.Skipped:
		outcome = "skipped"
	case !result.Success():
		outcome = "failure"
	}
	m.runs.WithLabelValues(string(result.Mode), outcome).Inc()
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (m *MetricsCollector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
