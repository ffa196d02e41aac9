// Package metrics records pipeline task outcomes and phase durations in a
// private Prometheus registry that can be dumped to a textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tickpulse"

// Metrics groups the pipeline collectors.
type Metrics struct {
	Registry *prometheus.Registry

	tasks         *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	phaseDuration *prometheus.GaugeVec
	reportRows    prometheus.Counter
}

// New creates the collectors and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Pipeline tasks by phase and outcome.",
		}, []string{"phase", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of pipeline tasks.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
		phaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of the last run of each phase.",
		}, []string{"phase"}),
		reportRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_rows_total",
			Help:      "Summary rows written to the report.",
		}),
	}
	m.Registry.MustRegister(m.tasks, m.taskDuration, m.phaseDuration, m.reportRows)
	return m
}

// ObserveTask counts one finished task.
func (m *Metrics) ObserveTask(phase, status string, elapsed time.Duration) {
	m.tasks.WithLabelValues(phase, status).Inc()
	m.taskDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// ObservePhase records the wall time of a phase.
func (m *Metrics) ObservePhase(phase string, elapsed time.Duration) {
	m.phaseDuration.WithLabelValues(phase).Set(elapsed.Seconds())
}

// AddReportRows counts rows written to the report.
func (m *Metrics) AddReportRows(n int) {
	m.reportRows.Add(float64(n))
}

// WriteTextfile dumps the registry in the text exposition format, suitable for
// the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
