// Package metrics tracks pipeline counters with the Prometheus client library.
//
// The watcher exposes no network listener, so metrics are written in the text
// exposition format to a file picked up by node_exporter's textfile collector.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "race_alerts"

// Result label values
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics holds the collectors for one process
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	eventsScraped prometheus.Gauge
	links         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// New creates a Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by result (ok, failed, skipped).",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of completed pipeline runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900},
		}),
		eventsScraped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_scraped",
			Help:      "Events found on the listing page in the last run.",
		}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_links_total",
			Help:      "Registration link visits by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Digest delivery attempts by result.",
		}, []string{"result"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	m.registry.MustRegister(m.runs, m.runDuration, m.eventsScraped, m.links, m.notifications, m.lastRun)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.lastRun.SetToCurrentTime()
}

// SkipRun records a tick skipped because a run was still in flight
func (m *Metrics) SkipRun() {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(ResultSkipped).Inc()
}

// SetEventsScraped records how many events the listing page yielded
func (m *Metrics) SetEventsScraped(n int) {
	if m == nil {
		return
	}
	m.eventsScraped.Set(float64(n))
}

// LinkVisited records one registration link visit
func (m *Metrics) LinkVisited(result string) {
	if m == nil {
		return
	}
	m.links.WithLabelValues(result).Inc()
}

// NotificationSent records one delivery attempt
func (m *Metrics) NotificationSent(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// WriteTextfile writes all collected metrics to path in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
