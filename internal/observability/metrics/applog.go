// Package metrics provides Prometheus collectors for the instrumentation
// substrate. Every recorder method is nil-safe so subsystems can run
// without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AppLogMetrics tracks the structured event buffer
type AppLogMetrics struct {
	registry *prometheus.Registry

	entriesAdmitted *prometheus.CounterVec
	entriesFiltered *prometheus.CounterVec
	entriesEvicted  prometheus.Counter
	bufferSize      prometheus.Gauge
	uploadsTotal    *prometheus.CounterVec
}

// NewAppLogMetrics creates and registers applog metrics
func NewAppLogMetrics(registry *prometheus.Registry) (*AppLogMetrics, error) {
	m := &AppLogMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AppLogMetrics) initMetrics() {
	m.entriesAdmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applog_entries_admitted_total",
			Help: "Log entries appended to the buffer",
		},
		[]string{"level", "category"},
	)
	m.entriesFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applog_entries_filtered_total",
			Help: "Log calls rejected by level or category",
		},
		[]string{"reason"}, // level, category
	)
	m.entriesEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "applog_entries_evicted_total",
		Help: "Entries dropped from the buffer because it was full",
	})
	m.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "applog_buffer_entries",
		Help: "Entries currently held in the buffer",
	})
	m.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applog_uploads_total",
			Help: "Debounced upload activity",
		},
		[]string{"stage"}, // scheduled, fired, failed
	)
}

// RecordAdmitted records an appended entry
func (m *AppLogMetrics) RecordAdmitted(level, category string, bufferLen int) {
	if m == nil {
		return
	}
	m.entriesAdmitted.WithLabelValues(level, category).Inc()
	m.bufferSize.Set(float64(bufferLen))
}

// RecordFiltered records a rejected log call
func (m *AppLogMetrics) RecordFiltered(reason string) {
	if m == nil {
		return
	}
	m.entriesFiltered.WithLabelValues(reason).Inc()
}

// RecordEvicted records one FIFO eviction
func (m *AppLogMetrics) RecordEvicted() {
	if m == nil {
		return
	}
	m.entriesEvicted.Inc()
}

// SetBufferSize sets the buffer gauge, used after Clear
func (m *AppLogMetrics) SetBufferSize(n int) {
	if m == nil {
		return
	}
	m.bufferSize.Set(float64(n))
}

// RecordUpload records an upload stage
func (m *AppLogMetrics) RecordUpload(stage string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(stage).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *AppLogMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.entriesAdmitted.Describe(ch)
	m.entriesFiltered.Describe(ch)
	m.entriesEvicted.Describe(ch)
	m.bufferSize.Describe(ch)
	m.uploadsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AppLogMetrics) Collect(ch chan<- prometheus.Metric) {
	m.entriesAdmitted.Collect(ch)
	m.entriesFiltered.Collect(ch)
	m.entriesEvicted.Collect(ch)
	m.bufferSize.Collect(ch)
	m.uploadsTotal.Collect(ch)
}
