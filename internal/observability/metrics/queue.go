package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueMetrics tracks retry queue delivery, labelled by queue name
type QueueMetrics struct {
	registry *prometheus.Registry

	depth        *prometheus.GaugeVec
	sendsTotal   *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
	dropsTotal   *prometheus.CounterVec
	delivered    *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
}

// NewQueueMetrics creates and registers retry queue metrics
func NewQueueMetrics(registry *prometheus.Registry) (*QueueMetrics, error) {
	m := &QueueMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *QueueMetrics) initMetrics() {
	m.depth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retryqueue_depth",
			Help: "Items waiting for delivery",
		},
		[]string{"queue"},
	)
	m.sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retryqueue_sends_total",
			Help: "Send attempts by outcome",
		},
		[]string{"queue", "status"}, // success, error
	)
	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retryqueue_retries_total",
			Help: "Backoff waits scheduled before a retry",
		},
		[]string{"queue"},
	)
	m.dropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retryqueue_drops_total",
			Help: "Items dropped after exhausting retries",
		},
		[]string{"queue"},
	)
	m.delivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retryqueue_delivered_total",
			Help: "Items delivered successfully",
		},
		[]string{"queue"},
	)
	m.sendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retryqueue_send_duration_seconds",
			Help:    "Time spent in a single send",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"queue"},
	)
}

// SetDepth records the queue length
func (m *QueueMetrics) SetDepth(queue string, n int) {
	if m == nil {
		return
	}
	m.depth.WithLabelValues(queue).Set(float64(n))
}

// RecordSend records one send attempt and its duration
func (m *QueueMetrics) RecordSend(queue, status string, seconds float64) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(queue, status).Inc()
	m.sendDuration.WithLabelValues(queue).Observe(seconds)
}

// RecordRetry records a scheduled backoff
func (m *QueueMetrics) RecordRetry(queue string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(queue).Inc()
}

// RecordDrop records a terminal drop
func (m *QueueMetrics) RecordDrop(queue string) {
	if m == nil {
		return
	}
	m.dropsTotal.WithLabelValues(queue).Inc()
}

// RecordDelivered records a successful delivery
func (m *QueueMetrics) RecordDelivered(queue string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(queue).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *QueueMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.depth.Describe(ch)
	m.sendsTotal.Describe(ch)
	m.retriesTotal.Describe(ch)
	m.dropsTotal.Describe(ch)
	m.delivered.Describe(ch)
	m.sendDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *QueueMetrics) Collect(ch chan<- prometheus.Metric) {
	m.depth.Collect(ch)
	m.sendsTotal.Collect(ch)
	m.retriesTotal.Collect(ch)
	m.dropsTotal.Collect(ch)
	m.delivered.Collect(ch)
	m.sendDuration.Collect(ch)
}
