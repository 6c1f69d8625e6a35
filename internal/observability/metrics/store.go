package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks the observable state store
type StoreMetrics struct {
	registry *prometheus.Registry

	updatesTotal       prometheus.Counter
	notificationsTotal *prometheus.CounterVec
	subscriberFailures *prometheus.CounterVec
	subscribers        prometheus.Gauge
}

// NewStoreMetrics creates and registers store metrics
func NewStoreMetrics(registry *prometheus.Registry) (*StoreMetrics, error) {
	m := &StoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *StoreMetrics) initMetrics() {
	m.updatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "store_updates_total",
		Help: "Patches committed to the state",
	})
	m.notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_notifications_total",
			Help: "Subscriber notifications by key",
		},
		[]string{"key"},
	)
	m.subscriberFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_subscriber_failures_total",
			Help: "Subscriber callbacks that panicked",
		},
		[]string{"key"},
	)
	m.subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "store_subscribers",
		Help: "Active subscriptions",
	})
}

// RecordUpdate records a committed patch
func (m *StoreMetrics) RecordUpdate() {
	if m == nil {
		return
	}
	m.updatesTotal.Inc()
}

// RecordNotification records one subscriber call
func (m *StoreMetrics) RecordNotification(key string, failed bool) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(key).Inc()
	if failed {
		m.subscriberFailures.WithLabelValues(key).Inc()
	}
}

// SetSubscribers records the subscription count
func (m *StoreMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *StoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.updatesTotal.Describe(ch)
	m.notificationsTotal.Describe(ch)
	m.subscriberFailures.Describe(ch)
	m.subscribers.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *StoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.updatesTotal.Collect(ch)
	m.notificationsTotal.Collect(ch)
	m.subscriberFailures.Collect(ch)
	m.subscribers.Collect(ch)
}
