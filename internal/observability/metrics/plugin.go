package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PluginMetrics tracks the plugin registry and hook bus
type PluginMetrics struct {
	registry *prometheus.Registry

	lifecycleTotal  *prometheus.CounterVec
	activePlugins   prometheus.Gauge
	hookInvocations *prometheus.CounterVec
	hookFailures    *prometheus.CounterVec
}

// NewPluginMetrics creates and registers plugin registry metrics
func NewPluginMetrics(registry *prometheus.Registry) (*PluginMetrics, error) {
	m := &PluginMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PluginMetrics) initMetrics() {
	m.lifecycleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugin_lifecycle_events_total",
			Help: "Plugin lifecycle transitions",
		},
		[]string{"plugin", "event"}, // registered, init_failed, destroyed, destroy_failed, overwritten
	)
	m.activePlugins = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "plugin_registered",
		Help: "Plugins currently registered",
	})
	m.hookInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugin_hook_invocations_total",
			Help: "Hook callbacks invoked",
		},
		[]string{"hook"},
	)
	m.hookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugin_hook_failures_total",
			Help: "Hook callbacks that returned an error or panicked",
		},
		[]string{"hook"},
	)
}

// RecordLifecycle records a plugin lifecycle event
func (m *PluginMetrics) RecordLifecycle(plugin, event string) {
	if m == nil {
		return
	}
	m.lifecycleTotal.WithLabelValues(plugin, event).Inc()
}

// SetRegistered records the number of registered plugins
func (m *PluginMetrics) SetRegistered(n int) {
	if m == nil {
		return
	}
	m.activePlugins.Set(float64(n))
}

// RecordHook records one callback invocation
func (m *PluginMetrics) RecordHook(hook string, failed bool) {
	if m == nil {
		return
	}
	m.hookInvocations.WithLabelValues(hook).Inc()
	if failed {
		m.hookFailures.WithLabelValues(hook).Inc()
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PluginMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.lifecycleTotal.Describe(ch)
	m.activePlugins.Describe(ch)
	m.hookInvocations.Describe(ch)
	m.hookFailures.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PluginMetrics) Collect(ch chan<- prometheus.Metric) {
	m.lifecycleTotal.Collect(ch)
	m.activePlugins.Collect(ch)
	m.hookInvocations.Collect(ch)
	m.hookFailures.Collect(ch)
}
