// Package observability bundles the Prometheus collectors of the substrate
// and exposes them over HTTP. Error telemetry lives in internal/telemetry.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Saisumanthklv/weapp-starter-template/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	AppLog   *metrics.AppLogMetrics
	Queue    *metrics.QueueMetrics
	Plugin   *metrics.PluginMetrics
	Store    *metrics.StoreMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}

	appLogMetrics, err := metrics.NewAppLogMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create applog metrics: %w", err)
	}

	queueMetrics, err := metrics.NewQueueMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue metrics: %w", err)
	}

	pluginMetrics, err := metrics.NewPluginMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin metrics: %w", err)
	}

	storeMetrics, err := metrics.NewStoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create store metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		AppLog:   appLogMetrics,
		Queue:    queueMetrics,
		Plugin:   pluginMetrics,
		Store:    storeMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
