package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Default is the default metrics instance
	Default *Metrics

	defaultRegistry *prometheus.Registry
	mu              sync.Mutex
)

// InitDefault initializes the default metrics instance on a process registry
// that also carries the Go runtime and process collectors.
func InitDefault() *Metrics {
	mu.Lock()
	defer mu.Unlock()

	if Default == nil {
		defaultRegistry = prometheus.NewRegistry()
		defaultRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		Default = NewMetrics(defaultRegistry)
	}
	return Default
}

// GetDefault returns the default metrics instance
// If not initialized, it will initialize it first
func GetDefault() *Metrics {
	return InitDefault()
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// Handler returns an HTTP handler exposing the default registry.
func Handler() http.Handler {
	InitDefault()

	mu.Lock()
	reg := defaultRegistry
	mu.Unlock()

	return HandlerFor(reg, promhttp.HandlerOpts{})
}

// HandlerFor returns an HTTP handler for a specific registry
func HandlerFor(reg prometheus.Gatherer, opts promhttp.HandlerOpts) http.Handler {
	return promhttp.HandlerFor(reg, opts)
}

// Reset clears the default metrics instance (useful for testing)
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	Default = nil
	defaultRegistry = nil
}
