// Package metrics exposes Prometheus metrics for the room engine.
//
// The registry is process-wide and opt-in: until InitRegistry is called,
// every typed metrics constructor returns nil and all recording methods
// are no-ops, so disabled metrics cost nothing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.Mutex
	registry   *prometheus.Registry
)

// InitRegistry creates the process-wide metrics registry with the standard
// process and Go runtime collectors. Calling it twice is a no-op.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled returns whether metrics collection is active.
func IsEnabled() bool {
	registryMu.Lock()
	defer registryMu.Unlock()

	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	return registry
}
