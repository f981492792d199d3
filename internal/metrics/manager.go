// File: internal/metrics/manager.go
package metrics

import (
	"runtime"
	"time"

	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// Manager owns the Prometheus metrics and the process start time used
// for the uptime gauge
type Manager struct {
	prometheus *PrometheusMetrics
	startTime  time.Time
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// UpdateSystemMetrics refreshes the memory, goroutine and uptime gauges
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.UpdateMemoryUsage(memStats.Alloc)
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)

	utils.GetLogger().Debug("System metrics updated", map[string]interface{}{
		"alloc_bytes": memStats.Alloc,
		"goroutines":  runtime.NumGoroutine(),
	})
}
