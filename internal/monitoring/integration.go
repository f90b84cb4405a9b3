package monitoring

import (
	"sync"
)

// The process-wide collector the default engine records into. The CLI and
// lazybridge.Configure install it; library users can read it after collects.
//
//nolint:gochecknoglobals // shared by every engine built from the global config
var (
	globalCollector *MetricsCollector
	globalMutex     sync.RWMutex
)

// SetGlobalCollector installs collector as the process-wide collector.
func SetGlobalCollector(collector *MetricsCollector) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalCollector = collector
}

// GetGlobalCollector returns the process-wide collector, or nil if none has
// been installed.
func GetGlobalCollector() *MetricsCollector {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return globalCollector
}

// IsGlobalMonitoringEnabled reports whether collects are being recorded.
func IsGlobalMonitoringEnabled() bool {
	return GetGlobalCollector().IsEnabled()
}

// EnableGlobalMonitoring installs a fresh, enabled collector and returns it.
// Previously recorded metrics are dropped.
func EnableGlobalMonitoring() *MetricsCollector {
	collector := NewMetricsCollector(true)
	SetGlobalCollector(collector)
	return collector
}

// DisableGlobalMonitoring stops recording without discarding what the
// collector already holds.
func DisableGlobalMonitoring() {
	if collector := GetGlobalCollector(); collector != nil {
		collector.SetEnabled(false)
	}
}

// GetGlobalSummary summarises the process-wide collector. It is empty when
// no collector is installed.
func GetGlobalSummary() MetricsSummary {
	collector := GetGlobalCollector()
	if collector == nil {
		return MetricsSummary{}
	}
	return collector.GetSummary()
}
