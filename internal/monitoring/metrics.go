// Package monitoring provides metrics collection for collect calls and the
// plan nodes they execute.
package monitoring

import (
	"sync"
	"time"
)

// OperationMetrics represents performance metrics for a single executed
// operation. Operation "collect" records a whole query; other names record
// one plan node within it.
type OperationMetrics struct {
	CollectID     string        `json:"collect_id"`
	Operation     string        `json:"operation"`
	Duration      time.Duration `json:"duration"`
	RowsProcessed int64         `json:"rows_processed"`
	Parallel      bool          `json:"parallel"`
	Failed        bool          `json:"failed"`
}

// MetricsCollector collects and stores performance metrics for operations.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics []OperationMetrics
	enabled bool
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	return &MetricsCollector{
		metrics: make([]OperationMetrics, 0),
		enabled: enabled,
	}
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	if mc == nil {
		return false
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// Record stores m if collection is enabled. A nil collector ignores it.
func (mc *MetricsCollector) Record(m OperationMetrics) {
	if !mc.IsEnabled() {
		return
	}
	mc.mu.Lock()
	mc.metrics = append(mc.metrics, m)
	mc.mu.Unlock()
}

// RecordOperation executes fn and records its duration and the row count it
// reports.
func (mc *MetricsCollector) RecordOperation(collectID, operation string, fn func() (int64, error)) error {
	if !mc.IsEnabled() {
		_, err := fn()
		return err
	}

	start := time.Now()
	rows, err := fn()
	mc.Record(OperationMetrics{
		CollectID:     collectID,
		Operation:     operation,
		Duration:      time.Since(start),
		RowsProcessed: rows,
		Failed:        err != nil,
	})
	return err
}

// GetMetrics returns a copy of all collected metrics.
func (mc *MetricsCollector) GetMetrics() []OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	// Return a copy to avoid race conditions
	result := make([]OperationMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// Clear removes all collected metrics.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = mc.metrics[:0]
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// GetSummary returns a summary of collected metrics.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return MetricsSummary{}
	}

	var totalDuration time.Duration
	var totalRows int64
	var failures int
	operationCounts := make(map[string]int)

	for _, metric := range mc.metrics {
		totalDuration += metric.Duration
		totalRows += metric.RowsProcessed
		if metric.Failed {
			failures++
		}
		operationCounts[metric.Operation]++
	}

	return MetricsSummary{
		TotalOperations: len(mc.metrics),
		TotalDuration:   totalDuration,
		TotalRows:       totalRows,
		Failures:        failures,
		OperationCounts: operationCounts,
		AverageDuration: totalDuration / time.Duration(len(mc.metrics)),
	}
}

// MetricsSummary provides aggregate statistics for collected metrics.
type MetricsSummary struct {
	TotalOperations int            `json:"total_operations"`
	TotalDuration   time.Duration  `json:"total_duration"`
	TotalRows       int64          `json:"total_rows"`
	Failures        int            `json:"failures"`
	OperationCounts map[string]int `json:"operation_counts"`
	AverageDuration time.Duration  `json:"average_duration"`
}
