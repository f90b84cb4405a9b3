//nolint:testpackage // requires internal access to unexported types and functions
package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector(t *testing.T) {
	t.Run("create disabled collector", func(t *testing.T) {
		collector := NewMetricsCollector(false)
		assert.NotNil(t, collector)
		assert.False(t, collector.IsEnabled())
		assert.Empty(t, collector.GetMetrics())
	})

	t.Run("nil collector is disabled", func(t *testing.T) {
		var collector *MetricsCollector
		assert.False(t, collector.IsEnabled())
		collector.Record(OperationMetrics{Operation: "collect"})
	})

	t.Run("record operation with disabled collector", func(t *testing.T) {
		collector := NewMetricsCollector(false)

		callCount := 0
		err := collector.RecordOperation("id", "test", func() (int64, error) {
			callCount++
			return 3, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, callCount)
		assert.Empty(t, collector.GetMetrics())
	})

	t.Run("record operation with enabled collector", func(t *testing.T) {
		collector := NewMetricsCollector(true)

		err := collector.RecordOperation("c-1", "collect", func() (int64, error) {
			time.Sleep(10 * time.Millisecond) // Simulate work
			return 42, nil
		})
		require.NoError(t, err)

		metrics := collector.GetMetrics()
		require.Len(t, metrics, 1)

		metric := metrics[0]
		assert.Equal(t, "c-1", metric.CollectID)
		assert.Equal(t, "collect", metric.Operation)
		assert.Equal(t, int64(42), metric.RowsProcessed)
		assert.Greater(t, metric.Duration, 5*time.Millisecond)
		assert.False(t, metric.Failed)
	})

	t.Run("handle operation error", func(t *testing.T) {
		collector := NewMetricsCollector(true)

		err := collector.RecordOperation("c-2", "join", func() (int64, error) {
			return 0, assert.AnError
		})
		assert.Equal(t, assert.AnError, err)

		// Should still record metrics even on error
		metrics := collector.GetMetrics()
		require.Len(t, metrics, 1)
		assert.True(t, metrics[0].Failed)
	})

	t.Run("clear metrics", func(t *testing.T) {
		collector := NewMetricsCollector(true)
		collector.Record(OperationMetrics{Operation: "sort"})
		assert.Len(t, collector.GetMetrics(), 1)

		collector.Clear()
		assert.Empty(t, collector.GetMetrics())
	})
}

func TestMetricsSummary(t *testing.T) {
	collector := NewMetricsCollector(true)
	assert.Equal(t, MetricsSummary{}, collector.GetSummary())

	collector.Record(OperationMetrics{Operation: "filter", Duration: 10 * time.Millisecond, RowsProcessed: 5})
	collector.Record(OperationMetrics{Operation: "filter", Duration: 20 * time.Millisecond, RowsProcessed: 3})
	collector.Record(OperationMetrics{Operation: "collect", Duration: 30 * time.Millisecond, Failed: true})

	summary := collector.GetSummary()
	assert.Equal(t, 3, summary.TotalOperations)
	assert.Equal(t, 60*time.Millisecond, summary.TotalDuration)
	assert.Equal(t, 20*time.Millisecond, summary.AverageDuration)
	assert.Equal(t, int64(8), summary.TotalRows)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, map[string]int{"filter": 2, "collect": 1}, summary.OperationCounts)
}

func TestMetricsCollectorConcurrency(t *testing.T) {
	collector := NewMetricsCollector(true)

	const numOps = 10
	var wg sync.WaitGroup
	for range numOps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := collector.RecordOperation("id", "concurrent_op", func() (int64, error) {
				time.Sleep(1 * time.Millisecond)
				return 1, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, collector.GetMetrics(), numOps)
}

func TestGlobalCollector(t *testing.T) {
	previous := GetGlobalCollector()
	defer SetGlobalCollector(previous)

	SetGlobalCollector(nil)
	assert.False(t, IsGlobalMonitoringEnabled())
	assert.Equal(t, MetricsSummary{}, GetGlobalSummary())

	collector := EnableGlobalMonitoring()
	assert.True(t, IsGlobalMonitoringEnabled())
	collector.Record(OperationMetrics{Operation: "collect"})
	assert.Equal(t, 1, GetGlobalSummary().TotalOperations)

	DisableGlobalMonitoring()
	assert.False(t, IsGlobalMonitoringEnabled())
}
