package parallel_test

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paveg/lazybridge/internal/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewWorkerPool(t *testing.T) {
	pool := parallel.NewWorkerPool(0)
	defer pool.Close()
	assert.Equal(t, runtime.NumCPU(), pool.Size())

	pool2 := parallel.NewWorkerPool(4)
	defer pool2.Close()
	assert.Equal(t, 4, pool2.Size())

	pool3 := parallel.NewWorkerPool(-1)
	defer pool3.Close()
	assert.Equal(t, runtime.NumCPU(), pool3.Size())
}

func TestProcessIndexed(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := parallel.NewWorkerPool(2)
	defer pool.Close()

	input := []string{"a", "b", "c", "d"}
	results, err := parallel.ProcessIndexed(context.Background(), pool, input, func(index int, value string) (string, error) {
		return value + string(rune('0'+index)), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "b1", "c2", "d3"}, results)
}

func TestProcessIndexedEmpty(t *testing.T) {
	pool := parallel.NewWorkerPool(2)
	defer pool.Close()

	results, err := parallel.ProcessIndexed(context.Background(), pool, []int{}, func(_ int, x int) (int, error) {
		return x, nil
	})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestProcessIndexedError(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := parallel.NewWorkerPool(3)
	defer pool.Close()

	boom := errors.New("boom")
	input := make([]int, 100)
	var calls atomic.Int64
	_, err := parallel.ProcessIndexed(context.Background(), pool, input, func(i int, _ int) (int, error) {
		calls.Add(1)
		if i == 5 {
			return 0, boom
		}
		return i, nil
	})
	require.ErrorIs(t, err, boom)
	assert.Less(t, calls.Load(), int64(100), "remaining items are skipped after the first error")
}

func TestProcessIndexedCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := parallel.NewWorkerPool(2)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	input := make([]int, 50)
	_, err := parallel.ProcessIndexed(ctx, pool, input, func(i int, _ int) (int, error) {
		if i == 1 {
			cancel()
		}
		time.Sleep(time.Millisecond)
		return i, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPoolClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := parallel.NewWorkerPool(2)
	pool.Close()

	_, err := parallel.ProcessIndexed(context.Background(), pool, []int{1, 2, 3}, func(_ int, x int) (int, error) {
		return x, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessConcurrency(t *testing.T) {
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()

	var active, peak atomic.Int64
	input := make([]int, 40)
	_, err := parallel.ProcessIndexed(context.Background(), pool, input, func(i int, _ int) (int, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return i, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(4))
}

func TestLargeDataset(t *testing.T) {
	pool := parallel.NewWorkerPool(0)
	defer pool.Close()

	input := make([]int, 10000)
	for i := range input {
		input[i] = i
	}
	results, err := parallel.ProcessIndexed(context.Background(), pool, input, func(_ int, x int) (int, error) {
		return x * 2, nil
	})
	require.NoError(t, err)
	require.Len(t, results, len(input))
	for i, r := range results {
		assert.Equal(t, i*2, r)
	}
}
