// Package parallel provides the worker pool the engine uses for partitioned
// grouping and multi-expression evaluation.
//
// Work is fanned out to a fixed number of goroutines and fanned back in by
// index, so results always come back in input order. The first worker error
// or a cancelled context stops the remaining work.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// WorkerPool manages a pool of goroutines for parallel processing
type WorkerPool struct {
	numWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new worker pool. A non-positive count uses the
// number of CPUs.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Size returns the number of workers
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// ProcessIndexed executes work items in parallel while preserving order. It
// returns the first worker error, or the context error if ctx is cancelled or
// the pool is closed before every item ran.
func ProcessIndexed[T, R any](
	ctx context.Context,
	wp *WorkerPool,
	items []T,
	worker func(int, T) (R, error),
) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if err := wp.ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(wp.ctx, cancel)
	defer stop()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	// Each index is written by exactly one worker
	results := make([]R, len(items))
	itemCh := make(chan indexedItem[T])

	var wg sync.WaitGroup
	for i := 0; i < min(wp.numWorkers, len(items)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemCh {
				if ctx.Err() != nil {
					continue
				}
				result, err := worker(item.index, item.value)
				if err != nil {
					fail(err)
					continue
				}
				results[item.index] = result
			}
		}()
	}

send:
	for i, item := range items {
		select {
		case <-ctx.Done():
			break send
		case itemCh <- indexedItem[T]{index: i, value: item}:
		}
	}
	close(itemCh)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close shuts down the worker pool. Calls in flight stop with
// context.Canceled.
func (wp *WorkerPool) Close() {
	wp.cancel()
}

// indexedItem holds an item with its index
type indexedItem[T any] struct {
	index int
	value T
}
