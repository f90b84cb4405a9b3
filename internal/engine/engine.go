// Package engine executes logical plans against materialised frames. It
// resolves and optimizes a plan, then runs it node by node, polling the
// collect context before every node and periodically inside kernels.
package engine

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/paveg/lazybridge/internal/config"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/monitoring"
	"github.com/paveg/lazybridge/internal/parallel"
	"github.com/paveg/lazybridge/internal/plan"
	"go.uber.org/zap"
)

// Executor is the collaborator a LazyFrame hands its plan to
type Executor interface {
	// Optimize resolves n and applies the enabled optimization rules
	Optimize(n *plan.Node) (*plan.Node, error)
	// Collect optimizes and executes n
	Collect(ctx context.Context, n *plan.Node) (*dataframe.DataFrame, error)
}

// Engine is the default in-process Executor
type Engine struct {
	cfg       config.Config
	logger    *zap.Logger
	metrics   *monitoring.MetricsCollector
	mem       memory.Allocator
	pool      *parallel.WorkerPool
	optimizer *plan.QueryOptimizer
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records per-collect and per-node metrics into collector
func WithMetrics(collector *monitoring.MetricsCollector) Option {
	return func(e *Engine) {
		e.metrics = collector
	}
}

// WithAllocator sets the Arrow allocator used for result columns
func WithAllocator(mem memory.Allocator) Option {
	return func(e *Engine) {
		if mem != nil {
			e.mem = mem
		}
	}
}

// New creates an Engine for cfg. Zero config values take their defaults.
func New(cfg config.Config, opts ...Option) *Engine {
	cfg = cfg.WithDefaults()
	e := &Engine{
		cfg:    cfg,
		logger: zap.NewNop(),
		mem:    memory.NewGoAllocator(),
		optimizer: plan.NewQueryOptimizer(plan.OptimizerOptions{
			FilterFusion:      cfg.FilterFusion,
			PredicatePushdown: cfg.PredicatePushdown,
			SliceFusion:       cfg.SliceFusion,
		}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = parallel.NewWorkerPool(cfg.Workers())
	return e
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Close stops the worker pool. Collects in flight fail with an interruption.
func (e *Engine) Close() {
	e.pool.Close()
}

// Optimize resolves n and applies the enabled optimization rules. n is not
// modified.
func (e *Engine) Optimize(n *plan.Node) (*plan.Node, error) {
	optimized, _, err := e.optimizer.Optimize(n)
	return optimized, err
}

// Collect optimizes and executes n. Errors are *errors.Error values of kind
// Execution; a cancelled ctx yields an interruption wrapping ctx.Err().
func (e *Engine) Collect(ctx context.Context, n *plan.Node) (*dataframe.DataFrame, error) {
	collectID := uuid.NewString()
	logger := e.logger.With(zap.String("collect_id", collectID))
	start := time.Now()

	optimized, applied, err := e.optimizer.Optimize(n)
	if err != nil {
		logger.Debug("plan resolution failed", zap.Error(err))
		return nil, err
	}
	if len(applied) > 0 {
		logger.Debug("optimized plan", zap.Strings("rules", applied))
	}

	x := &execution{
		ctx:       ctx,
		engine:    e,
		collectID: collectID,
		logger:    logger,
		eval:      expr.NewEvaluator(e.mem),
	}
	var out *dataframe.DataFrame
	err = e.metrics.RecordOperation(collectID, "collect", func() (int64, error) {
		var runErr error
		out, runErr = x.run(optimized)
		if runErr != nil {
			return 0, runErr
		}
		return int64(out.Len()), nil
	})
	if err != nil {
		logger.Info("collect failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}

	logger.Info("collect finished",
		zap.Int("rows", out.Len()),
		zap.Int("columns", out.Width()),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}
