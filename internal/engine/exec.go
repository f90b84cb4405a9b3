package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/monitoring"
	"github.com/paveg/lazybridge/internal/plan"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// execution is the state of one collect call
type execution struct {
	ctx       context.Context
	engine    *Engine
	collectID string
	logger    *zap.Logger
	eval      *expr.Evaluator
}

// run executes n and its inputs. Errors from inputs are returned unchanged,
// so every error names the node that produced it.
func (x *execution) run(n *plan.Node) (*dataframe.DataFrame, error) {
	if n.Kind == plan.KindScan {
		return n.Source.Frame, nil
	}

	var left, right *dataframe.DataFrame
	var parallelInputs bool
	if n.Right != nil {
		parallelInputs = x.parallelJoin(n)
		var err error
		left, right, err = x.runInputs(n, parallelInputs)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		if left, err = x.run(n.Input); err != nil {
			return nil, err
		}
	}

	op := n.Kind.String()
	if err := x.ctx.Err(); err != nil {
		return nil, errors.NewInterruptedError(op, err)
	}

	start := time.Now()
	out, err := x.apply(n, left, right)
	duration := time.Since(start)
	x.engine.metrics.Record(monitoring.OperationMetrics{
		CollectID:     x.collectID,
		Operation:     op,
		Duration:      duration,
		RowsProcessed: int64(left.Len()),
		Parallel:      parallelInputs,
		Failed:        err != nil,
	})
	if err != nil {
		return nil, x.wrap(op, err)
	}

	x.logger.Debug("executed node",
		zap.String("op", op),
		zap.Int("rows_in", left.Len()),
		zap.Int("rows_out", out.Len()),
		zap.Duration("duration", duration),
	)
	return out, nil
}

// parallelJoin reports whether both join inputs run concurrently
func (x *execution) parallelJoin(n *plan.Node) bool {
	var allow, force bool
	switch n.Kind {
	case plan.KindJoin:
		allow, force = n.Join.AllowParallel, n.Join.ForceParallel
	case plan.KindAsOf:
		allow, force = n.AsOf.AllowParallel, n.AsOf.ForceParallel
	}
	if !allow {
		return false
	}
	return force || plan.EstimateRows(n) >= x.engine.cfg.ParallelThreshold
}

func (x *execution) runInputs(n *plan.Node, concurrent bool) (*dataframe.DataFrame, *dataframe.DataFrame, error) {
	if !concurrent {
		left, err := x.run(n.Input)
		if err != nil {
			return nil, nil, err
		}
		right, err := x.run(n.Right)
		if err != nil {
			return nil, nil, err
		}
		return left, right, nil
	}

	var left, right *dataframe.DataFrame
	g, gctx := errgroup.WithContext(x.ctx)
	branch := *x
	branch.ctx = gctx
	g.Go(func() error {
		var err error
		left, err = branch.run(n.Input)
		return err
	})
	g.Go(func() error {
		var err error
		right, err = branch.run(n.Right)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (x *execution) apply(n *plan.Node, in, right *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	switch n.Kind {
	case plan.KindSelect:
		return x.selectExprs(in, n.Exprs)
	case plan.KindWithColumns:
		return x.withColumns(in, n.Exprs)
	case plan.KindFilter:
		return x.filter(in, n.Predicate)
	case plan.KindDrop:
		return in.Drop(n.Columns...)
	case plan.KindSlice:
		return slice(in, n.Slice), nil
	case plan.KindReverse:
		return x.reverse(in), nil
	case plan.KindShift:
		return x.shift(in, n.Periods, n.Fill)
	case plan.KindFillNull:
		return x.fillNull(in, n.Fill)
	case plan.KindFillNaN:
		return x.fillNaN(in, n.Fill)
	case plan.KindReduce:
		return x.reduce(in, n.Reduce)
	case plan.KindDropNulls:
		return x.dropNulls(in, n.Subset)
	case plan.KindUnique:
		return x.unique(in, n.Subset, n.Keep)
	case plan.KindSort:
		return x.sort(in, n.Sort)
	case plan.KindGroupBy:
		return x.groupBy(in, n.GroupBy)
	case plan.KindJoin:
		return x.join(in, right, n.Join)
	case plan.KindAsOf:
		return x.asOf(in, right, n.AsOf)
	default:
		return nil, errors.NewExecutionError(n.Kind.String(), "unsupported plan node")
	}
}

// wrap tags a kernel error with op. Context errors become interruptions and
// foreign errors become execution errors.
func (x *execution) wrap(op string, err error) error {
	var e *errors.Error
	isTaxonomy := stderrors.As(err, &e)
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		if isTaxonomy && e.Op != "" {
			return err
		}
		return errors.NewInterruptedError(op, err)
	}
	if !isTaxonomy {
		return &errors.Error{Kind: errors.KindExecution, Op: op, Cause: err}
	}
	if e.Op != "" {
		return err
	}
	return errors.Annotate(err, op)
}

// ticker polls the collect context every interval rows
type ticker struct {
	ctx      context.Context
	interval int
	n        int
}

func (x *execution) newTicker() *ticker {
	return &ticker{ctx: x.ctx, interval: x.engine.cfg.InterruptCheckRows}
}

// tick counts one row and returns the context error at each interval
func (t *ticker) tick() error {
	t.n++
	if t.n%t.interval != 0 {
		return nil
	}
	return t.ctx.Err()
}

func executionError(format string, args ...any) error {
	return errors.NewExecutionError("", fmt.Sprintf(format, args...))
}
