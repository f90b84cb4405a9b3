package engine

import (
	"math"

	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/parallel"
	"github.com/paveg/lazybridge/internal/plan"
	"github.com/paveg/lazybridge/internal/series"
	"github.com/paveg/lazybridge/internal/validation"
)

// evalAll evaluates exprs against every row of in, naming each result by
// its output name. Large inputs are evaluated on the worker pool.
func (x *execution) evalAll(in *dataframe.DataFrame, exprs []expr.Expr) ([]*series.Series, error) {
	evalOne := func(_ int, e expr.Expr) (*series.Series, error) {
		s, err := x.eval.Evaluate(e, in, nil)
		if err != nil {
			return nil, err
		}
		return s.Rename(expr.OutputName(e)), nil
	}

	if len(exprs) > 1 && in.Len() >= x.engine.cfg.ParallelThreshold {
		return parallel.ProcessIndexed(x.ctx, x.engine.pool, exprs, evalOne)
	}
	out := make([]*series.Series, len(exprs))
	for i, e := range exprs {
		s, err := evalOne(i, e)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (x *execution) selectExprs(in *dataframe.DataFrame, exprs []expr.Expr) (*dataframe.DataFrame, error) {
	cols, err := x.evalAll(in, exprs)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name()
	}
	if err := validation.ValidateUniqueNames("select", names...); err != nil {
		return nil, err
	}

	// Expressions over columns keep the input height; all-scalar selects
	// produce one row
	height := 1
	for _, e := range exprs {
		if !expr.IsScalar(e) {
			height = in.Len()
			break
		}
	}
	if len(exprs) == 0 {
		height = 0
	}
	for i, c := range cols {
		cols[i] = x.eval.Broadcast(c, height)
	}
	return dataframe.WithHeight(height, cols...)
}

func (x *execution) withColumns(in *dataframe.DataFrame, exprs []expr.Expr) (*dataframe.DataFrame, error) {
	computed, err := x.evalAll(in, exprs)
	if err != nil {
		return nil, err
	}

	cols := in.Series()
	position := make(map[string]int, len(cols))
	for i, c := range cols {
		position[c.Name()] = i
	}
	for _, c := range computed {
		c = x.eval.Broadcast(c, in.Len())
		if i, ok := position[c.Name()]; ok {
			cols[i] = c
			continue
		}
		position[c.Name()] = len(cols)
		cols = append(cols, c)
	}
	return dataframe.WithHeight(in.Len(), cols...)
}

func (x *execution) filter(in *dataframe.DataFrame, predicate expr.Expr) (*dataframe.DataFrame, error) {
	mask, err := x.eval.Evaluate(predicate, in, nil)
	if err != nil {
		return nil, err
	}
	if mask.DType() != series.Bool && mask.DType() != series.Null {
		return nil, executionError("predicate %s has type %s, expected bool", predicate, mask.DType())
	}
	mask = x.eval.Broadcast(mask, in.Len())

	t := x.newTicker()
	keep := make([]int, 0, in.Len())
	for i := 0; i < in.Len(); i++ {
		if err := t.tick(); err != nil {
			return nil, err
		}
		if v, ok := mask.Value(i).(bool); ok && v {
			keep = append(keep, i)
		}
	}
	return in.Take(keep, x.engine.mem), nil
}

// slice keeps spec.Length rows from spec.Offset; a negative offset counts
// from the end and both ends are clamped to the frame.
func slice(in *dataframe.DataFrame, spec plan.SliceSpec) *dataframe.DataFrame {
	n := int64(in.Len())
	start := spec.Offset
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	end := min(start+int64(spec.Length), n)
	return in.Slice(int(start), int(end))
}

func (x *execution) reverse(in *dataframe.DataFrame) *dataframe.DataFrame {
	n := in.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = n - 1 - i
	}
	return in.Take(indices, x.engine.mem)
}

// scalar evaluates a fill or parameter expression to one value
func (x *execution) scalar(e expr.Expr, in *dataframe.DataFrame) (any, error) {
	return x.eval.EvaluateScalar(e, in)
}

func (x *execution) shift(in *dataframe.DataFrame, periods int64, fill expr.Expr) (*dataframe.DataFrame, error) {
	var fillValue any
	if fill != nil {
		v, err := x.scalar(fill, in)
		if err != nil {
			return nil, err
		}
		fillValue = v
	}

	n := int64(in.Len())
	cols := in.Series()
	for ci, c := range cols {
		castFill, ok := series.Cast(fillValue, c.DType())
		if !ok {
			return nil, executionError("cannot cast fill value %s to %s for column %q", expr.Lit(fillValue), c.DType(), c.Name())
		}

		b := series.NewBuilder(c.DType(), x.engine.mem)
		b.Reserve(int(n))
		for i := int64(0); i < n; i++ {
			src := i - periods
			if src < 0 || src >= n {
				if err := b.Append(castFill); err != nil {
					return nil, executionError("%s", err)
				}
				continue
			}
			b.AppendFrom(c, int(src))
		}
		cols[ci] = b.Finish(c.Name())
	}
	return dataframe.WithHeight(in.Len(), cols...)
}

func (x *execution) fillNull(in *dataframe.DataFrame, fill expr.Expr) (*dataframe.DataFrame, error) {
	v, err := x.scalar(fill, in)
	if err != nil {
		return nil, err
	}
	cols := in.Series()
	for ci, c := range cols {
		if c.NullCount() == 0 || c.DType() == series.Null {
			continue
		}
		castFill, ok := series.Cast(v, c.DType())
		if !ok {
			continue
		}
		cols[ci], err = replace(c, func(i int) bool { return c.IsNull(i) }, castFill, x)
		if err != nil {
			return nil, err
		}
	}
	return dataframe.WithHeight(in.Len(), cols...)
}

func (x *execution) fillNaN(in *dataframe.DataFrame, fill expr.Expr) (*dataframe.DataFrame, error) {
	v, err := x.scalar(fill, in)
	if err != nil {
		return nil, err
	}
	castFill, ok := series.Cast(v, series.Float64)
	if !ok {
		return nil, executionError("fill value %s cannot replace NaN in float columns", expr.Lit(v))
	}
	cols := in.Series()
	for ci, c := range cols {
		if c.DType() != series.Float64 {
			continue
		}
		isNaN := func(i int) bool {
			f, ok := c.Float64(i)
			return ok && math.IsNaN(f)
		}
		cols[ci], err = replace(c, isNaN, castFill, x)
		if err != nil {
			return nil, err
		}
	}
	return dataframe.WithHeight(in.Len(), cols...)
}

// replace copies c with value substituted at every row where match is true
func replace(c *series.Series, match func(int) bool, value any, x *execution) (*series.Series, error) {
	t := x.newTicker()
	b := series.NewBuilder(c.DType(), x.engine.mem)
	b.Reserve(c.Len())
	for i := 0; i < c.Len(); i++ {
		if err := t.tick(); err != nil {
			return nil, err
		}
		if !match(i) {
			b.AppendFrom(c, i)
			continue
		}
		if err := b.Append(value); err != nil {
			return nil, executionError("%s", err)
		}
	}
	return b.Finish(c.Name()), nil
}
