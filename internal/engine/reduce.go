package engine

import (
	"math"

	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/plan"
	"github.com/paveg/lazybridge/internal/series"
)

// reduce collapses every column of in to a single row
func (x *execution) reduce(in *dataframe.DataFrame, spec plan.ReduceSpec) (*dataframe.DataFrame, error) {
	opts := expr.AggOptions{Ddof: spec.Ddof, Interpolation: spec.Interpolation}
	if spec.Quantile != nil {
		q, err := x.quantile(in, spec.Quantile)
		if err != nil {
			return nil, err
		}
		opts.Quantile = q
	}

	cols := in.Series()
	for i, c := range cols {
		if err := x.ctx.Err(); err != nil {
			return nil, err
		}
		dtype := spec.Agg.OutputType(c.DType())
		v, ok := series.Cast(expr.Aggregate(c, nil, spec.Agg, opts), dtype)
		if !ok {
			// Aggregations over unsupported types produce null
			v = nil
		}
		b := series.NewBuilder(dtype, x.engine.mem)
		if err := b.Append(v); err != nil {
			return nil, executionError("%s", err)
		}
		cols[i] = b.Finish(c.Name())
	}
	return dataframe.WithHeight(1, cols...)
}

// quantile evaluates the quantile parameter to a number in [0, 1]
func (x *execution) quantile(in *dataframe.DataFrame, e expr.Expr) (float64, error) {
	v, err := x.scalar(e, in)
	if err != nil {
		return 0, err
	}
	f, ok := series.Cast(v, series.Float64)
	if !ok || f == nil {
		return 0, executionError("quantile %s must be a number", e)
	}
	q := f.(float64)
	if math.IsNaN(q) || q < 0 || q > 1 {
		return 0, executionError("quantile should be between 0.0 and 1.0, got %v", q)
	}
	return q, nil
}
