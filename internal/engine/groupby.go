package engine

import (
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/parallel"
	"github.com/paveg/lazybridge/internal/plan"
	"github.com/paveg/lazybridge/internal/series"
)

// groupResult is the grouping of one partition. aggs[g][a] is the value of
// aggregation a for group g.
type groupResult struct {
	groups [][]int
	aggs   [][]any
}

func (x *execution) groupBy(in *dataframe.DataFrame, spec plan.GroupBySpec) (*dataframe.DataFrame, error) {
	if spec.Mode == plan.GroupAgg {
		for _, a := range spec.Aggs {
			if !expr.IsScalar(a) {
				return nil, executionError("expression %s is not an aggregation; agg expressions must reduce each group to one value", a)
			}
		}
	}

	keys, err := x.evalKeys(in, spec.Keys)
	if err != nil {
		return nil, err
	}

	var aggregate func([][]int) ([][]any, error)
	if spec.Mode == plan.GroupAgg {
		aggregate = func(groups [][]int) ([][]any, error) {
			return x.aggregateGroups(in, spec.Aggs, groups)
		}
	}

	var results []groupResult
	if spec.MaintainOrder {
		r, err := x.groupPartition(keys, allRows(in.Len()), aggregate)
		if err != nil {
			return nil, err
		}
		results = []groupResult{r}
	} else {
		if results, err = x.groupPartitioned(keys, in.Len(), aggregate); err != nil {
			return nil, err
		}
	}

	var groups [][]int
	var aggs [][]any
	for _, r := range results {
		groups = append(groups, r.groups...)
		aggs = append(aggs, r.aggs...)
	}

	switch spec.Mode {
	case plan.GroupHead, plan.GroupTail:
		return x.groupRows(in, keys, groups, spec.N, spec.Mode == plan.GroupTail)
	default:
		return x.buildAggFrame(in, keys, spec.Aggs, groups, aggs)
	}
}

// groupPartitioned hash-partitions rows and groups each partition on the
// worker pool. Groups come back partition by partition, each partition in
// first-appearance order.
func (x *execution) groupPartitioned(keys []*series.Series, n int, aggregate func([][]int) ([][]any, error)) ([]groupResult, error) {
	parts := 1
	if n >= x.engine.cfg.ParallelThreshold {
		parts = x.engine.pool.Size()
	}

	partitions := make([][]int, parts)
	rk := newRowKeys(keys)
	t := x.newTicker()
	for r := 0; r < n; r++ {
		if err := t.tick(); err != nil {
			return nil, err
		}
		p := rk.hash(r) % uint64(parts)
		partitions[p] = append(partitions[p], r)
	}

	return parallel.ProcessIndexed(x.ctx, x.engine.pool, partitions, func(_ int, rows []int) (groupResult, error) {
		return x.groupPartition(keys, rows, aggregate)
	})
}

// groupPartition groups rows by key and, when aggregate is set, reduces
// every group. Safe to call from several goroutines.
func (x *execution) groupPartition(keys []*series.Series, rows []int, aggregate func([][]int) ([][]any, error)) (groupResult, error) {
	ki, err := x.buildIndex(newRowKeys(keys), rows)
	if err != nil {
		return groupResult{}, err
	}
	groups := make([][]int, ki.len())
	for g := range groups {
		groups[g] = ki.rows(g)
	}
	r := groupResult{groups: groups}
	if aggregate != nil {
		if r.aggs, err = aggregate(groups); err != nil {
			return groupResult{}, err
		}
	}
	return r, nil
}

func (x *execution) aggregateGroups(in *dataframe.DataFrame, aggs []expr.Expr, groups [][]int) ([][]any, error) {
	out := make([][]any, len(groups))
	for g, rows := range groups {
		if err := x.ctx.Err(); err != nil {
			return nil, err
		}
		values := make([]any, len(aggs))
		for a, e := range aggs {
			s, err := x.eval.Evaluate(e, in, rows)
			if err != nil {
				return nil, err
			}
			if s.Len() != 1 {
				return nil, executionError("expression %s produced %d values for one group", e, s.Len())
			}
			values[a] = s.Value(0)
		}
		out[g] = values
	}
	return out, nil
}

// buildAggFrame assembles key columns followed by one column per aggregation
func (x *execution) buildAggFrame(in *dataframe.DataFrame, keys []*series.Series, aggs []expr.Expr, groups [][]int, values [][]any) (*dataframe.DataFrame, error) {
	first := make([]int, len(groups))
	for g, rows := range groups {
		first[g] = rows[0]
	}
	cols := make([]*series.Series, 0, len(keys)+len(aggs))
	for _, k := range keys {
		cols = append(cols, k.Take(first, x.engine.mem))
	}

	lookup := func(name string) (series.DType, bool) {
		c, ok := in.Column(name)
		if !ok {
			return series.Null, false
		}
		return c.DType(), true
	}
	for a, e := range aggs {
		dtype, err := expr.ResolveType(e, lookup)
		if err != nil {
			return nil, err
		}
		b := series.NewBuilder(dtype, x.engine.mem)
		b.Reserve(len(groups))
		for g := range groups {
			v, ok := series.Cast(values[g][a], dtype)
			if !ok {
				return nil, executionError("cannot store %v produced by %s as %s", values[g][a], e, dtype)
			}
			if err := b.Append(v); err != nil {
				return nil, executionError("%s", err)
			}
		}
		cols = append(cols, b.Finish(expr.OutputName(e)))
	}
	return dataframe.WithHeight(len(groups), cols...)
}

// groupRows keeps the first (or last) n rows of every group. Keys come first,
// then the remaining input columns.
func (x *execution) groupRows(in *dataframe.DataFrame, keys []*series.Series, groups [][]int, n int, tail bool) (*dataframe.DataFrame, error) {
	var take []int
	for _, rows := range groups {
		if len(rows) > n {
			if tail {
				rows = rows[len(rows)-n:]
			} else {
				rows = rows[:n]
			}
		}
		take = append(take, rows...)
	}

	cols := make([]*series.Series, 0, in.Width()+len(keys))
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		cols = append(cols, k.Take(take, x.engine.mem))
		isKey[k.Name()] = true
	}
	for _, c := range in.Series() {
		if !isKey[c.Name()] {
			cols = append(cols, c.Take(take, x.engine.mem))
		}
	}
	return dataframe.WithHeight(len(take), cols...)
}
