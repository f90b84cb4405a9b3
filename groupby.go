package lazybridge

import (
	"github.com/paveg/lazybridge/internal/coerce"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/plan"
)

// LazyGroupBy holds pending grouping keys. It is not executable; Agg, Head
// and Tail turn it back into a LazyFrame.
type LazyGroupBy struct {
	lf            *LazyFrame
	keys          []expr.Expr
	maintainOrder bool
}

func (g *LazyGroupBy) spec(mode plan.GroupMode) plan.GroupBySpec {
	return plan.GroupBySpec{Keys: g.keys, MaintainOrder: g.maintainOrder, Mode: mode}
}

// Agg produces one row per group: the keys followed by one column per
// aggregation expression.
func (g *LazyGroupBy) Agg(exprs ...any) (*LazyFrame, error) {
	aggs, err := arg("agg", "exprs", coerce.Selectors("agg"), selectorArgs(exprs))
	if err != nil {
		return nil, err
	}
	spec := g.spec(plan.GroupAgg)
	spec.Aggs = aggs
	return g.lf.derive(plan.GroupBy(g.lf.node, spec)), nil
}

// Head keeps the first n rows of every group
func (g *LazyGroupBy) Head(n any) (*LazyFrame, error) {
	return g.rows("head", plan.GroupHead, n)
}

// Tail keeps the last n rows of every group
func (g *LazyGroupBy) Tail(n any) (*LazyFrame, error) {
	return g.rows("tail", plan.GroupTail, n)
}

func (g *LazyGroupBy) rows(op string, mode plan.GroupMode, n any) (*LazyFrame, error) {
	count, err := arg(op, "n", coerce.Count, n)
	if err != nil {
		return nil, err
	}
	spec := g.spec(mode)
	spec.N = count
	return g.lf.derive(plan.GroupBy(g.lf.node, spec)), nil
}

func (g *LazyGroupBy) String() string {
	return "LazyGroupBy (internals are opaque)"
}
