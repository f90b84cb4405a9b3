package engine

import (
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/plan"
	"github.com/paveg/lazybridge/internal/series"
)

// joinRows pairs output rows with their source rows; -1 marks a missing side
type joinRows struct {
	left  []int
	right []int
}

func (j *joinRows) add(l, r int) {
	j.left = append(j.left, l)
	j.right = append(j.right, r)
}

// join runs a hash join of left and right. Null keys never match.
func (x *execution) join(left, right *dataframe.DataFrame, spec *plan.JoinSpec) (*dataframe.DataFrame, error) {
	switch spec.How {
	case plan.JoinCross:
		return x.crossJoin(left, right, spec)
	case plan.JoinAsOf:
		return nil, executionError("as-of joins take a single key per side and run as join_asof")
	}

	leftKeys, err := x.evalKeys(left, spec.LeftOn)
	if err != nil {
		return nil, err
	}
	rightKeys, err := x.evalKeys(right, spec.RightOn)
	if err != nil {
		return nil, err
	}
	for i := range leftKeys {
		l, r := leftKeys[i].DType(), rightKeys[i].DType()
		if l != r && l != series.Null && r != series.Null {
			return nil, executionError("join key %s has type %s but %s has type %s", spec.LeftOn[i], l, spec.RightOn[i], r)
		}
	}

	rk := newRowKeys(rightKeys)
	buildRows := make([]int, 0, right.Len())
	for r := 0; r < right.Len(); r++ {
		if !rk.hasNull(r) {
			buildRows = append(buildRows, r)
		}
	}
	index, err := x.buildIndex(rk, buildRows)
	if err != nil {
		return nil, err
	}

	var out joinRows
	var matchedRight []bool
	if spec.How == plan.JoinOuter {
		matchedRight = make([]bool, right.Len())
	}
	lk := newRowKeys(leftKeys)
	t := x.newTicker()
	for l := 0; l < left.Len(); l++ {
		if err := t.tick(); err != nil {
			return nil, err
		}
		var matches []int
		if !lk.hasNull(l) {
			if g, ok := index.lookup(lk.encode(l)); ok {
				matches = index.rows(g)
			}
		}

		switch spec.How {
		case plan.JoinSemi:
			if len(matches) > 0 {
				out.add(l, -1)
			}
			continue
		case plan.JoinAnti:
			if len(matches) == 0 {
				out.add(l, -1)
			}
			continue
		}

		for _, r := range matches {
			out.add(l, r)
			if matchedRight != nil {
				matchedRight[r] = true
			}
		}
		if len(matches) == 0 && spec.How != plan.JoinInner {
			out.add(l, -1)
		}
	}
	for r, matched := range matchedRight {
		if !matched {
			out.add(-1, r)
		}
	}

	if spec.How == plan.JoinSemi || spec.How == plan.JoinAnti {
		return left.Take(out.left, x.engine.mem), nil
	}

	cols := x.takeLeft(left, out.left)
	if spec.How == plan.JoinOuter {
		if err := x.coalesceKeys(cols, spec.LeftOn, rightKeys, out); err != nil {
			return nil, err
		}
	}
	cols = append(cols, x.takeRight(left, right, out.right, plan.JoinKeyColumns(spec.RightOn), spec.Suffix)...)
	return dataframe.WithHeight(len(out.left), cols...)
}

func (x *execution) crossJoin(left, right *dataframe.DataFrame, spec *plan.JoinSpec) (*dataframe.DataFrame, error) {
	var out joinRows
	t := x.newTicker()
	for l := 0; l < left.Len(); l++ {
		for r := 0; r < right.Len(); r++ {
			if err := t.tick(); err != nil {
				return nil, err
			}
			out.add(l, r)
		}
	}
	cols := x.takeLeft(left, out.left)
	cols = append(cols, x.takeRight(left, right, out.right, nil, spec.Suffix)...)
	return dataframe.WithHeight(len(out.left), cols...)
}

func (x *execution) takeLeft(left *dataframe.DataFrame, rows []int) []*series.Series {
	cols := left.Series()
	for i, c := range cols {
		cols[i] = c.Take(rows, x.engine.mem)
	}
	return cols
}

// takeRight gathers the kept right columns, suffixing names that collide
// with left columns.
func (x *execution) takeRight(left, right *dataframe.DataFrame, rows []int, dropped map[string]bool, suffix string) []*series.Series {
	kept := plan.RightOutputColumns(left.Columns(), right.Columns(), dropped, suffix)
	cols := make([]*series.Series, len(kept))
	for i, rc := range kept {
		c, _ := right.Column(rc.Source)
		cols[i] = c.Take(rows, x.engine.mem).Rename(rc.Name)
	}
	return cols
}

// coalesceKeys fills the left key columns of right-only outer join rows
// with the right key values.
func (x *execution) coalesceKeys(cols []*series.Series, leftOn []expr.Expr, rightKeys []*series.Series, rows joinRows) error {
	for k, e := range leftOn {
		c, ok := e.(*expr.ColumnExpr)
		if !ok {
			continue
		}
		for ci, col := range cols {
			if col.Name() != c.Name() {
				continue
			}
			b := series.NewBuilder(col.DType(), x.engine.mem)
			b.Reserve(col.Len())
			for i := range rows.left {
				if rows.left[i] >= 0 {
					b.AppendFrom(col, i)
					continue
				}
				v, _ := series.Cast(rightKeys[k].Value(rows.right[i]), col.DType())
				if err := b.Append(v); err != nil {
					return executionError("%s", err)
				}
			}
			cols[ci] = b.Finish(col.Name())
		}
	}
	return nil
}
