package engine

import (
	"slices"

	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/plan"
)

// unique keeps one row per distinct subset key. Surviving rows keep their
// relative order.
func (x *execution) unique(in *dataframe.DataFrame, subset []expr.Expr, keep plan.UniqueKeep) (*dataframe.DataFrame, error) {
	cols, err := x.keyColumns(in, subset)
	if err != nil {
		return nil, err
	}
	ki, err := x.buildIndex(newRowKeys(cols), allRows(in.Len()))
	if err != nil {
		return nil, err
	}

	rows := make([]int, 0, ki.len())
	for g := 0; g < ki.len(); g++ {
		members := ki.rows(g)
		switch keep {
		case plan.KeepFirst, plan.KeepAny:
			rows = append(rows, members[0])
		case plan.KeepLast:
			rows = append(rows, members[len(members)-1])
		case plan.KeepNone:
			if len(members) == 1 {
				rows = append(rows, members[0])
			}
		}
	}
	slices.Sort(rows)
	return in.Take(rows, x.engine.mem), nil
}

// dropNulls removes rows with a null in any subset column
func (x *execution) dropNulls(in *dataframe.DataFrame, subset []expr.Expr) (*dataframe.DataFrame, error) {
	cols, err := x.keyColumns(in, subset)
	if err != nil {
		return nil, err
	}
	keys := newRowKeys(cols)

	t := x.newTicker()
	rows := make([]int, 0, in.Len())
	for i := 0; i < in.Len(); i++ {
		if err := t.tick(); err != nil {
			return nil, err
		}
		if !keys.hasNull(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) == in.Len() {
		return in, nil
	}
	return in.Take(rows, x.engine.mem), nil
}
