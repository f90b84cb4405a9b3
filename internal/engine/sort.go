package engine

import (
	"slices"

	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/plan"
)

// sort orders rows by each key in turn. The sort is stable; nulls go first
// unless NullsLast, regardless of direction.
func (x *execution) sort(in *dataframe.DataFrame, spec plan.SortSpec) (*dataframe.DataFrame, error) {
	if len(spec.By) == 0 {
		return in, nil
	}
	cols, err := x.keyColumns(in, spec.By)
	if err != nil {
		return nil, err
	}
	descending := func(i int) bool {
		switch {
		case i < len(spec.Descending):
			return spec.Descending[i]
		case len(spec.Descending) == 1:
			return spec.Descending[0]
		default:
			return false
		}
	}

	// Materialise key values once; comparisons run O(n log n) times
	values := make([][]any, len(cols))
	t := x.newTicker()
	for ci, c := range cols {
		values[ci] = make([]any, in.Len())
		for i := range values[ci] {
			if err := t.tick(); err != nil {
				return nil, err
			}
			values[ci][i] = c.Value(i)
		}
	}

	rows := allRows(in.Len())
	slices.SortStableFunc(rows, func(a, b int) int {
		for ci := range cols {
			if c := compareKeys(values[ci][a], values[ci][b], descending(ci), spec.NullsLast); c != 0 {
				return c
			}
		}
		return 0
	})
	if err := x.ctx.Err(); err != nil {
		return nil, err
	}
	return in.Take(rows, x.engine.mem), nil
}

func compareKeys(a, b any, descending, nullsLast bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if nullsLast {
			return 1
		}
		return -1
	case b == nil:
		if nullsLast {
			return -1
		}
		return 1
	}
	c := expr.CompareValues(a, b)
	if descending {
		return -c
	}
	return c
}
