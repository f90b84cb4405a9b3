package engine

import (
	"cmp"
	"slices"

	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/plan"
	"github.com/paveg/lazybridge/internal/series"
)

// asOfKey is the native type as-of keys are compared in. Integer and
// timestamp keys compare exactly as int64; mixed numeric keys as float64.
type asOfKey interface {
	int64 | float64
}

// asOfSide is one side of an as-of join: the key column plus by columns
type asOfSide struct {
	key *series.Series
	by  *rowKeys
}

func (x *execution) asOf(left, right *dataframe.DataFrame, spec *plan.AsOfSpec) (*dataframe.DataFrame, error) {
	resolved := *spec
	resolved.LeftBy, resolved.RightBy = spec.ByColumns()
	if len(resolved.LeftBy) != len(resolved.RightBy) {
		return nil, executionError("left_by has %d columns but right_by has %d", len(resolved.LeftBy), len(resolved.RightBy))
	}

	l, err := x.asOfInput(left, &resolved, true)
	if err != nil {
		return nil, err
	}
	r, err := x.asOfInput(right, &resolved, false)
	if err != nil {
		return nil, err
	}
	if err := plan.CheckAsOfKeys(&resolved, l.key.DType(), r.key.DType()); err != nil {
		return nil, err
	}

	tolerance, hasTolerance := asOfTolerance(&resolved)
	var matches []int
	if exactKey(l.key.DType()) && exactKey(r.key.DType()) {
		matches, err = matchAsOf(x, l, r, (*series.Series).Int64, resolved.Strategy, tolerance, hasTolerance)
	} else {
		matches, err = matchAsOf(x, l, r, (*series.Series).Float64, resolved.Strategy, tolerance, hasTolerance)
	}
	if err != nil {
		return nil, err
	}

	cols := left.Series()
	cols = append(cols, x.takeRight(left, right, matches, plan.AsOfDroppedColumns(&resolved), resolved.Suffix)...)
	return dataframe.WithHeight(left.Len(), cols...)
}

func (x *execution) asOfInput(df *dataframe.DataFrame, spec *plan.AsOfSpec, isLeft bool) (asOfSide, error) {
	on, byNames := spec.RightOn, spec.RightBy
	if isLeft {
		on, byNames = spec.LeftOn, spec.LeftBy
	}
	key, err := x.eval.Evaluate(on, df, nil)
	if err != nil {
		return asOfSide{}, err
	}
	by := make([]*series.Series, len(byNames))
	for i, name := range byNames {
		c, ok := df.Column(name)
		if !ok {
			return asOfSide{}, executionError("by column %q not found", name)
		}
		by[i] = c
	}
	return asOfSide{key: x.eval.Broadcast(key, df.Len()), by: newRowKeys(by)}, nil
}

func exactKey(d series.DType) bool {
	return d == series.Int64 || d == series.Timestamp
}

// asOfTolerance returns the maximum key distance of a match. Duration
// tolerances are expressed in microseconds, the unit of timestamp keys.
func asOfTolerance(spec *plan.AsOfSpec) (float64, bool) {
	switch {
	case spec.ToleranceStr != "":
		return float64(spec.ToleranceDur.Microseconds()), true
	case spec.Tolerance != nil:
		switch t := spec.Tolerance.(type) {
		case int64:
			return float64(t), true
		case float64:
			return t, true
		}
	}
	return 0, false
}

// matchAsOf returns, for every left row, the matched right row or -1
func matchAsOf[K asOfKey](
	x *execution,
	left, right asOfSide,
	get func(*series.Series, int) (K, bool),
	strategy plan.AsOfStrategy,
	tolerance float64,
	hasTolerance bool,
) ([]int, error) {
	valid := func(s asOfSide, row int) (K, bool) {
		v, ok := get(s.key, row)
		if !ok || v != v || s.by.hasNull(row) {
			return 0, false
		}
		return v, true
	}

	// Group right rows by the by columns, each group ordered by key
	rightKeys := make([]K, right.key.Len())
	rows := make([]int, 0, right.key.Len())
	for r := range rightKeys {
		if v, ok := valid(right, r); ok {
			rightKeys[r] = v
			rows = append(rows, r)
		}
	}
	index, err := x.buildIndex(right.by, rows)
	if err != nil {
		return nil, err
	}
	groupKeys := make([][]K, index.len())
	for g := range groupKeys {
		members := index.rows(g)
		slices.SortStableFunc(members, func(a, b int) int {
			return cmp.Compare(rightKeys[a], rightKeys[b])
		})
		keys := make([]K, len(members))
		for i, r := range members {
			keys[i] = rightKeys[r]
		}
		groupKeys[g] = keys
	}

	t := x.newTicker()
	matches := make([]int, left.key.Len())
	for l := range matches {
		if err := t.tick(); err != nil {
			return nil, err
		}
		matches[l] = -1
		target, ok := valid(left, l)
		if !ok {
			continue
		}
		g, ok := index.lookup(left.by.encode(l))
		if !ok {
			continue
		}
		pos, ok := searchAsOf(groupKeys[g], target, strategy)
		if !ok {
			continue
		}
		if hasTolerance && distance(groupKeys[g][pos], target) > tolerance {
			continue
		}
		matches[l] = index.rows(g)[pos]
	}
	return matches, nil
}

// searchAsOf finds the position in ascending keys matched by target
func searchAsOf[K asOfKey](keys []K, target K, strategy plan.AsOfStrategy) (int, bool) {
	// first key > target; the backward candidate sits just before it
	upper, _ := slices.BinarySearchFunc(keys, target, func(k, t K) int {
		if k <= t {
			return -1
		}
		return 1
	})
	// first key >= target
	lower, _ := slices.BinarySearch(keys, target)

	backward, hasBackward := upper-1, upper > 0
	forward, hasForward := lower, lower < len(keys)

	switch strategy {
	case plan.AsOfBackward:
		return backward, hasBackward
	case plan.AsOfForward:
		return forward, hasForward
	default:
		switch {
		case !hasForward:
			return backward, hasBackward
		case !hasBackward:
			return forward, true
		case distance(keys[forward], target) < distance(keys[backward], target):
			return forward, true
		default:
			return backward, true
		}
	}
}

func distance[K asOfKey](a, b K) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}
