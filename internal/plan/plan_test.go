package plan

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/series"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func leftFrame(t *testing.T) *dataframe.DataFrame {
	t.Helper()
	mem := memory.NewGoAllocator()
	df, err := dataframe.New(
		series.New("a", []int64{1, 2, 3}, mem),
		series.New("b", []string{"x", "y", "z"}, mem),
	)
	require.NoError(t, err)
	return df
}

func rightFrame(t *testing.T) *dataframe.DataFrame {
	t.Helper()
	mem := memory.NewGoAllocator()
	df, err := dataframe.New(
		series.New("a", []int64{1, 3}, mem),
		series.New("v", []float64{0.5, 1.5}, mem),
	)
	require.NoError(t, err)
	return df
}

func chainPlan(t *testing.T) *Node {
	n := Scan("", leftFrame(t))
	n = Filter(n, expr.Binary(expr.Col("a"), expr.OpGt, expr.Lit(1)))
	n = WithColumns(n, []expr.Expr{expr.Alias(expr.Binary(expr.Col("a"), expr.OpMul, expr.Lit(2)), "c")})
	n = Sort(n, SortSpec{By: []expr.Expr{expr.Col("c")}, Descending: []bool{true}})
	return Slice(n, 0, 2)
}

func TestDescribe(t *testing.T) {
	g := newGolden(t)

	t.Run("chain", func(t *testing.T) {
		n := chainPlan(t)
		first := Describe(n)
		assert.Equal(t, first, Describe(n), "describe must be idempotent")
		g.Assert(t, "describe_chain", []byte(first))
	})

	t.Run("joins", func(t *testing.T) {
		left := Join(Scan("", leftFrame(t)), Scan("", rightFrame(t)), &JoinSpec{
			How:     JoinLeft,
			LeftOn:  []expr.Expr{expr.Col("a")},
			RightOn: []expr.Expr{expr.Col("a")},
			Suffix:  "_right",
		})
		n := AsOf(left, Scan("quotes", rightFrame(t)), &AsOfSpec{
			LeftOn:       expr.Col("t"),
			RightOn:      expr.Col("t"),
			LeftBy:       []string{"sym"},
			RightBy:      []string{"sym"},
			Strategy:     AsOfBackward,
			ToleranceStr: "2h",
			Suffix:       "_right",
		})
		g.Assert(t, "describe_joins", []byte(Describe(n)))
	})

	t.Run("groupby", func(t *testing.T) {
		n := Unique(Scan("", rightFrame(t)), []expr.Expr{expr.Col("a")}, KeepNone)
		n = DropNulls(n, nil)
		n = GroupBy(n, GroupBySpec{
			Keys:          []expr.Expr{expr.Col("a")},
			MaintainOrder: true,
			Aggs: []expr.Expr{
				expr.Sum(expr.Col("v")),
				expr.Alias(expr.Std(expr.Col("v"), 1), "sd"),
			},
		})
		g.Assert(t, "describe_groupby", []byte(Describe(n)))
	})
}

func TestDescribeHeadlines(t *testing.T) {
	scan := Scan("", leftFrame(t))
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"slice to end", Slice(scan, -2, math.MaxUint32), "SLICE offset=-2 length=end"},
		{"shift", Shift(scan, 2, nil), "SHIFT periods=2"},
		{"shift and fill", Shift(scan, -1, expr.Lit(0)), "SHIFT periods=-1 fill=lit(0)"},
		{"reverse", Reverse(scan), "REVERSE"},
		{"fill nan", FillNaN(scan, expr.Lit(0.0)), "FILL_NAN lit(0)"},
		{"drop", Drop(scan, []string{"b"}), `DROP ["b"]`},
		{"std", Reduce(scan, ReduceSpec{Agg: expr.AggStd, Ddof: 1}), "REDUCE std(ddof=1)"},
		{"quantile", Reduce(scan, ReduceSpec{Agg: expr.AggQuantile, Quantile: expr.Lit(0.5), Interpolation: expr.InterpolationMidpoint}),
			"REDUCE quantile(lit(0.5), interpolation=midpoint)"},
		{"head", GroupBy(scan, GroupBySpec{Keys: []expr.Expr{expr.Col("b")}, Mode: GroupHead, N: 2}),
			`AGGREGATE head(2) BY [col("b")] maintain_order=false`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, headline(tt.node))
		})
	}
}

func TestDebug(t *testing.T) {
	left := Scan("", leftFrame(t))
	n := Join(Filter(left, expr.Lit(true)), Scan("", rightFrame(t)), &JoinSpec{
		How:           JoinInner,
		LeftOn:        []expr.Expr{expr.Col("a")},
		RightOn:       []expr.Expr{expr.Col("a")},
		Suffix:        "_right",
		AllowParallel: true,
	})

	dbg := Debug(n)
	assert.Equal(t, "node_1", dbg.ID)
	assert.Equal(t, "join", dbg.Type)
	assert.Equal(t, "inner", dbg.Properties["how"])
	assert.Equal(t, "true", dbg.Properties["allow_parallel"])
	require.Len(t, dbg.Children, 2)
	assert.Equal(t, "filter", dbg.Children[0].Type)
	assert.Equal(t, "node_3", dbg.Children[0].Children[0].ID)
	assert.Equal(t, "node_4", dbg.Children[1].ID)
	assert.Equal(t, "3", dbg.Children[0].Children[0].Properties["rows"])

	out, err := dbg.RenderJSON()
	require.NoError(t, err)
	var decoded PlanNode
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, *dbg.Children[1], *decoded.Children[1])
}

func requireKind(t *testing.T, err error, kind errors.Kind, op string) {
	t.Helper()
	require.Error(t, err)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, kind, e.Kind)
	assert.Equal(t, op, e.Op)
}

func TestResolve(t *testing.T) {
	scan := Scan("", leftFrame(t))

	t.Run("select", func(t *testing.T) {
		s, err := Resolve(Select(scan, []expr.Expr{expr.Col("b"), expr.Alias(expr.Col("a"), "x")}))
		require.NoError(t, err)
		assert.Equal(t, Schema{{Name: "b", DType: series.String}, {Name: "x", DType: series.Int64}}, s)
	})

	t.Run("select duplicate", func(t *testing.T) {
		_, err := Resolve(Select(scan, []expr.Expr{expr.Col("a"), expr.Col("a")}))
		requireKind(t, err, errors.KindExecution, "select")
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := Resolve(Filter(scan, expr.Binary(expr.Col("zz"), expr.OpGt, expr.Lit(1))))
		requireKind(t, err, errors.KindExecution, "filter")
		var e *errors.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "zz", e.Column)
	})

	t.Run("non-boolean predicate", func(t *testing.T) {
		_, err := Resolve(Filter(scan, expr.Col("a")))
		requireKind(t, err, errors.KindExecution, "filter")
	})

	t.Run("with_columns replaces in place", func(t *testing.T) {
		s, err := Resolve(WithColumns(scan, []expr.Expr{
			expr.Alias(expr.Binary(expr.Col("a"), expr.OpDiv, expr.Lit(2)), "a"),
			expr.Alias(expr.Lit(true), "flag"),
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "flag"}, s.Columns())
		dt, _ := s.Lookup("a")
		assert.Equal(t, series.Float64, dt)
	})

	t.Run("reduce types", func(t *testing.T) {
		s, err := Resolve(Reduce(scan, ReduceSpec{Agg: expr.AggMean}))
		require.NoError(t, err)
		assert.Equal(t, Schema{{Name: "a", DType: series.Float64}, {Name: "b", DType: series.Float64}}, s)
	})

	t.Run("groupby agg", func(t *testing.T) {
		s, err := Resolve(GroupBy(scan, GroupBySpec{
			Keys: []expr.Expr{expr.Col("b")},
			Aggs: []expr.Expr{expr.Sum(expr.Col("a")), expr.Alias(expr.Count(expr.Col("a")), "n")},
		}))
		require.NoError(t, err)
		assert.Equal(t, Schema{
			{Name: "b", DType: series.String},
			{Name: "a", DType: series.Int64},
			{Name: "n", DType: series.Int64},
		}, s)
	})

	t.Run("groupby tail keeps remaining columns", func(t *testing.T) {
		s, err := Resolve(GroupBy(scan, GroupBySpec{Keys: []expr.Expr{expr.Col("b")}, Mode: GroupTail, N: 1}))
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, s.Columns())
	})

	t.Run("join suffix", func(t *testing.T) {
		right := Scan("", leftFrame(t))
		s, err := Resolve(Join(scan, right, &JoinSpec{
			How:     JoinInner,
			LeftOn:  []expr.Expr{expr.Col("a")},
			RightOn: []expr.Expr{expr.Col("a")},
			Suffix:  "_r",
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "b_r"}, s.Columns())
	})

	t.Run("join key type mismatch", func(t *testing.T) {
		_, err := Resolve(Join(scan, Scan("", leftFrame(t)), &JoinSpec{
			How:     JoinInner,
			LeftOn:  []expr.Expr{expr.Col("a")},
			RightOn: []expr.Expr{expr.Col("b")},
		}))
		requireKind(t, err, errors.KindExecution, "join")
	})

	t.Run("semi keeps left schema", func(t *testing.T) {
		s, err := Resolve(Join(scan, Scan("", rightFrame(t)), &JoinSpec{
			How:     JoinSemi,
			LeftOn:  []expr.Expr{expr.Col("a")},
			RightOn: []expr.Expr{expr.Col("a")},
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, s.Columns())
	})

	t.Run("cross keeps both keys", func(t *testing.T) {
		s, err := Resolve(Join(scan, Scan("", rightFrame(t)), &JoinSpec{How: JoinCross, Suffix: "_right"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "a_right", "v"}, s.Columns())
	})
}

func TestResolveAsOf(t *testing.T) {
	left := Scan("", leftFrame(t))
	right := Scan("", rightFrame(t))

	s, err := Resolve(AsOf(left, right, &AsOfSpec{LeftOn: expr.Col("a"), RightOn: expr.Col("a"), Suffix: "_right"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "v"}, s.Columns())

	_, err = Resolve(AsOf(left, right, &AsOfSpec{LeftOn: expr.Col("b"), RightOn: expr.Col("a")}))
	requireKind(t, err, errors.KindExecution, "join_asof")

	_, err = Resolve(AsOf(left, right, &AsOfSpec{LeftOn: expr.Col("a"), RightOn: expr.Col("a"), ToleranceStr: "2h"}))
	requireKind(t, err, errors.KindExecution, "join_asof")
	assert.Contains(t, err.Error(), "requires datetime keys")

	_, err = Resolve(AsOf(left, right, &AsOfSpec{LeftOn: expr.Col("a"), RightOn: expr.Col("v")}))
	require.NoError(t, err)

	_, err = Resolve(AsOf(left, right, &AsOfSpec{
		LeftOn: expr.Col("a"), RightOn: expr.Col("a"),
		LeftBy: []string{"b"}, RightBy: []string{"missing"},
	}))
	requireKind(t, err, errors.KindExecution, "join_asof")
}

func TestAsOfDroppedColumns(t *testing.T) {
	spec := &AsOfSpec{
		LeftOn:  expr.Col("t"),
		RightOn: expr.Col("t"),
		LeftBy:  []string{"sym", "venue"},
		RightBy: []string{"sym", "exchange"},
	}
	assert.Equal(t, map[string]bool{"t": true, "sym": true}, AsOfDroppedColumns(spec))

	spec.RightOn = expr.Col("ts")
	assert.Equal(t, map[string]bool{"sym": true}, AsOfDroppedColumns(spec))
}

func TestOptimizer(t *testing.T) {
	all := OptimizerOptions{FilterFusion: true, PredicatePushdown: true, SliceFusion: true}
	scan := Scan("", leftFrame(t))
	gt := func(v int) expr.Expr { return expr.Binary(expr.Col("a"), expr.OpGt, expr.Lit(v)) }

	t.Run("filter fusion", func(t *testing.T) {
		n := Filter(Filter(scan, gt(1)), gt(2))
		out, applied, err := NewQueryOptimizer(all).Optimize(n)
		require.NoError(t, err)
		assert.Equal(t, []string{"FilterFusion"}, applied)
		assert.Equal(t, KindFilter, out.Kind)
		assert.Equal(t, KindScan, out.Input.Kind)
		assert.Equal(t, `[([(col("a")) > (lit(1))]) & ([(col("a")) > (lit(2))])]`, out.Predicate.String())
	})

	t.Run("pushdown through sort then fusion", func(t *testing.T) {
		sorted := Sort(Filter(scan, gt(1)), SortSpec{By: []expr.Expr{expr.Col("a")}, Descending: []bool{false}})
		n := Filter(sorted, gt(2))
		out, applied, err := NewQueryOptimizer(all).Optimize(n)
		require.NoError(t, err)
		assert.Equal(t, []string{"PredicatePushdown", "FilterFusion"}, applied)
		require.Equal(t, KindSort, out.Kind)
		assert.Equal(t, KindFilter, out.Input.Kind)
		assert.Equal(t, KindScan, out.Input.Input.Kind)
	})

	t.Run("no pushdown past produced column", func(t *testing.T) {
		wc := WithColumns(scan, []expr.Expr{expr.Alias(expr.Lit(1), "a")})
		n := Filter(wc, gt(0))
		out, applied, err := NewQueryOptimizer(all).Optimize(n)
		require.NoError(t, err)
		assert.Empty(t, applied)
		assert.Same(t, n, out)
	})

	t.Run("no pushdown past aggregation", func(t *testing.T) {
		wc := WithColumns(scan, []expr.Expr{expr.Alias(expr.Sum(expr.Col("a")), "total")})
		out, _, err := NewQueryOptimizer(all).Optimize(Filter(wc, gt(0)))
		require.NoError(t, err)
		assert.Equal(t, KindFilter, out.Kind)
	})

	t.Run("slice fusion", func(t *testing.T) {
		n := Slice(Slice(scan, 1, 10), 2, 5)
		out, applied, err := NewQueryOptimizer(all).Optimize(n)
		require.NoError(t, err)
		assert.Equal(t, []string{"SliceFusion"}, applied)
		assert.Equal(t, SliceSpec{Offset: 3, Length: 5}, out.Slice)

		out, _, err = NewQueryOptimizer(all).Optimize(Slice(Slice(scan, 0, 2), 3, 5))
		require.NoError(t, err)
		assert.Equal(t, SliceSpec{Offset: 3, Length: 0}, out.Slice)

		neg := Slice(Slice(scan, -2, 2), 0, 1)
		out, _, err = NewQueryOptimizer(all).Optimize(neg)
		require.NoError(t, err)
		assert.Same(t, neg, out)
	})

	t.Run("disabled rules", func(t *testing.T) {
		n := Filter(Filter(scan, gt(1)), gt(2))
		out, applied, err := NewQueryOptimizer(OptimizerOptions{}).Optimize(n)
		require.NoError(t, err)
		assert.Empty(t, applied)
		assert.Same(t, n, out)
	})

	t.Run("input plan untouched", func(t *testing.T) {
		n := Filter(Filter(scan, gt(1)), gt(2))
		before := Describe(n)
		_, _, err := NewQueryOptimizer(all).Optimize(n)
		require.NoError(t, err)
		assert.Equal(t, before, Describe(n))
	})

	t.Run("resolution errors surface", func(t *testing.T) {
		_, _, err := NewQueryOptimizer(all).Optimize(Select(scan, []expr.Expr{expr.Col("nope")}))
		requireKind(t, err, errors.KindExecution, "select")
	})
}

func TestEstimateRows(t *testing.T) {
	scan := Scan("", leftFrame(t))
	right := Scan("", rightFrame(t))

	assert.Equal(t, 3, EstimateRows(scan))
	assert.Equal(t, 1, EstimateRows(Filter(scan, expr.Lit(true))))
	assert.Equal(t, 2, EstimateRows(Slice(scan, 0, 2)))
	assert.Equal(t, 1, EstimateRows(Reduce(scan, ReduceSpec{Agg: expr.AggSum})))
	assert.Equal(t, 6, EstimateRows(Join(scan, right, &JoinSpec{How: JoinCross})))
	assert.Equal(t, 3, EstimateRows(Join(scan, right, &JoinSpec{How: JoinInner})))
}

func TestEnumNames(t *testing.T) {
	assert.Equal(t, "join_asof", KindAsOf.String())
	assert.Equal(t, "outer", JoinOuter.String())
	assert.Equal(t, "nearest", AsOfNearest.String())
	assert.Equal(t, "none", KeepNone.String())
	assert.Equal(t, []string{"first", "last", "any", "none"}, UniqueKeeps.Names())
}
