package lazybridge

import (
	"context"
	stderrors "errors"
	"math"
	"reflect"

	"github.com/paveg/lazybridge/internal/coerce"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/plan"
	"github.com/paveg/lazybridge/internal/validation"
)

// DefaultJoinSuffix is appended to right-hand column names that collide with
// left-hand ones.
const DefaultJoinSuffix = "_right"

// LazyFrame is an immutable, unexecuted query plan. Every method returns a
// new LazyFrame and leaves the receiver unchanged, so a LazyFrame can be
// shared and reused freely.
type LazyFrame struct {
	node     *plan.Node
	executor Executor
}

// Scan starts a plan that reads df under name
func Scan(name string, df *DataFrame) *LazyFrame {
	return &LazyFrame{node: plan.Scan(name, df.df)}
}

// WithExecutor returns the same plan collected by ex instead of the default
// engine.
func (lf *LazyFrame) WithExecutor(ex Executor) *LazyFrame {
	return &LazyFrame{node: lf.node, executor: ex}
}

func (lf *LazyFrame) derive(n *plan.Node) *LazyFrame {
	return &LazyFrame{node: n, executor: lf.executor}
}

func (lf *LazyFrame) engine() Executor {
	if lf.executor != nil {
		return lf.executor
	}
	return currentEngine()
}

// arg coerces one host argument and tags a failure with op
func arg[T any](op, param string, fn coerce.Func[T], v any) (T, error) {
	out, err := fn(param, v)
	if err != nil {
		var zero T
		var e *errors.Error
		if stderrors.As(err, &e) && e.Op != "" {
			return zero, err
		}
		return zero, errors.Annotate(err, op)
	}
	return out, nil
}

// selectorArgs lets variadic selector methods take either the selectors
// themselves or a single sequence of them.
func selectorArgs(args []any) any {
	if len(args) == 1 {
		if _, isString := args[0].(string); !isString && args[0] != nil {
			if k := reflect.TypeOf(args[0]).Kind(); k == reflect.Slice || k == reflect.Array {
				return args[0]
			}
		}
	}
	return args
}

// Reductions

func (lf *LazyFrame) reduce(agg expr.AggregationType) *LazyFrame {
	return lf.derive(plan.Reduce(lf.node, plan.ReduceSpec{Agg: agg}))
}

// First collapses every column to its first value
func (lf *LazyFrame) First() *LazyFrame { return lf.reduce(expr.AggFirst) }

// Last collapses every column to its last value
func (lf *LazyFrame) Last() *LazyFrame { return lf.reduce(expr.AggLast) }

// Max collapses every column to its maximum, ignoring nulls and NaN
func (lf *LazyFrame) Max() *LazyFrame { return lf.reduce(expr.AggMax) }

// Min collapses every column to its minimum, ignoring nulls and NaN
func (lf *LazyFrame) Min() *LazyFrame { return lf.reduce(expr.AggMin) }

// Mean collapses every column to its mean
func (lf *LazyFrame) Mean() *LazyFrame { return lf.reduce(expr.AggMean) }

// Median collapses every column to its median
func (lf *LazyFrame) Median() *LazyFrame { return lf.reduce(expr.AggMedian) }

// Sum collapses every column to its sum
func (lf *LazyFrame) Sum() *LazyFrame { return lf.reduce(expr.AggSum) }

// Std collapses every column to its standard deviation with divisor
// N - ddof.
func (lf *LazyFrame) Std(ddof any) (*LazyFrame, error) {
	d, err := arg("std", "ddof", coerce.Uint8, ddof)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Reduce(lf.node, plan.ReduceSpec{Agg: expr.AggStd, Ddof: d})), nil
}

// Var collapses every column to its variance with divisor N - ddof
func (lf *LazyFrame) Var(ddof any) (*LazyFrame, error) {
	d, err := arg("var", "ddof", coerce.Uint8, ddof)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Reduce(lf.node, plan.ReduceSpec{Agg: expr.AggVar, Ddof: d})), nil
}

// Quantile collapses every column to its q-th quantile. q is a number or a
// scalar expression evaluated at collect time; interpolation is one of
// nearest (default), lower, higher, midpoint or linear.
func (lf *LazyFrame) Quantile(q, interpolation any) (*LazyFrame, error) {
	qe, err := arg("quantile", "quantile", coerce.LitExpr, q)
	if err != nil {
		return nil, err
	}
	interp, err := arg("quantile", "interpolation", coerce.Optional(coerce.Enum(expr.Interpolations)), interpolation)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Reduce(lf.node, plan.ReduceSpec{
		Agg:           expr.AggQuantile,
		Quantile:      qe,
		Interpolation: coerce.Or(interp, expr.InterpolationNearest),
	})), nil
}

// Row operations

// Shift moves values down by periods rows (up when negative), leaving nulls
// in the vacated cells.
func (lf *LazyFrame) Shift(periods any) (*LazyFrame, error) {
	p, err := arg("shift", "periods", coerce.Int64, periods)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Shift(lf.node, p, nil)), nil
}

// ShiftAndFill is Shift with the vacated cells set to fill
func (lf *LazyFrame) ShiftAndFill(fill, periods any) (*LazyFrame, error) {
	f, err := arg("shift_and_fill", "fill_value", coerce.LitExpr, fill)
	if err != nil {
		return nil, err
	}
	p, err := arg("shift_and_fill", "periods", coerce.Int64, periods)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Shift(lf.node, p, f)), nil
}

// Reverse reverses the row order
func (lf *LazyFrame) Reverse() *LazyFrame {
	return lf.derive(plan.Reverse(lf.node))
}

// Drop removes the named columns. Unknown names fail at collect time.
func (lf *LazyFrame) Drop(columns any) (*LazyFrame, error) {
	names, err := arg("drop", "columns", coerce.Slice(coerce.String), columns)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Drop(lf.node, names)), nil
}

// FillNaN replaces NaN in float columns with fill
func (lf *LazyFrame) FillNaN(fill any) (*LazyFrame, error) {
	f, err := arg("fill_nan", "fill_value", coerce.LitExpr, fill)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.FillNaN(lf.node, f)), nil
}

// FillNull replaces nulls with fill in every column fill converts to
func (lf *LazyFrame) FillNull(fill any) (*LazyFrame, error) {
	f, err := arg("fill_null", "fill_value", coerce.LitExpr, fill)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.FillNull(lf.node, f)), nil
}

// Slice keeps length rows from offset. A negative offset counts from the
// end; an absent length keeps every remaining row.
func (lf *LazyFrame) Slice(offset, length any) (*LazyFrame, error) {
	o, err := arg("slice", "offset", coerce.Int64, offset)
	if err != nil {
		return nil, err
	}
	l, err := arg("slice", "length", coerce.Optional(coerce.Uint32), length)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Slice(lf.node, o, coerce.Or(l, uint32(math.MaxUint32)))), nil
}

// Limit keeps the first n rows
func (lf *LazyFrame) Limit(n any) (*LazyFrame, error) {
	count, err := arg("limit", "n", coerce.Uint32, n)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Slice(lf.node, 0, count)), nil
}

// Tail keeps the last n rows
func (lf *LazyFrame) Tail(n any) (*LazyFrame, error) {
	count, err := arg("tail", "n", coerce.Uint32, n)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Slice(lf.node, -int64(count), count)), nil
}

// Filter keeps rows where predicate is true. Null counts as false.
func (lf *LazyFrame) Filter(predicate *Expr) *LazyFrame {
	return lf.derive(plan.Filter(lf.node, predicate.ToExpr()))
}

// DropNulls removes rows holding a null in any subset column, or in any
// column when subset is empty.
func (lf *LazyFrame) DropNulls(subset ...any) (*LazyFrame, error) {
	s, err := arg("drop_nulls", "subset", coerce.Selectors("drop_nulls"), selectorArgs(subset))
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.DropNulls(lf.node, s)), nil
}

// Unique removes duplicate rows over subset (every column when absent or
// empty). keep is first (default), last, any or none; none removes every row
// of a duplicated key.
func (lf *LazyFrame) Unique(subset, keep any) (*LazyFrame, error) {
	s, err := arg("unique", "subset", coerce.Optional(coerce.Selectors("unique")), subset)
	if err != nil {
		return nil, err
	}
	k, err := arg("unique", "keep", coerce.Optional(coerce.Enum(plan.UniqueKeeps)), keep)
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Unique(lf.node, coerce.Or(s, nil), coerce.Or(k, plan.KeepFirst))), nil
}

// Projection

// Select projects exactly the given expressions, in order
func (lf *LazyFrame) Select(exprs ...any) (*LazyFrame, error) {
	es, err := arg("select", "exprs", coerce.Selectors("select"), selectorArgs(exprs))
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.Select(lf.node, es)), nil
}

// WithColumns adds or replaces columns, keeping all others untouched
func (lf *LazyFrame) WithColumns(exprs ...any) (*LazyFrame, error) {
	es, err := arg("with_columns", "exprs", coerce.Selectors("with_columns"), selectorArgs(exprs))
	if err != nil {
		return nil, err
	}
	return lf.derive(plan.WithColumns(lf.node, es)), nil
}

// WithColumn adds or replaces a single column
func (lf *LazyFrame) WithColumn(e *Expr) *LazyFrame {
	return lf.derive(plan.WithColumns(lf.node, []expr.Expr{e.ToExpr()}))
}

// SortByExprs sorts by each key in turn. descending holds one flag per key;
// nullsLast applies to every key.
func (lf *LazyFrame) SortByExprs(by, descending, nullsLast any) (*LazyFrame, error) {
	keys, err := arg("sort_by_exprs", "by", coerce.Selectors("sort_by_exprs"), by)
	if err != nil {
		return nil, err
	}
	desc, err := arg("sort_by_exprs", "descending", coerce.Slice(coerce.Bool), descending)
	if err != nil {
		return nil, err
	}
	nl, err := arg("sort_by_exprs", "nulls_last", coerce.Bool, nullsLast)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateLength("sort_by_exprs", "by", len(keys), "descending", len(desc)); err != nil {
		return nil, err
	}
	return lf.derive(plan.Sort(lf.node, plan.SortSpec{By: keys, Descending: desc, NullsLast: nl})), nil
}

// GroupBy starts a grouping over keys. maintainOrder (default false) keeps
// groups in order of first appearance.
func (lf *LazyFrame) GroupBy(keys, maintainOrder any) (*LazyGroupBy, error) {
	ks, err := arg("groupby", "by", coerce.Selectors("groupby"), keys)
	if err != nil {
		return nil, err
	}
	mo, err := arg("groupby", "maintain_order", coerce.Optional(coerce.Bool), maintainOrder)
	if err != nil {
		return nil, err
	}
	return &LazyGroupBy{lf: lf, keys: ks, maintainOrder: coerce.Or(mo, false)}, nil
}

// Joins

// Join joins other on equal keys. how is inner, left, outer, semi, anti,
// cross or asof; asof takes a single key per side and matches backward.
// Absent optional arguments take defaults: how inner, suffix "_right",
// allowParallel true, forceParallel false. Absent keys are only valid for
// cross joins.
func (lf *LazyFrame) Join(other, leftOn, rightOn, how, suffix, allowParallel, forceParallel any) (*LazyFrame, error) {
	const op = "join"
	right, err := arg(op, "other", coerce.Handle[*LazyFrame]("a LazyFrame"), other)
	if err != nil {
		return nil, err
	}
	if right == nil {
		return nil, errors.Annotate(errors.NewCoercionError("other", "a LazyFrame", nil), op)
	}
	lo, err := arg(op, "left_on", coerce.Optional(coerce.Selectors(op)), leftOn)
	if err != nil {
		return nil, err
	}
	ro, err := arg(op, "right_on", coerce.Optional(coerce.Selectors(op)), rightOn)
	if err != nil {
		return nil, err
	}
	hw, err := arg(op, "how", coerce.Optional(coerce.Enum(plan.JoinTypes)), how)
	if err != nil {
		return nil, err
	}
	sfx, err := arg(op, "suffix", coerce.Optional(coerce.String), suffix)
	if err != nil {
		return nil, err
	}
	ap, err := arg(op, "allow_parallel", coerce.Optional(coerce.Bool), allowParallel)
	if err != nil {
		return nil, err
	}
	fp, err := arg(op, "force_parallel", coerce.Optional(coerce.Bool), forceParallel)
	if err != nil {
		return nil, err
	}

	leftKeys, rightKeys := coerce.Or(lo, nil), coerce.Or(ro, nil)
	if err := validation.NewLengthValidator(op, "left_on", len(leftKeys), "right_on", len(rightKeys)).Validate(); err != nil {
		return nil, err
	}
	h := coerce.Or(hw, plan.JoinInner)
	switch {
	case h == plan.JoinCross && len(leftKeys) > 0:
		return nil, errors.NewPlanError(op, "cross joins take no join keys")
	case h != plan.JoinCross && len(leftKeys) == 0:
		return nil, errors.NewPlanError(op, "join requires at least one key per side")
	case h == plan.JoinAsOf && len(leftKeys) != 1:
		return nil, errors.NewPlanError(op, "asof joins take exactly one key per side")
	}

	// An empty suffix would make overlapping right columns collide.
	suffixStr := coerce.Or(sfx, DefaultJoinSuffix)
	if suffixStr == "" {
		suffixStr = DefaultJoinSuffix
	}
	if h == plan.JoinAsOf {
		return lf.derive(plan.AsOf(lf.node, right.node, &plan.AsOfSpec{
			LeftOn:        leftKeys[0],
			RightOn:       rightKeys[0],
			Strategy:      plan.AsOfBackward,
			Suffix:        suffixStr,
			AllowParallel: coerce.Or(ap, true),
			ForceParallel: coerce.Or(fp, false),
		})), nil
	}
	return lf.derive(plan.Join(lf.node, right.node, &plan.JoinSpec{
		How:           h,
		LeftOn:        leftKeys,
		RightOn:       rightKeys,
		Suffix:        suffixStr,
		AllowParallel: coerce.Or(ap, true),
		ForceParallel: coerce.Or(fp, false),
	})), nil
}

// JoinAsOf matches every row with the right row nearest to it by key.
// Absent optional arguments take defaults: no by columns, allowParallel
// true, forceParallel false, suffix "_right", strategy backward, no
// tolerance. tolerance and toleranceStr are mutually exclusive.
func (lf *LazyFrame) JoinAsOf(
	other, leftOn, rightOn, leftBy, rightBy,
	allowParallel, forceParallel, suffix, strategy,
	tolerance, toleranceStr any,
) (*LazyFrame, error) {
	const op = "join_asof"
	right, err := arg(op, "other", coerce.Handle[*LazyFrame]("a LazyFrame"), other)
	if err != nil {
		return nil, err
	}
	if right == nil {
		return nil, errors.Annotate(errors.NewCoercionError("other", "a LazyFrame", nil), op)
	}
	lo, err := arg(op, "left_on", coerce.Selector(op), leftOn)
	if err != nil {
		return nil, err
	}
	ro, err := arg(op, "right_on", coerce.Selector(op), rightOn)
	if err != nil {
		return nil, err
	}
	lb, err := arg(op, "left_by", coerce.Optional(coerce.Slice(coerce.String)), leftBy)
	if err != nil {
		return nil, err
	}
	rb, err := arg(op, "right_by", coerce.Optional(coerce.Slice(coerce.String)), rightBy)
	if err != nil {
		return nil, err
	}
	ap, err := arg(op, "allow_parallel", coerce.Optional(coerce.Bool), allowParallel)
	if err != nil {
		return nil, err
	}
	fp, err := arg(op, "force_parallel", coerce.Optional(coerce.Bool), forceParallel)
	if err != nil {
		return nil, err
	}
	sfx, err := arg(op, "suffix", coerce.Optional(coerce.String), suffix)
	if err != nil {
		return nil, err
	}
	strat, err := arg(op, "strategy", coerce.Optional(coerce.Enum(plan.AsOfStrategies)), strategy)
	if err != nil {
		return nil, err
	}
	tol, err := arg(op, "tolerance", coerce.Optional(numericLiteral), tolerance)
	if err != nil {
		return nil, err
	}
	tolStr, err := arg(op, "tolerance_str", coerce.Optional(coerce.String), toleranceStr)
	if err != nil {
		return nil, err
	}

	checks := []validation.Validator{
		validation.NewExclusiveValidator(op).
			Param("tolerance", tol != nil).
			Param("tolerance_str", tolStr != nil),
	}
	if lb != nil && rb != nil {
		checks = append(checks, validation.NewLengthValidator(op, "left_by", len(*lb), "right_by", len(*rb)))
	}
	if err := validation.NewCompoundValidator(checks...).Validate(); err != nil {
		return nil, err
	}

	spec := &plan.AsOfSpec{
		LeftOn:        lo,
		RightOn:       ro,
		Strategy:      coerce.Or(strat, plan.AsOfBackward),
		Suffix:        coerce.Or(sfx, DefaultJoinSuffix),
		AllowParallel: coerce.Or(ap, true),
		ForceParallel: coerce.Or(fp, false),
	}
	if lb != nil {
		spec.LeftBy = *lb
	}
	if rb != nil {
		spec.RightBy = *rb
	}
	if tol != nil {
		spec.Tolerance = *tol
	}
	if tolStr != nil {
		d, err := arg(op, "tolerance_str", coerce.Duration, *tolStr)
		if err != nil {
			return nil, err
		}
		spec.ToleranceStr, spec.ToleranceDur = *tolStr, d
	}
	return lf.derive(plan.AsOf(lf.node, right.node, spec)), nil
}

// numericLiteral accepts a number, or a literal expression holding one
func numericLiteral(param string, v any) (any, error) {
	lit, err := coerce.Literal(param, v)
	if err != nil {
		return nil, err
	}
	switch lit.(type) {
	case int64, float64:
		return lit, nil
	}
	return nil, errors.NewCoercionError(param, "a numeric literal", v)
}

// Diagnostics

// DescribePlan renders the unoptimized plan, root first
func (lf *LazyFrame) DescribePlan() string {
	return plan.Describe(lf.node)
}

func (lf *LazyFrame) String() string {
	return lf.DescribePlan()
}

// DescribeOptimizedPlan resolves and optimizes the plan and renders the
// result. Resolution and optimizer failures are execution errors.
func (lf *LazyFrame) DescribeOptimizedPlan() (string, error) {
	optimized, err := lf.engine().Optimize(lf.node)
	if err != nil {
		if errors.KindOf(err) == errors.KindExecution {
			return "", err
		}
		return "", &errors.Error{
			Kind:    errors.KindExecution,
			Op:      "describe_optimized_plan",
			Message: "optimization failed",
			Cause:   err,
		}
	}
	return plan.Describe(optimized), nil
}

// DebugPlan renders the raw plan as an indented JSON tree
func (lf *LazyFrame) DebugPlan() (string, error) {
	out, err := plan.Debug(lf.node).RenderJSON()
	if err != nil {
		return "", &errors.Error{Kind: errors.KindExecution, Op: "debug_plan", Message: "rendering plan", Cause: err}
	}
	return string(out), nil
}

// Execution

// Collect executes the plan and returns the materialised result
func (lf *LazyFrame) Collect() (*DataFrame, error) {
	return lf.CollectContext(context.Background())
}

// CollectContext executes the plan, stopping early when ctx is done
func (lf *LazyFrame) CollectContext(ctx context.Context) (*DataFrame, error) {
	df, err := lf.engine().Collect(ctx, lf.node)
	if err != nil {
		return nil, translateCollectError("collect", err)
	}
	return &DataFrame{df: df}, nil
}
