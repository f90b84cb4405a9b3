package pipeline

import (
	"sort"

	"github.com/paveg/lazybridge"
	"github.com/paveg/lazybridge/internal/coerce"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/validation"
)

type stepFunc func(b *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error)

var steps map[string]stepFunc

func init() {
	steps = map[string]stepFunc{
		"first":   noArgs("first", (*lazybridge.LazyFrame).First),
		"last":    noArgs("last", (*lazybridge.LazyFrame).Last),
		"max":     noArgs("max", (*lazybridge.LazyFrame).Max),
		"min":     noArgs("min", (*lazybridge.LazyFrame).Min),
		"mean":    noArgs("mean", (*lazybridge.LazyFrame).Mean),
		"median":  noArgs("median", (*lazybridge.LazyFrame).Median),
		"sum":     noArgs("sum", (*lazybridge.LazyFrame).Sum),
		"reverse": noArgs("reverse", (*lazybridge.LazyFrame).Reverse),

		"std":            ddofStep("std", (*lazybridge.LazyFrame).Std),
		"var":            ddofStep("var", (*lazybridge.LazyFrame).Var),
		"quantile":       quantileStep,
		"shift":          shiftStep,
		"shift_and_fill": shiftAndFillStep,
		"drop":           oneArg("drop", "columns", (*lazybridge.LazyFrame).Drop),
		"fill_nan":       oneArg("fill_nan", "fill_value", (*lazybridge.LazyFrame).FillNaN),
		"fill_null":      oneArg("fill_null", "fill_value", (*lazybridge.LazyFrame).FillNull),
		"slice":          sliceStep,
		"limit":          oneArg("limit", "n", (*lazybridge.LazyFrame).Limit),
		"tail":           oneArg("tail", "n", (*lazybridge.LazyFrame).Tail),
		"filter":         filterStep,
		"drop_nulls":     dropNullsStep,
		"unique":         uniqueStep,
		"select":         variadicStep("select", (*lazybridge.LazyFrame).Select),
		"with_columns":   variadicStep("with_columns", (*lazybridge.LazyFrame).WithColumns),
		"with_column":    withColumnStep,
		"sort_by_exprs":  sortStep,
		"groupby":        groupByStep,
		"join":           joinStep,
		"join_asof":      joinAsOfStep,
	}
}

// StepNames lists every step a pipeline can use, sorted
func StepNames() []string {
	names := make([]string, 0, len(steps))
	for name := range steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stepArgs holds the arguments of one step. A mapping supplies named
// arguments; any other value is the first parameter.
type stepArgs struct {
	step  string
	named map[string]any
}

func parseArgs(step string, raw any, params ...string) (*stepArgs, error) {
	a := &stepArgs{step: step, named: map[string]any{}}
	m, isMap := raw.(map[string]any)
	switch {
	case raw == nil:
	case isMap && !isExprSpec(m):
		for k, v := range m {
			if !contains(params, k) {
				return nil, errors.Annotate(errors.NewUnrecognizedOptionError("argument", k, params), step)
			}
			a.named[k] = v
		}
	case len(params) == 0:
		return nil, errors.Annotate(errors.NewCoercionError("arguments", "no arguments", raw), step)
	default:
		a.named[params[0]] = raw
	}
	return a, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (a *stepArgs) has(name string) bool {
	_, ok := a.named[name]
	return ok
}

// get returns the host value of an argument, nil when absent
func (a *stepArgs) get(name string) (any, error) {
	v, ok := a.named[name]
	if !ok {
		return nil, nil
	}
	hv, err := hostValue(name, v)
	return hv, errors.Annotate(err, a.step)
}

// getOr is get with a default for absent arguments
func (a *stepArgs) getOr(name string, def any) (any, error) {
	if !a.has(name) {
		return def, nil
	}
	return a.get(name)
}

func noArgs(step string, fn func(*lazybridge.LazyFrame) *lazybridge.LazyFrame) stepFunc {
	return func(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
		if _, err := parseArgs(step, raw); err != nil {
			return nil, err
		}
		return fn(lf), nil
	}
}

func oneArg(step, param string, fn func(*lazybridge.LazyFrame, any) (*lazybridge.LazyFrame, error)) stepFunc {
	return func(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
		a, err := parseArgs(step, raw, param)
		if err != nil {
			return nil, err
		}
		v, err := a.get(param)
		if err != nil {
			return nil, err
		}
		return fn(lf, v)
	}
}

func variadicStep(step string, fn func(*lazybridge.LazyFrame, ...any) (*lazybridge.LazyFrame, error)) stepFunc {
	return func(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
		a, err := parseArgs(step, raw, "exprs")
		if err != nil {
			return nil, err
		}
		v, err := a.get("exprs")
		if err != nil {
			return nil, err
		}
		if v == nil {
			return fn(lf)
		}
		return fn(lf, v)
	}
}

// ddof defaults to 1 when absent
func ddofStep(step string, fn func(*lazybridge.LazyFrame, any) (*lazybridge.LazyFrame, error)) stepFunc {
	return func(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
		a, err := parseArgs(step, raw, "ddof")
		if err != nil {
			return nil, err
		}
		ddof, err := a.getOr("ddof", 1)
		if err != nil {
			return nil, err
		}
		return fn(lf, ddof)
	}
}

func quantileStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("quantile", raw, "quantile", "interpolation")
	if err != nil {
		return nil, err
	}
	q, err := a.get("quantile")
	if err != nil {
		return nil, err
	}
	interp, err := a.get("interpolation")
	if err != nil {
		return nil, err
	}
	return lf.Quantile(q, interp)
}

func shiftStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("shift", raw, "periods")
	if err != nil {
		return nil, err
	}
	periods, err := a.getOr("periods", 1)
	if err != nil {
		return nil, err
	}
	return lf.Shift(periods)
}

func shiftAndFillStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("shift_and_fill", raw, "fill_value", "periods")
	if err != nil {
		return nil, err
	}
	fill, err := a.get("fill_value")
	if err != nil {
		return nil, err
	}
	periods, err := a.getOr("periods", 1)
	if err != nil {
		return nil, err
	}
	return lf.ShiftAndFill(fill, periods)
}

func sliceStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("slice", raw, "offset", "length")
	if err != nil {
		return nil, err
	}
	offset, err := a.get("offset")
	if err != nil {
		return nil, err
	}
	length, err := a.get("length")
	if err != nil {
		return nil, err
	}
	return lf.Slice(offset, length)
}

func filterStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("filter", raw, "predicate")
	if err != nil {
		return nil, err
	}
	pred, err := compileExpr("predicate", a.named["predicate"])
	if err != nil {
		return nil, errors.Annotate(err, "filter")
	}
	return lf.Filter(pred), nil
}

func withColumnStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("with_column", raw, "expr")
	if err != nil {
		return nil, err
	}
	e, err := compileExpr("expr", a.named["expr"])
	if err != nil {
		return nil, errors.Annotate(err, "with_column")
	}
	return lf.WithColumn(e), nil
}

func dropNullsStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("drop_nulls", raw, "subset")
	if err != nil {
		return nil, err
	}
	subset, err := a.get("subset")
	if err != nil {
		return nil, err
	}
	if subset == nil {
		return lf.DropNulls()
	}
	return lf.DropNulls(subset)
}

func uniqueStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("unique", raw, "subset", "keep")
	if err != nil {
		return nil, err
	}
	subset, err := a.get("subset")
	if err != nil {
		return nil, err
	}
	keep, err := a.get("keep")
	if err != nil {
		return nil, err
	}
	return lf.Unique(subset, keep)
}

// sortStep defaults descending to false for every key and nulls_last to false
func sortStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("sort_by_exprs", raw, "by", "descending", "nulls_last")
	if err != nil {
		return nil, err
	}
	by, err := a.get("by")
	if err != nil {
		return nil, err
	}
	if s, ok := by.(string); ok {
		by = []any{s}
	}
	var ascending []any
	if list, ok := by.([]any); ok {
		ascending = make([]any, len(list))
		for i := range list {
			ascending[i] = false
		}
	}
	desc, err := a.getOr("descending", ascending)
	if err != nil {
		return nil, err
	}
	nullsLast, err := a.getOr("nulls_last", false)
	if err != nil {
		return nil, err
	}
	return lf.SortByExprs(by, desc, nullsLast)
}

// groupByStep builds the grouping and finishes it with exactly one of agg,
// head and tail.
func groupByStep(_ *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	a, err := parseArgs("groupby", raw, "by", "maintain_order", "agg", "head", "tail")
	if err != nil {
		return nil, err
	}
	if err := validation.NewExclusiveValidator("groupby").
		Param("agg", a.has("agg")).
		Param("head", a.has("head")).
		Param("tail", a.has("tail")).
		Validate(); err != nil {
		return nil, err
	}
	if !a.has("agg") && !a.has("head") && !a.has("tail") {
		return nil, errors.NewConfigurationError("groupby", "one of agg, head and tail is required")
	}

	by, err := a.get("by")
	if err != nil {
		return nil, err
	}
	if s, ok := by.(string); ok {
		by = []any{s}
	}
	mo, err := a.get("maintain_order")
	if err != nil {
		return nil, err
	}
	g, err := lf.GroupBy(by, mo)
	if err != nil {
		return nil, err
	}

	switch {
	case a.has("head"):
		n, err := a.get("head")
		if err != nil {
			return nil, err
		}
		return g.Head(n)
	case a.has("tail"):
		n, err := a.get("tail")
		if err != nil {
			return nil, err
		}
		return g.Tail(n)
	}
	aggs, err := a.get("agg")
	if err != nil {
		return nil, err
	}
	return g.Agg(aggs)
}

// keys returns the on argument for both sides unless a side is given
func keys(a *stepArgs, side string) (any, error) {
	if a.has(side) {
		return a.get(side)
	}
	return a.get("on")
}

// asList wraps a single selector in a list
func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return []any{x}
	}
}

func joinStep(b *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	const op = "join"
	a, err := parseArgs(op, raw, "other", "on", "left_on", "right_on", "how", "suffix", "allow_parallel", "force_parallel")
	if err != nil {
		return nil, err
	}
	other, err := b.other(op, a)
	if err != nil {
		return nil, err
	}
	leftOn, err := keys(a, "left_on")
	if err != nil {
		return nil, err
	}
	rightOn, err := keys(a, "right_on")
	if err != nil {
		return nil, err
	}
	var opts [4]any
	for i, name := range []string{"how", "suffix", "allow_parallel", "force_parallel"} {
		if opts[i], err = a.get(name); err != nil {
			return nil, err
		}
	}
	return lf.Join(other, asList(leftOn), asList(rightOn), opts[0], opts[1], opts[2], opts[3])
}

func joinAsOfStep(b *Builder, lf *lazybridge.LazyFrame, raw any) (*lazybridge.LazyFrame, error) {
	const op = "join_asof"
	a, err := parseArgs(op, raw,
		"other", "on", "left_on", "right_on", "by", "left_by", "right_by",
		"allow_parallel", "force_parallel", "suffix", "strategy", "tolerance", "tolerance_str")
	if err != nil {
		return nil, err
	}
	other, err := b.other(op, a)
	if err != nil {
		return nil, err
	}

	var args [12]any
	args[0] = other
	names := []string{"left_on", "right_on", "left_by", "right_by",
		"allow_parallel", "force_parallel", "suffix", "strategy", "tolerance", "tolerance_str"}
	for i, name := range names {
		var v any
		switch name {
		case "left_on", "right_on":
			v, err = keys(a, name)
		case "left_by", "right_by":
			if a.has(name) {
				v, err = a.get(name)
			} else {
				v, err = a.get("by")
			}
		default:
			v, err = a.get(name)
		}
		if err != nil {
			return nil, err
		}
		args[i+1] = v
	}
	return lf.JoinAsOf(args[0], args[1], args[2], args[3], args[4],
		args[5], args[6], args[7], args[8], args[9], args[10])
}

// other resolves the right-hand input of a join: a source name, or a nested
// pipeline mapping with its own source and steps.
func (b *Builder) other(op string, a *stepArgs) (*lazybridge.LazyFrame, error) {
	v, ok := a.named["other"]
	if !ok {
		return nil, errors.Annotate(errors.NewCoercionError("other", "a source name or pipeline", nil), op)
	}
	switch x := v.(type) {
	case string:
		return b.scan(x)
	case map[string]any:
		p, err := nestedPipeline(x)
		if err != nil {
			return nil, errors.Annotate(err, op)
		}
		return b.chain(p)
	default:
		return nil, errors.Annotate(errors.NewCoercionError("other", "a source name or pipeline", v), op)
	}
}

func nestedPipeline(m map[string]any) (Pipeline, error) {
	var p Pipeline
	for k := range m {
		if k != "source" && k != "steps" {
			return p, errors.NewUnrecognizedOptionError("other", k, []string{"source", "steps"})
		}
	}
	src, err := coerce.String("other.source", m["source"])
	if err != nil {
		return p, err
	}
	p.Source = src
	if raw, ok := m["steps"]; ok && raw != nil {
		items, ok := raw.([]any)
		if !ok {
			return p, errors.NewCoercionError("other.steps", "a list of steps", raw)
		}
		for i, item := range items {
			step, ok := item.(map[string]any)
			if !ok {
				return p, errors.NewCoercionError("other.steps", "a step mapping", items[i])
			}
			p.Steps = append(p.Steps, step)
		}
	}
	return p, nil
}
