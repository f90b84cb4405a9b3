package plan

import (
	"fmt"

	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/series"
	"github.com/paveg/lazybridge/internal/validation"
)

// Field is a named, typed output column
type Field struct {
	Name  string       `json:"name"`
	DType series.DType `json:"-"`
}

// Schema is the ordered output columns of a node
type Schema []Field

// Lookup returns the dtype of the named column
func (s Schema) Lookup(name string) (series.DType, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.DType, true
		}
	}
	return series.Null, false
}

// HasColumn reports whether the schema has the named column
func (s Schema) HasColumn(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Columns returns the column names in order
func (s Schema) Columns() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// SchemaOf returns the schema of a materialised frame
func SchemaOf(cols []*series.Series) Schema {
	s := make(Schema, len(cols))
	for i, c := range cols {
		s[i] = Field{Name: c.Name(), DType: c.DType()}
	}
	return s
}

// RightColumn maps a kept right-hand column to its output name
type RightColumn struct {
	Source string
	Name   string
}

// RightOutputColumns returns the right-hand columns a join keeps, skipping
// dropped names and suffixing names that collide with the left side.
func RightOutputColumns(left, right []string, dropped map[string]bool, suffix string) []RightColumn {
	taken := make(map[string]bool, len(left)+len(right))
	for _, name := range left {
		taken[name] = true
	}
	var out []RightColumn
	for _, name := range right {
		if dropped[name] {
			continue
		}
		outName := name
		if taken[outName] {
			outName = name + suffix
		}
		taken[outName] = true
		out = append(out, RightColumn{Source: name, Name: outName})
	}
	return out
}

// Resolve computes the output schema of n, reporting missing columns, type
// errors and duplicate names as execution errors tagged with the failing
// operation.
func Resolve(n *Node) (Schema, error) {
	if n.Kind == KindScan {
		return SchemaOf(n.Source.Frame.Series()), nil
	}

	in, err := Resolve(n.Input)
	if err != nil {
		return nil, err
	}
	op := n.Kind.String()
	annotate := func(err error) error { return errors.Annotate(err, op) }

	switch n.Kind {
	case KindSelect:
		out := make(Schema, 0, len(n.Exprs))
		for _, e := range n.Exprs {
			dt, err := expr.ResolveType(e, in.Lookup)
			if err != nil {
				return nil, annotate(err)
			}
			out = append(out, Field{Name: expr.OutputName(e), DType: dt})
		}
		if err := validation.ValidateUniqueNames(op, out.Columns()...); err != nil {
			return nil, err
		}
		return out, nil

	case KindWithColumns:
		out := append(Schema{}, in...)
		for _, e := range n.Exprs {
			dt, err := expr.ResolveType(e, in.Lookup)
			if err != nil {
				return nil, annotate(err)
			}
			out = upsert(out, Field{Name: expr.OutputName(e), DType: dt})
		}
		return out, nil

	case KindFilter:
		dt, err := expr.ResolveType(n.Predicate, in.Lookup)
		if err != nil {
			return nil, annotate(err)
		}
		if dt != series.Bool && dt != series.Null {
			return nil, errors.NewExecutionError(op, fmt.Sprintf("predicate %s has type %s, expected bool", n.Predicate, dt))
		}
		return in, nil

	case KindDrop:
		if err := validation.ValidateColumns(in, op, n.Columns...); err != nil {
			return nil, err
		}
		dropped := toSet(n.Columns)
		out := make(Schema, 0, len(in))
		for _, f := range in {
			if !dropped[f.Name] {
				out = append(out, f)
			}
		}
		return out, nil

	case KindSlice, KindReverse, KindShift, KindFillNull, KindFillNaN:
		if n.Fill != nil {
			if _, err := expr.ResolveType(n.Fill, in.Lookup); err != nil {
				return nil, annotate(err)
			}
		}
		return in, nil

	case KindReduce:
		if n.Reduce.Quantile != nil {
			dt, err := expr.ResolveType(n.Reduce.Quantile, in.Lookup)
			if err != nil {
				return nil, annotate(err)
			}
			if !dt.IsNumeric() {
				return nil, errors.NewExecutionError("quantile", fmt.Sprintf("quantile %s must be a number, got %s", n.Reduce.Quantile, dt))
			}
		}
		out := make(Schema, len(in))
		for i, f := range in {
			out[i] = Field{Name: f.Name, DType: n.Reduce.Agg.OutputType(f.DType)}
		}
		return out, nil

	case KindDropNulls, KindUnique:
		if err := resolveAll(n.Subset, in); err != nil {
			return nil, annotate(err)
		}
		return in, nil

	case KindSort:
		if err := resolveAll(n.Sort.By, in); err != nil {
			return nil, annotate(err)
		}
		return in, nil

	case KindGroupBy:
		return resolveGroupBy(n, in)

	case KindJoin:
		right, err := Resolve(n.Right)
		if err != nil {
			return nil, err
		}
		return resolveJoin(n.Join, in, right)

	case KindAsOf:
		right, err := Resolve(n.Right)
		if err != nil {
			return nil, err
		}
		return resolveAsOf(n.AsOf, in, right)
	}
	return nil, errors.NewExecutionError(op, "unsupported plan node")
}

func resolveAll(exprs []expr.Expr, in Schema) error {
	for _, e := range exprs {
		if _, err := expr.ResolveType(e, in.Lookup); err != nil {
			return err
		}
	}
	return nil
}

func upsert(s Schema, f Field) Schema {
	for i := range s {
		if s[i].Name == f.Name {
			s[i] = f
			return s
		}
	}
	return append(s, f)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func resolveGroupBy(n *Node, in Schema) (Schema, error) {
	var out Schema
	for _, k := range n.GroupBy.Keys {
		dt, err := expr.ResolveType(k, in.Lookup)
		if err != nil {
			return nil, errors.Annotate(err, "groupby")
		}
		out = append(out, Field{Name: expr.OutputName(k), DType: dt})
	}

	switch n.GroupBy.Mode {
	case GroupAgg:
		for _, a := range n.GroupBy.Aggs {
			dt, err := expr.ResolveType(a, in.Lookup)
			if err != nil {
				return nil, errors.Annotate(err, "agg")
			}
			out = append(out, Field{Name: expr.OutputName(a), DType: dt})
		}
		if err := validation.ValidateUniqueNames("agg", out.Columns()...); err != nil {
			return nil, err
		}
	default:
		for _, f := range in {
			if !out.HasColumn(f.Name) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// JoinKeyColumns returns the names of right key expressions that are plain
// columns; those are dropped from join output.
func JoinKeyColumns(keys []expr.Expr) map[string]bool {
	set := map[string]bool{}
	for _, k := range keys {
		if c, ok := k.(*expr.ColumnExpr); ok {
			set[c.Name()] = true
		}
	}
	return set
}

func resolveJoin(spec *JoinSpec, left, right Schema) (Schema, error) {
	for i := range spec.LeftOn {
		lt, err := expr.ResolveType(spec.LeftOn[i], left.Lookup)
		if err != nil {
			return nil, errors.Annotate(err, "join")
		}
		rt, err := expr.ResolveType(spec.RightOn[i], right.Lookup)
		if err != nil {
			return nil, errors.Annotate(err, "join")
		}
		if lt != rt && lt != series.Null && rt != series.Null {
			return nil, errors.NewExecutionError("join", fmt.Sprintf(
				"join key %s has type %s but %s has type %s", spec.LeftOn[i], lt, spec.RightOn[i], rt))
		}
	}

	switch spec.How {
	case JoinSemi, JoinAnti:
		return left, nil
	}

	dropped := map[string]bool{}
	if spec.How != JoinCross {
		dropped = JoinKeyColumns(spec.RightOn)
	}
	out := append(Schema{}, left...)
	for _, rc := range RightOutputColumns(left.Columns(), right.Columns(), dropped, spec.Suffix) {
		dt, _ := right.Lookup(rc.Source)
		out = append(out, Field{Name: rc.Name, DType: dt})
	}
	return out, nil
}

// AsOfDroppedColumns returns the right-hand key and by columns whose names
// equal their left counterparts.
func AsOfDroppedColumns(spec *AsOfSpec) map[string]bool {
	dropped := map[string]bool{}
	if expr.OutputName(spec.LeftOn) == expr.OutputName(spec.RightOn) {
		if c, ok := spec.RightOn.(*expr.ColumnExpr); ok {
			dropped[c.Name()] = true
		}
	}
	leftBy, rightBy := spec.ByColumns()
	for i := range rightBy {
		if i < len(leftBy) && leftBy[i] == rightBy[i] {
			dropped[rightBy[i]] = true
		}
	}
	return dropped
}

func resolveAsOf(spec *AsOfSpec, left, right Schema) (Schema, error) {
	lt, err := expr.ResolveType(spec.LeftOn, left.Lookup)
	if err != nil {
		return nil, errors.Annotate(err, "join_asof")
	}
	rt, err := expr.ResolveType(spec.RightOn, right.Lookup)
	if err != nil {
		return nil, errors.Annotate(err, "join_asof")
	}
	if err := CheckAsOfKeys(spec, lt, rt); err != nil {
		return nil, err
	}
	leftBy, rightBy := spec.ByColumns()
	if len(leftBy) != len(rightBy) {
		return nil, errors.NewPlanError("join_asof", fmt.Sprintf(
			"left_by has %d columns but right_by has %d", len(leftBy), len(rightBy)))
	}
	if err := validation.ValidateColumns(left, "join_asof", leftBy...); err != nil {
		return nil, err
	}
	if err := validation.ValidateColumns(right, "join_asof", rightBy...); err != nil {
		return nil, err
	}
	for i := range leftBy {
		l, _ := left.Lookup(leftBy[i])
		r, _ := right.Lookup(rightBy[i])
		if l != r {
			return nil, errors.NewExecutionError("join_asof", fmt.Sprintf(
				"by column %q has type %s but %q has type %s", leftBy[i], l, rightBy[i], r))
		}
	}

	out := append(Schema{}, left...)
	for _, rc := range RightOutputColumns(left.Columns(), right.Columns(), AsOfDroppedColumns(spec), spec.Suffix) {
		dt, _ := right.Lookup(rc.Source)
		out = append(out, Field{Name: rc.Name, DType: dt})
	}
	return out, nil
}

// CheckAsOfKeys validates the as-of key dtypes against the tolerance form
func CheckAsOfKeys(spec *AsOfSpec, left, right series.DType) error {
	ordered := func(d series.DType) bool { return d.IsNumeric() || d == series.Timestamp }
	if !ordered(left) || !ordered(right) {
		return errors.NewExecutionError("join_asof", fmt.Sprintf(
			"as-of keys must be numeric or datetime, got %s and %s", left, right))
	}
	if (left == series.Timestamp) != (right == series.Timestamp) {
		return errors.NewExecutionError("join_asof", fmt.Sprintf(
			"as-of key types %s and %s are not comparable", left, right))
	}
	if spec.ToleranceStr != "" && left != series.Timestamp {
		return errors.NewExecutionError("join_asof", fmt.Sprintf(
			"tolerance_str %q requires datetime keys, got %s", spec.ToleranceStr, left))
	}
	if spec.Tolerance != nil {
		switch spec.Tolerance.(type) {
		case int64, float64:
		default:
			return errors.NewExecutionError("join_asof", fmt.Sprintf(
				"tolerance %s must be a number", errors.Describe(spec.Tolerance)))
		}
	}
	return nil
}
