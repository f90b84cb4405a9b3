package expr

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/series"
)

// Evaluator evaluates expressions against materialised frames
type Evaluator struct {
	mem memory.Allocator
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator(mem memory.Allocator) *Evaluator {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Evaluator{mem: mem}
}

// Evaluate computes e over the rows of df selected by rows (nil = every
// row). The result has one value per selected row, or a single value when e
// is a literal or an aggregation; callers broadcast single values. Errors
// carry no operation name.
func (ev *Evaluator) Evaluate(e Expr, df *dataframe.DataFrame, rows []int) (*series.Series, error) {
	switch ex := e.(type) {
	case *ColumnExpr:
		return ev.evaluateColumn(ex, df, rows)
	case *LiteralExpr:
		return ev.evaluateLiteral(ex)
	case *AliasExpr:
		s, err := ev.Evaluate(ex.expr, df, rows)
		if err != nil {
			return nil, err
		}
		return s.Rename(ex.name), nil
	case *UnaryExpr:
		return ev.evaluateUnary(ex, df, rows)
	case *BinaryExpr:
		return ev.evaluateBinary(ex, df, rows)
	case *AggregationExpr:
		return ev.evaluateAggregation(ex, df, rows)
	default:
		return nil, errors.NewExecutionError("", fmt.Sprintf("unsupported expression type: %T", e))
	}
}

// EvaluateScalar evaluates an expression that must produce exactly one
// value, such as a literal fill value.
func (ev *Evaluator) EvaluateScalar(e Expr, df *dataframe.DataFrame) (any, error) {
	s, err := ev.Evaluate(e, df, nil)
	if err != nil {
		return nil, err
	}
	if s.Len() != 1 {
		return nil, errors.NewExecutionError("", fmt.Sprintf("expression %s must evaluate to a single value, got %d", e, s.Len()))
	}
	return s.Value(0), nil
}

func (ev *Evaluator) evaluateColumn(e *ColumnExpr, df *dataframe.DataFrame, rows []int) (*series.Series, error) {
	s, ok := df.Column(e.name)
	if !ok {
		return nil, errors.NewColumnNotFoundError("", e.name)
	}
	if rows == nil {
		return s.Rename(s.Name()), nil
	}
	return s.Take(rows, ev.mem), nil
}

func (ev *Evaluator) evaluateLiteral(e *LiteralExpr) (*series.Series, error) {
	dtype := series.DTypeOfValue(e.value)
	if e.value != nil && dtype == series.Null {
		return nil, errors.NewExecutionError("", fmt.Sprintf("unsupported literal %s", errors.Describe(e.value)))
	}
	return series.FromValues("literal", dtype, []any{e.value}, ev.mem)
}

func (ev *Evaluator) evaluateAggregation(e *AggregationExpr, df *dataframe.DataFrame, rows []int) (*series.Series, error) {
	if ContainsAggregation(e.column) {
		return nil, errors.NewExecutionError("", fmt.Sprintf("nested aggregation in %s", e))
	}
	in, err := ev.Evaluate(e.column, df, rows)
	if err != nil {
		return nil, err
	}
	v := Aggregate(in, nil, e.aggType, e.opts)
	return series.FromValues(in.Name(), e.aggType.OutputType(in.DType()), []any{v}, ev.mem)
}

func (ev *Evaluator) evaluateUnary(e *UnaryExpr, df *dataframe.DataFrame, rows []int) (*series.Series, error) {
	in, err := ev.Evaluate(e.operand, df, rows)
	if err != nil {
		return nil, err
	}
	b := series.NewBuilder(series.Bool, ev.mem)
	b.Reserve(in.Len())
	switch e.op {
	case UnaryIsNull:
		for i := 0; i < in.Len(); i++ {
			_ = b.Append(in.IsNull(i))
		}
	case UnaryNot:
		if in.DType() != series.Bool && in.DType() != series.Null {
			return nil, errors.NewExecutionError("", fmt.Sprintf("not() requires a boolean operand, got %s", in.DType()))
		}
		for i := 0; i < in.Len(); i++ {
			v, ok := in.Value(i).(bool)
			if !ok {
				b.AppendNull()
				continue
			}
			_ = b.Append(!v)
		}
	}
	return b.Finish(in.Name()), nil
}

func (ev *Evaluator) evaluateBinary(e *BinaryExpr, df *dataframe.DataFrame, rows []int) (*series.Series, error) {
	left, err := ev.Evaluate(e.left, df, rows)
	if err != nil {
		return nil, err
	}
	right, err := ev.Evaluate(e.right, df, rows)
	if err != nil {
		return nil, err
	}

	n, err := BroadcastLen(left.Len(), right.Len())
	if err != nil {
		return nil, errors.NewExecutionError("", fmt.Sprintf("%s: %s", e, err.Error()))
	}

	dtype, err := binaryOutputType(e.op, left.DType(), right.DType())
	if err != nil {
		return nil, errors.NewExecutionError("", fmt.Sprintf("%s: %s", e, err.Error()))
	}

	b := series.NewBuilder(dtype, ev.mem)
	b.Reserve(n)
	for i := 0; i < n; i++ {
		lv := left.Value(broadcastIndex(i, left.Len()))
		rv := right.Value(broadcastIndex(i, right.Len()))
		if err := b.Append(applyBinary(e.op, dtype, lv, rv)); err != nil {
			return nil, errors.NewExecutionError("", err.Error())
		}
	}
	return b.Finish(left.Name()), nil
}

// BroadcastLen returns the length two operands combine to; a length of one
// broadcasts.
func BroadcastLen(a, b int) (int, error) {
	switch {
	case a == b:
		return a, nil
	case a == 1:
		return b, nil
	case b == 1:
		return a, nil
	default:
		return 0, fmt.Errorf("operand lengths %d and %d differ", a, b)
	}
}

func broadcastIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	return i
}

// binaryOutputType reports the dtype of a binary operation
func binaryOutputType(op BinaryOp, l, r series.DType) (series.DType, error) {
	switch {
	case op.IsComparison():
		if comparableTypes(l, r) {
			return series.Bool, nil
		}
	case op.IsLogical():
		if (l == series.Bool || l == series.Null) && (r == series.Bool || r == series.Null) {
			return series.Bool, nil
		}
	case op == OpDiv:
		if numericOrNull(l) && numericOrNull(r) {
			return series.Float64, nil
		}
	default:
		if op == OpAdd && l == series.String && r == series.String {
			return series.String, nil
		}
		if numericOrNull(l) && numericOrNull(r) {
			if l == series.Float64 || r == series.Float64 {
				return series.Float64, nil
			}
			if l == series.Null && r == series.Null {
				return series.Null, nil
			}
			return series.Int64, nil
		}
	}
	return series.Null, fmt.Errorf("unsupported operand types %s %s %s", l, op, r)
}

func numericOrNull(d series.DType) bool {
	return d.IsNumeric() || d == series.Null
}

func comparableTypes(l, r series.DType) bool {
	if l == series.Null || r == series.Null || l == r {
		return true
	}
	return l.IsNumeric() && r.IsNumeric()
}

func applyBinary(op BinaryOp, out series.DType, l, r any) any {
	if op.IsLogical() {
		return kleene(op, l, r)
	}
	if l == nil || r == nil {
		return nil
	}
	if op.IsComparison() {
		return compare(op, l, r)
	}
	switch out {
	case series.String:
		return l.(string) + r.(string)
	case series.Int64:
		a, b := l.(int64), r.(int64)
		switch op {
		case OpAdd:
			return a + b
		case OpSub:
			return a - b
		case OpMul:
			return a * b
		}
	case series.Float64:
		a, b := toFloat(l), toFloat(r)
		switch op {
		case OpAdd:
			return a + b
		case OpSub:
			return a - b
		case OpMul:
			return a * b
		case OpDiv:
			return a / b
		}
	}
	return nil
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	default:
		return math.NaN()
	}
}

func compare(op BinaryOp, l, r any) any {
	if lf, ok := l.(float64); ok && math.IsNaN(lf) && op != OpNe {
		return false
	}
	if rf, ok := r.(float64); ok && math.IsNaN(rf) && op != OpNe {
		return false
	}
	c := CompareValues(l, r)
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	default:
		return c >= 0
	}
}

// kleene implements three-valued AND/OR
func kleene(op BinaryOp, l, r any) any {
	lb, lok := l.(bool)
	rb, rok := r.(bool)
	if op == OpAnd {
		if (lok && !lb) || (rok && !rb) {
			return false
		}
		if lok && rok {
			return true
		}
		return nil
	}
	if (lok && lb) || (rok && rb) {
		return true
	}
	if lok && rok {
		return false
	}
	return nil
}

// ResolveType infers the output dtype of e against a schema without
// evaluating it.
func ResolveType(e Expr, lookup func(name string) (series.DType, bool)) (series.DType, error) {
	switch ex := e.(type) {
	case *ColumnExpr:
		dt, ok := lookup(ex.name)
		if !ok {
			return series.Null, errors.NewColumnNotFoundError("", ex.name)
		}
		return dt, nil
	case *LiteralExpr:
		return series.DTypeOfValue(ex.value), nil
	case *AliasExpr:
		return ResolveType(ex.expr, lookup)
	case *UnaryExpr:
		if _, err := ResolveType(ex.operand, lookup); err != nil {
			return series.Null, err
		}
		return series.Bool, nil
	case *AggregationExpr:
		in, err := ResolveType(ex.column, lookup)
		if err != nil {
			return series.Null, err
		}
		return ex.aggType.OutputType(in), nil
	case *BinaryExpr:
		l, err := ResolveType(ex.left, lookup)
		if err != nil {
			return series.Null, err
		}
		r, err := ResolveType(ex.right, lookup)
		if err != nil {
			return series.Null, err
		}
		dt, err := binaryOutputType(ex.op, l, r)
		if err != nil {
			return series.Null, errors.NewExecutionError("", fmt.Sprintf("%s: %s", ex, err.Error()))
		}
		return dt, nil
	default:
		return series.Null, errors.NewExecutionError("", fmt.Sprintf("unsupported expression type: %T", e))
	}
}

// IsScalar reports whether e always evaluates to a single value
func IsScalar(e Expr) bool {
	switch ex := e.(type) {
	case *LiteralExpr, *AggregationExpr:
		return true
	case *AliasExpr:
		return IsScalar(ex.expr)
	case *UnaryExpr:
		return IsScalar(ex.operand)
	case *BinaryExpr:
		return IsScalar(ex.left) && IsScalar(ex.right)
	default:
		return false
	}
}

// Broadcast repeats a single-value series n times
func (ev *Evaluator) Broadcast(s *series.Series, n int) *series.Series {
	if s.Len() == n {
		return s
	}
	indices := make([]int, n)
	return s.Take(indices, ev.mem)
}
