// Package expr provides the immutable column expression tree used by lazy
// plans and its evaluation against materialised frames
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExprType represents the type of expression
type ExprType int

const (
	ExprColumn ExprType = iota
	ExprLiteral
	ExprBinary
	ExprUnary
	ExprAggregation
	ExprAlias
)

// Expr represents an expression that can be evaluated lazily. Expressions
// are immutable once built.
type Expr interface {
	Type() ExprType
	String() string
}

// ColumnExpr represents a column reference
type ColumnExpr struct {
	name string
}

func (c *ColumnExpr) Type() ExprType {
	return ExprColumn
}

func (c *ColumnExpr) String() string {
	return fmt.Sprintf("col(%q)", c.name)
}

func (c *ColumnExpr) Name() string {
	return c.name
}

// LiteralExpr represents a literal value
type LiteralExpr struct {
	value any
}

func (l *LiteralExpr) Type() ExprType {
	return ExprLiteral
}

func (l *LiteralExpr) String() string {
	return "lit(" + formatLiteral(l.value) + ")"
}

// Value returns the literal as int64, float64, string, bool, time.Time or nil
func (l *LiteralExpr) Value() any {
	return l.value
}

func formatLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// BinaryOp represents binary operations
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var binaryOpSymbols = [...]string{"+", "-", "*", "/", "==", "!=", "<", "<=", ">", ">=", "&", "|"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpSymbols) {
		return binaryOpSymbols[op]
	}
	return fmt.Sprintf("unknown_op(%d)", int(op))
}

// IsComparison reports whether op yields a boolean from two values
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports whether op combines two booleans
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// BinaryExpr represents a binary operation
type BinaryExpr struct {
	left  Expr
	op    BinaryOp
	right Expr
}

func (b *BinaryExpr) Type() ExprType {
	return ExprBinary
}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("[(%s) %s (%s)]", b.left, b.op, b.right)
}

func (b *BinaryExpr) Left() Expr {
	return b.left
}

func (b *BinaryExpr) Op() BinaryOp {
	return b.op
}

func (b *BinaryExpr) Right() Expr {
	return b.right
}

// UnaryOp represents unary operations
type UnaryOp int

const (
	UnaryNot UnaryOp = iota
	UnaryIsNull
)

// UnaryExpr represents a unary operation
type UnaryExpr struct {
	op      UnaryOp
	operand Expr
}

func (u *UnaryExpr) Type() ExprType {
	return ExprUnary
}

func (u *UnaryExpr) String() string {
	switch u.op {
	case UnaryNot:
		return fmt.Sprintf("%s.not()", u.operand)
	case UnaryIsNull:
		return fmt.Sprintf("%s.is_null()", u.operand)
	default:
		return fmt.Sprintf("%s.unknown()", u.operand)
	}
}

func (u *UnaryExpr) Op() UnaryOp {
	return u.op
}

func (u *UnaryExpr) Operand() Expr {
	return u.operand
}

// AggregationType represents the type of aggregation function
type AggregationType int

const (
	AggSum AggregationType = iota
	AggCount
	AggMean
	AggMin
	AggMax
	AggFirst
	AggLast
	AggMedian
	AggStd
	AggVar
	AggQuantile
)

// Aggregation function name constants
const (
	AggNameSum      = "sum"
	AggNameCount    = "count"
	AggNameMean     = "mean"
	AggNameMin      = "min"
	AggNameMax      = "max"
	AggNameFirst    = "first"
	AggNameLast     = "last"
	AggNameMedian   = "median"
	AggNameStd      = "std"
	AggNameVar      = "var"
	AggNameQuantile = "quantile"
)

var aggNames = [...]string{
	AggNameSum, AggNameCount, AggNameMean, AggNameMin, AggNameMax, AggNameFirst,
	AggNameLast, AggNameMedian, AggNameStd, AggNameVar, AggNameQuantile,
}

func (a AggregationType) String() string {
	if int(a) < len(aggNames) {
		return aggNames[a]
	}
	return fmt.Sprintf("unknown_agg(%d)", int(a))
}

// AggregationExpr represents an aggregation function over an expression
type AggregationExpr struct {
	column  Expr
	aggType AggregationType
	opts    AggOptions
}

func (a *AggregationExpr) Type() ExprType {
	return ExprAggregation
}

func (a *AggregationExpr) String() string {
	switch a.aggType {
	case AggStd, AggVar:
		return fmt.Sprintf("%s.%s(ddof=%d)", a.column, a.aggType, a.opts.Ddof)
	case AggQuantile:
		return fmt.Sprintf("%s.quantile(%s, interpolation=%s)",
			a.column, strconv.FormatFloat(a.opts.Quantile, 'g', -1, 64), a.opts.Interpolation)
	default:
		return fmt.Sprintf("%s.%s()", a.column, a.aggType)
	}
}

func (a *AggregationExpr) Column() Expr {
	return a.column
}

func (a *AggregationExpr) AggType() AggregationType {
	return a.aggType
}

func (a *AggregationExpr) Options() AggOptions {
	return a.opts
}

// AliasExpr renames the output of an expression
type AliasExpr struct {
	expr Expr
	name string
}

func (a *AliasExpr) Type() ExprType {
	return ExprAlias
}

func (a *AliasExpr) String() string {
	return fmt.Sprintf("%s.alias(%q)", a.expr, a.name)
}

func (a *AliasExpr) Expr() Expr {
	return a.expr
}

func (a *AliasExpr) Name() string {
	return a.name
}

// Col creates a column reference expression
func Col(name string) *ColumnExpr {
	return &ColumnExpr{name: name}
}

// Lit creates a literal expression. Go integer kinds normalise to int64,
// float32 to float64 and times to UTC.
func Lit(value any) *LiteralExpr {
	return &LiteralExpr{value: normalizeLiteral(value)}
}

func normalizeLiteral(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

// Binary combines two expressions
func Binary(left Expr, op BinaryOp, right Expr) *BinaryExpr {
	return &BinaryExpr{left: left, op: op, right: right}
}

// Not negates a boolean expression
func Not(e Expr) *UnaryExpr {
	return &UnaryExpr{op: UnaryNot, operand: e}
}

// IsNull tests each value of e for null
func IsNull(e Expr) *UnaryExpr {
	return &UnaryExpr{op: UnaryIsNull, operand: e}
}

// Alias renames e
func Alias(e Expr, name string) *AliasExpr {
	return &AliasExpr{expr: e, name: name}
}

// Agg creates an aggregation of e
func Agg(e Expr, aggType AggregationType) *AggregationExpr {
	return &AggregationExpr{column: e, aggType: aggType}
}

// Sum creates a sum aggregation expression
func Sum(e Expr) *AggregationExpr { return Agg(e, AggSum) }

// Count creates a count aggregation expression (non-null values)
func Count(e Expr) *AggregationExpr { return Agg(e, AggCount) }

// Mean creates a mean aggregation expression
func Mean(e Expr) *AggregationExpr { return Agg(e, AggMean) }

// Min creates a min aggregation expression
func Min(e Expr) *AggregationExpr { return Agg(e, AggMin) }

// Max creates a max aggregation expression
func Max(e Expr) *AggregationExpr { return Agg(e, AggMax) }

// First creates a first-value aggregation expression
func First(e Expr) *AggregationExpr { return Agg(e, AggFirst) }

// Last creates a last-value aggregation expression
func Last(e Expr) *AggregationExpr { return Agg(e, AggLast) }

// Median creates a median aggregation expression
func Median(e Expr) *AggregationExpr { return Agg(e, AggMedian) }

// Std creates a standard deviation aggregation with divisor N-ddof
func Std(e Expr, ddof uint8) *AggregationExpr {
	return &AggregationExpr{column: e, aggType: AggStd, opts: AggOptions{Ddof: ddof}}
}

// Var creates a variance aggregation with divisor N-ddof
func Var(e Expr, ddof uint8) *AggregationExpr {
	return &AggregationExpr{column: e, aggType: AggVar, opts: AggOptions{Ddof: ddof}}
}

// Quantile creates a quantile aggregation
func Quantile(e Expr, q float64, interpolation Interpolation) *AggregationExpr {
	return &AggregationExpr{
		column:  e,
		aggType: AggQuantile,
		opts:    AggOptions{Quantile: q, Interpolation: interpolation},
	}
}

// OutputName returns the column name an expression produces. Binary
// expressions take the name of their left operand.
func OutputName(e Expr) string {
	switch ex := e.(type) {
	case *ColumnExpr:
		return ex.name
	case *LiteralExpr:
		return "literal"
	case *BinaryExpr:
		return OutputName(ex.left)
	case *UnaryExpr:
		return OutputName(ex.operand)
	case *AggregationExpr:
		return OutputName(ex.column)
	case *AliasExpr:
		return ex.name
	default:
		return ""
	}
}

// Columns returns the distinct column names referenced by e in first-use
// order.
func Columns(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	Walk(e, func(n Expr) {
		if c, ok := n.(*ColumnExpr); ok && !seen[c.name] {
			seen[c.name] = true
			out = append(out, c.name)
		}
	})
	return out
}

// Walk visits e and every sub-expression in pre-order
func Walk(e Expr, fn func(Expr)) {
	fn(e)
	switch ex := e.(type) {
	case *BinaryExpr:
		Walk(ex.left, fn)
		Walk(ex.right, fn)
	case *UnaryExpr:
		Walk(ex.operand, fn)
	case *AggregationExpr:
		Walk(ex.column, fn)
	case *AliasExpr:
		Walk(ex.expr, fn)
	}
}

// ContainsAggregation reports whether any sub-expression aggregates
func ContainsAggregation(e Expr) bool {
	found := false
	Walk(e, func(n Expr) {
		if n.Type() == ExprAggregation {
			found = true
		}
	})
	return found
}

// ColumnNames extracts the names of bare column references, in order. ok is
// false if any expression is not a plain column.
func ColumnNames(exprs []Expr) (names []string, ok bool) {
	names = make([]string, 0, len(exprs))
	for _, e := range exprs {
		c, isCol := e.(*ColumnExpr)
		if !isCol {
			return nil, false
		}
		names = append(names, c.name)
	}
	return names, true
}

// JoinStrings renders a list of expressions as "[a, b]"
func JoinStrings(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
