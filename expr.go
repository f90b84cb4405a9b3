package lazybridge

import (
	"github.com/paveg/lazybridge/internal/expr"
)

// Expr is an opaque column expression handle. Expressions are immutable;
// every method returns a new expression.
type Expr struct {
	e expr.Expr
}

func wrapExpr(e expr.Expr) *Expr { return &Expr{e: e} }

// ToExpr returns the wrapped expression
func (e *Expr) ToExpr() expr.Expr {
	if e == nil {
		return nil
	}
	return e.e
}

func (e *Expr) String() string { return e.e.String() }

// Col references a column by name
func Col(name string) *Expr { return wrapExpr(expr.Col(name)) }

// Lit creates a literal. Go integers become int64 and float32 float64.
func Lit(value any) *Expr { return wrapExpr(expr.Lit(value)) }

func (e *Expr) binary(op expr.BinaryOp, other *Expr) *Expr {
	return wrapExpr(expr.Binary(e.e, op, other.e))
}

// Add creates an addition expression
func (e *Expr) Add(other *Expr) *Expr { return e.binary(expr.OpAdd, other) }

// Sub creates a subtraction expression
func (e *Expr) Sub(other *Expr) *Expr { return e.binary(expr.OpSub, other) }

// Mul creates a multiplication expression
func (e *Expr) Mul(other *Expr) *Expr { return e.binary(expr.OpMul, other) }

// Div creates a division expression
func (e *Expr) Div(other *Expr) *Expr { return e.binary(expr.OpDiv, other) }

// Eq creates an equality comparison
func (e *Expr) Eq(other *Expr) *Expr { return e.binary(expr.OpEq, other) }

// Ne creates an inequality comparison
func (e *Expr) Ne(other *Expr) *Expr { return e.binary(expr.OpNe, other) }

// Lt creates a less-than comparison
func (e *Expr) Lt(other *Expr) *Expr { return e.binary(expr.OpLt, other) }

// Le creates a less-than-or-equal comparison
func (e *Expr) Le(other *Expr) *Expr { return e.binary(expr.OpLe, other) }

// Gt creates a greater-than comparison
func (e *Expr) Gt(other *Expr) *Expr { return e.binary(expr.OpGt, other) }

// Ge creates a greater-than-or-equal comparison
func (e *Expr) Ge(other *Expr) *Expr { return e.binary(expr.OpGe, other) }

// And creates a logical AND
func (e *Expr) And(other *Expr) *Expr { return e.binary(expr.OpAnd, other) }

// Or creates a logical OR
func (e *Expr) Or(other *Expr) *Expr { return e.binary(expr.OpOr, other) }

// Not negates a boolean expression
func (e *Expr) Not() *Expr { return wrapExpr(expr.Not(e.e)) }

// IsNull tests each value for null
func (e *Expr) IsNull() *Expr { return wrapExpr(expr.IsNull(e.e)) }

// Alias renames the output column
func (e *Expr) Alias(name string) *Expr { return wrapExpr(expr.Alias(e.e, name)) }

// Aggregations

func (e *Expr) Sum() *Expr    { return wrapExpr(expr.Sum(e.e)) }
func (e *Expr) Count() *Expr  { return wrapExpr(expr.Count(e.e)) }
func (e *Expr) Mean() *Expr   { return wrapExpr(expr.Mean(e.e)) }
func (e *Expr) Min() *Expr    { return wrapExpr(expr.Min(e.e)) }
func (e *Expr) Max() *Expr    { return wrapExpr(expr.Max(e.e)) }
func (e *Expr) First() *Expr  { return wrapExpr(expr.First(e.e)) }
func (e *Expr) Last() *Expr   { return wrapExpr(expr.Last(e.e)) }
func (e *Expr) Median() *Expr { return wrapExpr(expr.Median(e.e)) }

// Std is the standard deviation with divisor N - ddof
func (e *Expr) Std(ddof uint8) *Expr { return wrapExpr(expr.Std(e.e, ddof)) }

// Var is the variance with divisor N - ddof
func (e *Expr) Var(ddof uint8) *Expr { return wrapExpr(expr.Var(e.e, ddof)) }
