package coerce

import (
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/expr"
)

// Selector coerces one host value into an expression and tags failures with
// op.
func Selector(op string) Func[expr.Expr] {
	return func(param string, v any) (expr.Expr, error) {
		e, err := Expr(param, v)
		return e, errors.Annotate(err, op)
	}
}

// Selectors coerces a host sequence into an ordered expression list and tags
// failures with op.
func Selectors(op string) Func[[]expr.Expr] {
	each := Slice(Expr)
	return func(param string, v any) ([]expr.Expr, error) {
		es, err := each(param, v)
		return es, errors.Annotate(err, op)
	}
}
