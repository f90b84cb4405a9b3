package pipeline

import (
	"sort"

	"github.com/paveg/lazybridge"
	"github.com/paveg/lazybridge/internal/coerce"
	"github.com/paveg/lazybridge/internal/errors"
)

type binaryFn func(a, b *lazybridge.Expr) *lazybridge.Expr

var binaryOps = map[string]binaryFn{
	"add": (*lazybridge.Expr).Add,
	"sub": (*lazybridge.Expr).Sub,
	"mul": (*lazybridge.Expr).Mul,
	"div": (*lazybridge.Expr).Div,
	"eq":  (*lazybridge.Expr).Eq,
	"ne":  (*lazybridge.Expr).Ne,
	"lt":  (*lazybridge.Expr).Lt,
	"le":  (*lazybridge.Expr).Le,
	"gt":  (*lazybridge.Expr).Gt,
	"ge":  (*lazybridge.Expr).Ge,
	"and": (*lazybridge.Expr).And,
	"or":  (*lazybridge.Expr).Or,
}

var unaryOps = map[string]func(*lazybridge.Expr) *lazybridge.Expr{
	"not":     (*lazybridge.Expr).Not,
	"is_null": (*lazybridge.Expr).IsNull,
	"sum":     (*lazybridge.Expr).Sum,
	"mean":    (*lazybridge.Expr).Mean,
	"min":     (*lazybridge.Expr).Min,
	"max":     (*lazybridge.Expr).Max,
	"count":   (*lazybridge.Expr).Count,
	"first":   (*lazybridge.Expr).First,
	"last":    (*lazybridge.Expr).Last,
	"median":  (*lazybridge.Expr).Median,
}

var ddofOps = map[string]func(*lazybridge.Expr, uint8) *lazybridge.Expr{
	"std": (*lazybridge.Expr).Std,
	"var": (*lazybridge.Expr).Var,
}

// ExprKeys lists every expression form a pipeline mapping can use
func ExprKeys() []string {
	keys := []string{"col", "lit", "alias"}
	for k := range binaryOps {
		keys = append(keys, k)
	}
	for k := range unaryOps {
		keys = append(keys, k)
	}
	for k := range ddofOps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isExprSpec reports whether v is a single-key mapping naming an expression form
func isExprSpec(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	for k := range m {
		switch k {
		case "col", "lit", "alias":
			return true
		}
		_, bin := binaryOps[k]
		_, un := unaryOps[k]
		_, dd := ddofOps[k]
		return bin || un || dd
	}
	return false
}

// compileExpr builds an expression. A string is a column; in operand
// position any other scalar is a literal.
func compileExpr(param string, v any) (*lazybridge.Expr, error) {
	switch x := v.(type) {
	case string:
		return lazybridge.Col(x), nil
	case *lazybridge.Expr:
		return x, nil
	case map[string]any:
		return compileSpec(param, x)
	}
	lit, err := coerce.Literal(param, v)
	if err != nil {
		return nil, errors.NewCoercionError(param, "an expression", v)
	}
	return lazybridge.Lit(lit), nil
}

func compileSpec(param string, m map[string]any) (*lazybridge.Expr, error) {
	if len(m) != 1 {
		return nil, errors.NewCoercionError(param, "an expression mapping with a single key", m)
	}
	var key string
	var body any
	for k, v := range m {
		key, body = k, v
	}

	switch key {
	case "col":
		name, err := coerce.String(param+".col", body)
		if err != nil {
			return nil, err
		}
		return lazybridge.Col(name), nil
	case "lit":
		lit, err := coerce.Literal(param+".lit", body)
		if err != nil {
			return nil, err
		}
		return lazybridge.Lit(lit), nil
	case "alias":
		operands, err := pair(param+".alias", body)
		if err != nil {
			return nil, err
		}
		e, err := compileExpr(param+".alias", operands[0])
		if err != nil {
			return nil, err
		}
		name, err := coerce.String(param+".alias", operands[1])
		if err != nil {
			return nil, err
		}
		return e.Alias(name), nil
	}

	if fn, ok := binaryOps[key]; ok {
		operands, err := pair(param+"."+key, body)
		if err != nil {
			return nil, err
		}
		a, err := compileExpr(param+"."+key, operands[0])
		if err != nil {
			return nil, err
		}
		b, err := compileExpr(param+"."+key, operands[1])
		if err != nil {
			return nil, err
		}
		return fn(a, b), nil
	}
	if fn, ok := unaryOps[key]; ok {
		e, err := compileExpr(param+"."+key, body)
		if err != nil {
			return nil, err
		}
		return fn(e), nil
	}
	if fn, ok := ddofOps[key]; ok {
		operands, err := pair(param+"."+key, body)
		if err != nil {
			return nil, err
		}
		e, err := compileExpr(param+"."+key, operands[0])
		if err != nil {
			return nil, err
		}
		ddof, err := coerce.Uint8(param+"."+key, operands[1])
		if err != nil {
			return nil, err
		}
		return fn(e, ddof), nil
	}
	return nil, errors.NewUnrecognizedOptionError(param, key, ExprKeys())
}

func pair(param string, v any) ([2]any, error) {
	items, ok := v.([]any)
	if !ok || len(items) != 2 {
		return [2]any{}, errors.NewCoercionError(param, "a list of two operands", v)
	}
	return [2]any{items[0], items[1]}, nil
}

// hostValue prepares a decoded argument for the API. Expression mappings
// become expressions, lists are converted element-wise and everything else
// passes through untouched.
func hostValue(param string, v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if isExprSpec(x) {
			return compileSpec(param, x)
		}
		return v, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			hv, err := hostValue(param, item)
			if err != nil {
				return nil, err
			}
			out[i] = hv
		}
		return out, nil
	default:
		return v, nil
	}
}
