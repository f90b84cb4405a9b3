// Package coerce turns dynamically typed host values into validated, typed
// parameters. Every coercion is a Func; composed shapes are built with the
// Optional and Slice combinators.
package coerce

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/paveg/lazybridge/internal/common"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/expr"
	"golang.org/x/exp/constraints"
)

// Func coerces the host value v supplied for param into a T
type Func[T any] func(param string, v any) (T, error)

type null struct{}

func (null) String() string { return "Null" }

// Null is the explicit absent sentinel. Optional treats it like nil.
var Null any = null{}

// IsAbsent reports whether v is nil or the Null sentinel
func IsAbsent(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(null)
	return ok
}

// Bool accepts a host boolean
func Bool(param string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errors.NewCoercionError(param, "a boolean", v)
	}
	return b, nil
}

// String accepts a host string
func String(param string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewCoercionError(param, "a string", v)
	}
	return s, nil
}

// Float64 accepts any host number
func Float64(param string, v any) (float64, error) {
	if f, ok := asFloat(v); ok {
		return f, nil
	}
	if n, ok := asInteger(v); ok {
		return n.float(), nil
	}
	return 0, errors.NewCoercionError(param, "a number", v)
}

// Time accepts a host time.Time and normalises it to UTC
func Time(param string, v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, errors.NewCoercionError(param, "a time", v)
	}
	return t.UTC(), nil
}

// integer is a host integer as sign and magnitude so that every Go integer
// kind fits without overflow.
type integer struct {
	neg bool
	mag uint64
}

func (n integer) float() float64 {
	if n.neg {
		return -float64(n.mag)
	}
	return float64(n.mag)
}

func asInteger(v any) (integer, bool) {
	switch x := v.(type) {
	case int:
		return signed(int64(x)), true
	case int8:
		return signed(int64(x)), true
	case int16:
		return signed(int64(x)), true
	case int32:
		return signed(int64(x)), true
	case int64:
		return signed(x), true
	case uint:
		return integer{mag: uint64(x)}, true
	case uint8:
		return integer{mag: uint64(x)}, true
	case uint16:
		return integer{mag: uint64(x)}, true
	case uint32:
		return integer{mag: uint64(x)}, true
	case uint64:
		return integer{mag: x}, true
	}
	return integer{}, false
}

func signed(x int64) integer {
	if x < 0 {
		return integer{neg: true, mag: uint64(-(x + 1)) + 1}
	}
	return integer{mag: uint64(x)}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// integral converts a host int or an integral float. Floats with a fractional
// part, NaN and infinities are rejected.
func integral(v any) (integer, bool) {
	if n, ok := asInteger(v); ok {
		return n, true
	}
	f, ok := asFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= 1<<64 {
		return integer{}, false
	}
	if f < 0 {
		return integer{neg: true, mag: uint64(-f)}, true
	}
	return integer{mag: uint64(f)}, true
}

// Int returns the coercion into the integer type T. Host ints and integral
// floats are accepted when they fit T; nothing is truncated or clamped.
func Int[T constraints.Integer]() Func[T] {
	var zero T
	rt := reflect.TypeOf(zero)
	bits := uint(rt.Bits())
	isSigned := rt.Kind() >= reflect.Int && rt.Kind() <= reflect.Int64

	var maxPos, maxNeg uint64
	var lo, hi string
	if isSigned {
		maxPos = 1<<(bits-1) - 1
		maxNeg = 1 << (bits - 1)
		lo, hi = fmt.Sprintf("-%d", maxNeg), fmt.Sprint(maxPos)
	} else {
		maxPos = math.MaxUint64 >> (64 - bits)
		lo, hi = "0", fmt.Sprint(maxPos)
	}
	expected := fmt.Sprintf("an integer in [%s, %s]", lo, hi)

	return func(param string, v any) (T, error) {
		n, ok := integral(v)
		if !ok || (n.neg && n.mag > maxNeg) || (!n.neg && n.mag > maxPos) {
			return zero, errors.NewCoercionError(param, expected, v)
		}
		if n.neg {
			return T(-int64(n.mag)), nil
		}
		return T(n.mag), nil
	}
}

// Integer coercions used by the public API
var (
	Int64  = Int[int64]()
	Uint8  = Int[uint8]()
	Uint32 = Int[uint32]()
)

// Count accepts a non-negative integral count. Host values often arrive as
// floats; 3.0 is a count, 3.7 and -1 are not.
func Count(param string, v any) (int, error) {
	n, ok := integral(v)
	if !ok || n.neg && n.mag != 0 || n.mag > math.MaxInt {
		return 0, errors.NewCoercionError(param, "a non-negative integral count", v)
	}
	return int(n.mag), nil
}

// Exprer is implemented by host handles that wrap an expression
type Exprer interface {
	ToExpr() expr.Expr
}

// Expr accepts a column name (as col(name)) or an expression
func Expr(param string, v any) (expr.Expr, error) {
	switch x := v.(type) {
	case string:
		return expr.Col(x), nil
	case expr.Expr:
		return x, nil
	case Exprer:
		if e := x.ToExpr(); e != nil {
			return e, nil
		}
	}
	return nil, errors.NewCoercionError(param, "a column name or expression", v)
}

// LitExpr accepts an expression, or a scalar (bool, number, string, time)
// which becomes a literal.
func LitExpr(param string, v any) (expr.Expr, error) {
	switch x := v.(type) {
	case expr.Expr:
		return x, nil
	case Exprer:
		if e := x.ToExpr(); e != nil {
			return e, nil
		}
	case bool, string:
		return expr.Lit(x), nil
	case time.Time:
		return expr.Lit(x), nil
	}
	if n, ok := asInteger(v); ok {
		if n.neg && n.mag > 1<<63 || !n.neg && n.mag > math.MaxInt64 {
			return nil, errors.NewCoercionError(param, "a literal within the int64 range", v)
		}
		if n.neg {
			return expr.Lit(-int64(n.mag)), nil
		}
		return expr.Lit(int64(n.mag)), nil
	}
	if f, ok := asFloat(v); ok {
		return expr.Lit(f), nil
	}
	return nil, errors.NewCoercionError(param, "an expression or literal value", v)
}

// Literal accepts only values that LitExpr would turn into a literal, or an
// expression that already is one, and returns its value.
func Literal(param string, v any) (any, error) {
	e, err := LitExpr(param, v)
	if err != nil {
		return nil, err
	}
	lit, ok := e.(*expr.LiteralExpr)
	if !ok {
		return nil, errors.NewCoercionError(param, "a literal value", e)
	}
	return lit.Value(), nil
}

// Handle returns a coercion that asserts an opaque host handle of type T
func Handle[T any](expected string) Func[T] {
	return func(param string, v any) (T, error) {
		h, ok := v.(T)
		if !ok {
			var zero T
			return zero, errors.NewCoercionError(param, expected, v)
		}
		return h, nil
	}
}

// Enum returns a coercion from option strings to strategy values
func Enum[T comparable](opts *common.Options[T]) Func[T] {
	return func(param string, v any) (T, error) {
		var zero T
		s, err := String(param, v)
		if err != nil {
			return zero, err
		}
		val, ok := opts.Parse(s)
		if !ok {
			return zero, errors.NewUnrecognizedOptionError(param, s, opts.Names())
		}
		return val, nil
	}
}

// Optional maps nil and Null to a nil pointer and delegates everything else
// to inner.
func Optional[T any](inner Func[T]) Func[*T] {
	return func(param string, v any) (*T, error) {
		if IsAbsent(v) {
			return nil, nil
		}
		out, err := inner(param, v)
		if err != nil {
			return nil, err
		}
		return &out, nil
	}
}

// Slice coerces every element of a host sequence ([]any or any typed slice)
// with inner. A bare scalar is rejected. Element errors name the index.
func Slice[T any](inner Func[T]) Func[[]T] {
	return func(param string, v any) ([]T, error) {
		if items, ok := v.([]any); ok {
			return coerceEach(param, len(items), func(i int) any { return items[i] }, inner)
		}
		rv := reflect.ValueOf(v)
		if v == nil || rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, errors.NewCoercionError(param, "a sequence", v)
		}
		return coerceEach(param, rv.Len(), func(i int) any { return rv.Index(i).Interface() }, inner)
	}
}

func coerceEach[T any](param string, n int, at func(int) any, inner Func[T]) ([]T, error) {
	out := make([]T, n)
	for i := 0; i < n; i++ {
		x, err := inner(fmt.Sprintf("%s[%d]", param, i), at(i))
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

// Or returns the coerced value, or def when it is absent
func Or[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
