package coerce_test

import (
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/paveg/lazybridge/internal/coerce"
	"github.com/paveg/lazybridge/internal/common"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCoercionError(t *testing.T, err error, param string) {
	t.Helper()
	require.Error(t, err)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindCoercion, e.Kind)
	assert.Equal(t, param, e.Param)
}

func TestPrimitives(t *testing.T) {
	b, err := coerce.Bool("flag", true)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = coerce.Bool("flag", "true")
	requireCoercionError(t, err, "flag")

	s, err := coerce.String("suffix", "_right")
	require.NoError(t, err)
	assert.Equal(t, "_right", s)

	_, err = coerce.String("suffix", 1)
	requireCoercionError(t, err, "suffix")

	f, err := coerce.Float64("q", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)

	_, err = coerce.Float64("q", nil)
	requireCoercionError(t, err, "q")
}

func TestInt(t *testing.T) {
	tests := []struct {
		name    string
		coerce  func(string, any) (int64, error)
		value   any
		want    int64
		wantErr bool
	}{
		{"i64 from int", coerce.Int64, 5, 5, false},
		{"i64 from negative float", coerce.Int64, -3.0, -3, false},
		{"i64 rejects fraction", coerce.Int64, 2.5, 0, true},
		{"i64 rejects NaN", coerce.Int64, math.NaN(), 0, true},
		{"i64 rejects string", coerce.Int64, "3", 0, true},
		{"i64 min", coerce.Int64, int64(math.MinInt64), math.MinInt64, false},
		{"i64 rejects huge uint", coerce.Int64, uint64(math.MaxUint64), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.coerce("periods", tt.value)
			if tt.wantErr {
				requireCoercionError(t, err, "periods")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("u8 range", func(t *testing.T) {
		v, err := coerce.Uint8("ddof", 255.0)
		require.NoError(t, err)
		assert.Equal(t, uint8(255), v)

		_, err = coerce.Uint8("ddof", 256)
		requireCoercionError(t, err, "ddof")
		assert.Equal(t, "param [ddof] expected an integer in [0, 255], got 256 (int)", err.Error())

		_, err = coerce.Uint8("ddof", -1)
		requireCoercionError(t, err, "ddof")
	})

	t.Run("u32 range", func(t *testing.T) {
		v, err := coerce.Uint32("n", float64(math.MaxUint32))
		require.NoError(t, err)
		assert.Equal(t, uint32(math.MaxUint32), v)

		_, err = coerce.Uint32("n", float64(math.MaxUint32)+1)
		requireCoercionError(t, err, "n")
	})

	t.Run("int8 bounds", func(t *testing.T) {
		i8 := coerce.Int[int8]()
		v, err := i8("x", -128)
		require.NoError(t, err)
		assert.Equal(t, int8(-128), v)
		_, err = i8("x", 128)
		assert.EqualError(t, err, "param [x] expected an integer in [-128, 127], got 128 (int)")
	})
}

func TestCount(t *testing.T) {
	n, err := coerce.Count("n", 3.0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = coerce.Count("n", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for _, bad := range []any{3.7, -1.0, -1, math.Inf(1), math.NaN(), "3", nil} {
		_, err := coerce.Count("n", bad)
		requireCoercionError(t, err, "n")
	}

	_, err = coerce.Count("n", 3.7)
	assert.Contains(t, err.Error(), "expected a non-negative integral count, got 3.7 (float64)")
}

type handle struct{ e expr.Expr }

func (h handle) ToExpr() expr.Expr { return h.e }

func TestExpr(t *testing.T) {
	e, err := coerce.Expr("by", "price")
	require.NoError(t, err)
	assert.Equal(t, expr.Col("price"), e)

	e, err = coerce.Expr("by", expr.Lit(1))
	require.NoError(t, err)
	assert.Equal(t, expr.Lit(1), e)

	e, err = coerce.Expr("by", handle{expr.Col("x")})
	require.NoError(t, err)
	assert.Equal(t, `col("x")`, e.String())

	_, err = coerce.Expr("by", 42)
	requireCoercionError(t, err, "by")
}

func TestLitExpr(t *testing.T) {
	e, err := coerce.LitExpr("fill", "x")
	require.NoError(t, err)
	assert.Equal(t, `lit("x")`, e.String())

	e, err = coerce.LitExpr("fill", uint16(7))
	require.NoError(t, err)
	assert.Equal(t, expr.Lit(int64(7)), e)

	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))
	v, err := coerce.Literal("tolerance", ts)
	require.NoError(t, err)
	assert.Equal(t, ts.UTC(), v)

	_, err = coerce.Literal("tolerance", expr.Col("a"))
	requireCoercionError(t, err, "tolerance")

	_, err = coerce.LitExpr("fill", []int{1})
	requireCoercionError(t, err, "fill")
}

type strategy int

var strategies = common.NewOptions("strategy",
	common.Option[strategy]{Name: "backward", Value: 0},
	common.Option[strategy]{Name: "forward", Value: 1},
)

func TestEnum(t *testing.T) {
	parse := coerce.Enum(strategies)

	v, err := parse("strategy", "forward")
	require.NoError(t, err)
	assert.Equal(t, strategy(1), v)

	_, err = parse("strategy", "sideways")
	requireCoercionError(t, err, "strategy")
	assert.Equal(t, `param [strategy] unrecognized option "sideways"; valid options: backward, forward`, err.Error())

	_, err = parse("strategy", 1)
	requireCoercionError(t, err, "strategy")
}

func TestOptional(t *testing.T) {
	opt := coerce.Optional(coerce.Bool)

	v, err := opt("maintain_order", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = opt("maintain_order", coerce.Null)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = opt("maintain_order", true)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, *v)
	assert.True(t, coerce.Or(v, false))
	assert.False(t, coerce.Or[bool](nil, false))

	_, err = opt("maintain_order", "yes")
	requireCoercionError(t, err, "maintain_order")
}

func TestSlice(t *testing.T) {
	strs := coerce.Slice(coerce.String)

	got, err := strs("columns", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = strs("columns", []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got)

	got, err = strs("columns", []any{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = strs("columns", "a")
	requireCoercionError(t, err, "columns")

	_, err = strs("columns", []any{"a", 2})
	requireCoercionError(t, err, "columns[1]")

	bools, err := coerce.Slice(coerce.Bool)("descending", []bool{true, false})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, bools)
}

func TestOptionalSlice(t *testing.T) {
	by := coerce.Optional(coerce.Slice(coerce.String))

	v, err := by("left_by", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = by("left_by", []any{"sym", "venue"})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []string{"sym", "venue"}, *v)

	_, err = by("left_by", []any{nil})
	requireCoercionError(t, err, "left_by[0]")
}

func TestHandle(t *testing.T) {
	type frame struct{ id int }
	h := coerce.Handle[*frame]("a LazyFrame")

	f := &frame{id: 1}
	got, err := h("other", f)
	require.NoError(t, err)
	assert.Same(t, f, got)

	_, err = h("other", "frame")
	requireCoercionError(t, err, "other")
	assert.Contains(t, err.Error(), "expected a LazyFrame")
}

func TestSelectors(t *testing.T) {
	exprs, err := coerce.Selectors("select")("exprs", []any{"a", expr.Col("b")})
	require.NoError(t, err)
	assert.Len(t, exprs, 2)

	_, err = coerce.Selectors("select")("exprs", []any{"a", 1.5})
	require.Error(t, err)
	assert.Equal(t, "select: param [exprs[1]] expected a column name or expression, got 1.5 (float64)", err.Error())
	assert.True(t, stderrors.Is(err, errors.ErrCoercion))

	_, err = coerce.Selector("groupby")("keys", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "groupby: param [keys]")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2h", 2 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{"500ms", 500 * time.Millisecond},
		{"1w", 7 * 24 * time.Hour},
		{"3m10s", 3*time.Minute + 10*time.Second},
		{"15us", 15 * time.Microsecond},
		{"15µs", 15 * time.Microsecond},
		{"7ns", 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := coerce.ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "h", "2", "1mo", "1y", "-1h", "2x", "99999999999999w"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := coerce.ParseDuration(bad)
			assert.Error(t, err)
		})
	}

	_, err := coerce.Duration("tolerance_str", "soon")
	requireCoercionError(t, err, "tolerance_str")
}
