package expr

import (
	"math"
	"sort"
	"time"

	"github.com/paveg/lazybridge/internal/common"
	"github.com/paveg/lazybridge/internal/series"
	"golang.org/x/exp/constraints"
)

// Interpolation selects how a quantile between two values is resolved
type Interpolation int

const (
	InterpolationNearest Interpolation = iota
	InterpolationLower
	InterpolationHigher
	InterpolationMidpoint
	InterpolationLinear
)

// Interpolations is the option table for quantile interpolation strings
var Interpolations = common.NewOptions("interpolation",
	common.Option[Interpolation]{Name: "nearest", Value: InterpolationNearest},
	common.Option[Interpolation]{Name: "lower", Value: InterpolationLower},
	common.Option[Interpolation]{Name: "higher", Value: InterpolationHigher},
	common.Option[Interpolation]{Name: "midpoint", Value: InterpolationMidpoint},
	common.Option[Interpolation]{Name: "linear", Value: InterpolationLinear},
)

func (i Interpolation) String() string {
	return Interpolations.Format(i)
}

// AggOptions carries the parameters of parameterised aggregations
type AggOptions struct {
	Ddof          uint8
	Quantile      float64
	Interpolation Interpolation
}

// OutputType returns the dtype an aggregation of an input column produces
func (a AggregationType) OutputType(in series.DType) series.DType {
	switch a {
	case AggCount:
		return series.Int64
	case AggSum:
		switch in {
		case series.Int64, series.Bool:
			return series.Int64
		default:
			return in
		}
	case AggMean, AggMedian, AggStd, AggVar, AggQuantile:
		return series.Float64
	default:
		return in
	}
}

// Aggregate reduces the rows of s selected by rows (nil = all rows) to a
// single value. The value is nil when the result is null.
func Aggregate(s *series.Series, rows []int, agg AggregationType, opts AggOptions) any {
	if rows == nil {
		rows = identity(s.Len())
	}
	switch agg {
	case AggFirst:
		if len(rows) == 0 {
			return nil
		}
		return s.Value(rows[0])
	case AggLast:
		if len(rows) == 0 {
			return nil
		}
		return s.Value(rows[len(rows)-1])
	case AggCount:
		n := int64(0)
		for _, r := range rows {
			if !s.IsNull(r) {
				n++
			}
		}
		return n
	case AggMin, AggMax:
		return extreme(s, rows, agg == AggMax)
	case AggSum:
		return sum(s, rows)
	}

	if !numericAggregatable(s.DType()) {
		return nil
	}
	values := floatValues(s, rows)
	switch agg {
	case AggMean:
		if len(values) == 0 {
			return nil
		}
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total / float64(len(values))
	case AggStd, AggVar:
		v, ok := variance(values, opts.Ddof)
		if !ok {
			return nil
		}
		if agg == AggStd {
			return math.Sqrt(v)
		}
		return v
	case AggMedian:
		return quantile(values, 0.5, InterpolationLinear)
	case AggQuantile:
		return quantile(values, opts.Quantile, opts.Interpolation)
	default:
		return nil
	}
}

func identity(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func numericAggregatable(dt series.DType) bool {
	return dt == series.Int64 || dt == series.Float64 || dt == series.Bool
}

// floatValues collects the non-null values of a numeric or bool column
func floatValues(s *series.Series, rows []int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		switch v := s.Value(r).(type) {
		case int64:
			out = append(out, float64(v))
		case float64:
			out = append(out, v)
		case bool:
			if v {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	}
	return out
}

func sum(s *series.Series, rows []int) any {
	switch s.DType() {
	case series.Int64, series.Bool:
		var total int64
		for _, r := range rows {
			switch v := s.Value(r).(type) {
			case int64:
				total += v
			case bool:
				if v {
					total++
				}
			}
		}
		return total
	case series.Float64:
		total := 0.0
		for _, r := range rows {
			if v, ok := s.Float64(r); ok {
				total += v
			}
		}
		return total
	default:
		return nil
	}
}

func extreme(s *series.Series, rows []int, wantMax bool) any {
	var best any
	for _, r := range rows {
		v := s.Value(r)
		if v == nil {
			continue
		}
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			continue
		}
		if best == nil {
			best = v
			continue
		}
		c := CompareValues(v, best)
		if (wantMax && c > 0) || (!wantMax && c < 0) {
			best = v
		}
	}
	return best
}

// variance returns the sample variance with divisor N-ddof; ok is false when
// the divisor is not positive.
func variance(values []float64, ddof uint8) (float64, bool) {
	n := len(values)
	if n-int(ddof) <= 0 {
		return 0, false
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return ss / float64(n-int(ddof)), true
}

// quantile returns the q-th quantile of values, or nil for empty input.
// values is sorted in place with NaN above every number.
func quantile(values []float64, q float64, interp Interpolation) any {
	n := len(values)
	if n == 0 {
		return nil
	}
	sort.SliceStable(values, func(i, j int) bool { return lessFloat(values[i], values[j]) })

	h := q * float64(n-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	switch interp {
	case InterpolationLower:
		return values[lo]
	case InterpolationHigher:
		return values[hi]
	case InterpolationNearest:
		return values[int(math.Round(h))]
	case InterpolationMidpoint:
		return (values[lo] + values[hi]) / 2
	default:
		if lo == hi {
			return values[lo]
		}
		return values[lo] + (h-float64(lo))*(values[hi]-values[lo])
	}
}

func lessFloat(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}

// CompareValues orders two non-null native values of compatible types.
// Numbers compare numerically across int64 and float64 with NaN greatest,
// strings lexically, false before true, times chronologically. Incomparable
// pairs report 0.
func CompareValues(a, b any) int {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y)
		case float64:
			return cmpFloat(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmpFloat(x, y)
		case int64:
			return cmpFloat(x, float64(y))
		}
	case string:
		if y, ok := b.(string); ok {
			return cmpOrdered(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return 0
}

func cmpOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case lessFloat(a, b):
		return -1
	case lessFloat(b, a):
		return 1
	default:
		return 0
	}
}
