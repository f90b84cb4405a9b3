// Package series provides the Arrow-backed column type the engine executes over
package series

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Primitive is the set of Go element types a Series can be built from directly.
type Primitive interface {
	int64 | float64 | string | bool
}

// Series is a named, nullable column with an Apache Arrow backend
type Series struct {
	name  string
	dtype DType
	array arrow.Array
}

// New creates a Series from a slice of values with no nulls
func New[T Primitive](name string, values []T, mem memory.Allocator) *Series {
	return NewNullable(name, values, nil, mem)
}

// NewNullable creates a Series from values and a validity mask. A nil mask
// means every value is valid.
func NewNullable[T Primitive](name string, values []T, valid []bool, mem memory.Allocator) *Series {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	var arr arrow.Array
	var dtype DType

	switch v := any(values).(type) {
	case []int64:
		builder := array.NewInt64Builder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr, dtype = builder.NewArray(), Int64
	case []float64:
		builder := array.NewFloat64Builder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr, dtype = builder.NewArray(), Float64
	case []string:
		builder := array.NewStringBuilder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr, dtype = builder.NewArray(), String
	case []bool:
		builder := array.NewBooleanBuilder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr, dtype = builder.NewArray(), Bool
	}

	return &Series{name: name, dtype: dtype, array: arr}
}

// NewTimestamps creates a Timestamp Series from time values
func NewTimestamps(name string, values []time.Time, valid []bool, mem memory.Allocator) *Series {
	b := NewBuilder(Timestamp, mem)
	for i, t := range values {
		if valid != nil && !valid[i] {
			b.AppendNull()
			continue
		}
		b.appendTimestamp(t.UnixMicro())
	}
	return b.Finish(name)
}

// Nulls creates a Series of n nulls typed as dtype
func Nulls(name string, dtype DType, n int, mem memory.Allocator) *Series {
	b := NewBuilder(dtype, mem)
	for i := 0; i < n; i++ {
		b.AppendNull()
	}
	return b.Finish(name)
}

// FromArray wraps an existing Arrow array. The array is retained.
func FromArray(name string, arr arrow.Array) (*Series, error) {
	dtype, ok := DTypeOf(arr.DataType())
	if !ok {
		return nil, fmt.Errorf("unsupported arrow type %s for column %q", arr.DataType(), name)
	}
	arr.Retain()
	return &Series{name: name, dtype: dtype, array: arr}, nil
}

// Name returns the column name
func (s *Series) Name() string {
	return s.name
}

// Len returns the length of the series
func (s *Series) Len() int {
	return s.array.Len()
}

// DType returns the logical type
func (s *Series) DType() DType {
	return s.dtype
}

// DataType returns the Arrow data type
func (s *Series) DataType() arrow.DataType {
	return s.array.DataType()
}

// IsNull checks if the value at index is null
func (s *Series) IsNull(index int) bool {
	return s.array.IsNull(index)
}

// NullCount returns the number of null values
func (s *Series) NullCount() int {
	return s.array.NullN()
}

// Value returns the value at index as int64, float64, string, bool or
// time.Time, or nil for nulls.
func (s *Series) Value(index int) any {
	if s.array.IsNull(index) {
		return nil
	}
	switch arr := s.array.(type) {
	case *array.Int64:
		return arr.Value(index)
	case *array.Float64:
		return arr.Value(index)
	case *array.String:
		return arr.Value(index)
	case *array.Boolean:
		return arr.Value(index)
	case *array.Timestamp:
		return time.UnixMicro(int64(arr.Value(index))).UTC()
	default:
		return nil
	}
}

// Float64 returns the value at index as a float64 for numeric and timestamp
// columns; timestamps are reported in microseconds. ok is false for nulls and
// non-numeric columns.
func (s *Series) Float64(index int) (v float64, ok bool) {
	if s.array.IsNull(index) {
		return 0, false
	}
	switch arr := s.array.(type) {
	case *array.Int64:
		return float64(arr.Value(index)), true
	case *array.Float64:
		return arr.Value(index), true
	case *array.Timestamp:
		return float64(arr.Value(index)), true
	default:
		return 0, false
	}
}

// Int64 returns the value at index for Int64 and Timestamp columns.
func (s *Series) Int64(index int) (v int64, ok bool) {
	if s.array.IsNull(index) {
		return 0, false
	}
	switch arr := s.array.(type) {
	case *array.Int64:
		return arr.Value(index), true
	case *array.Timestamp:
		return int64(arr.Value(index)), true
	default:
		return 0, false
	}
}

// GetAsString returns the value at index formatted for display
func (s *Series) GetAsString(index int) string {
	v := s.Value(index)
	switch x := v.(type) {
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return "NaN"
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999")
	default:
		return fmt.Sprint(x)
	}
}

// Rename returns a Series sharing the same data under a new name
func (s *Series) Rename(name string) *Series {
	s.array.Retain()
	return &Series{name: name, dtype: s.dtype, array: s.array}
}

// Take builds a new Series from the rows at indices; a negative index yields
// a null.
func (s *Series) Take(indices []int, mem memory.Allocator) *Series {
	b := NewBuilder(s.dtype, mem)
	b.Reserve(len(indices))
	for _, idx := range indices {
		if idx < 0 {
			b.AppendNull()
			continue
		}
		b.AppendFrom(s, idx)
	}
	return b.Finish(s.name)
}

// Slice returns rows [start, end) as a new Series
func (s *Series) Slice(start, end int) *Series {
	arr := array.NewSlice(s.array, int64(start), int64(end))
	return &Series{name: s.name, dtype: s.dtype, array: arr}
}

// String returns a string representation of the series
func (s *Series) String() string {
	return fmt.Sprintf("Series[%s]: %s (len=%d)", s.dtype, s.name, s.Len())
}

// Array returns the underlying Arrow array (retains a reference)
func (s *Series) Array() arrow.Array {
	if s.array != nil {
		s.array.Retain()
		return s.array
	}
	return nil
}

// Release releases the underlying Arrow memory
func (s *Series) Release() {
	if s.array != nil {
		s.array.Release()
	}
}
