package series

import (
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Builder accumulates values of one DType into a Series
type Builder struct {
	dtype DType
	b     array.Builder
}

// NewBuilder creates a Builder for dtype
func NewBuilder(dtype DType, mem memory.Allocator) *Builder {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	var b array.Builder
	switch dtype {
	case Int64:
		b = array.NewInt64Builder(mem)
	case Float64:
		b = array.NewFloat64Builder(mem)
	case String:
		b = array.NewStringBuilder(mem)
	case Bool:
		b = array.NewBooleanBuilder(mem)
	case Timestamp:
		b = array.NewTimestampBuilder(mem, TimestampType)
	default:
		b = array.NewNullBuilder(mem)
	}
	return &Builder{dtype: dtype, b: b}
}

// DType returns the type being built
func (b *Builder) DType() DType {
	return b.dtype
}

// Len returns the number of values appended so far
func (b *Builder) Len() int {
	return b.b.Len()
}

// Reserve grows capacity for n more values
func (b *Builder) Reserve(n int) {
	b.b.Reserve(n)
}

// AppendNull appends a null
func (b *Builder) AppendNull() {
	b.b.AppendNull()
}

// Append appends a native value; nil appends a null. Values must already be
// of the builder's type (see Cast for conversions).
func (b *Builder) Append(v any) error {
	if v == nil {
		b.b.AppendNull()
		return nil
	}
	switch bb := b.b.(type) {
	case *array.Int64Builder:
		x, ok := v.(int64)
		if !ok {
			return fmt.Errorf("cannot append %T to %s column", v, b.dtype)
		}
		bb.Append(x)
	case *array.Float64Builder:
		x, ok := v.(float64)
		if !ok {
			return fmt.Errorf("cannot append %T to %s column", v, b.dtype)
		}
		bb.Append(x)
	case *array.StringBuilder:
		x, ok := v.(string)
		if !ok {
			return fmt.Errorf("cannot append %T to %s column", v, b.dtype)
		}
		bb.Append(x)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("cannot append %T to %s column", v, b.dtype)
		}
		bb.Append(x)
	case *array.TimestampBuilder:
		x, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("cannot append %T to %s column", v, b.dtype)
		}
		bb.Append(arrow.Timestamp(x.UnixMicro()))
	default:
		return fmt.Errorf("cannot append %T to %s column", v, b.dtype)
	}
	return nil
}

func (b *Builder) appendTimestamp(micros int64) {
	b.b.(*array.TimestampBuilder).Append(arrow.Timestamp(micros))
}

// AppendFrom copies row i of src, which must have the builder's type
func (b *Builder) AppendFrom(src *Series, i int) {
	if src.array.IsNull(i) {
		b.b.AppendNull()
		return
	}
	switch bb := b.b.(type) {
	case *array.Int64Builder:
		bb.Append(src.array.(*array.Int64).Value(i))
	case *array.Float64Builder:
		bb.Append(src.array.(*array.Float64).Value(i))
	case *array.StringBuilder:
		bb.Append(src.array.(*array.String).Value(i))
	case *array.BooleanBuilder:
		bb.Append(src.array.(*array.Boolean).Value(i))
	case *array.TimestampBuilder:
		bb.Append(src.array.(*array.Timestamp).Value(i))
	default:
		b.b.AppendNull()
	}
}

// Finish builds the Series and releases the builder
func (b *Builder) Finish(name string) *Series {
	defer b.b.Release()
	return &Series{name: name, dtype: b.dtype, array: b.b.NewArray()}
}

// FromValues builds a Series of dtype from native values (nil = null)
func FromValues(name string, dtype DType, values []any, mem memory.Allocator) (*Series, error) {
	b := NewBuilder(dtype, mem)
	b.Reserve(len(values))
	for i, v := range values {
		if err := b.Append(v); err != nil {
			b.b.Release()
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return b.Finish(name), nil
}

// Cast converts a native value to dtype without losing information. Floats
// convert to Int64 only when integral and in range; strings never convert to
// numbers.
func Cast(v any, dtype DType) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch dtype {
	case Int64:
		switch x := v.(type) {
		case int64:
			return x, true
		case float64:
			if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
				return nil, false
			}
			return int64(x), true
		}
	case Float64:
		switch x := v.(type) {
		case float64:
			return x, true
		case int64:
			return float64(x), true
		}
	case String:
		if x, ok := v.(string); ok {
			return x, true
		}
	case Bool:
		if x, ok := v.(bool); ok {
			return x, true
		}
	case Timestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), true
		case int64:
			return time.UnixMicro(x).UTC(), true
		}
	}
	return nil, false
}

// DTypeOfValue reports the DType a native value would be stored as.
func DTypeOfValue(v any) DType {
	switch v.(type) {
	case int64:
		return Int64
	case float64:
		return Float64
	case string:
		return String
	case bool:
		return Bool
	case time.Time:
		return Timestamp
	default:
		return Null
	}
}

// Concat appends the rows of parts in order. All parts must share a DType;
// the result takes the first part's name.
func Concat(parts []*Series, mem memory.Allocator) (*Series, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat requires at least one series")
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	arrs := make([]arrow.Array, len(parts))
	for i, p := range parts {
		if p.dtype != parts[0].dtype {
			return nil, fmt.Errorf("cannot concat %s column %q with %s column %q",
				parts[0].dtype, parts[0].name, p.dtype, p.name)
		}
		arrs[i] = p.array
	}
	arr, err := array.Concatenate(arrs, mem)
	if err != nil {
		return nil, err
	}
	return &Series{name: parts[0].name, dtype: parts[0].dtype, array: arr}, nil
}
