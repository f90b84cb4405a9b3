package series

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// DType is the logical type of a column.
type DType int

const (
	Null DType = iota
	Int64
	Float64
	String
	Bool
	Timestamp
)

// TimestampType is the Arrow type backing Timestamp columns.
var TimestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

func (d DType) String() string {
	switch d {
	case Null:
		return "null"
	case Int64:
		return "i64"
	case Float64:
		return "f64"
	case String:
		return "str"
	case Bool:
		return "bool"
	case Timestamp:
		return "datetime[μs]"
	default:
		return fmt.Sprintf("unknown_dtype(%d)", int(d))
	}
}

// IsNumeric reports whether values of d can be treated as numbers.
func (d DType) IsNumeric() bool {
	return d == Int64 || d == Float64
}

// Arrow returns the Arrow data type for d.
func (d DType) Arrow() arrow.DataType {
	switch d {
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case String:
		return arrow.BinaryTypes.String
	case Bool:
		return arrow.FixedWidthTypes.Boolean
	case Timestamp:
		return TimestampType
	default:
		return arrow.Null
	}
}

// DTypeOf maps an Arrow data type to a DType.
func DTypeOf(dt arrow.DataType) (DType, bool) {
	//nolint:exhaustive // Only handling supported types
	switch dt.ID() {
	case arrow.NULL:
		return Null, true
	case arrow.INT64:
		return Int64, true
	case arrow.FLOAT64:
		return Float64, true
	case arrow.STRING:
		return String, true
	case arrow.BOOL:
		return Bool, true
	case arrow.TIMESTAMP:
		if ts, ok := dt.(*arrow.TimestampType); ok && ts.Unit == arrow.Microsecond {
			return Timestamp, true
		}
		return Null, false
	default:
		return Null, false
	}
}

// Supertype returns the common type of a and b, used when values of both must
// live in one column. Null is absorbed by any type; Int64 widens to Float64.
func Supertype(a, b DType) (DType, bool) {
	switch {
	case a == b:
		return a, true
	case a == Null:
		return b, true
	case b == Null:
		return a, true
	case a.IsNumeric() && b.IsNumeric():
		return Float64, true
	default:
		return Null, false
	}
}
