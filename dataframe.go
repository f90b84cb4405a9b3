package lazybridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/olekukonko/tablewriter"
	"github.com/paveg/lazybridge/internal/coerce"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/plan"
	"github.com/paveg/lazybridge/internal/series"
)

// Series is a named, typed column of a materialised table
type Series struct {
	s *series.Series
}

// DataFrame is a materialised table returned by Collect
type DataFrame struct {
	df *dataframe.DataFrame
}

// NewSeries builds a column from a host sequence. nil elements are nulls,
// host integers become int64, floats float64 and times timestamps. A mix of
// integers and floats becomes float64; any other mix is a coercion error.
func NewSeries(name string, values any) (*Series, error) {
	items, err := coerce.Slice(hostScalar)("values", values)
	if err != nil {
		return nil, err
	}

	dtype := series.Null
	for i, v := range items {
		vt := series.DTypeOfValue(v)
		st, ok := series.Supertype(dtype, vt)
		if !ok {
			return nil, errors.NewCoercionError(fmt.Sprintf("values[%d]", i),
				fmt.Sprintf("a %s value like the preceding elements", dtype), items[i])
		}
		dtype = st
	}

	b := series.NewBuilder(dtype, memory.DefaultAllocator)
	b.Reserve(len(items))
	for _, v := range items {
		cast, _ := series.Cast(v, dtype)
		if err := b.Append(cast); err != nil {
			return nil, errors.NewCoercionError("values", dtype.String()+" values", v)
		}
	}
	return &Series{s: b.Finish(name)}, nil
}

// hostScalar normalises one host sequence element to a native column value
func hostScalar(param string, v any) (any, error) {
	if coerce.IsAbsent(v) {
		return nil, nil
	}
	switch x := v.(type) {
	case bool, string:
		return x, nil
	case time.Time:
		return x.UTC(), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	}
	n, err := coerce.Int64(param, v)
	if err != nil {
		return nil, errors.NewCoercionError(param, "a bool, number, string, time or null", v)
	}
	return n, nil
}

// Name returns the column name
func (s *Series) Name() string { return s.s.Name() }

// Len returns the number of values
func (s *Series) Len() int { return s.s.Len() }

// DType returns the column type name, e.g. "i64" or "datetime[μs]"
func (s *Series) DType() string { return s.s.DType().String() }

// Value returns the value at i as int64, float64, string, bool or time.Time,
// or nil for nulls.
func (s *Series) Value(i int) any { return s.s.Value(i) }

// Values returns every value in order
func (s *Series) Values() []any {
	out := make([]any, s.s.Len())
	for i := range out {
		out[i] = s.s.Value(i)
	}
	return out
}

func (s *Series) String() string { return s.s.String() }

// NewDataFrame builds a table from equal-length columns with unique names
func NewDataFrame(columns ...*Series) (*DataFrame, error) {
	cols := make([]*series.Series, len(columns))
	for i, c := range columns {
		if c == nil {
			return nil, errors.NewCoercionError(fmt.Sprintf("columns[%d]", i), "a Series", nil)
		}
		cols[i] = c.s
	}
	df, err := dataframe.New(cols...)
	if err != nil {
		return nil, errors.NewPlanError("dataframe", err.Error())
	}
	return &DataFrame{df: df}, nil
}

// Columns returns the column names in order
func (d *DataFrame) Columns() []string { return d.df.Columns() }

// Len returns the number of rows
func (d *DataFrame) Len() int { return d.df.Len() }

// Width returns the number of columns
func (d *DataFrame) Width() int { return d.df.Width() }

// Column returns the column with the given name
func (d *DataFrame) Column(name string) (*Series, bool) {
	c, ok := d.df.Column(name)
	if !ok {
		return nil, false
	}
	return &Series{s: c}, true
}

// Rows returns every row as native values
func (d *DataFrame) Rows() [][]any { return d.df.Rows() }

// Equal reports whether both tables hold the same columns and values
func (d *DataFrame) Equal(other *DataFrame) bool {
	return other != nil && d.df.Equal(other.df)
}

// Lazy starts a plan that scans this table
func (d *DataFrame) Lazy() *LazyFrame {
	return &LazyFrame{node: plan.Scan("df", d.df)}
}

// String renders the table with a header of names and types
func (d *DataFrame) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "shape: (%d, %d)\n", d.df.Len(), d.df.Width())
	if d.df.Width() == 0 {
		return buf.String()
	}

	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	header := make([]string, d.df.Width())
	for i, c := range d.df.Series() {
		header[i] = fmt.Sprintf("%s (%s)", c.Name(), c.DType())
	}
	table.SetHeader(header)
	for r := 0; r < d.df.Len(); r++ {
		row := make([]string, d.df.Width())
		for i, c := range d.df.Series() {
			row[i] = c.GetAsString(r)
		}
		table.Append(row)
	}
	table.Render()
	return buf.String()
}
