// Package dataframe provides the materialised table produced and consumed by
// the engine
package dataframe

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/series"
	"github.com/paveg/lazybridge/internal/validation"
)

// DataFrame represents a table of data with typed columns
type DataFrame struct {
	columns map[string]*series.Series
	order   []string // Maintains column order
	height  int
}

// New creates a new DataFrame from columns. Names must be unique and every
// column must have the same length.
func New(cols ...*series.Series) (*DataFrame, error) {
	names := make([]string, len(cols))
	for i, s := range cols {
		names[i] = s.Name()
	}
	if err := validation.ValidateUniqueNames("dataframe", names...); err != nil {
		return nil, err
	}

	df := &DataFrame{
		columns: make(map[string]*series.Series, len(cols)),
		order:   names,
	}
	for i, s := range cols {
		if i == 0 {
			df.height = s.Len()
		} else if s.Len() != df.height {
			return nil, errors.NewExecutionError("dataframe", fmt.Sprintf(
				"column %q has length %d, expected %d", s.Name(), s.Len(), df.height))
		}
		df.columns[s.Name()] = s
	}
	return df, nil
}

// Empty returns a DataFrame with no columns and no rows
func Empty() *DataFrame {
	return &DataFrame{columns: map[string]*series.Series{}}
}

// Columns returns the names of all columns in order
func (df *DataFrame) Columns() []string {
	return append([]string{}, df.order...)
}

// Len returns the number of rows
func (df *DataFrame) Len() int {
	return df.height
}

// Width returns the number of columns
func (df *DataFrame) Width() int {
	return len(df.order)
}

// Column returns the series for the given column name
func (df *DataFrame) Column(name string) (*series.Series, bool) {
	s, exists := df.columns[name]
	return s, exists
}

// ColumnAt returns the i-th column in order
func (df *DataFrame) ColumnAt(i int) *series.Series {
	return df.columns[df.order[i]]
}

// Series returns all columns in order
func (df *DataFrame) Series() []*series.Series {
	out := make([]*series.Series, len(df.order))
	for i, name := range df.order {
		out[i] = df.columns[name]
	}
	return out
}

// HasColumn checks if a column exists
func (df *DataFrame) HasColumn(name string) bool {
	_, exists := df.columns[name]
	return exists
}

// Select returns a new DataFrame with only the specified columns, in the
// order given.
func (df *DataFrame) Select(names ...string) (*DataFrame, error) {
	if err := validation.ValidateColumns(df, "select", names...); err != nil {
		return nil, err
	}
	cols := make([]*series.Series, len(names))
	for i, name := range names {
		cols[i] = df.columns[name].Rename(name)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.height = df.height
	return out, nil
}

// Drop returns a new DataFrame without the specified columns
func (df *DataFrame) Drop(names ...string) (*DataFrame, error) {
	if err := validation.ValidateColumns(df, "drop", names...); err != nil {
		return nil, err
	}
	dropSet := make(map[string]bool, len(names))
	for _, name := range names {
		dropSet[name] = true
	}

	out := &DataFrame{columns: make(map[string]*series.Series), height: df.height}
	for _, name := range df.order {
		if !dropSet[name] {
			out.columns[name] = df.columns[name].Rename(name)
			out.order = append(out.order, name)
		}
	}
	return out, nil
}

// WithHeight returns a DataFrame built from cols whose row count is height
// even when cols is empty.
func WithHeight(height int, cols ...*series.Series) (*DataFrame, error) {
	df, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		df.height = height
	}
	return df, nil
}

// Take builds a new DataFrame from the rows at indices; negative indices
// become null rows.
func (df *DataFrame) Take(indices []int, mem memory.Allocator) *DataFrame {
	out := &DataFrame{
		columns: make(map[string]*series.Series, len(df.order)),
		order:   df.Columns(),
		height:  len(indices),
	}
	for _, name := range df.order {
		out.columns[name] = df.columns[name].Take(indices, mem)
	}
	return out
}

// Slice creates a new DataFrame containing rows from start (inclusive) to
// end (exclusive), clamped to the frame.
func (df *DataFrame) Slice(start, end int) *DataFrame {
	if start < 0 {
		start = 0
	}
	if end > df.height {
		end = df.height
	}
	if start > end {
		start = end
	}
	out := &DataFrame{
		columns: make(map[string]*series.Series, len(df.order)),
		order:   df.Columns(),
		height:  end - start,
	}
	for _, name := range df.order {
		out.columns[name] = df.columns[name].Slice(start, end)
	}
	return out
}

// Concat appends the rows of others, which must have the same column names
// and types in the same order.
func (df *DataFrame) Concat(others ...*DataFrame) (*DataFrame, error) {
	if len(others) == 0 {
		return df, nil
	}
	for _, o := range others {
		if !df.hasSameSchema(o) {
			return nil, errors.NewExecutionError("concat", "frames must have identical schemas")
		}
	}

	height := df.height
	for _, o := range others {
		height += o.height
	}
	out := &DataFrame{
		columns: make(map[string]*series.Series, len(df.order)),
		order:   df.Columns(),
		height:  height,
	}
	for _, name := range df.order {
		parts := []*series.Series{df.columns[name]}
		for _, o := range others {
			parts = append(parts, o.columns[name])
		}
		s, err := series.Concat(parts, nil)
		if err != nil {
			return nil, errors.NewExecutionError("concat", err.Error())
		}
		out.columns[name] = s
	}
	return out, nil
}

func (df *DataFrame) hasSameSchema(other *DataFrame) bool {
	if len(df.order) != len(other.order) {
		return false
	}
	for i, name := range df.order {
		if other.order[i] != name || other.columns[name].DType() != df.columns[name].DType() {
			return false
		}
	}
	return true
}

// Row returns the values of row i in column order
func (df *DataFrame) Row(i int) []any {
	row := make([]any, len(df.order))
	for j, name := range df.order {
		row[j] = df.columns[name].Value(i)
	}
	return row
}

// Rows returns every row as native values
func (df *DataFrame) Rows() [][]any {
	rows := make([][]any, df.height)
	for i := range rows {
		rows[i] = df.Row(i)
	}
	return rows
}

// Equal reports whether both frames have the same columns, types and values.
// NaN equals NaN.
func (df *DataFrame) Equal(other *DataFrame) bool {
	if !df.hasSameSchema(other) || df.height != other.height {
		return false
	}
	for _, name := range df.order {
		a, b := df.columns[name], other.columns[name]
		for i := 0; i < df.height; i++ {
			if a.GetAsString(i) != b.GetAsString(i) || a.IsNull(i) != b.IsNull(i) {
				return false
			}
		}
	}
	return true
}

// String returns a string representation of the DataFrame
func (df *DataFrame) String() string {
	if len(df.order) == 0 {
		return "DataFrame[empty]"
	}

	parts := []string{fmt.Sprintf("DataFrame[%dx%d]", df.Len(), df.Width())}
	for _, name := range df.order {
		parts = append(parts, fmt.Sprintf("  %s: %s", name, df.columns[name].DType()))
	}
	return strings.Join(parts, "\n")
}

// Release releases the memory of every column
func (df *DataFrame) Release() {
	for _, s := range df.columns {
		s.Release()
	}
}
