// Package testutil provides common testing utilities shared by the engine,
// pipeline and public API tests.
//
// It consolidates the patterns those tests repeat:
//   - allocator setup
//   - standard sample frames (employees, trades and quotes)
//   - row-level frame assertions with readable diffs
package testutil

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// defaultRowCount is the default number of rows in test DataFrames.
	defaultRowCount = 4
)

// TestMemoryContext provides a memory allocator for a test.
type TestMemoryContext struct {
	Allocator memory.Allocator
}

// SetupMemoryTest creates the allocator a test builds its frames with.
// Memory is reclaimed by the garbage collector.
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{Allocator: memory.NewGoAllocator()}
}

// TestDataFrameOption configures test DataFrame creation.
type TestDataFrameOption func(*testDataFrameConfig)

type testDataFrameConfig struct {
	includeNulls bool
	rowCount     int
	withActive   bool
}

// WithNulls makes every third age null.
func WithNulls() TestDataFrameOption {
	return func(cfg *testDataFrameConfig) {
		cfg.includeNulls = true
	}
}

// WithRowCount sets the number of rows in test data.
func WithRowCount(count int) TestDataFrameOption {
	return func(cfg *testDataFrameConfig) {
		cfg.rowCount = count
	}
}

// WithActiveColumn includes an 'active' boolean column.
func WithActiveColumn() TestDataFrameOption {
	return func(cfg *testDataFrameConfig) {
		cfg.withActive = true
	}
}

// CreateTestDataFrame creates a standard test DataFrame with employee data.
//
// Default DataFrame includes:
//   - name (string): ["Alice", "Bob", "Charlie", "David"]
//   - age (int64): [25, 30, 35, 28]
//   - department (string): ["Engineering", "Sales", "Engineering", "Marketing"]
//   - salary (int64): [100000, 80000, 120000, 75000]
func CreateTestDataFrame(tb testing.TB, allocator memory.Allocator, opts ...TestDataFrameOption) *dataframe.DataFrame {
	tb.Helper()
	cfg := &testDataFrameConfig{
		rowCount: defaultRowCount,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var valid []bool
	if cfg.includeNulls {
		valid = make([]bool, cfg.rowCount)
		for i := range valid {
			valid[i] = i%3 != 2
		}
	}

	cols := []*series.Series{
		series.New("name", generateNames(cfg.rowCount), allocator),
		series.NewNullable("age", generateAges(cfg.rowCount), valid, allocator),
		series.New("department", generateDepartments(cfg.rowCount), allocator),
		series.New("salary", generateSalaries(cfg.rowCount), allocator),
	}
	if cfg.withActive {
		cols = append(cols, series.New("active", generateActiveFlags(cfg.rowCount), allocator))
	}

	df, err := dataframe.New(cols...)
	require.NoError(tb, err)
	return df
}

// CreateSimpleTestDataFrame creates a simple 2-column DataFrame for basic testing.
func CreateSimpleTestDataFrame(tb testing.TB, allocator memory.Allocator) *dataframe.DataFrame {
	tb.Helper()
	df, err := dataframe.New(
		series.New("name", []string{"Alice", "Bob"}, allocator),
		series.New("age", []int64{25, 30}, allocator),
	)
	require.NoError(tb, err)
	return df
}

// Frame builds a DataFrame from cols, failing the test on error.
func Frame(tb testing.TB, cols ...*series.Series) *dataframe.DataFrame {
	tb.Helper()
	df, err := dataframe.New(cols...)
	require.NoError(tb, err)
	return df
}

// TradesBase is the first timestamp of the trades and quotes fixtures.
var TradesBase = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// CreateTradesAndQuotes returns two frames keyed by time and ticker for
// as-of join tests. Quotes are deliberately not sorted by time.
//
// trades: time (+0s, +2s, +5s, +9s), ticker [A, B, A, A], price.
// quotes: time (+4s, +1s, +1s, +8s), ticker [A, A, B, A], bid.
func CreateTradesAndQuotes(tb testing.TB, allocator memory.Allocator) (trades, quotes *dataframe.DataFrame) {
	tb.Helper()
	at := func(secs ...int) []time.Time {
		out := make([]time.Time, len(secs))
		for i, s := range secs {
			out[i] = TradesBase.Add(time.Duration(s) * time.Second)
		}
		return out
	}
	trades = Frame(tb,
		series.NewTimestamps("time", at(0, 2, 5, 9), nil, allocator),
		series.New("ticker", []string{"A", "B", "A", "A"}, allocator),
		series.New("price", []float64{10, 20, 11, 12}, allocator),
	)
	quotes = Frame(tb,
		series.NewTimestamps("time", at(4, 1, 1, 8), nil, allocator),
		series.New("ticker", []string{"A", "A", "B", "A"}, allocator),
		series.New("bid", []float64{10.4, 9.9, 19.5, 11.8}, allocator),
	)
	return trades, quotes
}

// AssertDataFrameEqual compares column names, types and every value of two
// frames. NaN equals NaN.
func AssertDataFrameEqual(t *testing.T, expected, actual *dataframe.DataFrame) {
	t.Helper()

	require.NotNil(t, expected, "expected DataFrame should not be nil")
	require.NotNil(t, actual, "actual DataFrame should not be nil")

	assert.Equal(t, expected.Columns(), actual.Columns(), "DataFrame columns should match")
	for _, name := range expected.Columns() {
		e, _ := expected.Column(name)
		if a, ok := actual.Column(name); ok {
			assert.Equal(t, e.DType(), a.DType(), "column %s type should match", name)
		}
	}
	AssertRows(t, actual, expected.Rows())
}

// AssertRows checks the rows of df against want, printing a diff on mismatch.
func AssertRows(t *testing.T, df *dataframe.DataFrame, want [][]any) {
	t.Helper()
	require.NotNil(t, df, "DataFrame should not be nil")
	if want == nil {
		want = [][]any{}
	}
	if diff := cmp.Diff(want, df.Rows(), cmpopts.EquateNaNs(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

// Column returns the values of one column of df.
func Column(t *testing.T, df *dataframe.DataFrame, name string) []any {
	t.Helper()
	s, ok := df.Column(name)
	require.True(t, ok, "column %s should exist", name)
	out := make([]any, s.Len())
	for i := range out {
		out[i] = s.Value(i)
	}
	return out
}

// AssertDataFrameHasColumns verifies that a DataFrame has the expected columns in order.
func AssertDataFrameHasColumns(t *testing.T, df *dataframe.DataFrame, expectedColumns []string) {
	t.Helper()

	require.NotNil(t, df, "DataFrame should not be nil")
	assert.Equal(t, expectedColumns, df.Columns(), "columns should match")
}

// AssertDataFrameNotEmpty verifies that a DataFrame is not empty.
func AssertDataFrameNotEmpty(t *testing.T, df *dataframe.DataFrame) {
	t.Helper()

	require.NotNil(t, df, "DataFrame should not be nil")
	assert.Positive(t, df.Len(), "DataFrame should not be empty")
	assert.Positive(t, df.Width(), "DataFrame should have columns")
}

// Helper functions for generating test data

func generateNames(count int) []string {
	baseNames := []string{"Alice", "Bob", "Charlie", "David", "Eve", "Frank", "Grace", "Henry"}
	names := make([]string, count)
	for i := range count {
		names[i] = baseNames[i%len(baseNames)]
	}
	return names
}

func generateAges(count int) []int64 {
	baseAges := []int64{25, 30, 35, 28, 32, 45, 29, 38}
	ages := make([]int64, count)
	for i := range count {
		ages[i] = baseAges[i%len(baseAges)]
	}
	return ages
}

func generateDepartments(count int) []string {
	baseDepts := []string{"Engineering", "Sales", "Engineering", "Marketing", "HR", "Finance", "Engineering", "Sales"}
	departments := make([]string, count)
	for i := range count {
		departments[i] = baseDepts[i%len(baseDepts)]
	}
	return departments
}

func generateSalaries(count int) []int64 {
	baseSalaries := []int64{100000, 80000, 120000, 75000, 90000, 110000, 95000, 85000}
	salaries := make([]int64, count)
	for i := range count {
		salaries[i] = baseSalaries[i%len(baseSalaries)]
	}
	return salaries
}

func generateActiveFlags(count int) []bool {
	baseFlags := []bool{true, true, false, true, true, false, true, false}
	flags := make([]bool, count)
	for i := range count {
		flags[i] = baseFlags[i%len(baseFlags)]
	}
	return flags
}
