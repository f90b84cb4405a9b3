package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/lazybridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trades(t *testing.T) *lazybridge.DataFrame {
	t.Helper()
	sym, err := lazybridge.NewSeries("sym", []string{"a", "b", "a", "b", "a"})
	require.NoError(t, err)
	qty, err := lazybridge.NewSeries("qty", []int{5, 1, 2, 7, 3})
	require.NoError(t, err)
	df, err := lazybridge.NewDataFrame(sym, qty)
	require.NoError(t, err)
	return df
}

func build(t *testing.T, doc string, opts ...Option) (*lazybridge.LazyFrame, error) {
	t.Helper()
	d, err := Parse([]byte(doc))
	require.NoError(t, err)
	opts = append([]Option{WithFrame("trades", trades(t))}, opts...)
	return NewBuilder(d, opts...).Build()
}

func rows(t *testing.T, lf *lazybridge.LazyFrame) [][]any {
	t.Helper()
	df, err := lf.Collect()
	require.NoError(t, err)
	return df.Rows()
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing source",
			doc:  "pipeline: {steps: []}",
			want: "pipeline.source is required",
		},
		{
			name: "source with two formats",
			doc:  "sources: {t: {csv: a.csv, parquet: a.parquet}}\npipeline: {source: t}",
			want: "exactly one of csv and parquet",
		},
		{
			name: "unknown top-level key",
			doc:  "pipeline: {source: t}\nextra: 1",
			want: "parsing pipeline",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseAcceptsJSON(t *testing.T) {
	doc, err := Parse([]byte(`{"sources": {"q": {"parquet": "q.parquet"}}, "pipeline": {"source": "q", "steps": [{"reverse": null}]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, doc.SourceNames())
	assert.Len(t, doc.Pipeline.Steps, 1)
}

func TestBuildFilterAndSort(t *testing.T) {
	lf, err := build(t, `
pipeline:
  source: trades
  steps:
    - filter: {gt: [qty, 1]}
    - sort_by_exprs: {by: [sym, qty], descending: [false, true]}
`)
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"a", int64(5)},
		{"a", int64(3)},
		{"a", int64(2)},
		{"b", int64(7)},
	}, rows(t, lf))
}

func TestBuildGroupBy(t *testing.T) {
	lf, err := build(t, `
pipeline:
  source: trades
  steps:
    - groupby:
        by: sym
        maintain_order: true
        agg: [{alias: [{sum: qty}, total]}, {count: qty}]
`)
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"a", int64(10), int64(3)},
		{"b", int64(8), int64(2)},
	}, rows(t, lf))

	lf, err = build(t, `
pipeline:
  source: trades
  steps:
    - groupby: {by: [sym], maintain_order: true, head: 1.0}
`)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a", int64(5)}, {"b", int64(1)}}, rows(t, lf))
}

func TestBuildJoinWithNestedPipeline(t *testing.T) {
	lf, err := build(t, `
pipeline:
  source: trades
  steps:
    - join:
        other:
          source: trades
          steps:
            - groupby: {by: [sym], maintain_order: true, agg: [{max: qty}]}
        on: sym
        how: left
    - limit: 2
`)
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"a", int64(5), int64(5)},
		{"b", int64(1), int64(7)},
	}, rows(t, lf))
}

func TestStepErrors(t *testing.T) {
	tests := []struct {
		name  string
		steps string
		check func(error) bool
		want  string
	}{
		{"unknown step", "- explode: qty", lazybridge.IsCoercion, `unrecognized option "explode"`},
		{"fractional limit", "- limit: 2.5", lazybridge.IsCoercion, "limit: param [n]"},
		{"unknown argument", "- unique: {subset: [sym], order: first}", lazybridge.IsCoercion, `unrecognized option "order"`},
		{"two step names", "- {reverse: null, first: null}", lazybridge.IsCoercion, "exactly one step name"},
		{"groupby without finisher", "- groupby: {by: [sym]}", lazybridge.IsConfiguration, "one of agg, head and tail"},
		{"groupby with two finishers", "- groupby: {by: [sym], head: 1, tail: 1}", lazybridge.IsConfiguration, "mutually exclusive"},
		{"both tolerances", "- join_asof: {other: trades, on: qty, tolerance: 1, tolerance_str: 1s}", lazybridge.IsConfiguration, "mutually exclusive"},
		{"unknown expression", "- filter: {xor: [qty, 1]}", lazybridge.IsCoercion, `unrecognized option "xor"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, "pipeline:\n  source: trades\n  steps:\n    "+tt.steps+"\n")
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadResolvesSourcesAgainstFileDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t.csv"), []byte("x,y\n1,a\n2,b\n"), 0o600))
	path := filepath.Join(dir, "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: {t: {csv: t.csv}}\npipeline: {source: t, steps: [{tail: 1}]}\n"), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)
	lf, err := NewBuilder(doc).Build()
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(2), "b"}}, rows(t, lf))
}

func TestUnknownSource(t *testing.T) {
	_, err := build(t, "pipeline: {source: nowhere}")
	require.Error(t, err)
	assert.True(t, lazybridge.IsConfiguration(err))
	assert.Contains(t, err.Error(), `unknown source "nowhere"`)
}
