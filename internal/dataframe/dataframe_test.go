package dataframe

import (
	stderrors "errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lazybridge/internal/errors"
	"github.com/paveg/lazybridge/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame(t *testing.T) *DataFrame {
	t.Helper()
	mem := memory.NewGoAllocator()
	df, err := New(
		series.New("id", []int64{1, 2, 3}, mem),
		series.New("name", []string{"a", "b", "c"}, mem),
		series.NewNullable("score", []float64{1.5, 0, 3.5}, []bool{true, false, true}, mem),
	)
	require.NoError(t, err)
	return df
}

func TestNew(t *testing.T) {
	df := sampleFrame(t)
	defer df.Release()

	assert.Equal(t, 3, df.Len())
	assert.Equal(t, 3, df.Width())
	assert.Equal(t, []string{"id", "name", "score"}, df.Columns())
	assert.True(t, df.HasColumn("name"))
	assert.False(t, df.HasColumn("missing"))

	t.Run("duplicate names", func(t *testing.T) {
		_, err := New(series.New("a", []int64{1}, nil), series.New("a", []int64{2}, nil))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrExecution))
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := New(series.New("a", []int64{1}, nil), series.New("b", []int64{1, 2}, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `column "b" has length 2, expected 1`)
	})
}

func TestSelectAndDrop(t *testing.T) {
	df := sampleFrame(t)
	defer df.Release()

	selected, err := df.Select("score", "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"score", "id"}, selected.Columns())
	assert.Equal(t, 3, selected.Len())

	dropped, err := df.Drop("name")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "score"}, dropped.Columns())

	_, err = df.Drop("missing")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "missing", e.Column)
	assert.Equal(t, "drop", e.Op)
}

func TestTakeSliceRows(t *testing.T) {
	df := sampleFrame(t)
	defer df.Release()

	taken := df.Take([]int{2, 0, -1}, nil)
	assert.Equal(t, [][]any{
		{int64(3), "c", 3.5},
		{int64(1), "a", 1.5},
		{nil, nil, nil},
	}, taken.Rows())

	sliced := df.Slice(1, 10)
	assert.Equal(t, 2, sliced.Len())
	assert.Equal(t, []any{int64(2), "b", nil}, sliced.Row(0))

	assert.Equal(t, 0, df.Slice(5, 2).Len())
}

func TestConcatAndEqual(t *testing.T) {
	df := sampleFrame(t)
	defer df.Release()

	both, err := df.Concat(df)
	require.NoError(t, err)
	assert.Equal(t, 6, both.Len())
	assert.Equal(t, both.Row(0), both.Row(3))

	assert.True(t, df.Equal(df.Slice(0, 3)))
	assert.False(t, df.Equal(both))

	other, err := New(series.New("id", []int64{1}, nil))
	require.NoError(t, err)
	_, err = df.Concat(other)
	assert.Error(t, err)
}

func TestWithHeight(t *testing.T) {
	df, err := WithHeight(4)
	require.NoError(t, err)
	assert.Equal(t, 4, df.Len())
	assert.Equal(t, 0, df.Width())
	assert.Equal(t, "DataFrame[empty]", df.String())
}
