package lazybridge

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lazybridge/internal/errors"
	lbio "github.com/paveg/lazybridge/internal/io"
)

// ReadCSV reads a CSV file with a header row. Column types are inferred as
// int64, float64, bool or string; empty cells are nulls.
func ReadCSV(path string) (*DataFrame, error) {
	df, err := lbio.ReadCSVFile(path, memory.DefaultAllocator)
	if err != nil {
		return nil, ioError("read_csv", err)
	}
	return &DataFrame{df: df}, nil
}

// ReadParquet reads a Parquet file
func ReadParquet(path string) (*DataFrame, error) {
	df, err := lbio.ReadParquetFile(path, memory.DefaultAllocator)
	if err != nil {
		return nil, ioError("read_parquet", err)
	}
	return &DataFrame{df: df}, nil
}

// WriteCSV writes d with a header row; nulls become empty cells
func (d *DataFrame) WriteCSV(w io.Writer) error {
	if err := lbio.NewCSVWriter(w, lbio.DefaultCSVOptions()).Write(d.df); err != nil {
		return ioError("write_csv", err)
	}
	return nil
}

// WriteParquet writes d as a snappy-compressed Parquet file
func (d *DataFrame) WriteParquet(w io.Writer) error {
	if err := lbio.NewParquetWriter(w, lbio.DefaultParquetOptions()).Write(d.df); err != nil {
		return ioError("write_parquet", err)
	}
	return nil
}

func ioError(op string, err error) error {
	return &errors.Error{Kind: errors.KindExecution, Op: op, Cause: err}
}
