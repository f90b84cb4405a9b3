package io

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/series"
)

// ReadParquet reads a Parquet stream into a DataFrame
func ReadParquet(r io.Reader, mem memory.Allocator) (*dataframe.DataFrame, error) {
	return NewParquetReader(r, mem).Read()
}

// ReadParquetFile opens path and reads it with ReadParquet
func ReadParquetFile(path string, mem memory.Allocator) (*dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer f.Close()

	df, err := ReadParquet(f, mem)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return df, nil
}

// Read reads Parquet data and returns a DataFrame
func (r *ParquetReader) Read() (*dataframe.DataFrame, error) {
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, r.mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer table.Release()

	return r.arrowTableToDataFrame(table)
}

func (r *ParquetReader) arrowTableToDataFrame(table arrow.Table) (*dataframe.DataFrame, error) {
	schema := table.Schema()
	cols := make([]*series.Series, 0, table.NumCols())
	for i := 0; i < int(table.NumCols()); i++ {
		field := schema.Field(i)
		s, err := r.columnToSeries(field, table.Column(i).Data().Chunks())
		if err != nil {
			return nil, fmt.Errorf("converting column %s: %w", field.Name, err)
		}
		cols = append(cols, s)
	}
	return dataframe.WithHeight(int(table.NumRows()), cols...)
}

// columnToSeries joins the chunks of one column into a Series, widening
// narrower Parquet types to the supported ones.
func (r *ParquetReader) columnToSeries(field arrow.Field, chunks []arrow.Array) (*series.Series, error) {
	if len(chunks) == 0 {
		dtype, err := targetDType(field.Type)
		if err != nil {
			return nil, err
		}
		return series.Nulls(field.Name, dtype, 0, r.mem), nil
	}

	parts := make([]*series.Series, len(chunks))
	for i, chunk := range chunks {
		var err error
		if _, ok := series.DTypeOf(chunk.DataType()); ok {
			parts[i], err = series.FromArray(field.Name, chunk)
		} else {
			parts[i], err = r.widen(field.Name, chunk)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return series.Concat(parts, r.mem)
}

// targetDType maps a Parquet-derived Arrow type to the column type it is read as
func targetDType(dt arrow.DataType) (series.DType, error) {
	if dtype, ok := series.DTypeOf(dt); ok {
		return dtype, nil
	}
	//nolint:exhaustive // everything else is rejected
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return series.Int64, nil
	case arrow.FLOAT32:
		return series.Float64, nil
	case arrow.LARGE_STRING:
		return series.String, nil
	case arrow.TIMESTAMP, arrow.DATE32:
		return series.Timestamp, nil
	default:
		return series.Null, fmt.Errorf("unsupported arrow type %s", dt)
	}
}

// widen copies arr value by value into a column of its target type
func (r *ParquetReader) widen(name string, arr arrow.Array) (*series.Series, error) {
	dtype, err := targetDType(arr.DataType())
	if err != nil {
		return nil, err
	}

	b := series.NewBuilder(dtype, r.mem)
	b.Reserve(arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		v, err := widenValue(arr, i)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := b.Append(v); err != nil {
			return nil, err
		}
	}
	return b.Finish(name), nil
}

func widenValue(arr arrow.Array, i int) (any, error) {
	switch a := arr.(type) {
	case *array.Int8:
		return int64(a.Value(i)), nil
	case *array.Int16:
		return int64(a.Value(i)), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Uint8:
		return int64(a.Value(i)), nil
	case *array.Uint16:
		return int64(a.Value(i)), nil
	case *array.Uint32:
		return int64(a.Value(i)), nil
	case *array.Uint64:
		v := a.Value(i)
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC(), nil
	case *array.Date32:
		return a.Value(i).ToTime().UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}

// Write writes the DataFrame to Parquet format
func (w *ParquetWriter) Write(df *dataframe.DataFrame) error {
	compression, err := codec(w.options.Compression)
	if err != nil {
		return err
	}
	batch := w.options.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	table := dataFrameToArrowTable(df)
	defer table.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compression),
		parquet.WithBatchSize(int64(batch)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(memory.NewGoAllocator()),
		pqarrow.WithStoreSchema(),
	)

	// pqarrow closes its sink when the file writer is closed; the caller owns w.writer.
	sink := struct{ io.Writer }{w.writer}
	writer, err := pqarrow.NewFileWriter(table.Schema(), sink, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}
	if err := writer.WriteTable(table, int64(batch)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing table: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}
	return nil
}

func codec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unknown parquet compression %q", name)
	}
}

func dataFrameToArrowTable(df *dataframe.DataFrame) arrow.Table {
	cols := df.Series()
	fields := make([]arrow.Field, len(cols))
	columns := make([]arrow.Column, len(cols))
	for i, s := range cols {
		arr := s.Array()
		fields[i] = arrow.Field{Name: s.Name(), Type: arr.DataType(), Nullable: true}
		chunked := arrow.NewChunked(arr.DataType(), []arrow.Array{arr})
		columns[i] = *arrow.NewColumn(fields[i], chunked)
		chunked.Release()
	}
	return array.NewTable(arrow.NewSchema(fields, nil), columns, int64(df.Len()))
}
