package io

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/series"
)

// ReadCSV reads CSV data with a header row using the default options
func ReadCSV(r io.Reader, mem memory.Allocator) (*dataframe.DataFrame, error) {
	return NewCSVReader(r, DefaultCSVOptions(), mem).Read()
}

// ReadCSVFile opens path and reads it with ReadCSV
func ReadCSVFile(path string, mem memory.Allocator) (*dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV file: %w", err)
	}
	defer f.Close()

	df, err := ReadCSV(f, mem)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return df, nil
}

// Read reads CSV data and returns a DataFrame
func (r *CSVReader) Read() (*dataframe.DataFrame, error) {
	csvReader := csv.NewReader(r.reader)
	csvReader.Comma = r.options.Delimiter
	csvReader.Comment = r.options.Comment
	csvReader.TrimLeadingSpace = r.options.SkipInitialSpace
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return dataframe.Empty(), nil
	}

	var headers []string
	dataRows := records
	if r.options.Header {
		headers = records[0]
		dataRows = records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
	}

	// Transpose to columns; short rows are padded with nulls
	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, len(dataRows))
		for j, row := range dataRows {
			if i < len(row) {
				columns[i][j] = row[i]
			}
		}
	}

	cols := make([]*series.Series, len(headers))
	for i, header := range headers {
		s, err := r.createSeriesFromStrings(header, columns[i])
		if err != nil {
			return nil, fmt.Errorf("creating series for column %s: %w", header, err)
		}
		cols[i] = s
	}
	return dataframe.New(cols...)
}

// createSeriesFromStrings converts raw cells into a column of the inferred type
func (r *CSVReader) createSeriesFromStrings(name string, data []string) (*series.Series, error) {
	dtype := inferDataType(data)
	b := series.NewBuilder(dtype, r.mem)
	b.Reserve(len(data))
	for i, cell := range data {
		if cell == "" {
			b.AppendNull()
			continue
		}
		v, err := parseCell(cell, dtype)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := b.Append(v); err != nil {
			return nil, err
		}
	}
	return b.Finish(name), nil
}

// inferDataType picks the narrowest type every non-empty cell parses as.
// A column with no values at all is typed string.
func inferDataType(data []string) series.DType {
	canBeInt, canBeFloat, canBeBool := true, true, true
	seen := false
	for _, value := range data {
		if value == "" {
			continue
		}
		seen = true
		if canBeInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				canBeFloat = false
			}
		}
		if canBeBool {
			if _, ok := parseBool(value); !ok {
				canBeBool = false
			}
		}
		if !canBeInt && !canBeFloat && !canBeBool {
			break
		}
	}

	switch {
	case !seen:
		return series.String
	case canBeInt:
		return series.Int64
	case canBeFloat:
		return series.Float64
	case canBeBool:
		return series.Bool
	default:
		return series.String
	}
}

func parseCell(cell string, dtype series.DType) (any, error) {
	//nolint:exhaustive // inference only produces these types
	switch dtype {
	case series.Int64:
		return strconv.ParseInt(cell, 10, 64)
	case series.Float64:
		return strconv.ParseFloat(cell, 64)
	case series.Bool:
		v, _ := parseBool(cell)
		return v, nil
	default:
		return cell, nil
	}
}

// parseBool accepts true and false in any case
func parseBool(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// Write writes the DataFrame to CSV format. Nulls are written as empty cells.
func (w *CSVWriter) Write(df *dataframe.DataFrame) error {
	csvWriter := csv.NewWriter(w.writer)
	csvWriter.Comma = w.options.Delimiter

	if w.options.Header {
		if err := csvWriter.Write(df.Columns()); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
	}

	cols := df.Series()
	row := make([]string, len(cols))
	for i := 0; i < df.Len(); i++ {
		for j, col := range cols {
			row[j] = formatCell(col, i)
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func formatCell(col *series.Series, i int) string {
	switch v := col.Value(i).(type) {
	case nil:
		return ""
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return col.GetAsString(i)
	}
}
