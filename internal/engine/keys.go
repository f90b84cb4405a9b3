package engine

import (
	"encoding/binary"
	"math"
	"time"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
	"github.com/paveg/lazybridge/internal/series"
)

// Value tags of the row key encoding
const (
	tagNull byte = iota
	tagInt
	tagFloat
	tagString
	tagBool
	tagTime
)

// canonicalNaN is the bit pattern every NaN key is encoded with
const canonicalNaN = 0x7FF8000000000001

// rowKeys encodes rows of a set of key columns into comparable byte strings.
// Two rows have the same encoding exactly when every key value is equal,
// with NaN equal to NaN and null equal to null.
type rowKeys struct {
	cols []*series.Series
	buf  []byte
}

func newRowKeys(cols []*series.Series) *rowKeys {
	return &rowKeys{cols: cols}
}

// keyColumns evaluates key expressions over in; no keys means every column
func (x *execution) keyColumns(in *dataframe.DataFrame, keys []expr.Expr) ([]*series.Series, error) {
	if len(keys) == 0 {
		return in.Series(), nil
	}
	return x.evalKeys(in, keys)
}

// evalKeys evaluates key expressions over every row of in
func (x *execution) evalKeys(in *dataframe.DataFrame, keys []expr.Expr) ([]*series.Series, error) {
	cols := make([]*series.Series, len(keys))
	for i, k := range keys {
		s, err := x.eval.Evaluate(k, in, nil)
		if err != nil {
			return nil, err
		}
		cols[i] = x.eval.Broadcast(s.Rename(expr.OutputName(k)), in.Len())
	}
	return cols, nil
}

// hasNull reports whether any key of row is null
func (k *rowKeys) hasNull(row int) bool {
	for _, c := range k.cols {
		if c.IsNull(row) {
			return true
		}
	}
	return false
}

// encode returns the key of row. The result aliases an internal buffer and
// is only valid until the next call.
func (k *rowKeys) encode(row int) []byte {
	buf := k.buf[:0]
	for _, c := range k.cols {
		switch v := c.Value(row).(type) {
		case nil:
			buf = append(buf, tagNull)
		case int64:
			buf = append(buf, tagInt)
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
		case float64:
			bits := math.Float64bits(v)
			switch {
			case math.IsNaN(v):
				bits = canonicalNaN
			case v == 0:
				bits = 0
			}
			buf = append(buf, tagFloat)
			buf = binary.LittleEndian.AppendUint64(buf, bits)
		case string:
			buf = append(buf, tagString)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
			buf = append(buf, v...)
		case bool:
			buf = append(buf, tagBool)
			if v {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case time.Time:
			buf = append(buf, tagTime)
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v.UnixMicro()))
		}
	}
	k.buf = buf
	return buf
}

// hash returns the xxhash of the key of row
func (k *rowKeys) hash(row int) uint64 {
	return xxhash.Sum64(k.encode(row))
}

type keyEntry struct {
	key  string
	rows []int
}

// keyIndex groups rows by encoded key. Groups are numbered in insertion
// order, so iterating groups follows first appearance.
type keyIndex struct {
	buckets map[uint64][]int
	groups  []keyEntry
}

func newKeyIndex(capacity int) *keyIndex {
	return &keyIndex{buckets: make(map[uint64][]int, capacity)}
}

// add appends row to the group of key and returns the group number
func (ki *keyIndex) add(key []byte, row int) int {
	h := xxhash.Sum64(key)
	for _, g := range ki.buckets[h] {
		if ki.groups[g].key == string(key) {
			ki.groups[g].rows = append(ki.groups[g].rows, row)
			return g
		}
	}
	g := len(ki.groups)
	ki.groups = append(ki.groups, keyEntry{key: string(key), rows: []int{row}})
	ki.buckets[h] = append(ki.buckets[h], g)
	return g
}

// lookup returns the group number of key
func (ki *keyIndex) lookup(key []byte) (int, bool) {
	for _, g := range ki.buckets[xxhash.Sum64(key)] {
		if ki.groups[g].key == string(key) {
			return g, true
		}
	}
	return 0, false
}

// rows returns the rows of group g in insertion order
func (ki *keyIndex) rows(g int) []int {
	return ki.groups[g].rows
}

// len returns the number of groups
func (ki *keyIndex) len() int {
	return len(ki.groups)
}

// buildIndex groups rows by their encoded keys
func (x *execution) buildIndex(keys *rowKeys, rows []int) (*keyIndex, error) {
	t := x.newTicker()
	ki := newKeyIndex(len(rows) / 2)
	for _, r := range rows {
		if err := t.tick(); err != nil {
			return nil, err
		}
		ki.add(keys.encode(r), r)
	}
	return ki, nil
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
