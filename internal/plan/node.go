// Package plan provides the persistent logical plan built by lazy frames. A
// Node is never modified after construction; every transformation allocates
// a new Node whose Input is the previous one, so plans are shared freely.
package plan

import (
	"time"

	"github.com/paveg/lazybridge/internal/common"
	"github.com/paveg/lazybridge/internal/dataframe"
	"github.com/paveg/lazybridge/internal/expr"
)

// Kind identifies the operator a Node applies
type Kind int

const (
	KindScan Kind = iota
	KindSelect
	KindWithColumns
	KindFilter
	KindDrop
	KindSlice
	KindReverse
	KindShift
	KindFillNull
	KindFillNaN
	KindReduce
	KindDropNulls
	KindUnique
	KindSort
	KindGroupBy
	KindJoin
	KindAsOf
)

var kindNames = [...]string{
	"scan", "select", "with_columns", "filter", "drop", "slice", "reverse",
	"shift", "fill_null", "fill_nan", "reduce", "drop_nulls", "unique",
	"sort", "groupby", "join", "join_asof",
}

// String returns the operation name used in diagnostics
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// JoinType selects the join algorithm
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinOuter
	JoinSemi
	JoinAnti
	JoinCross
	JoinAsOf
)

// JoinTypes is the option table for the how parameter of join
var JoinTypes = common.NewOptions("join_type",
	common.Option[JoinType]{Name: "inner", Value: JoinInner},
	common.Option[JoinType]{Name: "left", Value: JoinLeft},
	common.Option[JoinType]{Name: "outer", Value: JoinOuter},
	common.Option[JoinType]{Name: "semi", Value: JoinSemi},
	common.Option[JoinType]{Name: "anti", Value: JoinAnti},
	common.Option[JoinType]{Name: "cross", Value: JoinCross},
	common.Option[JoinType]{Name: "asof", Value: JoinAsOf},
)

func (j JoinType) String() string { return JoinTypes.Format(j) }

// AsOfStrategy selects which right row an as-of join matches
type AsOfStrategy int

const (
	AsOfBackward AsOfStrategy = iota
	AsOfForward
	AsOfNearest
)

// AsOfStrategies is the option table for the strategy parameter of join_asof
var AsOfStrategies = common.NewOptions("asof_strategy",
	common.Option[AsOfStrategy]{Name: "backward", Value: AsOfBackward},
	common.Option[AsOfStrategy]{Name: "forward", Value: AsOfForward},
	common.Option[AsOfStrategy]{Name: "nearest", Value: AsOfNearest},
)

func (s AsOfStrategy) String() string { return AsOfStrategies.Format(s) }

// UniqueKeep selects which duplicate rows unique keeps
type UniqueKeep int

const (
	KeepFirst UniqueKeep = iota
	KeepLast
	KeepAny
	KeepNone
)

// UniqueKeeps is the option table for the keep parameter of unique
var UniqueKeeps = common.NewOptions("unique_keep",
	common.Option[UniqueKeep]{Name: "first", Value: KeepFirst},
	common.Option[UniqueKeep]{Name: "last", Value: KeepLast},
	common.Option[UniqueKeep]{Name: "any", Value: KeepAny},
	common.Option[UniqueKeep]{Name: "none", Value: KeepNone},
)

func (k UniqueKeep) String() string { return UniqueKeeps.Format(k) }

// GroupMode selects what a groupby node produces per group
type GroupMode int

const (
	GroupAgg GroupMode = iota
	GroupHead
	GroupTail
)

// Source is the materialised input of a scan
type Source struct {
	Name  string
	Frame *dataframe.DataFrame
}

// SliceSpec parameterises slice, limit and tail. A negative offset counts
// from the end.
type SliceSpec struct {
	Offset int64
	Length uint32
}

// ReduceSpec parameterises a frame-wide reduction
type ReduceSpec struct {
	Agg           expr.AggregationType
	Ddof          uint8
	Quantile      expr.Expr
	Interpolation expr.Interpolation
}

// SortSpec parameterises a multi-key sort
type SortSpec struct {
	By         []expr.Expr
	Descending []bool
	NullsLast  bool
}

// GroupBySpec parameterises grouping. Aggs is used in GroupAgg mode, N in
// GroupHead and GroupTail modes.
type GroupBySpec struct {
	Keys          []expr.Expr
	MaintainOrder bool
	Mode          GroupMode
	Aggs          []expr.Expr
	N             int
}

// JoinSpec parameterises an equi or cross join
type JoinSpec struct {
	How           JoinType
	LeftOn        []expr.Expr
	RightOn       []expr.Expr
	Suffix        string
	AllowParallel bool
	ForceParallel bool
}

// AsOfSpec parameterises an as-of join. LeftBy and RightBy are nil when
// absent. At most one of Tolerance and ToleranceStr is set.
type AsOfSpec struct {
	LeftOn        expr.Expr
	RightOn       expr.Expr
	LeftBy        []string
	RightBy       []string
	Strategy      AsOfStrategy
	Tolerance     any
	ToleranceStr  string
	ToleranceDur  time.Duration
	Suffix        string
	AllowParallel bool
	ForceParallel bool
}

// ByColumns returns the by columns of each side. A side given alone is
// used for both.
func (s *AsOfSpec) ByColumns() (left, right []string) {
	left, right = s.LeftBy, s.RightBy
	switch {
	case left == nil:
		left = right
	case right == nil:
		right = left
	}
	return left, right
}

// HasTolerance reports whether either tolerance form is set
func (s *AsOfSpec) HasTolerance() bool {
	return s.Tolerance != nil || s.ToleranceStr != ""
}

// Node is one operator of a logical plan. Only the fields relevant to Kind
// are set. Nodes must not be modified after construction.
type Node struct {
	Kind  Kind
	Input *Node
	Right *Node

	Source    *Source
	Exprs     []expr.Expr
	Predicate expr.Expr
	Fill      expr.Expr
	Columns   []string
	Slice     SliceSpec
	Periods   int64
	Reduce    ReduceSpec
	Subset    []expr.Expr
	Keep      UniqueKeep
	Sort      SortSpec
	GroupBy   GroupBySpec
	Join      *JoinSpec
	AsOf      *AsOfSpec
}

// Children returns the inputs of n in order
func (n *Node) Children() []*Node {
	switch {
	case n.Input == nil:
		return nil
	case n.Right == nil:
		return []*Node{n.Input}
	default:
		return []*Node{n.Input, n.Right}
	}
}

// Scan creates a leaf reading a materialised frame
func Scan(name string, df *dataframe.DataFrame) *Node {
	return &Node{Kind: KindScan, Source: &Source{Name: name, Frame: df}}
}

// Select projects exactly exprs
func Select(input *Node, exprs []expr.Expr) *Node {
	return &Node{Kind: KindSelect, Input: input, Exprs: exprs}
}

// WithColumns adds or replaces columns
func WithColumns(input *Node, exprs []expr.Expr) *Node {
	return &Node{Kind: KindWithColumns, Input: input, Exprs: exprs}
}

// Filter keeps rows where predicate is true
func Filter(input *Node, predicate expr.Expr) *Node {
	return &Node{Kind: KindFilter, Input: input, Predicate: predicate}
}

// Drop removes named columns
func Drop(input *Node, columns []string) *Node {
	return &Node{Kind: KindDrop, Input: input, Columns: columns}
}

// Slice keeps length rows starting at offset
func Slice(input *Node, offset int64, length uint32) *Node {
	return &Node{Kind: KindSlice, Input: input, Slice: SliceSpec{Offset: offset, Length: length}}
}

// Reverse reverses row order
func Reverse(input *Node) *Node {
	return &Node{Kind: KindReverse, Input: input}
}

// Shift moves rows by periods; fill, when non-nil, fills vacated cells
func Shift(input *Node, periods int64, fill expr.Expr) *Node {
	return &Node{Kind: KindShift, Input: input, Periods: periods, Fill: fill}
}

// FillNull replaces nulls with fill
func FillNull(input *Node, fill expr.Expr) *Node {
	return &Node{Kind: KindFillNull, Input: input, Fill: fill}
}

// FillNaN replaces NaN in float columns with fill
func FillNaN(input *Node, fill expr.Expr) *Node {
	return &Node{Kind: KindFillNaN, Input: input, Fill: fill}
}

// Reduce collapses every column to one row
func Reduce(input *Node, spec ReduceSpec) *Node {
	return &Node{Kind: KindReduce, Input: input, Reduce: spec}
}

// DropNulls removes rows with a null in subset (every column when empty)
func DropNulls(input *Node, subset []expr.Expr) *Node {
	return &Node{Kind: KindDropNulls, Input: input, Subset: subset}
}

// Unique removes duplicate rows over subset (every column when empty)
func Unique(input *Node, subset []expr.Expr, keep UniqueKeep) *Node {
	return &Node{Kind: KindUnique, Input: input, Subset: subset, Keep: keep}
}

// Sort orders rows by spec
func Sort(input *Node, spec SortSpec) *Node {
	return &Node{Kind: KindSort, Input: input, Sort: spec}
}

// GroupBy groups rows by spec.Keys
func GroupBy(input *Node, spec GroupBySpec) *Node {
	return &Node{Kind: KindGroupBy, Input: input, GroupBy: spec}
}

// Join combines input with right by spec
func Join(input, right *Node, spec *JoinSpec) *Node {
	return &Node{Kind: KindJoin, Input: input, Right: right, Join: spec}
}

// AsOf combines input with right by nearest key
func AsOf(input, right *Node, spec *AsOfSpec) *Node {
	return &Node{Kind: KindAsOf, Input: input, Right: right, AsOf: spec}
}
