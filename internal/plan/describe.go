package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paveg/lazybridge/internal/expr"
)

// Describe renders n as an indented operator tree, root first
func Describe(n *Node) string {
	var buf strings.Builder
	describeNode(n, &buf, 0)
	return buf.String()
}

func describeNode(n *Node, buf *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteString(headline(n))
	buf.WriteByte('\n')

	if n.Right != nil {
		fmt.Fprintf(buf, "%s  LEFT PLAN:\n", indent)
		describeNode(n.Input, buf, depth+2)
		fmt.Fprintf(buf, "%s  RIGHT PLAN:\n", indent)
		describeNode(n.Right, buf, depth+2)
		return
	}
	if n.Input != nil {
		describeNode(n.Input, buf, depth+1)
	}
}

func quoteAll(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = strconv.Quote(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatLength(l uint32) string {
	if l == math.MaxUint32 {
		return "end"
	}
	return strconv.FormatUint(uint64(l), 10)
}

// headline is the one-line description of a single node
func headline(n *Node) string {
	switch n.Kind {
	case KindScan:
		df := n.Source.Frame
		label := "DF"
		if n.Source.Name != "" {
			label = "SCAN " + n.Source.Name
		}
		return fmt.Sprintf("%s %s; %d rows", label, quoteAll(df.Columns()), df.Len())
	case KindSelect:
		return "SELECT " + expr.JoinStrings(n.Exprs)
	case KindWithColumns:
		return "WITH_COLUMNS " + expr.JoinStrings(n.Exprs)
	case KindFilter:
		return fmt.Sprintf("FILTER %s", n.Predicate)
	case KindDrop:
		return "DROP " + quoteAll(n.Columns)
	case KindSlice:
		return fmt.Sprintf("SLICE offset=%d length=%s", n.Slice.Offset, formatLength(n.Slice.Length))
	case KindReverse:
		return "REVERSE"
	case KindShift:
		if n.Fill != nil {
			return fmt.Sprintf("SHIFT periods=%d fill=%s", n.Periods, n.Fill)
		}
		return fmt.Sprintf("SHIFT periods=%d", n.Periods)
	case KindFillNull:
		return fmt.Sprintf("FILL_NULL %s", n.Fill)
	case KindFillNaN:
		return fmt.Sprintf("FILL_NAN %s", n.Fill)
	case KindReduce:
		return "REDUCE " + describeReduce(n.Reduce)
	case KindDropNulls:
		return "DROP_NULLS subset=" + expr.JoinStrings(n.Subset)
	case KindUnique:
		return fmt.Sprintf("UNIQUE subset=%s keep=%s", expr.JoinStrings(n.Subset), n.Keep)
	case KindSort:
		return fmt.Sprintf("SORT BY %s descending=%v nulls_last=%t",
			expr.JoinStrings(n.Sort.By), n.Sort.Descending, n.Sort.NullsLast)
	case KindGroupBy:
		return describeGroupBy(n.GroupBy)
	case KindJoin:
		j := n.Join
		return fmt.Sprintf("%s JOIN left_on=%s right_on=%s suffix=%q",
			strings.ToUpper(j.How.String()), expr.JoinStrings(j.LeftOn), expr.JoinStrings(j.RightOn), j.Suffix)
	case KindAsOf:
		return describeAsOf(n.AsOf)
	default:
		return strings.ToUpper(n.Kind.String())
	}
}

func describeReduce(r ReduceSpec) string {
	switch r.Agg {
	case expr.AggStd, expr.AggVar:
		return fmt.Sprintf("%s(ddof=%d)", r.Agg, r.Ddof)
	case expr.AggQuantile:
		return fmt.Sprintf("quantile(%s, interpolation=%s)", r.Quantile, r.Interpolation)
	default:
		return r.Agg.String()
	}
}

func describeGroupBy(g GroupBySpec) string {
	var b strings.Builder
	b.WriteString("AGGREGATE")
	switch g.Mode {
	case GroupAgg:
		fmt.Fprintf(&b, " %s", expr.JoinStrings(g.Aggs))
	case GroupHead:
		fmt.Fprintf(&b, " head(%d)", g.N)
	case GroupTail:
		fmt.Fprintf(&b, " tail(%d)", g.N)
	}
	fmt.Fprintf(&b, " BY %s maintain_order=%t", expr.JoinStrings(g.Keys), g.MaintainOrder)
	return b.String()
}

func describeAsOf(a *AsOfSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ASOF JOIN left_on=%s right_on=%s strategy=%s", a.LeftOn, a.RightOn, a.Strategy)
	if a.LeftBy != nil {
		fmt.Fprintf(&b, " left_by=%s", quoteAll(a.LeftBy))
	}
	if a.RightBy != nil {
		fmt.Fprintf(&b, " right_by=%s", quoteAll(a.RightBy))
	}
	if a.Tolerance != nil {
		fmt.Fprintf(&b, " tolerance=%s", expr.Lit(a.Tolerance))
	}
	if a.ToleranceStr != "" {
		fmt.Fprintf(&b, " tolerance_str=%q", a.ToleranceStr)
	}
	fmt.Fprintf(&b, " suffix=%q", a.Suffix)
	return b.String()
}

// PlanNode is the structured form of a plan node for debugging
type PlanNode struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Children    []*PlanNode       `json:"children,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Debug converts n into a PlanNode tree. IDs are assigned in pre-order.
func Debug(n *Node) *PlanNode {
	next := 0
	return debugNode(n, &next)
}

func debugNode(n *Node, next *int) *PlanNode {
	*next++
	pn := &PlanNode{
		ID:          fmt.Sprintf("node_%d", *next),
		Type:        n.Kind.String(),
		Description: headline(n),
		Properties:  properties(n),
	}
	for _, c := range n.Children() {
		pn.Children = append(pn.Children, debugNode(c, next))
	}
	return pn
}

func properties(n *Node) map[string]string {
	props := map[string]string{}
	switch n.Kind {
	case KindScan:
		props["rows"] = strconv.Itoa(n.Source.Frame.Len())
		props["columns"] = strconv.Itoa(n.Source.Frame.Width())
	case KindGroupBy:
		props["maintain_order"] = strconv.FormatBool(n.GroupBy.MaintainOrder)
	case KindJoin:
		props["how"] = n.Join.How.String()
		props["allow_parallel"] = strconv.FormatBool(n.Join.AllowParallel)
		props["force_parallel"] = strconv.FormatBool(n.Join.ForceParallel)
	case KindAsOf:
		props["strategy"] = n.AsOf.Strategy.String()
		props["allow_parallel"] = strconv.FormatBool(n.AsOf.AllowParallel)
		props["force_parallel"] = strconv.FormatBool(n.AsOf.ForceParallel)
	}
	if len(props) == 0 {
		return nil
	}
	return props
}

// RenderJSON renders the debug tree as indented JSON
func (p *PlanNode) RenderJSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
