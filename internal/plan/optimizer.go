package plan

import (
	"github.com/paveg/lazybridge/internal/expr"
)

// FilterSelectivity is the assumed fraction of rows a filter keeps
const FilterSelectivity = 0.5

// OptimizationRule represents a single plan rewrite
type OptimizationRule interface {
	Apply(n *Node) (*Node, bool)
	Name() string
}

// OptimizerOptions enables individual rules
type OptimizerOptions struct {
	FilterFusion      bool
	PredicatePushdown bool
	SliceFusion       bool
}

// QueryOptimizer applies optimization rules to a plan
type QueryOptimizer struct {
	rules []OptimizationRule
}

// NewQueryOptimizer creates an optimizer with the enabled rules. Pushdown
// runs before fusion so that filters moved next to each other are fused.
func NewQueryOptimizer(opts OptimizerOptions) *QueryOptimizer {
	var rules []OptimizationRule
	if opts.PredicatePushdown {
		rules = append(rules, &PredicatePushdownRule{})
	}
	if opts.FilterFusion {
		rules = append(rules, &FilterFusionRule{})
	}
	if opts.SliceFusion {
		rules = append(rules, &SliceFusionRule{})
	}
	return &QueryOptimizer{rules: rules}
}

// Optimize resolves the schema of n and rewrites it. The returned names are
// the rules that changed the plan. n itself is never modified.
func (qo *QueryOptimizer) Optimize(n *Node) (*Node, []string, error) {
	if _, err := Resolve(n); err != nil {
		return nil, nil, err
	}
	var applied []string
	optimized := n
	for _, rule := range qo.rules {
		var changed bool
		optimized, changed = rule.Apply(optimized)
		if changed {
			applied = append(applied, rule.Name())
		}
	}
	return optimized, applied, nil
}

// rewrite rebuilds n bottom-up with fn applied to every node whose inputs
// have already been rewritten. Unchanged subtrees are shared.
func rewrite(n *Node, fn func(*Node) (*Node, bool)) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	input, inChanged := rewrite(n.Input, fn)
	right, rightChanged := rewrite(n.Right, fn)
	cur := n
	if inChanged || rightChanged {
		cp := *n
		cp.Input, cp.Right = input, right
		cur = &cp
	}
	out, changed := fn(cur)
	return out, changed || inChanged || rightChanged
}

// PredicatePushdownRule moves filters below operators that do not affect
// which rows the predicate keeps.
type PredicatePushdownRule struct{}

func (r *PredicatePushdownRule) Name() string {
	return "PredicatePushdown"
}

func (r *PredicatePushdownRule) Apply(n *Node) (*Node, bool) {
	return rewrite(n, r.push)
}

func (r *PredicatePushdownRule) push(n *Node) (*Node, bool) {
	if n.Kind != KindFilter || !r.canPushThrough(n.Predicate, n.Input) {
		return n, false
	}
	below := n.Input
	pushed := Filter(below.Input, n.Predicate)
	// The moved filter may be pushable again
	if deeper, ok := r.push(pushed); ok {
		pushed = deeper
	}
	cp := *below
	cp.Input = pushed
	return &cp, true
}

// canPushThrough checks if a filter can be moved before op
func (r *PredicatePushdownRule) canPushThrough(predicate expr.Expr, op *Node) bool {
	deps := expr.Columns(predicate)
	switch op.Kind {
	case KindSort, KindReverse:
		return true
	case KindDrop:
		dropped := toSet(op.Columns)
		for _, d := range deps {
			if dropped[d] {
				return false
			}
		}
		return true
	case KindWithColumns:
		produced := map[string]bool{}
		for _, e := range op.Exprs {
			// Aggregations see every row, so filtering first changes them
			if expr.ContainsAggregation(e) {
				return false
			}
			produced[expr.OutputName(e)] = true
		}
		for _, d := range deps {
			if produced[d] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FilterFusionRule combines consecutive filters into one conjunction
type FilterFusionRule struct{}

func (r *FilterFusionRule) Name() string {
	return "FilterFusion"
}

func (r *FilterFusionRule) Apply(n *Node) (*Node, bool) {
	return rewrite(n, func(n *Node) (*Node, bool) {
		if n.Kind != KindFilter || n.Input.Kind != KindFilter {
			return n, false
		}
		inner := n.Input
		return Filter(inner.Input, expr.Binary(inner.Predicate, expr.OpAnd, n.Predicate)), true
	})
}

// SliceFusionRule merges a slice of a slice when both offsets count from
// the start.
type SliceFusionRule struct{}

func (r *SliceFusionRule) Name() string {
	return "SliceFusion"
}

func (r *SliceFusionRule) Apply(n *Node) (*Node, bool) {
	return rewrite(n, func(n *Node) (*Node, bool) {
		if n.Kind != KindSlice || n.Input.Kind != KindSlice {
			return n, false
		}
		outer, inner := n.Slice, n.Input.Slice
		if outer.Offset < 0 || inner.Offset < 0 {
			return n, false
		}
		remaining := int64(inner.Length) - outer.Offset
		if remaining < 0 {
			remaining = 0
		}
		length := outer.Length
		if int64(length) > remaining {
			length = uint32(remaining)
		}
		return Slice(n.Input.Input, inner.Offset+outer.Offset, length), true
	})
}

// EstimateRows estimates the number of rows n produces
func EstimateRows(n *Node) int {
	switch n.Kind {
	case KindScan:
		return n.Source.Frame.Len()
	case KindFilter:
		return int(float64(EstimateRows(n.Input)) * FilterSelectivity)
	case KindSlice:
		in := EstimateRows(n.Input)
		if int64(n.Slice.Length) < int64(in) {
			return int(n.Slice.Length)
		}
		return in
	case KindReduce:
		return 1
	case KindJoin, KindAsOf:
		l, r := EstimateRows(n.Input), EstimateRows(n.Right)
		if n.Kind == KindJoin && n.Join.How == JoinCross {
			return l * r
		}
		if r > l {
			return r
		}
		return l
	default:
		return EstimateRows(n.Input)
	}
}
