package flow

import (
	"sort"
	"strings"

	"github.com/dshills/flowmark/flow/expr"
)

// Dependencies computes the predecessor set for every node in the
// workflow. Two edge sources exist: the explicit input attribute, and
// references to other node IDs inside template expressions anywhere in
// the node's config. Reference scanning is conservative: a node ID
// counts as a reference when an expression mentions it as a bare
// identifier, either alone or at the head of a member chain.
func Dependencies(ast *WorkflowAST) map[string][]string {
	known := make(map[string]bool, len(ast.Nodes))
	for _, n := range ast.Nodes {
		known[n.ID] = true
	}

	deps := make(map[string][]string, len(ast.Nodes))
	for _, n := range ast.Nodes {
		set := map[string]bool{}
		if n.Input != "" && known[n.Input] {
			set[n.Input] = true
		}
		scanValue(n.Config, known, set)
		// Conditions and collections may be bare expressions or templates.
		scanExprOrTemplate(n.Condition, known, set)
		scanExprOrTemplate(n.Collection, known, set)
		scanExprOrTemplate(n.BreakCondition, known, set)
		delete(set, n.ID)

		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		deps[n.ID] = ids
	}
	return deps
}

// scanValue walks a config value collecting node references from any
// string containing template expressions.
func scanValue(v any, known map[string]bool, set map[string]bool) {
	switch x := v.(type) {
	case string:
		scanTemplateRefs(x, known, set)
	case map[string]any:
		for _, e := range x {
			scanValue(e, known, set)
		}
	case []any:
		for _, e := range x {
			scanValue(e, known, set)
		}
	}
}

// scanTemplateRefs extracts {{...}} expression segments from s and marks
// any known node ID referenced by them. Strings with no expression
// segments contribute nothing, and IDs appearing only inside string
// literals or as property names do not count.
func scanTemplateRefs(s string, known map[string]bool, set map[string]bool) {
	if !strings.Contains(s, "{{") {
		return
	}
	for _, seg := range expr.Segments(s) {
		if seg.Kind == expr.SegmentExpression {
			markIdentRefs(seg.Value, known, set)
		}
	}
}

// scanExprOrTemplate handles attributes that hold either a bare
// expression or a templated string.
func scanExprOrTemplate(s string, known map[string]bool, set map[string]bool) {
	if s == "" {
		return
	}
	if expr.HasExpression(s) {
		scanTemplateRefs(s, known, set)
		return
	}
	markIdentRefs(s, known, set)
}

// markIdentRefs parses src and records every known node ID that appears
// as a bare identifier or the head of a member chain. On parse failure it
// falls back to token-boundary matching so malformed templates still
// order conservatively.
func markIdentRefs(src string, known map[string]bool, set map[string]bool) {
	node, err := expr.Parse(src)
	if err != nil {
		markByBoundary(src, known, set)
		return
	}
	walkIdents(node, func(name string) {
		if known[name] {
			set[name] = true
		}
	})
}

func walkIdents(n *expr.Node, fn func(string)) {
	if n == nil {
		return
	}
	switch n.Kind {
	case expr.KindIdentifier:
		fn(n.Name)
	case expr.KindMember:
		walkIdents(n.Object, fn)
		if n.Computed {
			walkIdents(n.Property, fn)
		}
	case expr.KindBinary:
		walkIdents(n.Left, fn)
		walkIdents(n.Right, fn)
	case expr.KindUnary:
		walkIdents(n.Operand, fn)
	case expr.KindConditional:
		walkIdents(n.Test, fn)
		walkIdents(n.Consequent, fn)
		walkIdents(n.Alternate, fn)
	case expr.KindArray:
		for _, e := range n.Elements {
			walkIdents(e, fn)
		}
	case expr.KindCall:
		for _, a := range n.Args {
			walkIdents(a, fn)
		}
	case expr.KindCompound:
		for _, e := range n.Elements {
			walkIdents(e, fn)
		}
	}
}

// markByBoundary scans src for each known ID at identifier boundaries.
func markByBoundary(src string, known map[string]bool, set map[string]bool) {
	for id := range known {
		idx := 0
		for {
			i := strings.Index(src[idx:], id)
			if i < 0 {
				break
			}
			at := idx + i
			before := byte(0)
			if at > 0 {
				before = src[at-1]
			}
			after := byte(0)
			if at+len(id) < len(src) {
				after = src[at+len(id)]
			}
			if !isIdentByte(before) && !isIdentByte(after) && after != '(' {
				set[id] = true
				break
			}
			idx = at + len(id)
		}
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
