package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/flowmark/flow/expr"
)

type branchOutcome struct {
	idx int
	out any
	err error
}

// runParallel executes the branches of a ParallelResult concurrently,
// applies the wait policy and merges the collected outputs.
//
// Result ordering depends on the policy: wait=all preserves declaration
// order; wait=any and wait=n(K) collect in completion order, since the
// set of contributing branches is itself timing-dependent.
func (e *Executor) runParallel(ctx context.Context, plan *ExecutionPlan, st *ExecutionState, node *Node, d *ParallelResult) (any, error) {
	if len(d.Branches) == 0 {
		return e.mergeBranches(st, d.Merge, []any{})
	}

	bound := d.MaxConcurrency
	if bound <= 0 {
		bound = e.opts.MaxConcurrency
	}
	sem := NewSemaphore(bound)

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan branchOutcome, len(d.Branches))
	for i, branch := range d.Branches {
		go func(i int, branch []*Node) {
			if err := sem.Acquire(bctx); err != nil {
				outcomes <- branchOutcome{idx: i, err: err}
				return
			}
			defer sem.Release()

			bst := st.Clone()
			bst.SetNodeContext("$branch", i)
			out, err := e.runSequence(bctx, plan, bst, branch)
			outcomes <- branchOutcome{idx: i, out: out, err: err}
		}(i, branch)
	}

	needed, err := parseWait(d.Wait, len(d.Branches))
	if err != nil {
		return nil, errf(CodeRuntimeFailure, node.ID, "%v", err)
	}

	if needed == len(d.Branches) {
		return e.waitAll(st, node, d, outcomes)
	}
	return e.waitQuorum(st, node, d, outcomes, needed, cancel)
}

// waitAll drains every branch, fails if any branch failed, and returns
// outputs in declaration order.
func (e *Executor) waitAll(st *ExecutionState, node *Node, d *ParallelResult, outcomes <-chan branchOutcome) (any, error) {
	results := make([]any, len(d.Branches))
	var errs []error
	var breakSig *BreakSignal
	for range d.Branches {
		oc := <-outcomes
		if oc.err != nil {
			if bs, ok := asBreak(oc.err); ok && breakSig == nil {
				breakSig = bs
				continue
			}
			errs = append(errs, oc.err)
			continue
		}
		results[oc.idx] = oc.out
	}
	if len(errs) > 0 {
		return nil, errf(CodeRuntimeFailure, node.ID, "parallel branches failed: %v", errors.Join(errs...))
	}
	if breakSig != nil {
		return nil, breakSig
	}
	return e.mergeBranches(st, d.Merge, results)
}

// waitQuorum returns as soon as `needed` branches succeed, cancelling
// the rest. It fails once more branches have failed than the quorum can
// spare. Successes collect in completion order.
func (e *Executor) waitQuorum(st *ExecutionState, node *Node, d *ParallelResult, outcomes <-chan branchOutcome, needed int, cancel context.CancelFunc) (any, error) {
	total := len(d.Branches)
	var (
		successes []any
		failures  []error
	)
	for range d.Branches {
		oc := <-outcomes
		if oc.err != nil {
			if bs, ok := asBreak(oc.err); ok {
				cancel()
				return nil, bs
			}
			failures = append(failures, oc.err)
			if len(failures) > total-needed {
				cancel()
				return nil, errf(CodeRuntimeFailure, node.ID,
					"parallel wait=%s unsatisfiable: %d of %d branches failed: %v",
					d.Wait, len(failures), total, errors.Join(failures...))
			}
			continue
		}
		successes = append(successes, oc.out)
		if len(successes) >= needed {
			cancel()
			return e.mergeBranches(st, d.Merge, successes)
		}
	}
	// Unreachable when needed <= total, kept for safety.
	return e.mergeBranches(st, d.Merge, successes)
}

// parseWait resolves a wait policy to the number of required successes:
// "all" (or empty), "any", or "n(K)".
func parseWait(wait string, branches int) (int, error) {
	switch wait {
	case "", "all":
		return branches, nil
	case "any":
		return 1, nil
	}
	if strings.HasPrefix(wait, "n(") && strings.HasSuffix(wait, ")") {
		k, err := strconv.Atoi(wait[2 : len(wait)-1])
		if err != nil || k < 1 {
			return 0, fmt.Errorf("invalid wait policy %q", wait)
		}
		if k > branches {
			k = branches
		}
		return k, nil
	}
	return 0, fmt.Errorf("invalid wait policy %q", wait)
}

// mergeBranches combines branch outputs per the merge strategy: "array"
// (default) keeps the sequence, "concat" flattens nested arrays,
// "object" shallow-merges map outputs, anything else is an expression
// evaluated with $branches bound. An unevaluatable merge expression
// degrades to the array form rather than failing the node.
func (e *Executor) mergeBranches(st *ExecutionState, merge string, results []any) (any, error) {
	switch merge {
	case "", "array":
		return results, nil
	case "concat":
		var out []any
		for _, r := range results {
			if arr, ok := r.([]any); ok {
				out = append(out, arr...)
				continue
			}
			out = append(out, r)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case "object":
		out := map[string]any{}
		for _, r := range results {
			if m, ok := r.(map[string]any); ok {
				for k, v := range m {
					out[k] = v
				}
			}
		}
		return out, nil
	default:
		ectx := evalContext(st)
		ectx.Variables["$branches"] = results
		v, err := expr.Evaluate(merge, ectx)
		if err != nil {
			return results, nil
		}
		return v, nil
	}
}
