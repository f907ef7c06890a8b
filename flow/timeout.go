package flow

import (
	"context"
	"time"
)

// runTimeout executes the children sequentially under a local deadline
// nested inside the caller's context, so the tighter of the local and
// global budgets wins.
//
// On expiry the OnTimeout fallback node runs under the parent context if
// configured; otherwise the node fails with a TimeoutError. Child errors
// unrelated to the deadline propagate as-is.
func (e *Executor) runTimeout(ctx context.Context, plan *ExecutionPlan, st *ExecutionState, node *Node, d *TimeoutResult) (any, error) {
	dur := time.Duration(d.DurationMs) * time.Millisecond
	tctx, cancel := context.WithTimeout(ctx, dur)
	defer cancel()

	out, err := e.runSequence(tctx, plan, st.Clone(), d.Children)
	if err == nil {
		return out, nil
	}

	localExpiry := tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil
	if !localExpiry {
		return nil, err
	}

	if d.OnTimeout != "" {
		fb, ok := plan.Node(d.OnTimeout)
		if !ok {
			return nil, errf(CodeRuntimeFailure, node.ID,
				"on-timeout node %q not found after %v deadline", d.OnTimeout, dur)
		}
		return e.runNode(ctx, plan, st, fb)
	}
	return nil, &TimeoutError{Duration: dur, NodeID: node.ID}
}
