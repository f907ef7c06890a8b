package flow

import "context"

// runLoop repeats the body up to MaxIterations times, sequentially. The
// result is the final body output. The iteration index is exposed as
// $iteration.
//
// Termination: a matching break signal from the body stops the loop
// (keeping the last completed output), a truthy break condition stops it
// after the iteration, and an unevaluatable break condition means "keep
// looping" rather than failure. Plain errors propagate.
func (e *Executor) runLoop(ctx context.Context, plan *ExecutionPlan, st *ExecutionState, node *Node, d *LoopResult) (any, error) {
	var last any
	for i := 0; i < d.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ist := st.Clone()
		ist.SetNodeContext("$iteration", i)

		out, err := e.runSequence(ctx, plan, ist, d.BodyNodes)
		if err != nil {
			if bs, ok := asBreak(err); ok {
				if bs.breakFor(d.LoopID) {
					return last, nil
				}
				return nil, err
			}
			return nil, err
		}
		last = out

		if d.BreakCondition != "" {
			done, cerr := EvalCondition(d.BreakCondition, ist)
			if cerr == nil && done {
				break
			}
		}
	}
	return last, nil
}
