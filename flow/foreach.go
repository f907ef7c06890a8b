package flow

import (
	"context"
	"errors"
	"sync"
)

// runForeach iterates the body nodes over the collection, one isolated
// state clone per iteration, and returns the per-iteration outputs
// indexed by collection position.
//
// The result always has one slot per collection element. Sequentially, a
// matching break stops the remaining iterations; slots for iterations
// that never ran (or broke) stay nil. In parallel, a matching break
// aborts only its own iteration; siblings already running finish
// normally. A break targeting a different loop re-raises outward in both
// modes.
func (e *Executor) runForeach(ctx context.Context, plan *ExecutionPlan, st *ExecutionState, node *Node, d *ForeachResult) (any, error) {
	body := make([]*Node, 0, len(d.BodyNodeIDs))
	for _, id := range d.BodyNodeIDs {
		n, ok := plan.Node(id)
		if !ok {
			return nil, errf(CodeRuntimeFailure, node.ID, "foreach body references unknown node %q", id)
		}
		body = append(body, n)
	}

	itemVar := d.ItemVar
	if itemVar == "" {
		itemVar = "item"
	}
	indexVar := d.IndexVar
	if indexVar == "" {
		indexVar = "index"
	}

	if d.MaxConcurrency <= 1 {
		return e.foreachSequential(ctx, plan, st, d, body, itemVar, indexVar)
	}
	return e.foreachParallel(ctx, plan, st, node, d, body, itemVar, indexVar)
}

func (e *Executor) foreachSequential(ctx context.Context, plan *ExecutionPlan, st *ExecutionState, d *ForeachResult, body []*Node, itemVar, indexVar string) (any, error) {
	results := make([]any, len(d.Collection))
	for i, item := range d.Collection {
		ist := st.Clone()
		ist.SetNodeContext(itemVar, item)
		ist.SetNodeContext(indexVar, i)

		out, err := e.runSequence(ctx, plan, ist, body)
		if err != nil {
			if bs, ok := asBreak(err); ok && bs.breakFor(d.LoopID) {
				return results, nil
			}
			return nil, err
		}
		results[i] = out
	}
	return results, nil
}

func (e *Executor) foreachParallel(ctx context.Context, plan *ExecutionPlan, st *ExecutionState, node *Node, d *ForeachResult, body []*Node, itemVar, indexVar string) (any, error) {
	sem := NewSemaphore(d.MaxConcurrency)
	results := make([]any, len(d.Collection))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		breakOut *BreakSignal
	)
	for i, item := range d.Collection {
		wg.Add(1)
		go func(i int, item any) {
			defer wg.Done()
			if err := sem.Acquire(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			defer sem.Release()

			ist := st.Clone()
			ist.SetNodeContext(itemVar, item)
			ist.SetNodeContext(indexVar, i)

			out, err := e.runSequence(ctx, plan, ist, body)
			if err != nil {
				if bs, ok := asBreak(err); ok {
					if bs.breakFor(d.LoopID) {
						// This iteration aborts; siblings are unaffected.
						return
					}
					mu.Lock()
					if breakOut == nil {
						breakOut = bs
					}
					mu.Unlock()
					return
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			mu.Lock()
			results[i] = out
			mu.Unlock()
		}(i, item)
	}
	wg.Wait()

	if breakOut != nil {
		return nil, breakOut
	}
	if len(errs) > 0 {
		return nil, errf(CodeRuntimeFailure, node.ID, "foreach iterations failed: %v", errors.Join(errs...))
	}
	return results, nil
}
