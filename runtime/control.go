package runtime

import (
	"context"
	"fmt"

	"github.com/dshills/flowmark/flow"
)

// Control runtimes are thin: they evaluate their own attributes and
// return control-flow descriptors for the executor to expand. Keeping
// the recursion in the executor means branches and iterations get proper
// state isolation and concurrency bounds without each runtime
// reimplementing them.

func controlParallel(_ context.Context, req *flow.Request) (any, error) {
	n := req.Node
	return &flow.ParallelResult{
		Branches:       n.Branches,
		BranchCount:    len(n.Branches),
		MaxConcurrency: n.MaxConcurrency,
		Wait:           n.Wait,
		Merge:          n.Merge,
	}, nil
}

func controlForeach(_ context.Context, req *flow.Request) (any, error) {
	n := req.Node
	v, err := flow.EvalValue(n.Collection, req.State)
	if err != nil {
		return nil, fmt.Errorf("evaluate collection: %w", err)
	}
	items, err := toCollection(v)
	if err != nil {
		return nil, err
	}
	return &flow.ForeachResult{
		Collection:     items,
		ItemVar:        n.ItemVar,
		IndexVar:       n.IndexVar,
		MaxConcurrency: n.MaxConcurrency,
		BodyNodeIDs:    n.BodyNodeIDs,
		LoopID:         n.ID,
	}, nil
}

// toCollection accepts arrays directly; any other value is a config
// authoring error.
func toCollection(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case nil:
		return []any{}, nil
	default:
		return nil, fmt.Errorf("foreach collection must be an array, got %T", v)
	}
}

const defaultMaxIterations = 100

func controlLoop(_ context.Context, req *flow.Request) (any, error) {
	n := req.Node
	max := n.MaxIterations
	if max <= 0 {
		max = defaultMaxIterations
	}
	return &flow.LoopResult{
		MaxIterations:  max,
		BodyNodes:      n.Body,
		BreakCondition: n.BreakCondition,
		LoopID:         n.ID,
	}, nil
}

// controlWhile is loop with an inverted condition: iterate while the
// condition holds, so the break condition is its negation.
func controlWhile(_ context.Context, req *flow.Request) (any, error) {
	n := req.Node
	max := n.MaxIterations
	if max <= 0 {
		max = defaultMaxIterations
	}
	return &flow.LoopResult{
		MaxIterations:  max,
		BodyNodes:      n.Body,
		BreakCondition: "!(" + n.Condition + ")",
		LoopID:         n.ID,
	}, nil
}

// controlIf evaluates the condition and runs the selected arm as a
// single sequential branch. The branch output passes through unwrapped.
func controlIf(_ context.Context, req *flow.Request) (any, error) {
	n := req.Node
	truthy, err := flow.EvalCondition(n.Condition, req.State)
	if err != nil {
		return nil, fmt.Errorf("evaluate condition: %w", err)
	}
	arm := n.Then
	if !truthy {
		arm = n.Else
	}
	if len(arm) == 0 {
		return nil, nil
	}
	return &flow.ParallelResult{
		Branches:    [][]*flow.Node{arm},
		BranchCount: 1,
		Merge:       "$branches[0]",
	}, nil
}

// controlBranch runs the first case whose predicate is truthy. Predicate
// evaluation errors fail the node; no matching case yields nil.
func controlBranch(_ context.Context, req *flow.Request) (any, error) {
	for i, c := range req.Node.Cases {
		truthy, err := flow.EvalCondition(c.When, req.State)
		if err != nil {
			return nil, fmt.Errorf("evaluate case %d predicate: %w", i, err)
		}
		if !truthy {
			continue
		}
		if len(c.Then) == 0 {
			return nil, nil
		}
		return &flow.ParallelResult{
			Branches:    [][]*flow.Node{c.Then},
			BranchCount: 1,
			Merge:       "$branches[0]",
		}, nil
	}
	return nil, nil
}

func controlBreak(_ context.Context, req *flow.Request) (any, error) {
	return nil, &flow.BreakSignal{TargetLoopID: req.Node.Target}
}

// controlGoto records the requested target in its output. The core does
// not route gotos; workflow-level constructs (checkpoint responses,
// author tooling) consume the recorded target.
func controlGoto(_ context.Context, req *flow.Request) (any, error) {
	return map[string]any{"goto": req.Node.Target}, nil
}
