package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// descriptorNode builds a plan node whose runtime returns a fixed
// control-flow descriptor.
func descriptorNode(r *Registry, id string, descriptor func(req *Request) (any, error)) *Node {
	kind := "desc-" + id
	r.Register("transform:"+kind, RuntimeFunc(func(_ context.Context, req *Request) (any, error) {
		return descriptor(req)
	}))
	return &Node{ID: id, Type: NodeTransform, Kind: kind, Config: map[string]any{}}
}

func TestParallelAllPreservesDeclarationOrder(t *testing.T) {
	r := echoRegistry()
	r.Register("transform:slowecho", RuntimeFunc(func(_ context.Context, req *Request) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return req.Config["template"], nil
	}))

	branches := [][]*Node{
		{&Node{ID: "s1", Type: NodeTransform, Kind: "slowecho", Config: map[string]any{"template": "first"}}},
		{wfNode("s2", map[string]any{"template": "second"})},
	}
	par := descriptorNode(r, "par", func(*Request) (any, error) {
		return &ParallelResult{Branches: branches, BranchCount: 2, Wait: "all"}, nil
	})

	plan := mustPlan(t, par)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	out, _ := state.Output("par")
	// The slow first branch still lands in slot 0.
	assert.Equal(t, []any{"first", "second"}, out)
}

func TestParallelBranchVariableAndIsolation(t *testing.T) {
	r := echoRegistry()
	branches := [][]*Node{
		{wfNode("b0", map[string]any{"template": "{{$branch * 10}}"})},
		{wfNode("b1", map[string]any{"template": "{{$branch * 10}}"})},
	}
	par := descriptorNode(r, "par", func(*Request) (any, error) {
		return &ParallelResult{Branches: branches, BranchCount: 2}, nil
	})
	plan := mustPlan(t, par)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	out, _ := state.Output("par")
	assert.Equal(t, []any{float64(0), float64(10)}, out)

	// Branch-local context never leaks into the main state.
	_, ok := state.NodeContext("$branch")
	assert.False(t, ok)
}

func TestParallelWaitAny(t *testing.T) {
	r := echoRegistry()
	r.Register("transform:stall", RuntimeFunc(func(ctx context.Context, _ *Request) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too-late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	branches := [][]*Node{
		{&Node{ID: "slowb", Type: NodeTransform, Kind: "stall", Config: map[string]any{}}},
		{wfNode("fastb", map[string]any{"template": "fast"})},
	}
	par := descriptorNode(r, "par", func(*Request) (any, error) {
		return &ParallelResult{Branches: branches, BranchCount: 2, Wait: "any", Merge: "$branches[0]"}, nil
	})

	plan := mustPlan(t, par)
	state := NewState("test", nil, nil)
	start := time.Now()
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))
	assert.Less(t, time.Since(start), 2*time.Second, "wait=any must not wait for the stalled branch")

	out, _ := state.Output("par")
	assert.Equal(t, "fast", out)
}

func TestParallelQuorumFailsWhenUnsatisfiable(t *testing.T) {
	r := echoRegistry()
	r.Register("transform:boom", RuntimeFunc(func(_ context.Context, _ *Request) (any, error) {
		return nil, errors.New("branch failed")
	}))
	branches := [][]*Node{
		{&Node{ID: "f1", Type: NodeTransform, Kind: "boom", Config: map[string]any{}}},
		{&Node{ID: "f2", Type: NodeTransform, Kind: "boom", Config: map[string]any{}}},
		{wfNode("okb", map[string]any{"template": "fine"})},
	}
	par := descriptorNode(r, "par", func(*Request) (any, error) {
		return &ParallelResult{Branches: branches, BranchCount: 3, Wait: "n(2)"}, nil
	})

	plan := mustPlan(t, par)
	state := NewState("test", nil, nil)
	err := NewExecutor(r).Execute(context.Background(), plan, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsatisfiable")
}

func TestParallelMergeStrategies(t *testing.T) {
	tests := []struct {
		name    string
		merge   string
		outputs []any
		want    any
	}{
		{"array default", "", []any{"a", "b"}, []any{"a", "b"}},
		{"concat flattens", "concat", []any{[]any{float64(1)}, []any{float64(2), float64(3)}}, []any{float64(1), float64(2), float64(3)}},
		{"object merges", "object", []any{map[string]any{"x": float64(1)}, map[string]any{"y": float64(2)}}, map[string]any{"x": float64(1), "y": float64(2)}},
		{"expression", "length($branches)", []any{"a", "b"}, float64(2)},
		{"bad expression degrades to array", "nosuchfn($branches)", []any{"a"}, []any{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(echoRegistry())
			got, err := e.mergeBranches(NewState("test", nil, nil), tt.merge, tt.outputs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWait(t *testing.T) {
	for _, tt := range []struct {
		wait    string
		n       int
		want    int
		wantErr bool
	}{
		{"", 4, 4, false},
		{"all", 4, 4, false},
		{"any", 4, 1, false},
		{"n(2)", 4, 2, false},
		{"n(9)", 4, 4, false},
		{"n(zero)", 4, 0, true},
		{"most", 4, 0, true},
	} {
		got, err := parseWait(tt.wait, tt.n)
		if tt.wantErr {
			assert.Error(t, err, tt.wait)
			continue
		}
		require.NoError(t, err, tt.wait)
		assert.Equal(t, tt.want, got, tt.wait)
	}
}

func TestSequenceChainsImplicitInput(t *testing.T) {
	r := echoRegistry()
	branches := [][]*Node{{
		wfNode("p1", map[string]any{"template": "First"}),
		wfNode("p2", map[string]any{"template": "Got: {{input}}"}),
	}}
	par := descriptorNode(r, "par", func(*Request) (any, error) {
		return &ParallelResult{Branches: branches, BranchCount: 1}, nil
	})

	plan := mustPlan(t, par)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	// The second node sees the first node's output as its implicit input.
	out, _ := state.Output("par")
	assert.Equal(t, []any{"Got: First"}, out)
}

func TestForeachSequential(t *testing.T) {
	r := echoRegistry()
	body := wfNode("double", map[string]any{"template": "{{item * 2}}"})
	fe := descriptorNode(r, "fe", func(*Request) (any, error) {
		return &ForeachResult{
			Collection:  []any{float64(1), float64(2), float64(3)},
			ItemVar:     "item",
			BodyNodeIDs: []string{"double"},
			LoopID:      "fe",
		}, nil
	})

	plan := mustPlan(t, fe, body)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	out, _ := state.Output("fe")
	assert.Equal(t, []any{float64(2), float64(4), float64(6)}, out)
}

func TestForeachSequentialBreakKeepsSlotPerItem(t *testing.T) {
	r := echoRegistry()
	r.Register("transform:stopper", RuntimeFunc(func(_ context.Context, req *Request) (any, error) {
		item, _ := req.State.NodeContext("item")
		if item == "stop" {
			return nil, &BreakSignal{}
		}
		return item, nil
	}))
	body := &Node{ID: "maybe", Type: NodeTransform, Kind: "stopper", Config: map[string]any{}}
	fe := descriptorNode(r, "fe", func(*Request) (any, error) {
		return &ForeachResult{
			Collection:  []any{"a", "b", "stop", "c"},
			ItemVar:     "item",
			BodyNodeIDs: []string{"maybe"},
			LoopID:      "fe",
		}, nil
	})

	plan := mustPlan(t, fe, body)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	// One slot per collection element; iterations cut off by the break
	// leave their slots nil.
	out, _ := state.Output("fe")
	assert.Equal(t, []any{"a", "b", nil, nil}, out)
}

func TestForeachParallelBreakAbortsOnlyItsIteration(t *testing.T) {
	r := echoRegistry()
	r.Register("transform:stopper", RuntimeFunc(func(_ context.Context, req *Request) (any, error) {
		item, _ := req.State.NodeContext("item")
		if item == "stop" {
			return nil, &BreakSignal{}
		}
		return item, nil
	}))
	body := &Node{ID: "maybe", Type: NodeTransform, Kind: "stopper", Config: map[string]any{}}
	fe := descriptorNode(r, "fe", func(*Request) (any, error) {
		return &ForeachResult{
			Collection:     []any{"a", "stop", "c"},
			ItemVar:        "item",
			MaxConcurrency: 3,
			BodyNodeIDs:    []string{"maybe"},
			LoopID:         "fe",
		}, nil
	})

	plan := mustPlan(t, fe, body)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	out, _ := state.Output("fe")
	assert.Equal(t, []any{"a", nil, "c"}, out)
}

func TestLoopBreakCondition(t *testing.T) {
	r := echoRegistry()
	body := wfNode("tick", map[string]any{"template": "{{$iteration}}"})
	loop := descriptorNode(r, "loop", func(*Request) (any, error) {
		return &LoopResult{
			MaxIterations:  10,
			BodyNodes:      []*Node{body},
			BreakCondition: "$iteration >= 2",
			LoopID:         "loop",
		}, nil
	})

	plan := mustPlan(t, loop)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	// Iterations 0, 1 and 2 run; the condition stops the loop after 2.
	out, _ := state.Output("loop")
	assert.Equal(t, 2, out)
}

func TestLoopUnevaluatableConditionKeepsLooping(t *testing.T) {
	r := echoRegistry()
	body := wfNode("tick", map[string]any{"template": "{{$iteration}}"})
	loop := descriptorNode(r, "loop", func(*Request) (any, error) {
		return &LoopResult{
			MaxIterations:  3,
			BodyNodes:      []*Node{body},
			BreakCondition: "nosuchfn()",
			LoopID:         "loop",
		}, nil
	})

	plan := mustPlan(t, loop)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	out, _ := state.Output("loop")
	assert.Equal(t, 2, out, "all three iterations ran")
}

func TestTargetedBreakSkipsInnerLoop(t *testing.T) {
	r := echoRegistry()
	r.Register("transform:breakouter", RuntimeFunc(func(_ context.Context, _ *Request) (any, error) {
		return nil, &BreakSignal{TargetLoopID: "outer"}
	}))
	breaker := &Node{ID: "breaker", Type: NodeTransform, Kind: "breakouter", Config: map[string]any{}}

	inner := descriptorNode(r, "inner", func(*Request) (any, error) {
		return &LoopResult{MaxIterations: 5, BodyNodes: []*Node{breaker}, LoopID: "inner"}, nil
	})
	outer := descriptorNode(r, "outer", func(*Request) (any, error) {
		return &LoopResult{MaxIterations: 5, BodyNodes: []*Node{inner}, LoopID: "outer"}, nil
	})

	plan := mustPlan(t, outer)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	// The signal targeted "outer": the inner loop re-raised it and only
	// the outer loop consumed it, on its first iteration.
	res, ok := state.Result("outer")
	require.True(t, ok)
	assert.Equal(t, NodeSuccess, res.Status)
	assert.Nil(t, res.Output)
}

func TestTimeoutDescriptorExpiry(t *testing.T) {
	r := echoRegistry()
	r.Register("transform:stall", RuntimeFunc(func(ctx context.Context, _ *Request) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	child := &Node{ID: "stall", Type: NodeTransform, Kind: "stall", Config: map[string]any{}}
	to := descriptorNode(r, "to", func(*Request) (any, error) {
		return &TimeoutResult{DurationMs: 30, Children: []*Node{child}}, nil
	})

	plan := mustPlan(t, to)
	state := NewState("test", nil, nil)
	err := NewExecutor(r).Execute(context.Background(), plan, state)
	require.Error(t, err)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Global)
	assert.Equal(t, "to", te.NodeID)
}

func TestTimeoutDescriptorFallback(t *testing.T) {
	r := echoRegistry()
	r.Register("transform:stall", RuntimeFunc(func(ctx context.Context, _ *Request) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	child := &Node{ID: "stall", Type: NodeTransform, Kind: "stall", Config: map[string]any{}}
	fallback := wfNode("plan-b", map[string]any{"template": "degraded"})
	to := descriptorNode(r, "to", func(*Request) (any, error) {
		return &TimeoutResult{DurationMs: 30, Children: []*Node{child}, OnTimeout: "plan-b"}, nil
	})

	plan := mustPlan(t, to, fallback)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	out, _ := state.Output("to")
	assert.Equal(t, "degraded", out)
}

func TestTimeoutDescriptorFastChildren(t *testing.T) {
	r := echoRegistry()
	child := wfNode("quick", map[string]any{"template": "done"})
	to := descriptorNode(r, "to", func(*Request) (any, error) {
		return &TimeoutResult{DurationMs: 5000, Children: []*Node{child}}, nil
	})

	plan := mustPlan(t, to)
	state := NewState("test", nil, nil)
	require.NoError(t, NewExecutor(r).Execute(context.Background(), plan, state))

	out, _ := state.Output("to")
	assert.Equal(t, "done", out)
}
