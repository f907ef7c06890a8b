package flow

import "time"

// Control-flow descriptors. Certain runtimes return one of these concrete
// types instead of a plain value; the executor recognizes them by type and
// recursively executes the described sub-work. The handler's return value
// replaces the raw output in the node result.

// ParallelResult fans out into independent branches.
type ParallelResult struct {
	// Branches are executed concurrently; nodes within a branch run
	// sequentially.
	Branches    [][]*Node
	BranchCount int

	// MaxConcurrency bounds concurrent branches; 0 falls back to the
	// executor's bound.
	MaxConcurrency int

	// Wait is "all" (default), "any", or "n(K)".
	Wait string

	// Merge is "array" (default), "concat", "object", or an expression
	// evaluated with $branches bound to the collected result sequence.
	Merge string
}

// ForeachResult iterates body nodes over a collection.
type ForeachResult struct {
	Collection []any
	ItemVar    string
	IndexVar   string

	// MaxConcurrency of 0 or 1 means strictly sequential iterations.
	MaxConcurrency int

	// BodyNodeIDs reference top-level plan nodes executed per iteration.
	BodyNodeIDs []string

	// LoopID is the foreach node's ID, used to match targeted break
	// signals.
	LoopID string
}

// LoopResult repeats body nodes up to a bounded iteration count.
type LoopResult struct {
	MaxIterations int
	BodyNodes     []*Node

	// BreakCondition, when set, is evaluated after each iteration; a
	// truthy result stops the loop. Unevaluatable conditions mean
	// "continue looping".
	BreakCondition string

	// LoopID is the loop node's ID, used to match targeted break signals.
	LoopID string
}

// TimeoutResult runs children under a local deadline.
type TimeoutResult struct {
	DurationMs int
	Children   []*Node

	// OnTimeout optionally names a plan node executed as fallback when
	// the deadline expires.
	OnTimeout string
}

// CheckpointResult is the opaque outcome of a checkpoint runtime: a human
// decision, a timeout, or a skip. The executor core records it like any
// other output; goto-based routing is the workflow author's concern.
type CheckpointResult struct {
	Action      string    `json:"action"`
	Input       any       `json:"input,omitempty"`
	TimedOut    bool      `json:"timedOut"`
	RespondedAt time.Time `json:"respondedAt"`
	Skipped     bool      `json:"skipped,omitempty"`
	Goto        string    `json:"goto,omitempty"`
}
