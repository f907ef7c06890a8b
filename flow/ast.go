// Package flow implements the workflow execution core: dependency
// analysis, wave planning, the concurrency-bounded executor with retry,
// fallback, timeout and cancellation, control-flow handlers, and
// checkpoint-resumable execution state.
//
// A validated WorkflowAST enters BuildPlan, which produces an
// ExecutionPlan of topological waves. The Executor drives waves in order;
// within a wave, nodes run concurrently under a FIFO semaphore. Each node
// resolves its templated config through the expr engine, dispatches to a
// registered Runtime, and records a NodeResult. Runtimes may return
// control-flow descriptors (ParallelResult, ForeachResult, LoopResult,
// TimeoutResult) which the executor interprets recursively with proper
// state isolation. State is checkpointed after every wave.
package flow

import "fmt"

// NodeType is the primary tag of the node union.
type NodeType string

const (
	NodeSource      NodeType = "source"
	NodeTransform   NodeType = "transform"
	NodeSink        NodeType = "sink"
	NodeControl     NodeType = "control"
	NodeTemporal    NodeType = "temporal"
	NodeCheckpoint  NodeType = "checkpoint"
	NodeComposition NodeType = "composition"
)

// SourceLoc points back into the workflow document for error reporting.
type SourceLoc struct {
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ConfigField is a workflow-level config field declared in frontmatter.
type ConfigField struct {
	Name     string
	Type     string
	Default  any
	Required bool
	// Schema is an optional JSON-schema fragment validated at load time.
	Schema map[string]any
}

// Metadata is the workflow header parsed from frontmatter.
type Metadata struct {
	Name        string
	Version     string
	Description string
	Trigger     string
	Config      []ConfigField
	// Secrets lists declared secret names. Values are supplied by the
	// caller at execution time and never appear in the AST.
	Secrets []string
}

// WorkflowAST is the validated input contract of the core. Node IDs are
// unique, input references resolve, and expression strings parse; those
// invariants are enforced by the external validators.
type WorkflowAST struct {
	Metadata Metadata
	Nodes    []*Node
}

// Case is one arm of a control:branch node.
type Case struct {
	When string // predicate expression
	Then []*Node
}

// Node is the tagged union of workflow nodes. Type selects the variant;
// data-flow nodes (source, transform, sink) carry Config, control and
// temporal nodes carry the structured sub-fields below.
type Node struct {
	ID    string
	Type  NodeType
	Kind  string // variant detail: "http", "template", "parallel", "timeout", ...
	Loc   SourceLoc
	Input string // explicit predecessor reference, optional

	// Retry is the node-level error config. When nil, the executor's
	// default retry config applies. Config["retry"] overrides both.
	Retry *RetryConfig

	// Config is the free-form map of data-flow nodes. String values may
	// contain {{...}} templates resolved at execution time.
	Config map[string]any

	// control:branch
	Cases []Case

	// control:if
	Condition string
	Then      []*Node
	Else      []*Node

	// control:parallel
	Branches       [][]*Node
	Wait           string
	Merge          string
	MaxConcurrency int

	// control:foreach
	Collection  string // expression producing the collection
	ItemVar     string
	IndexVar    string
	BodyNodeIDs []string

	// control:loop / control:while
	Body           []*Node
	MaxIterations  int
	BreakCondition string

	// control:break / control:goto
	Target string

	// temporal:timeout
	DurationMs int
	Children   []*Node
	OnTimeout  string
}

// RuntimeKey derives the registry key for this node from its tagged
// variant: "<kind>:source" / "<kind>:sink" for data endpoints,
// "transform:<kind>" for transforms, "control:<kind>" and
// "temporal:<kind>" for flow constructs, and the bare "checkpoint".
func (n *Node) RuntimeKey() string {
	switch n.Type {
	case NodeSource:
		return n.Kind + ":source"
	case NodeSink:
		return n.Kind + ":sink"
	case NodeTransform:
		return "transform:" + n.Kind
	case NodeControl:
		return "control:" + n.Kind
	case NodeTemporal:
		return "temporal:" + n.Kind
	case NodeComposition:
		return "composition:" + n.Kind
	case NodeCheckpoint:
		return "checkpoint"
	}
	return fmt.Sprintf("%s:%s", n.Type, n.Kind)
}
