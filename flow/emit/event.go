// Package emit provides pluggable observability for workflow execution.
// The executor publishes events through an Emitter; backends range from
// discard (NullEmitter) through line logging (LogEmitter) to OpenTelemetry
// spans (OTelEmitter). BufferedEmitter captures events in memory for tests
// and post-run analysis.
package emit

// Event is one observability record emitted during execution: workflow
// start/finish, wave boundaries, node completion, retries, checkpoints.
type Event struct {
	// RunID identifies the execution that emitted this event.
	RunID string

	// Wave is the wave number the event belongs to. Zero for
	// workflow-level events.
	Wave int

	// NodeID identifies the node, empty for workflow-level events.
	NodeID string

	// Msg names the event kind ("workflow_start", "node_end", "retry",
	// "checkpoint_saved", ...).
	Msg string

	// Meta carries event-specific structured data. Common keys:
	// "duration_ms", "error", "attempt", "status".
	Meta map[string]any
}

// Emitter receives execution events.
//
// Implementations must be safe for concurrent use, must not block
// execution, and must not panic; backend failures are the emitter's own
// problem.
type Emitter interface {
	Emit(event Event)
}
