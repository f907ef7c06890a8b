package flow

import (
	"fmt"
	"strings"
	"time"
)

// Error codes attached to *Error values.
const (
	CodeUnknownRuntime = "UNKNOWN_RUNTIME"
	CodeCycleDetected  = "CYCLE_DETECTED"
	CodeExpression     = "EXPRESSION_ERROR"
	CodeRuntimeFailure = "RUNTIME_ERROR"
	CodeWaveFailure    = "WAVE_FAILED"
	CodeStore          = "STORE_ERROR"
	CodeResume         = "RESUME_ERROR"
)

// Error is the structured error type of the execution core. Every error
// surfaced to a caller carries the node ID where it originated (when one
// exists), a machine-readable code and a message. Secret values never
// appear in messages; context embedded in errors goes through the
// redacting view first.
type Error struct {
	Code    string
	Message string
	NodeID  string
	Cause   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Code != "" {
		sb.WriteString(e.Code)
		sb.WriteString(": ")
	}
	if e.NodeID != "" {
		sb.WriteString("node ")
		sb.WriteString(e.NodeID)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func errf(code, nodeID, format string, args ...any) *Error {
	return &Error{Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)}
}

// TimeoutError reports expiry of the global deadline or of a temporal
// timeout node. Timeouts are never retried.
type TimeoutError struct {
	Duration time.Duration
	// Global is true for the workflow-level deadline, false for a
	// temporal:timeout node's local deadline.
	Global bool
	NodeID string
}

func (e *TimeoutError) Error() string {
	if e.Global {
		return fmt.Sprintf("workflow timed out after %s", e.Duration)
	}
	if e.NodeID != "" {
		return fmt.Sprintf("node %s timed out after %s", e.NodeID, e.Duration)
	}
	return fmt.Sprintf("timed out after %s", e.Duration)
}

// CycleError reports a dependency cycle: a scheduling step produced no
// ready nodes while nodes remained.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return "cycle detected among nodes: " + strings.Join(e.Remaining, ", ")
}
