package flow

import "errors"

// BreakSignal is the control-flow primitive raised to terminate iteration.
// It is not a true failure: the nearest enclosing loop or foreach consumes
// it. A non-empty TargetLoopID addresses a specific enclosing loop by node
// ID; loops that are not the target re-raise the signal outward until the
// matching loop consumes it.
type BreakSignal struct {
	TargetLoopID string
}

func (s *BreakSignal) Error() string {
	if s.TargetLoopID != "" {
		return "break signal (target loop " + s.TargetLoopID + ")"
	}
	return "break signal"
}

// asBreak extracts a BreakSignal from an error chain.
func asBreak(err error) (*BreakSignal, bool) {
	var bs *BreakSignal
	if errors.As(err, &bs) {
		return bs, true
	}
	return nil, false
}

// breakFor reports whether the signal should be consumed by the loop with
// the given node ID.
func (s *BreakSignal) breakFor(loopID string) bool {
	return s.TargetLoopID == "" || s.TargetLoopID == loopID
}

// GotoSignal is raised by the control:goto runtime. The executor core does
// not route it; downstream routing is the workflow author's concern, so it
// surfaces in the node result for the author's own constructs to consume.
type GotoSignal struct {
	Target string
}

func (s *GotoSignal) Error() string {
	return "goto " + s.Target
}

// asTimeout extracts a TimeoutError from an error chain.
func asTimeout(err error) (*TimeoutError, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
