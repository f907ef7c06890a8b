package expr

import "fmt"

// Error is a parse or evaluation failure inside an expression or template.
//
// It carries the offending expression text and, when the expression was
// embedded in a template, the full template string and the byte span of
// the failing segment.
type Error struct {
	// Message describes what went wrong.
	Message string

	// Expression is the expression source that failed.
	Expression string

	// Template is the enclosing template, if the expression came from one.
	Template string

	// Pos is the byte offset of the failure. For template errors this is
	// the offset of the expression segment within the template; otherwise
	// it is an offset within Expression. Negative when unknown.
	Pos int

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Expression != "" {
		return fmt.Sprintf("expression %q: %s", e.Expression, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// newError builds an Error without template context.
func newError(msg, expression string, pos int) *Error {
	return &Error{Message: msg, Expression: expression, Pos: pos}
}

// withTemplate re-raises an expression error with template context attached.
// Non-expr errors are wrapped so callers always see an *Error.
func withTemplate(err error, template string, start int) *Error {
	if ee, ok := err.(*Error); ok {
		return &Error{
			Message:    ee.Message,
			Expression: ee.Expression,
			Template:   template,
			Pos:        start,
			Cause:      ee.Cause,
		}
	}
	return &Error{Message: err.Error(), Template: template, Pos: start, Cause: err}
}
