package expr

// Builtin is a whitelisted function callable from expressions.
//
// Builtins receive already-evaluated argument values and must be pure with
// respect to the evaluation context: they can compute, but never mutate
// Variables or reach host state.
type Builtin func(args []any) (any, error)

// Context supplies the variables and the function whitelist for an
// evaluation. Functions are deliberately kept in a separate table:
// identifier lookup never falls through from Variables to Functions or
// vice versa, so a workflow value can never shadow or become callable.
type Context struct {
	Variables map[string]any
	Functions map[string]Builtin
}

// NewContext returns a Context with the standard builtin whitelist and an
// empty variable table.
func NewContext() *Context {
	return &Context{
		Variables: map[string]any{},
		Functions: Builtins(),
	}
}

// With binds a variable and returns the context for chaining.
func (c *Context) With(name string, value any) *Context {
	if c.Variables == nil {
		c.Variables = map[string]any{}
	}
	c.Variables[name] = value
	return c
}
