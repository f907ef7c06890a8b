package flow

import (
	"context"
	"sort"
	"sync"
)

// Request carries everything a runtime needs for one node invocation:
// the plan node, the upstream input value, the template-resolved config,
// and the branch-local state for runtimes that read or write context.
type Request struct {
	Node   *Node
	Input  any
	Config map[string]any
	State  *ExecutionState
}

// Runtime executes one node type. Implementations return either a plain
// output value or a control-flow descriptor (ParallelResult,
// ForeachResult, LoopResult, TimeoutResult) that the executor expands.
type Runtime interface {
	Execute(ctx context.Context, req *Request) (any, error)
}

// RuntimeFunc adapts a function to the Runtime interface.
type RuntimeFunc func(ctx context.Context, req *Request) (any, error)

func (f RuntimeFunc) Execute(ctx context.Context, req *Request) (any, error) {
	return f(ctx, req)
}

// Registry maps runtime keys ("http:source", "transform:template",
// "control:foreach", ...) to implementations. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string]Runtime
}

func NewRegistry() *Registry {
	return &Registry{runtimes: map[string]Runtime{}}
}

// Register binds a runtime key. Later registrations replace earlier ones,
// which is how callers override built-ins.
func (r *Registry) Register(key string, rt Runtime) {
	r.mu.Lock()
	r.runtimes[key] = rt
	r.mu.Unlock()
}

// Lookup resolves a runtime key.
func (r *Registry) Lookup(key string) (Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[key]
	return rt, ok
}

// Keys returns the registered runtime keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.runtimes))
	for k := range r.runtimes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
