// Package runtime provides the built-in node runtimes: data endpoints
// (http, file, db, ai), transforms, control-flow constructs, temporal
// nodes and checkpoints. DefaultRegistry wires them all; callers extend
// or override by registering their own implementations on top.
package runtime

import (
	"github.com/dshills/flowmark/flow"
)

// DefaultRegistry returns a registry with every built-in runtime
// registered. The checkpoint runtime runs in non-interactive mode;
// register a CheckpointRuntime with a Prompter to involve a human.
func DefaultRegistry() *flow.Registry {
	r := flow.NewRegistry()

	r.Register("transform:template", flow.RuntimeFunc(templateTransform))
	r.Register("transform:extract", flow.RuntimeFunc(extractTransform))

	r.Register("http:source", &HTTPRuntime{})
	r.Register("http:sink", &HTTPRuntime{sink: true})
	r.Register("file:source", flow.RuntimeFunc(fileSource))
	r.Register("file:sink", flow.RuntimeFunc(fileSink))
	r.Register("db:source", flow.RuntimeFunc(dbSource))
	r.Register("db:sink", flow.RuntimeFunc(dbSink))
	r.Register("ai:source", &AIRuntime{})

	r.Register("control:parallel", flow.RuntimeFunc(controlParallel))
	r.Register("control:foreach", flow.RuntimeFunc(controlForeach))
	r.Register("control:loop", flow.RuntimeFunc(controlLoop))
	r.Register("control:while", flow.RuntimeFunc(controlWhile))
	r.Register("control:if", flow.RuntimeFunc(controlIf))
	r.Register("control:branch", flow.RuntimeFunc(controlBranch))
	r.Register("control:break", flow.RuntimeFunc(controlBreak))
	r.Register("control:goto", flow.RuntimeFunc(controlGoto))

	r.Register("temporal:delay", flow.RuntimeFunc(temporalDelay))
	r.Register("temporal:timeout", flow.RuntimeFunc(temporalTimeout))

	r.Register("composition:include", &CompositionRuntime{})
	r.Register("composition:call", &CompositionRuntime{Isolated: true})

	r.Register("checkpoint", &CheckpointRuntime{})
	return r
}
