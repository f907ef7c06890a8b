package runtime

import (
	"context"
	"fmt"

	"github.com/dshills/flowmark/flow"
	"github.com/dshills/flowmark/parse"
)

// CompositionRuntime runs another workflow file as a single node.
//
// composition:include executes the sub-workflow in the caller's
// environment: the caller's config overlays the sub-workflow's declared
// defaults, and secrets are shared. composition:call isolates the
// sub-workflow on its own frontmatter config, optionally overridden by
// the node's "config" map; only secrets are shared.
//
// Config keys: path (workflow file, required), output (node ID whose
// output becomes this node's output; the full output map otherwise),
// config (call only, override map for the sub-workflow's config fields).
type CompositionRuntime struct {
	// Registry resolves the sub-workflow's runtime keys. Nil means the
	// default registry.
	Registry *flow.Registry
	// Isolated marks composition:call.
	Isolated bool
}

func (c *CompositionRuntime) Execute(ctx context.Context, req *flow.Request) (any, error) {
	path := stringConfig(req.Config, "path", "")
	if path == "" {
		return nil, fmt.Errorf("composition node %s requires a path", req.Node.ID)
	}
	ast, err := parse.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sub-workflow: %w", err)
	}
	plan, err := flow.BuildPlan(ast)
	if err != nil {
		return nil, fmt.Errorf("plan sub-workflow: %w", err)
	}

	// Both modes layer overrides on the sub-workflow's declared defaults;
	// they differ in where the overrides come from.
	overrides := req.State.Config()
	if c.Isolated {
		overrides, _ = req.Config["config"].(map[string]any)
	}
	cfg, err := parse.BuildConfig(ast.Metadata, overrides)
	if err != nil {
		return nil, fmt.Errorf("sub-workflow config: %w", err)
	}
	sub := flow.NewState(ast.Metadata.Name, cfg, req.State.Secrets())
	sub.SetGlobal("input", req.Input)

	reg := c.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	if err := flow.NewExecutor(reg).Execute(ctx, plan, sub); err != nil {
		return nil, fmt.Errorf("sub-workflow %s: %w", ast.Metadata.Name, err)
	}

	outputs := map[string]any{}
	for id, r := range sub.Results() {
		if r.Status == flow.NodeSuccess {
			outputs[id] = r.Output
		}
	}
	if pick := stringConfig(req.Config, "output", ""); pick != "" {
		return outputs[pick], nil
	}
	return outputs, nil
}
