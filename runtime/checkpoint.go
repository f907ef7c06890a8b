package runtime

import (
	"context"
	"time"

	"github.com/dshills/flowmark/flow"
)

// CheckpointRequest is what a Prompter presents to a human: the
// checkpoint's message, the data under review, and identity for audit.
type CheckpointRequest struct {
	RunID   string
	NodeID  string
	Message string
	Input   any
	Actions []string
}

// CheckpointResponse is the human decision.
type CheckpointResponse struct {
	Action string
	Input  any
	Goto   string
}

// Prompter obtains a human decision for a checkpoint. Implementations
// block until a decision arrives or ctx is done; the runtime owns the
// timeout.
type Prompter interface {
	Prompt(ctx context.Context, req *CheckpointRequest) (*CheckpointResponse, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, req *CheckpointRequest) (*CheckpointResponse, error)

func (f PrompterFunc) Prompt(ctx context.Context, req *CheckpointRequest) (*CheckpointResponse, error) {
	return f(ctx, req)
}

// CheckpointRuntime implements the checkpoint node: pause execution for
// a human decision, with a conditional pre-flight, a decision timeout
// and a default action for unattended runs.
//
// Config keys: message, condition (bool; falsy skips the checkpoint),
// timeoutMs, defaultAction ("approve" unless configured), actions.
type CheckpointRuntime struct {
	// Prompter supplies decisions. Nil means non-interactive: the default
	// action applies immediately.
	Prompter Prompter
}

func (c *CheckpointRuntime) Execute(ctx context.Context, req *flow.Request) (any, error) {
	defaultAction := stringConfig(req.Config, "defaultAction", "approve")

	// Conditional checkpoint: a falsy condition means nothing to review,
	// so the node approves regardless of the configured default action.
	if cond, ok := req.Config["condition"]; ok && !truthy(cond) {
		return &flow.CheckpointResult{
			Action:      "approve",
			Input:       req.Input,
			Skipped:     true,
			RespondedAt: time.Now().UTC(),
		}, nil
	}

	if c.Prompter == nil {
		return &flow.CheckpointResult{
			Action:      defaultAction,
			Input:       req.Input,
			RespondedAt: time.Now().UTC(),
		}, nil
	}

	promptCtx := ctx
	if ms := intConfig(req.Config, "timeoutMs", 0); ms > 0 {
		var cancel context.CancelFunc
		promptCtx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	resp, err := c.Prompter.Prompt(promptCtx, &CheckpointRequest{
		RunID:   req.State.RunID(),
		NodeID:  req.Node.ID,
		Message: stringConfig(req.Config, "message", ""),
		Input:   req.Input,
		Actions: actionList(req.Config),
	})
	if err != nil {
		// Decision timeout falls back to the default action; the outer
		// context ending is real cancellation.
		if promptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &flow.CheckpointResult{
				Action:      defaultAction,
				Input:       req.Input,
				TimedOut:    true,
				RespondedAt: time.Now().UTC(),
			}, nil
		}
		return nil, err
	}

	out := &flow.CheckpointResult{
		Action:      resp.Action,
		Input:       resp.Input,
		Goto:        resp.Goto,
		RespondedAt: time.Now().UTC(),
	}
	if out.Input == nil {
		out.Input = req.Input
	}
	return out, nil
}

func actionList(cfg map[string]any) []string {
	raw, ok := cfg["actions"].([]any)
	if !ok {
		return []string{"approve", "reject"}
	}
	actions := make([]string, 0, len(raw))
	for _, a := range raw {
		if s, ok := a.(string); ok {
			actions = append(actions, s)
		}
	}
	return actions
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && x != "false"
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return true
}
