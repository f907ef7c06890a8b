package flow

import (
	"context"
	"encoding/json"
	"os"
)

// LoadState reads a checkpoint file written by the executor's
// per-wave persistence.
func LoadState(path string) (*ExecutionState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errf(CodeStore, "", "read checkpoint: %v", err)
	}
	var state ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errf(CodeStore, "", "decode checkpoint: %v", err)
	}
	return &state, nil
}

// CanResume reports whether the checkpoint at path belongs to a run that
// is eligible for resumption: it must load cleanly and be in a failed or
// cancelled state. Completed and still-running checkpoints are not
// resumable.
func CanResume(path string) bool {
	state, err := LoadState(path)
	if err != nil {
		return false
	}
	switch state.Status() {
	case StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Resume re-enters execution of a failed or cancelled run. Waves that
// completed before the failure are skipped; within the failure wave,
// nodes that already succeeded are not re-run. Config and secret
// overrides (fresh credentials, corrected parameters) are merged before
// re-entry.
func (e *Executor) Resume(ctx context.Context, plan *ExecutionPlan, state *ExecutionState, config map[string]any, secrets map[string]string) error {
	switch state.Status() {
	case StatusFailed, StatusCancelled:
	default:
		return errf(CodeResume, "", "run %s is %s; only failed or cancelled runs can resume",
			state.RunID(), state.Status())
	}

	state.ApplyOverrides(config, secrets)
	return e.Execute(ctx, resumePlan(plan, state), state)
}

// resumePlan trims the plan to the work remaining after the recorded
// wave progress.
func resumePlan(plan *ExecutionPlan, state *ExecutionState) *ExecutionPlan {
	cur := state.CurrentWave()
	var waves []Wave
	for _, w := range plan.Waves {
		if w.Number < cur {
			continue
		}
		if w.Number == cur {
			var pending []string
			for _, id := range w.NodeIDs {
				if r, ok := state.Result(id); ok && r.Status == NodeSuccess {
					continue
				}
				pending = append(pending, id)
			}
			if len(pending) == 0 {
				continue
			}
			waves = append(waves, Wave{Number: w.Number, NodeIDs: pending})
			continue
		}
		waves = append(waves, w)
	}
	return &ExecutionPlan{
		WorkflowID: plan.WorkflowID,
		TotalNodes: plan.TotalNodes,
		Waves:      waves,
		Nodes:      plan.Nodes,
		Deps:       plan.Deps,
	}
}
