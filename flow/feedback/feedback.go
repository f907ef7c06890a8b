// Package feedback collects post-run metrics into side files next to a
// workflow, compares each run against a rolling baseline, and records
// the comparison. For workflow W the files are W.metrics.json (run
// history), W.baseline.json (rolling aggregate) and W.feedback.json
// (latest comparison). Missing files are a fresh start, never an error.
package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/flowmark/flow"
)

// RunMetrics summarizes one finished execution.
type RunMetrics struct {
	WorkflowID  string    `json:"workflowId"`
	RunID       string    `json:"runId"`
	Status      string    `json:"status"`
	DurationMs  int64     `json:"durationMs"`
	NodeCount   int       `json:"nodeCount"`
	FailedNodes int       `json:"failedNodes"`
	CompletedAt time.Time `json:"completedAt"`
}

// Baseline is the rolling aggregate over recorded runs.
type Baseline struct {
	WorkflowID    string  `json:"workflowId"`
	RunCount      int     `json:"runCount"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	SuccessRate   float64 `json:"successRate"`
}

// Feedback compares the latest run to the baseline as it stood before
// the run was folded in.
type Feedback struct {
	WorkflowID      string  `json:"workflowId"`
	RunID           string  `json:"runId"`
	DurationDeltaMs float64 `json:"durationDeltaMs"`
	Slower          bool    `json:"slower"`
	Degraded        bool    `json:"degraded"`
	Note            string  `json:"note,omitempty"`
}

// Collector writes the side files for one workflow.
type Collector struct {
	dir  string
	name string
}

// NewCollector creates a collector writing <name>.metrics.json and
// friends under dir.
func NewCollector(dir, workflowName string) *Collector {
	return &Collector{dir: dir, name: workflowName}
}

func (c *Collector) path(suffix string) string {
	return filepath.Join(c.dir, c.name+"."+suffix+".json")
}

// Record derives metrics from a finished state, appends them to the run
// history, compares against the prior baseline and updates both the
// baseline and the feedback file.
func (c *Collector) Record(state *flow.ExecutionState) (*RunMetrics, error) {
	m := metricsFrom(state)

	history, err := c.loadHistory()
	if err != nil {
		return nil, err
	}
	history = append(history, m)
	if err := writeJSON(c.path("metrics"), history); err != nil {
		return nil, err
	}

	prior, err := c.LoadBaseline()
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.RunCount > 0 {
		fb := compare(prior, m)
		if err := writeJSON(c.path("feedback"), fb); err != nil {
			return nil, err
		}
	}

	if err := writeJSON(c.path("baseline"), fold(prior, m, c.name)); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadBaseline returns the stored baseline, or nil when none exists yet.
func (c *Collector) LoadBaseline() (*Baseline, error) {
	data, err := os.ReadFile(c.path("baseline"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	return &b, nil
}

// LoadFeedback returns the latest comparison, or nil when none exists.
func (c *Collector) LoadFeedback() (*Feedback, error) {
	data, err := os.ReadFile(c.path("feedback"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feedback: %w", err)
	}
	var f Feedback
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode feedback: %w", err)
	}
	return &f, nil
}

func (c *Collector) loadHistory() ([]RunMetrics, error) {
	data, err := os.ReadFile(c.path("metrics"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run history: %w", err)
	}
	var history []RunMetrics
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decode run history: %w", err)
	}
	return history, nil
}

func metricsFrom(state *flow.ExecutionState) RunMetrics {
	results := state.Results()
	failed := 0
	for _, r := range results {
		if r.Status == flow.NodeFailed {
			failed++
		}
	}
	m := RunMetrics{
		WorkflowID:  state.WorkflowID(),
		RunID:       state.RunID(),
		Status:      string(state.Status()),
		NodeCount:   len(results),
		FailedNodes: failed,
		CompletedAt: time.Now().UTC(),
	}
	if done := state.CompletedAt(); done != nil {
		m.CompletedAt = *done
		m.DurationMs = done.Sub(state.StartedAt()).Milliseconds()
	}
	return m
}

func compare(prior *Baseline, m RunMetrics) Feedback {
	delta := float64(m.DurationMs) - prior.AvgDurationMs
	fb := Feedback{
		WorkflowID:      m.WorkflowID,
		RunID:           m.RunID,
		DurationDeltaMs: delta,
		Slower:          delta > 0,
		Degraded:        m.Status != string(flow.StatusCompleted),
	}
	if fb.Degraded {
		fb.Note = "run did not complete successfully"
	}
	return fb
}

func fold(prior *Baseline, m RunMetrics, name string) *Baseline {
	b := &Baseline{WorkflowID: name}
	if prior != nil {
		*b = *prior
	}
	succ := b.SuccessRate * float64(b.RunCount)
	if m.Status == string(flow.StatusCompleted) {
		succ++
	}
	total := b.AvgDurationMs*float64(b.RunCount) + float64(m.DurationMs)
	b.RunCount++
	b.AvgDurationMs = total / float64(b.RunCount)
	b.SuccessRate = succ / float64(b.RunCount)
	return b
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
