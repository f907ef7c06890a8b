package flow

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a workflow execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// NodeStatus is the terminal state of a single node execution.
type NodeStatus string

const (
	NodeSuccess NodeStatus = "success"
	NodeFailed  NodeStatus = "failed"
	NodeSkipped NodeStatus = "skipped"
)

// NodeResult records one node execution.
type NodeResult struct {
	Status      NodeStatus `json:"status"`
	Output      any        `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMs  int64      `json:"duration"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt time.Time  `json:"completedAt"`
}

// resultTable is the node-result map shared between a state and every
// clone branched from it. Each node ID is written by exactly one task,
// but writes race with reads from siblings, so the map is lock-protected.
type resultTable struct {
	mu sync.RWMutex
	m  map[string]*NodeResult
}

func (t *resultTable) set(nodeID string, r *NodeResult) {
	t.mu.Lock()
	t.m[nodeID] = r
	t.mu.Unlock()
}

func (t *resultTable) get(nodeID string) (*NodeResult, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.m[nodeID]
	return r, ok
}

func (t *resultTable) snapshot() map[string]*NodeResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*NodeResult, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}

// ExecutionState is the single mutable structure threaded through an
// execution: run identity, per-node results, the three layered context
// tables, resolved workflow config and the secret table.
//
// Clones created for branches and iterations deep-copy the context tables
// (copy-on-branch) but share the result table, so results publish
// atomically to the whole run as each node finishes while context writes
// stay isolated to their branch.
//
// Secrets are read-only after initialization, never serialized, and never
// interpolated into error messages.
type ExecutionState struct {
	mu          sync.RWMutex
	workflowID  string
	runID       string
	status      Status
	currentWave int
	startedAt   time.Time
	completedAt *time.Time

	results *resultTable

	global map[string]any
	phase  map[string]any
	node   map[string]any

	config  map[string]any
	secrets map[string]string
}

// NewState creates a pending execution state with a fresh run ID.
func NewState(workflowID string, config map[string]any, secrets map[string]string) *ExecutionState {
	if config == nil {
		config = map[string]any{}
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	return &ExecutionState{
		workflowID: workflowID,
		runID:      uuid.NewString(),
		status:     StatusPending,
		startedAt:  time.Now().UTC(),
		results:    &resultTable{m: map[string]*NodeResult{}},
		global:     map[string]any{},
		phase:      map[string]any{},
		node:       map[string]any{},
		config:     config,
		secrets:    secrets,
	}
}

func (s *ExecutionState) WorkflowID() string { return s.workflowID }
func (s *ExecutionState) RunID() string      { return s.runID }

func (s *ExecutionState) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *ExecutionState) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *ExecutionState) CurrentWave() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentWave
}

func (s *ExecutionState) SetCurrentWave(w int) {
	s.mu.Lock()
	s.currentWave = w
	s.mu.Unlock()
}

func (s *ExecutionState) StartedAt() time.Time { return s.startedAt }

func (s *ExecutionState) CompletedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedAt
}

// Finish sets the terminal status and completion timestamp.
func (s *ExecutionState) Finish(st Status) {
	now := time.Now().UTC()
	s.mu.Lock()
	s.status = st
	s.completedAt = &now
	s.mu.Unlock()
}

// RecordResult publishes a node result. On success the node context gains
// nodeID -> {output}, keeping the invariant that a successful node's
// output is reachable as nodeID.output from templates.
func (s *ExecutionState) RecordResult(nodeID string, r *NodeResult) {
	s.results.set(nodeID, r)
	if r.Status == NodeSuccess {
		s.mu.Lock()
		s.node[nodeID] = map[string]any{"output": r.Output}
		s.mu.Unlock()
	}
}

// Result returns the recorded result for a node, if any.
func (s *ExecutionState) Result(nodeID string) (*NodeResult, bool) {
	return s.results.get(nodeID)
}

// Results returns a point-in-time copy of all node results.
func (s *ExecutionState) Results() map[string]*NodeResult {
	return s.results.snapshot()
}

// Output returns the recorded output of a successful node.
func (s *ExecutionState) Output(nodeID string) (any, bool) {
	r, ok := s.results.get(nodeID)
	if !ok || r.Status != NodeSuccess {
		return nil, false
	}
	return r.Output, true
}

// SetGlobal writes into the global context layer.
func (s *ExecutionState) SetGlobal(key string, v any) {
	s.mu.Lock()
	s.global[key] = v
	s.mu.Unlock()
}

// SetPhase writes into the phase context layer.
func (s *ExecutionState) SetPhase(key string, v any) {
	s.mu.Lock()
	s.phase[key] = v
	s.mu.Unlock()
}

// SetNodeContext writes into the node context layer.
func (s *ExecutionState) SetNodeContext(key string, v any) {
	s.mu.Lock()
	s.node[key] = v
	s.mu.Unlock()
}

// NodeContext reads from the node context layer.
func (s *ExecutionState) NodeContext(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.node[key]
	return v, ok
}

// MergedContext layers global < phase < node into one table.
func (s *ExecutionState) MergedContext() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.global)+len(s.phase)+len(s.node))
	for k, v := range s.global {
		out[k] = v
	}
	for k, v := range s.phase {
		out[k] = v
	}
	for k, v := range s.node {
		out[k] = v
	}
	return out
}

// Config returns the workflow-level config table. Treated as read-only
// during execution.
func (s *ExecutionState) Config() map[string]any { return s.config }

// Secrets returns a copy of the secret table.
func (s *ExecutionState) Secrets() map[string]string {
	out := make(map[string]string, len(s.secrets))
	for k, v := range s.secrets {
		out[k] = v
	}
	return out
}

// Clone branches the state for an isolated sub-execution: context tables
// are deep-copied, the result table is shared, and identity, config and
// secrets carry over.
func (s *ExecutionState) Clone() *ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &ExecutionState{
		workflowID:  s.workflowID,
		runID:       s.runID,
		status:      s.status,
		currentWave: s.currentWave,
		startedAt:   s.startedAt,
		completedAt: s.completedAt,
		results:     s.results,
		global:      deepCopyMap(s.global),
		phase:       deepCopyMap(s.phase),
		node:        deepCopyMap(s.node),
		config:      s.config,
		secrets:     s.secrets,
	}
}

// deepCopyMap copies a context table through a JSON round-trip. Context
// values are JSON-shaped by construction (runtime outputs and resolved
// config), so the round-trip is lossless; values that fail to marshal are
// carried over by reference.
func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch v.(type) {
	case nil, bool, string, float64, int, int64:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var copied any
	if err := json.Unmarshal(b, &copied); err != nil {
		return v
	}
	return copied
}

// persistedState is the on-the-wire form of ExecutionState. nodeResults
// serializes as an ordered [id, result] pair array; secrets are never
// part of the document.
type persistedState struct {
	WorkflowID  string            `json:"workflowId"`
	RunID       string            `json:"runId"`
	Status      Status            `json:"status"`
	CurrentWave int               `json:"currentWave"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	NodeResults []json.RawMessage `json:"nodeResults"`
	Global      map[string]any    `json:"globalContext"`
	Phase       map[string]any    `json:"phaseContext"`
	Node        map[string]any    `json:"nodeContext"`
	Config      map[string]any    `json:"config"`
}

// MarshalJSON implements the persistence codec.
func (s *ExecutionState) MarshalJSON() ([]byte, error) {
	results := s.results.snapshot()
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		pair, err := json.Marshal([]any{id, results[id]})
		if err != nil {
			return nil, fmt.Errorf("encode result for node %s: %w", id, err)
		}
		pairs = append(pairs, pair)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(persistedState{
		WorkflowID:  s.workflowID,
		RunID:       s.runID,
		Status:      s.status,
		CurrentWave: s.currentWave,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		NodeResults: pairs,
		Global:      s.global,
		Phase:       s.phase,
		Node:        s.node,
		Config:      s.config,
	})
}

// UnmarshalJSON reconstructs a state from its persisted form. Any ambient
// secrets in the document are dropped; secrets are a load-time overlay
// applied by the caller.
func (s *ExecutionState) UnmarshalJSON(data []byte) error {
	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	results := map[string]*NodeResult{}
	for _, raw := range p.NodeResults {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return fmt.Errorf("decode node result pair: %w", err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("node result pair has %d elements, want 2", len(pair))
		}
		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return fmt.Errorf("decode node result id: %w", err)
		}
		var r NodeResult
		if err := json.Unmarshal(pair[1], &r); err != nil {
			return fmt.Errorf("decode result for node %s: %w", id, err)
		}
		results[id] = &r
	}

	s.workflowID = p.WorkflowID
	s.runID = p.RunID
	s.status = p.Status
	s.currentWave = p.CurrentWave
	s.startedAt = p.StartedAt
	s.completedAt = p.CompletedAt
	s.results = &resultTable{m: results}
	s.global = orEmpty(p.Global)
	s.phase = orEmpty(p.Phase)
	s.node = orEmpty(p.Node)
	s.config = orEmpty(p.Config)
	s.secrets = map[string]string{}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// ApplyOverrides merges config and secret overrides into the state, used
// when resuming from a checkpoint.
func (s *ExecutionState) ApplyOverrides(config map[string]any, secrets map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range config {
		s.config[k] = v
	}
	for k, v := range secrets {
		s.secrets[k] = v
	}
}
