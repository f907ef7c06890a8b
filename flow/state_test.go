package flow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	s := NewState("wf", map[string]any{"region": "us-east-1"}, map[string]string{"KEY": "hunter2"})
	s.SetStatus(StatusFailed)
	s.SetCurrentWave(2)
	s.SetGlobal("runMode", "batch")
	s.SetPhase("phase", "ingest")
	s.RecordResult("fetch", &NodeResult{
		Status:      NodeSuccess,
		Output:      map[string]any{"count": float64(3)},
		DurationMs:  41,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		CompletedAt: time.Now().UTC().Truncate(time.Second),
	})
	s.RecordResult("clean", &NodeResult{Status: NodeFailed, Error: "boom"})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var restored ExecutionState
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, s.WorkflowID(), restored.WorkflowID())
	assert.Equal(t, s.RunID(), restored.RunID())
	assert.Equal(t, StatusFailed, restored.Status())
	assert.Equal(t, 2, restored.CurrentWave())
	assert.Equal(t, s.Config(), restored.Config())
	assert.Equal(t, s.MergedContext(), restored.MergedContext())

	r, ok := restored.Result("fetch")
	require.True(t, ok)
	assert.Equal(t, NodeSuccess, r.Status)
	assert.Equal(t, map[string]any{"count": float64(3)}, r.Output)

	r, ok = restored.Result("clean")
	require.True(t, ok)
	assert.Equal(t, "boom", r.Error)
}

func TestStateNeverSerializesSecrets(t *testing.T) {
	s := NewState("wf", nil, map[string]string{"API_KEY": "super-secret-value"})
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-value")
	assert.NotContains(t, string(data), "API_KEY")

	var restored ExecutionState
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Empty(t, restored.Secrets())
}

func TestStateNodeResultsSerializeAsSortedPairs(t *testing.T) {
	s := NewState("wf", nil, nil)
	s.RecordResult("zeta", &NodeResult{Status: NodeSuccess})
	s.RecordResult("alpha", &NodeResult{Status: NodeSuccess})
	s.RecordResult("mid", &NodeResult{Status: NodeSuccess})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var doc struct {
		NodeResults []json.RawMessage `json:"nodeResults"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.NodeResults, 3)

	var ids []string
	for _, raw := range doc.NodeResults {
		var pair []json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &pair))
		require.Len(t, pair, 2)
		var id string
		require.NoError(t, json.Unmarshal(pair[0], &id))
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

func TestCloneIsolatesContextButSharesResults(t *testing.T) {
	s := NewState("wf", nil, nil)
	s.SetGlobal("shared", map[string]any{"n": float64(1)})

	clone := s.Clone()
	clone.SetGlobal("shared", map[string]any{"n": float64(99)})
	clone.SetNodeContext("local", "branch-only")

	// Context writes stay in the branch.
	v, _ := s.MergedContext()["shared"].(map[string]any)
	assert.Equal(t, float64(1), v["n"])
	_, ok := s.NodeContext("local")
	assert.False(t, ok)

	// Result writes publish through the shared table.
	clone.RecordResult("fetch", &NodeResult{Status: NodeSuccess, Output: "data"})
	out, ok := s.Output("fetch")
	require.True(t, ok)
	assert.Equal(t, "data", out)
}

func TestCloneDeepCopiesNestedValues(t *testing.T) {
	s := NewState("wf", nil, nil)
	s.SetGlobal("nested", map[string]any{"inner": []any{"a"}})

	clone := s.Clone()
	nested := clone.MergedContext()["nested"].(map[string]any)
	nested["inner"] = append(nested["inner"].([]any), "b")

	orig := s.MergedContext()["nested"].(map[string]any)
	assert.Len(t, orig["inner"], 1, "mutating a clone's nested value must not leak back")
}

func TestRecordResultPopulatesNodeContext(t *testing.T) {
	s := NewState("wf", nil, nil)
	s.RecordResult("fetch", &NodeResult{Status: NodeSuccess, Output: "payload"})

	v, ok := s.NodeContext("fetch")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"output": "payload"}, v)

	// Failed results do not bind an output.
	s.RecordResult("broken", &NodeResult{Status: NodeFailed, Error: "x"})
	_, ok = s.NodeContext("broken")
	assert.False(t, ok)

	_, ok = s.Output("broken")
	assert.False(t, ok)
}

func TestMergedContextLayering(t *testing.T) {
	s := NewState("wf", nil, nil)
	s.SetGlobal("k", "global")
	s.SetPhase("k", "phase")
	assert.Equal(t, "phase", s.MergedContext()["k"])
	s.SetNodeContext("k", "node")
	assert.Equal(t, "node", s.MergedContext()["k"])
}

func TestApplyOverrides(t *testing.T) {
	s := NewState("wf", map[string]any{"region": "us-east-1"}, map[string]string{"OLD": "1"})
	s.ApplyOverrides(map[string]any{"region": "eu-west-1"}, map[string]string{"NEW": "2"})
	assert.Equal(t, "eu-west-1", s.Config()["region"])
	assert.Equal(t, map[string]string{"OLD": "1", "NEW": "2"}, s.Secrets())
}
