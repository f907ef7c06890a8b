package flow

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/flowmark/flow/store"
)

func TestExecuteRecordsMetricsAndStoreCheckpoints(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	st := store.NewMemoryStore[*ExecutionState]()

	plan := mustPlan(t,
		wfNode("fetch", map[string]any{"template": "raw"}),
		wfNode("clean", map[string]any{"template": "{{upper(fetch.output)}}"}),
	)
	state := NewState("observed", nil, nil)

	e := NewExecutor(echoRegistry(),
		WithMetrics(metrics),
		WithStore(st),
	)
	require.NoError(t, e.Execute(context.Background(), plan, state))

	runID := state.RunID()
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.waves.WithLabelValues(runID)))
	// One checkpoint per wave plus the terminal snapshot.
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.checkpointSaves.WithLabelValues(runID)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.inflightNodes), "gauge returns to zero")
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.nodeDuration), "one duration series per node")

	// The store holds the finished run, reloadable by ID.
	ids, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{runID}, ids)

	loaded, err := st.Load(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, loaded.Status())
	out, ok := loaded.Output("clean")
	require.True(t, ok)
	assert.Equal(t, "RAW", out)
}
