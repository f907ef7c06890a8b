package parse

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/flowmark/flow"
)

const sampleDoc = `---
name: daily-report
version: "1.2"
description: Fetch, summarize and store the daily report.
trigger: cron
config:
  - name: region
    type: string
    default: us-east-1
  - name: limit
    type: number
    required: true
secrets:
  - API_KEY
---

# Daily report

First we fetch the raw records.

<source id="fetch" kind="http" url="https://api.example.com/records" timeout-ms="3000" max-retries="2" backoff="exponential" backoff-base-ms="100" fallback="cached" />

<source id="cached" kind="file" path="/var/cache/records.json" />

Then clean them up.

<transform id="clean" kind="template" input="fetch" template="{{input.records}}" />

<sink id="store" kind="file" input="clean" path="/tmp/report.json" />
`

func TestLoadFullDocument(t *testing.T) {
	ast, err := Load([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "daily-report", ast.Metadata.Name)
	assert.Equal(t, "1.2", ast.Metadata.Version)
	assert.Equal(t, "cron", ast.Metadata.Trigger)
	assert.Equal(t, []string{"API_KEY"}, ast.Metadata.Secrets)

	require.Len(t, ast.Metadata.Config, 2)
	assert.Equal(t, "region", ast.Metadata.Config[0].Name)
	assert.Equal(t, "us-east-1", ast.Metadata.Config[0].Default)
	assert.True(t, ast.Metadata.Config[1].Required)

	require.Len(t, ast.Nodes, 4)

	fetch := ast.Nodes[0]
	assert.Equal(t, flow.NodeSource, fetch.Type)
	assert.Equal(t, "http", fetch.Kind)
	assert.Equal(t, "https://api.example.com/records", fetch.Config["url"])
	// Kebab-case attributes become camelCase config keys.
	assert.Equal(t, "3000", fetch.Config["timeoutMs"])

	require.NotNil(t, fetch.Retry)
	assert.Equal(t, 2, fetch.Retry.MaxRetries)
	assert.Equal(t, flow.BackoffExponential, fetch.Retry.Backoff)
	assert.Equal(t, 100*time.Millisecond, fetch.Retry.BackoffBase)
	assert.Equal(t, "cached", fetch.Retry.FallbackNodeID)

	clean := ast.Nodes[2]
	assert.Equal(t, flow.NodeTransform, clean.Type)
	assert.Equal(t, "fetch", clean.Input)
	assert.Equal(t, "{{input.records}}", clean.Config["template"])
	assert.Nil(t, clean.Retry)

	store := ast.Nodes[3]
	assert.Equal(t, flow.NodeSink, store.Type)
	assert.Equal(t, "clean", store.Input)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	ast, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "daily-report", ast.Metadata.Name)
}

func TestLoadControlElements(t *testing.T) {
	doc := `---
name: control
---
<parallel id="fan" wait="n(2)" merge="concat" max-concurrency="3">
  <branch>
    <transform id="b1" kind="template" template="one" />
  </branch>
  <branch>
    <transform id="b2" kind="template" template="two" />
  </branch>
</parallel>

<foreach id="each" collection="{{fan.output}}" item-var="row" index-var="i" max-concurrency="4" body="b3, b4" />
<transform id="b3" kind="template" template="x" />
<transform id="b4" kind="template" template="y" />

<loop id="retry-loop" max-iterations="5" break-condition="done == true">
  <transform id="step" kind="template" template="z" />
</loop>

<while id="poll" condition="pending > 0" max-iterations="10">
  <transform id="check" kind="template" template="p" />
</while>

<if id="gate" condition="limit > 3">
  <then><transform id="yes" kind="template" template="big" /></then>
  <else><transform id="no" kind="template" template="small" /></else>
</if>

<branch id="route">
  <case when="kind == 'a'"><transform id="ca" kind="template" template="a" /></case>
  <case when="kind == 'b'"><transform id="cb" kind="template" template="b" /></case>
</branch>

<break id="stop" target="retry-loop" />
<goto id="jump" target="fan" />

<timeout id="budget" duration-ms="2500" on-timeout="fallback-step">
  <transform id="slow" kind="template" template="s" />
</timeout>
<transform id="fallback-step" kind="template" template="fb" />

<delay id="pause" duration-ms="500" />
<checkpoint id="approve" message="Continue?" default-action="approve" />
`
	ast, err := Load([]byte(doc))
	require.NoError(t, err)

	byID := map[string]*flow.Node{}
	for _, n := range ast.Nodes {
		byID[n.ID] = n
	}

	fan := byID["fan"]
	require.NotNil(t, fan)
	assert.Equal(t, flow.NodeControl, fan.Type)
	assert.Equal(t, "parallel", fan.Kind)
	assert.Equal(t, "n(2)", fan.Wait)
	assert.Equal(t, "concat", fan.Merge)
	assert.Equal(t, 3, fan.MaxConcurrency)
	require.Len(t, fan.Branches, 2)
	assert.Equal(t, "b1", fan.Branches[0][0].ID)

	each := byID["each"]
	assert.Equal(t, "{{fan.output}}", each.Collection)
	assert.Equal(t, "row", each.ItemVar)
	assert.Equal(t, "i", each.IndexVar)
	assert.Equal(t, 4, each.MaxConcurrency)
	assert.Equal(t, []string{"b3", "b4"}, each.BodyNodeIDs)

	loop := byID["retry-loop"]
	assert.Equal(t, 5, loop.MaxIterations)
	assert.Equal(t, "done == true", loop.BreakCondition)
	require.Len(t, loop.Body, 1)
	assert.Equal(t, "step", loop.Body[0].ID)

	poll := byID["poll"]
	assert.Equal(t, "while", poll.Kind)
	assert.Equal(t, "pending > 0", poll.Condition)

	gate := byID["gate"]
	require.Len(t, gate.Then, 1)
	require.Len(t, gate.Else, 1)
	assert.Equal(t, "yes", gate.Then[0].ID)
	assert.Equal(t, "no", gate.Else[0].ID)

	route := byID["route"]
	require.Len(t, route.Cases, 2)
	assert.Equal(t, "kind == 'a'", route.Cases[0].When)
	assert.Equal(t, "ca", route.Cases[0].Then[0].ID)

	stop := byID["stop"]
	assert.Equal(t, "break", stop.Kind)
	assert.Equal(t, "retry-loop", stop.Target)

	jump := byID["jump"]
	assert.Equal(t, "goto", jump.Kind)
	assert.Equal(t, "fan", jump.Target)

	budget := byID["budget"]
	assert.Equal(t, flow.NodeTemporal, budget.Type)
	assert.Equal(t, 2500, budget.DurationMs)
	assert.Equal(t, "fallback-step", budget.OnTimeout)
	require.Len(t, budget.Children, 1)

	pause := byID["pause"]
	assert.Equal(t, "delay", pause.Kind)
	assert.Equal(t, 500, pause.DurationMs)

	approve := byID["approve"]
	assert.Equal(t, flow.NodeCheckpoint, approve.Type)
	assert.Equal(t, "Continue?", approve.Config["message"])
	assert.Equal(t, "approve", approve.Config["defaultAction"])
}

func TestLoadCompositionElements(t *testing.T) {
	doc := `---
name: comp
---
<include id="common" path="lib/common.md" />
<call id="job" path="lib/job.md" output="result" />
`
	ast, err := Load([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ast.Nodes, 2)

	inc := ast.Nodes[0]
	assert.Equal(t, flow.NodeComposition, inc.Type)
	assert.Equal(t, "include", inc.Kind)
	assert.Equal(t, "composition:include", inc.RuntimeKey())
	assert.Equal(t, "lib/common.md", inc.Config["path"])

	call := ast.Nodes[1]
	assert.Equal(t, "call", call.Kind)
	assert.Equal(t, "composition:call", call.RuntimeKey())
	assert.Equal(t, "result", call.Config["output"])
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing name", "---\nversion: \"1\"\n---\n", "must declare a name"},
		{"unterminated frontmatter", "---\nname: x\n", "unterminated frontmatter"},
		{"unknown element", "---\nname: x\n---\n<widget id=\"w\" />", "unknown workflow element"},
		{"missing id", "---\nname: x\n---\n<transform kind=\"template\" />", "missing an id"},
		{"missing kind", "---\nname: x\n---\n<source id=\"s\" />", "missing a kind"},
		{
			"duplicate id",
			"---\nname: x\n---\n<transform id=\"a\" kind=\"template\" />\n<sink id=\"a\" kind=\"file\" />",
			`duplicate node id "a"`,
		},
		{
			"duplicate nested id",
			"---\nname: x\n---\n<transform id=\"a\" kind=\"template\" />\n<loop id=\"l\" max-iterations=\"2\"><transform id=\"a\" kind=\"template\" /></loop>",
			`duplicate node id "a"`,
		},
		{
			"unknown input",
			"---\nname: x\n---\n<transform id=\"a\" kind=\"template\" input=\"ghost\" />",
			`unknown input "ghost"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadWithoutFrontmatterFails(t *testing.T) {
	_, err := Load([]byte(`<transform id="a" kind="template" />`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must declare a name")
}

func TestBuildConfig(t *testing.T) {
	meta := flow.Metadata{Config: []flow.ConfigField{
		{Name: "region", Type: "string", Default: "us-east-1"},
		{Name: "limit", Type: "number", Required: true},
	}}

	t.Run("defaults and overrides merge", func(t *testing.T) {
		cfg, err := BuildConfig(meta, map[string]any{"limit": float64(10)})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", cfg["region"])
		assert.Equal(t, float64(10), cfg["limit"])
	})

	t.Run("override wins over default", func(t *testing.T) {
		cfg, err := BuildConfig(meta, map[string]any{"region": "eu-west-1", "limit": float64(1)})
		require.NoError(t, err)
		assert.Equal(t, "eu-west-1", cfg["region"])
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := BuildConfig(meta, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `required config field "limit"`)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := BuildConfig(meta, map[string]any{"limit": "ten"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"limit" is invalid`)
	})

	t.Run("schema validation", func(t *testing.T) {
		withSchema := flow.Metadata{Config: []flow.ConfigField{{
			Name:   "mode",
			Schema: map[string]any{"type": "string", "enum": []any{"fast", "safe"}},
		}}}
		_, err := BuildConfig(withSchema, map[string]any{"mode": "reckless"})
		require.Error(t, err)

		cfg, err := BuildConfig(withSchema, map[string]any{"mode": "safe"})
		require.NoError(t, err)
		assert.Equal(t, "safe", cfg["mode"])
	})

	t.Run("undeclared overrides pass through", func(t *testing.T) {
		cfg, err := BuildConfig(meta, map[string]any{"limit": float64(1), "extra": true})
		require.NoError(t, err)
		assert.Equal(t, true, cfg["extra"])
	})
}

func TestCheckSecrets(t *testing.T) {
	meta := flow.Metadata{Secrets: []string{"API_KEY", "DB_PASS"}}
	require.NoError(t, CheckSecrets(meta, map[string]string{"API_KEY": "a", "DB_PASS": "b"}))

	err := CheckSecrets(meta, map[string]string{"API_KEY": "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"DB_PASS" not provided`)
}

func TestAttrKey(t *testing.T) {
	assert.Equal(t, "timeoutMs", attrKey("timeout-ms"))
	assert.Equal(t, "url", attrKey("url"))
	assert.Equal(t, "defaultAction", attrKey("default-action"))
}
