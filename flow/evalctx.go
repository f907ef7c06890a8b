package flow

import (
	"os"
	"strings"

	"github.com/dshills/flowmark/flow/expr"
)

// evalContext assembles the expression context for one node execution.
//
// Binding order (later wins):
//  1. flat variables: global < phase < node context layers
//  2. nodeID -> {output} for every successful recorded result
//  3. reserved names: $config, $secrets, $context, $env
//
// Secrets are reachable as $secrets.NAME from expressions but the
// evaluator never copies them anywhere else, and redactSecrets strips
// them from anything destined for errors or logs.
func evalContext(state *ExecutionState) *expr.Context {
	ctx := expr.NewContext()
	ctx.Functions = expr.Builtins()

	for k, v := range state.MergedContext() {
		ctx.Variables[k] = v
	}
	for id, r := range state.Results() {
		if r.Status == NodeSuccess {
			ctx.Variables[id] = map[string]any{"output": r.Output}
		}
	}

	secrets := map[string]any{}
	for k, v := range state.Secrets() {
		secrets[k] = v
	}

	ctx.Variables["$config"] = state.Config()
	ctx.Variables["$secrets"] = secrets
	ctx.Variables["$context"] = state.MergedContext()
	ctx.Variables["$env"] = envTable()
	return ctx
}

func envTable() map[string]any {
	env := map[string]any{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// redactSecrets replaces every secret value occurring in s with a
// placeholder, so error text and log lines never leak secret material.
func redactSecrets(s string, secrets map[string]string) string {
	for _, v := range secrets {
		if v != "" {
			s = strings.ReplaceAll(s, v, "[REDACTED]")
		}
	}
	return s
}

// resolveConfig walks a node's raw config and evaluates every template
// string against the state, preserving structure. A string that is a
// single bare expression keeps the expression's native type; mixed
// templates render to strings.
func resolveConfig(raw map[string]any, state *ExecutionState) (map[string]any, error) {
	ctx := evalContext(state)
	out, err := resolveValue(raw, ctx)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func resolveValue(v any, ctx *expr.Context) (any, error) {
	switch x := v.(type) {
	case string:
		if !expr.HasExpression(x) {
			return x, nil
		}
		return expr.EvaluateTemplateValue(x, ctx)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			r, err := resolveValue(e, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			r, err := resolveValue(e, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// EvalValue evaluates a bare or templated expression against the state,
// preserving the expression's native type. Runtimes use it for
// attributes that are expressions rather than config templates
// (conditions, collections).
func EvalValue(src string, state *ExecutionState) (any, error) {
	ctx := evalContext(state)
	if expr.HasExpression(src) {
		return expr.EvaluateTemplateValue(src, ctx)
	}
	return expr.Evaluate(src, ctx)
}

// EvalCondition evaluates an expression and reports its truthiness.
func EvalCondition(src string, state *ExecutionState) (bool, error) {
	v, err := EvalValue(src, state)
	if err != nil {
		return false, err
	}
	return expr.Truthy(v), nil
}
