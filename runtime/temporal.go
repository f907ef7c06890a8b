package runtime

import (
	"context"
	"time"

	"github.com/dshills/flowmark/flow"
)

// temporalDelay sleeps for the configured duration and passes its input
// through. Cancellation cuts the sleep short with the context error.
func temporalDelay(ctx context.Context, req *flow.Request) (any, error) {
	ms := intConfig(req.Config, "durationMs", req.Node.DurationMs)
	if ms <= 0 {
		return req.Input, nil
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return req.Input, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// temporalTimeout wraps its children in a local deadline; the executor
// expands the descriptor so children run with full isolation.
func temporalTimeout(_ context.Context, req *flow.Request) (any, error) {
	return &flow.TimeoutResult{
		DurationMs: req.Node.DurationMs,
		Children:   req.Node.Children,
		OnTimeout:  req.Node.OnTimeout,
	}, nil
}

// intConfig reads an integer config value, tolerating the numeric types
// JSON and YAML decoding produce.
func intConfig(cfg map[string]any, key string, fallback int) int {
	v, ok := cfg[key]
	if !ok {
		return fallback
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	}
	return fallback
}

// stringConfig reads a string config value with a fallback.
func stringConfig(cfg map[string]any, key, fallback string) string {
	if s, ok := cfg[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
