package flow

import (
	"context"
	"fmt"
	"time"
)

// BackoffKind selects how retry delays grow across attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// RetryConfig configures per-node retry, backoff and fallback behavior.
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the initial failure.
	// A node with MaxRetries=2 is invoked at most 3 times.
	MaxRetries int

	// BackoffBase is the base delay between attempts.
	BackoffBase time.Duration

	// Backoff is fixed, linear or exponential. Empty means fixed.
	Backoff BackoffKind

	// FallbackNodeID optionally names a plan node invoked after the final
	// failure. The fallback runs without its own retry wrapper and
	// receives $primaryError and $primaryInput in its node context.
	FallbackNodeID string
}

// Delay computes the sleep before retry attempt n (1-based):
// base for fixed, base*n for linear, base*2^(n-1) for exponential.
func (rc *RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch rc.Backoff {
	case BackoffLinear:
		return rc.BackoffBase * time.Duration(attempt)
	case BackoffExponential:
		return rc.BackoffBase * time.Duration(1<<(attempt-1))
	default:
		return rc.BackoffBase
	}
}

// runWithRetry invokes fn, retrying per cfg. Timeouts and break signals
// are never retried. onRetry, when set, observes each re-attempt before
// its backoff sleep. Fallback handling is the caller's concern; the last
// error is returned after the final failure.
func runWithRetry(ctx context.Context, cfg *RetryConfig, fn func() (any, error), onRetry func(attempt int, err error)) (any, error) {
	if cfg == nil {
		cfg = &RetryConfig{}
	}
	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if _, ok := asTimeout(err); ok {
			return nil, err
		}
		if _, ok := asBreak(err); ok {
			return nil, err
		}
		if attempt >= cfg.MaxRetries {
			return nil, lastErr
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		if err := sleepCtx(ctx, cfg.Delay(attempt+1)); err != nil {
			return nil, lastErr
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRetryConfig builds a RetryConfig from a resolved config.retry map.
func parseRetryConfig(v any) (*RetryConfig, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("retry config must be an object, got %T", v)
	}
	cfg := &RetryConfig{Backoff: BackoffFixed}
	if n, ok := m["maxRetries"]; ok {
		cfg.MaxRetries = int(toFloat(n))
	}
	if b, ok := m["backoffBase"]; ok {
		cfg.BackoffBase = time.Duration(toFloat(b)) * time.Millisecond
	}
	if k, ok := m["backoffKind"].(string); ok && k != "" {
		switch BackoffKind(k) {
		case BackoffFixed, BackoffLinear, BackoffExponential:
			cfg.Backoff = BackoffKind(k)
		default:
			return nil, fmt.Errorf("unknown backoff kind %q", k)
		}
	}
	if f, ok := m["fallbackNodeId"].(string); ok {
		cfg.FallbackNodeID = f
	}
	return cfg, nil
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		var f float64
		fmt.Sscanf(x, "%g", &f)
		return f
	}
	return 0
}
