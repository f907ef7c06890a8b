package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelay(t *testing.T) {
	base := 100 * time.Millisecond
	tests := []struct {
		name    string
		kind    BackoffKind
		attempt int
		want    time.Duration
	}{
		{"fixed first", BackoffFixed, 1, 100 * time.Millisecond},
		{"fixed third", BackoffFixed, 3, 100 * time.Millisecond},
		{"linear first", BackoffLinear, 1, 100 * time.Millisecond},
		{"linear second", BackoffLinear, 2, 200 * time.Millisecond},
		{"linear third", BackoffLinear, 3, 300 * time.Millisecond},
		{"exponential first", BackoffExponential, 1, 100 * time.Millisecond},
		{"exponential second", BackoffExponential, 2, 200 * time.Millisecond},
		{"exponential third", BackoffExponential, 3, 400 * time.Millisecond},
		{"exponential fourth", BackoffExponential, 4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &RetryConfig{BackoffBase: base, Backoff: tt.kind}
			assert.Equal(t, tt.want, rc.Delay(tt.attempt))
		})
	}
}

func TestRunWithRetryAttemptBudget(t *testing.T) {
	// maxRetries counts re-attempts, so maxRetries=2 means 3 invocations.
	calls := 0
	_, err := runWithRetry(context.Background(), &RetryConfig{MaxRetries: 2}, func() (any, error) {
		calls++
		return nil, errors.New("boom")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunWithRetrySucceedsMidway(t *testing.T) {
	calls := 0
	retries := 0
	out, err := runWithRetry(context.Background(), &RetryConfig{MaxRetries: 5}, func() (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}, func(attempt int, err error) {
		retries++
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRunWithRetryNeverRetriesTimeouts(t *testing.T) {
	calls := 0
	_, err := runWithRetry(context.Background(), &RetryConfig{MaxRetries: 5}, func() (any, error) {
		calls++
		return nil, &TimeoutError{Duration: time.Second}
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var te *TimeoutError
	assert.True(t, errors.As(err, &te))
}

func TestRunWithRetryNeverRetriesBreakSignals(t *testing.T) {
	calls := 0
	_, err := runWithRetry(context.Background(), &RetryConfig{MaxRetries: 5}, func() (any, error) {
		calls++
		return nil, &BreakSignal{}
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := runWithRetry(ctx, &RetryConfig{MaxRetries: 10, BackoffBase: time.Hour}, func() (any, error) {
		calls++
		return nil, errors.New("boom")
	}, nil)
	require.Error(t, err)
	// The backoff sleep observes the dead context; no second attempt.
	assert.Equal(t, 1, calls)
}

func TestParseRetryConfig(t *testing.T) {
	rc, err := parseRetryConfig(map[string]any{
		"maxRetries":     float64(2),
		"backoffBase":    float64(250),
		"backoffKind":    "exponential",
		"fallbackNodeId": "cache",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rc.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, rc.BackoffBase)
	assert.Equal(t, BackoffExponential, rc.Backoff)
	assert.Equal(t, "cache", rc.FallbackNodeID)

	_, err = parseRetryConfig("nope")
	assert.Error(t, err)

	_, err = parseRetryConfig(map[string]any{"backoffKind": "fibonacci"})
	assert.Error(t, err)
}
