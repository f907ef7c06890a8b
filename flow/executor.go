package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dshills/flowmark/flow/emit"
)

// Executor runs execution plans wave by wave: nodes within a wave run
// concurrently under a global concurrency bound, the next wave starts
// only after the current one completes, and the state is checkpointed
// after every wave.
type Executor struct {
	registry *Registry
	opts     Options
	sem      *Semaphore
}

// NewExecutor creates an executor over the given runtime registry.
func NewExecutor(registry *Registry, opts ...Option) *Executor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Emitter == nil {
		o.Emitter = emit.NewNullEmitter()
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = 1
	}
	return &Executor{
		registry: registry,
		opts:     o,
		sem:      NewSemaphore(o.MaxConcurrency),
	}
}

// Execute runs the plan to completion against the state. It returns nil
// when every node succeeds; otherwise the state is left with status
// failed (or cancelled) and the wave's aggregated error is returned. The
// state is checkpointed after every wave and once more on termination.
func (e *Executor) Execute(ctx context.Context, plan *ExecutionPlan, state *ExecutionState) error {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	state.SetStatus(StatusRunning)
	e.emit(emit.Event{RunID: state.RunID(), Msg: "workflow_start", Meta: map[string]any{
		"workflow": plan.WorkflowID,
		"waves":    len(plan.Waves),
		"nodes":    plan.TotalNodes,
	}})

	for _, wave := range plan.Waves {
		// A runtime may ignore ctx and outlive the deadline; the gate keeps
		// later waves from starting on an expired run.
		if cerr := ctx.Err(); cerr != nil {
			return e.finish(state, cerr)
		}
		state.SetCurrentWave(wave.Number)
		err := e.executeWave(ctx, plan, state, wave)

		if perr := e.persist(state); perr != nil && err == nil {
			err = perr
		}
		e.opts.Metrics.WaveCompleted(state.RunID())
		e.emit(emit.Event{RunID: state.RunID(), Wave: wave.Number, Msg: "wave_end", Meta: map[string]any{
			"nodes": len(wave.NodeIDs),
		}})

		if err != nil {
			return e.finish(state, err)
		}
	}

	state.Finish(StatusCompleted)
	if perr := e.persist(state); perr != nil {
		return e.finish(state, perr)
	}
	e.emit(emit.Event{RunID: state.RunID(), Msg: "workflow_end", Meta: map[string]any{
		"status": string(StatusCompleted),
	}})
	return nil
}

// finish stamps the terminal status implied by err, persists and returns
// the (possibly wrapped) error.
func (e *Executor) finish(state *ExecutionState, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		state.Finish(StatusCancelled)
	case errors.Is(err, context.DeadlineExceeded):
		state.Finish(StatusFailed)
		if _, ok := asTimeout(err); !ok && e.opts.Timeout > 0 {
			err = &TimeoutError{Duration: e.opts.Timeout, Global: true}
		}
	default:
		state.Finish(StatusFailed)
	}
	// Best effort: the terminal snapshot should not mask the run error.
	if perr := e.persist(state); perr != nil {
		err = errors.Join(err, perr)
	}
	e.emit(emit.Event{RunID: state.RunID(), Msg: "workflow_end", Meta: map[string]any{
		"status": string(state.Status()),
		"error":  redactSecrets(err.Error(), state.Secrets()),
	}})
	return err
}

// executeWave runs every node of the wave concurrently. Nodes already in
// flight always run to completion; failures are aggregated after the
// whole wave has settled so sibling results are never lost.
func (e *Executor) executeWave(ctx context.Context, plan *ExecutionPlan, state *ExecutionState, wave Wave) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range wave.NodeIDs {
		node, ok := plan.Node(id)
		if !ok {
			return errf(CodeWaveFailure, id, "plan references unknown node")
		}
		wg.Add(1)
		go func(node *Node) {
			defer wg.Done()
			if err := e.sem.Acquire(ctx); err != nil {
				mu.Lock()
				errs = append(errs, errf(CodeRuntimeFailure, node.ID, "cancelled while waiting to run: %v", err))
				mu.Unlock()
				return
			}
			defer e.sem.Release()

			if _, err := e.runNode(ctx, plan, state, node); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(node)
	}
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return fmt.Errorf("%s: wave %d failed: %w", CodeWaveFailure, wave.Number, errors.Join(errs...))
}

// runNode executes one node end to end: input resolution, config
// templating, retry, fallback, descriptor expansion, result recording
// and observability. Break signals pass through unrecorded so the
// enclosing loop can consume them.
func (e *Executor) runNode(ctx context.Context, plan *ExecutionPlan, parent *ExecutionState, node *Node) (any, error) {
	started := time.Now()
	e.opts.Metrics.NodeStarted()

	out, err := e.invokeNode(ctx, plan, parent, node)
	duration := time.Since(started)

	if _, ok := asBreak(err); ok {
		e.opts.Metrics.NodeFinished(parent.RunID(), node.ID, duration, NodeSkipped)
		return nil, err
	}

	res := &NodeResult{
		Status:      NodeSuccess,
		Output:      out,
		DurationMs:  duration.Milliseconds(),
		StartedAt:   started.UTC(),
		CompletedAt: started.Add(duration).UTC(),
	}
	if err != nil {
		res.Status = NodeFailed
		res.Output = nil
		res.Error = redactSecrets(err.Error(), parent.Secrets())
	}
	parent.RecordResult(node.ID, res)
	e.opts.Metrics.NodeFinished(parent.RunID(), node.ID, duration, res.Status)

	e.emit(emit.Event{
		RunID:  parent.RunID(),
		Wave:   parent.CurrentWave(),
		NodeID: node.ID,
		Msg:    "node_end",
		Meta: map[string]any{
			"status":      string(res.Status),
			"duration_ms": res.DurationMs,
		},
	})
	e.logLine(parent, node.ID, res)

	if err != nil && e.opts.ErrorHandler != nil {
		e.safeHandleError(ctx, parent, node.ID, err)
	}
	return out, err
}

// invokeNode is the execution pipeline without recording: resolve input,
// branch the state, template the config, run the runtime under retry,
// fall back if configured, then expand any control-flow descriptor.
func (e *Executor) invokeNode(ctx context.Context, plan *ExecutionPlan, parent *ExecutionState, node *Node) (any, error) {
	var input any
	if node.Input != "" {
		input, _ = parent.Output(node.Input)
	} else {
		// Sequence handlers chain each output to the next node through the
		// "input" context slot; keep it when no explicit input names one.
		input, _ = parent.NodeContext("input")
	}

	st := parent.Clone()
	st.SetNodeContext("input", input)

	cfg, err := resolveConfig(node.Config, st)
	if err != nil {
		return nil, errf(CodeExpression, node.ID, "config resolution failed: %v",
			redactSecrets(err.Error(), parent.Secrets()))
	}

	key := node.RuntimeKey()
	rt, ok := e.registry.Lookup(key)
	if !ok {
		return nil, errf(CodeUnknownRuntime, node.ID, "Unknown runtime type: %s", key)
	}

	rc := e.retryConfig(node, cfg)

	out, err := runWithRetry(ctx, rc, func() (any, error) {
		return rt.Execute(ctx, &Request{Node: node, Input: input, Config: cfg, State: st})
	}, func(attempt int, cause error) {
		e.opts.Metrics.RetryAttempted(parent.RunID(), node.ID)
		e.emit(emit.Event{
			RunID:  parent.RunID(),
			Wave:   parent.CurrentWave(),
			NodeID: node.ID,
			Msg:    "retry",
			Meta: map[string]any{
				"attempt": attempt,
				"error":   redactSecrets(cause.Error(), parent.Secrets()),
			},
		})
	})

	if err != nil {
		if _, ok := asBreak(err); ok {
			return nil, err
		}
		if rc != nil && rc.FallbackNodeID != "" {
			if _, isTimeout := asTimeout(err); !isTimeout {
				return e.runFallback(ctx, plan, parent, node, rc.FallbackNodeID, err, input)
			}
		}
		return nil, e.wrapNodeError(node.ID, err, parent.Secrets())
	}

	return e.expand(ctx, plan, st, node, out)
}

// retryConfig resolves the effective retry policy: resolved config.retry
// wins over the parsed node attribute, which wins over the executor
// default.
func (e *Executor) retryConfig(node *Node, cfg map[string]any) *RetryConfig {
	if raw, ok := cfg["retry"]; ok {
		if rc, err := parseRetryConfig(raw); err == nil {
			return rc
		}
	}
	if node.Retry != nil {
		return node.Retry
	}
	return e.opts.DefaultRetry
}

// runFallback executes the fallback node after the primary's final
// failure. The fallback sees $primaryError and $primaryInput, runs
// without its own retry wrapper, and its output stands in for the
// primary's. A failed fallback reports both errors.
func (e *Executor) runFallback(ctx context.Context, plan *ExecutionPlan, parent *ExecutionState, node *Node, fallbackID string, primaryErr error, primaryInput any) (any, error) {
	fb, ok := plan.Node(fallbackID)
	if !ok {
		return nil, errf(CodeRuntimeFailure, node.ID,
			"fallback node %q not found (primary error: %v)", fallbackID, primaryErr)
	}

	st := parent.Clone()
	st.SetNodeContext("$primaryError", redactSecrets(primaryErr.Error(), parent.Secrets()))
	st.SetNodeContext("$primaryInput", primaryInput)
	st.SetNodeContext("input", primaryInput)

	e.emit(emit.Event{
		RunID:  parent.RunID(),
		Wave:   parent.CurrentWave(),
		NodeID: node.ID,
		Msg:    "fallback",
		Meta:   map[string]any{"fallback_node": fallbackID},
	})

	cfg, err := resolveConfig(fb.Config, st)
	if err != nil {
		return nil, errf(CodeExpression, fb.ID, "fallback config resolution failed: %v", err)
	}
	rt, ok := e.registry.Lookup(fb.RuntimeKey())
	if !ok {
		return nil, errf(CodeUnknownRuntime, fb.ID, "Unknown runtime type: %s", fb.RuntimeKey())
	}
	out, err := rt.Execute(ctx, &Request{Node: fb, Input: primaryInput, Config: cfg, State: st})
	if err != nil {
		return nil, errf(CodeRuntimeFailure, node.ID,
			"fallback %s failed: %v (primary error: %v)", fallbackID, err, primaryErr)
	}
	out, err = e.expand(ctx, plan, st, fb, out)
	if err != nil {
		return nil, err
	}
	parent.RecordResult(fb.ID, &NodeResult{
		Status:      NodeSuccess,
		Output:      out,
		StartedAt:   time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
	})
	return out, nil
}

// expand dispatches control-flow descriptors returned by runtimes. Plain
// outputs pass through untouched.
func (e *Executor) expand(ctx context.Context, plan *ExecutionPlan, st *ExecutionState, node *Node, out any) (any, error) {
	switch d := out.(type) {
	case *ParallelResult:
		return e.runParallel(ctx, plan, st, node, d)
	case *ForeachResult:
		return e.runForeach(ctx, plan, st, node, d)
	case *LoopResult:
		return e.runLoop(ctx, plan, st, node, d)
	case *TimeoutResult:
		return e.runTimeout(ctx, plan, st, node, d)
	default:
		return out, nil
	}
}

// runSequence executes nodes in declaration order, feeding each node's
// output to the next as implicit input. Returns the last output.
func (e *Executor) runSequence(ctx context.Context, plan *ExecutionPlan, st *ExecutionState, nodes []*Node) (any, error) {
	var last any
	for _, n := range nodes {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if n.Input == "" {
			st.SetNodeContext("input", last)
		}
		out, err := e.runNode(ctx, plan, st, n)
		if err != nil {
			return nil, err
		}
		last = out
	}
	return last, nil
}

// wrapNodeError normalizes a runtime failure into a coded error with
// secret values scrubbed from the message. Already-typed errors pass
// through.
func (e *Executor) wrapNodeError(nodeID string, err error, secrets map[string]string) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	if _, ok := asTimeout(err); ok {
		return err
	}
	return errf(CodeRuntimeFailure, nodeID, "%s", redactSecrets(err.Error(), secrets))
}

// safeHandleError invokes the user error handler, containing any panic
// or misbehavior so it never masks the node's own failure.
func (e *Executor) safeHandleError(ctx context.Context, state *ExecutionState, nodeID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.emit(emit.Event{
				RunID:  state.RunID(),
				NodeID: nodeID,
				Msg:    "error_handler_panic",
				Meta:   map[string]any{"panic": fmt.Sprintf("%v", r)},
			})
		}
	}()
	e.opts.ErrorHandler(ctx, state, nodeID, err)
}

// persist checkpoints the state to the configured file and store.
func (e *Executor) persist(state *ExecutionState) error {
	saved := false
	if e.opts.PersistencePath != "" {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return errf(CodeStore, "", "encode checkpoint: %v", err)
		}
		tmp := e.opts.PersistencePath + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return errf(CodeStore, "", "write checkpoint: %v", err)
		}
		if err := os.Rename(tmp, e.opts.PersistencePath); err != nil {
			return errf(CodeStore, "", "publish checkpoint: %v", err)
		}
		saved = true
	}
	if e.opts.Store != nil {
		if err := e.opts.Store.Save(context.Background(), state.RunID(), state); err != nil {
			return errf(CodeStore, "", "store checkpoint: %v", err)
		}
		saved = true
	}
	if saved {
		e.opts.Metrics.CheckpointSaved(state.RunID())
		e.emit(emit.Event{RunID: state.RunID(), Wave: state.CurrentWave(), Msg: "checkpoint_saved"})
	}
	return nil
}

// logLine appends a JSON line to the execution log. Logging never
// affects execution.
func (e *Executor) logLine(state *ExecutionState, nodeID string, res *NodeResult) {
	if e.opts.LogPath == "" {
		return
	}
	f, err := os.OpenFile(e.opts.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	line, err := json.Marshal(map[string]any{
		"runId":       state.RunID(),
		"wave":        state.CurrentWave(),
		"nodeId":      nodeID,
		"status":      res.Status,
		"duration_ms": res.DurationMs,
		"error":       res.Error,
		"completedAt": res.CompletedAt,
	})
	if err != nil {
		return
	}
	f.Write(append(line, '\n'))
}

func (e *Executor) emit(ev emit.Event) {
	if e.opts.Emitter != nil {
		e.opts.Emitter.Emit(ev)
	}
}
