// Package lifecycle implements the run lifecycle engine described in
// spec §4.7 — the core of the server: request admission and multitask
// policy, the three-layer configurable merge, driving a graph to
// completion (streamed or not), and the status transitions and state
// persistence that happen whether a run succeeds, fails, is interrupted,
// or its client disconnects mid-stream.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
	"github.com/flowmind/agentrt/internal/store"
	"github.com/flowmind/agentrt/internal/streaming"
)

// ErrThreadBusy is returned by ExecuteWait and ExecuteStream when the multitask strategy is
// "reject" and the thread already has an active run (spec §4.7.1, §7: 409).
var ErrThreadBusy = errors.New("lifecycle: thread has an active run")

// defaultInterruptWait bounds how long "interrupt" admission waits for the
// previously active run to observe cancellation before proceeding anyway
// (spec §4.7.1: "wait briefly (bounded: ≤2s)").
const defaultInterruptWait = 2 * time.Second

// Tracer receives lightweight execution callbacks; the server wires this to
// its observability stack when configured (spec §4.7.2: "tracing handler,
// if observability is configured"). A nil Tracer is a no-op.
type Tracer interface {
	RunStarted(ctx context.Context, run model.Run)
	RunFinished(ctx context.Context, run model.Run, err error)
}

// Engine drives run execution. One Engine instance is shared by every HTTP
// request handler; it holds no per-run mutable state beyond the small
// cancellation registry needed for the multitask "interrupt"/"rollback"
// policies.
type Engine struct {
	Assistants    repo.AssistantRepo
	Threads       repo.ThreadRepo
	Runs          repo.RunRepo
	Checkpoints   checkpoint.Factory
	Store         store.Store
	Graphs        *graph.Registry
	Hub           *streaming.Hub
	Tracer        Tracer
	Warn          func(msg string, args ...any)
	InterruptWait time.Duration

	mu         sync.Mutex
	active     map[string]*activeRun
	threadLock map[string]*sync.Mutex
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine returns a ready-to-use Engine. Warn defaults to a no-op and
// InterruptWait to 2 seconds if left zero.
func NewEngine(e Engine) *Engine {
	eng := e
	if eng.Warn == nil {
		eng.Warn = func(string, ...any) {}
	}
	if eng.InterruptWait <= 0 {
		eng.InterruptWait = defaultInterruptWait
	}
	eng.active = make(map[string]*activeRun)
	eng.threadLock = make(map[string]*sync.Mutex)
	return &eng
}

// lockThread returns the mutex serializing admission for threadID,
// creating it on first use. Holding this mutex for the entire admission
// decision (including an "enqueue" wait) is what makes the multitask
// policy's "at most one run per thread" invariant hold even when several
// requests race each other, and gives "enqueue" genuine one-at-a-time
// FIFO-ish ordering instead of a thundering herd once the active run ends.
func (e *Engine) lockThread(threadID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.threadLock[threadID]
	if !ok {
		m = &sync.Mutex{}
		e.threadLock[threadID] = m
	}
	return m
}

// SubmitRequest is everything a caller supplies to start a run, before
// admission and configurable merge (spec §4.7.1, §4.7.2).
type SubmitRequest struct {
	OwnerID     string
	ThreadID    string
	AssistantID string
	RunID       string // optional; generated if empty
	Input       graph.Input

	// RunConfigurable is the caller-supplied config.configurable overlay
	// (layer 2 of the three-layer merge).
	RunConfigurable map[string]any
	Metadata        map[string]any
	Tags            []string
	RunName         string

	MultitaskStrategy model.MultitaskStrategy // defaults to reject
}

// admitted is the resolved, locked-in state handed from admission to
// execution: the assistant, thread and freshly created run record, plus
// the per-run cancellation context.
type admitted struct {
	assistant model.Assistant
	thread    model.Thread
	run       model.Run
	ctx       context.Context
}

// admit resolves the assistant and thread, applies the multitask policy
// against any active run on the thread, and creates the new run record —
// all before any graph execution begins (spec §4.7.1: "made once,
// atomically, before any state mutation").
func (e *Engine) admit(ctx context.Context, req SubmitRequest) (*admitted, error) {
	threadLock := e.lockThread(req.ThreadID)
	threadLock.Lock()
	defer threadLock.Unlock()

	assistant, err := e.Assistants.Get(ctx, req.OwnerID, req.AssistantID)
	if err != nil {
		return nil, err
	}
	thread, err := e.Threads.Get(ctx, req.OwnerID, req.ThreadID)
	if err != nil {
		return nil, err
	}

	strategy := req.MultitaskStrategy
	if strategy == "" {
		strategy = model.MultitaskReject
	}

	active, err := e.Runs.GetActiveRun(ctx, req.OwnerID, req.ThreadID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		// No conflict; proceed.
	case err != nil:
		return nil, err
	default:
		if err := e.resolveConflict(ctx, req.OwnerID, assistant, active, strategy); err != nil {
			return nil, err
		}
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now().UTC()
	run := model.Run{
		ID:                runID,
		ThreadID:          req.ThreadID,
		AssistantID:       req.AssistantID,
		Status:            model.RunStatusRunning,
		MultitaskStrategy: strategy,
		Kwargs: map[string]any{
			"input":  req.Input,
			"config": req.RunConfigurable,
		},
		Metadata:  req.Metadata,
		OwnerID:   req.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	run, err = e.Runs.Create(ctx, run)
	if err != nil {
		return nil, err
	}
	if err := e.Threads.SetStatus(ctx, req.ThreadID, model.ThreadStatusBusy); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.active[run.ID] = &activeRun{cancel: cancel, done: make(chan struct{})}
	e.mu.Unlock()

	return &admitted{assistant: assistant, thread: thread, run: run, ctx: runCtx}, nil
}

// resolveConflict applies the multitask strategy against an already-active
// run (spec §4.7.1's table).
func (e *Engine) resolveConflict(ctx context.Context, ownerID string, assistant model.Assistant, active model.Run, strategy model.MultitaskStrategy) error {
	switch strategy {
	case model.MultitaskReject, "":
		return ErrThreadBusy

	case model.MultitaskInterrupt:
		e.interrupt(active.ID)
		e.waitForCompletion(active.ID, e.InterruptWait)
		return nil

	case model.MultitaskRollback:
		e.interrupt(active.ID)
		e.waitForCompletion(active.ID, e.InterruptWait)
		if err := e.Runs.Delete(ctx, ownerID, active.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			e.Warn("rollback: failed to delete superseded run record", "run_id", active.ID, "error", err)
		}
		ns := model.CheckpointNamespace(active.AssistantID)
		cp, err := e.Checkpoints.Acquire(ctx)
		if err != nil {
			e.Warn("rollback: failed to acquire checkpointer to delete artifacts", "run_id", active.ID, "error", err)
			return nil
		}
		defer cp.Close(ctx)
		if err := cp.Delete(ctx, active.ThreadID, ns); err != nil {
			e.Warn("rollback: failed to delete checkpoint artifacts", "run_id", active.ID, "error", err)
		}
		return nil

	case model.MultitaskEnqueue:
		e.waitForCompletionUnbounded(ctx, active.ID)
		return ctx.Err()

	default:
		return ErrThreadBusy
	}
}

// interrupt cancels the active run's context. Cancellation from here and
// cancellation from a client disconnect both resolve to the same terminal
// status (spec §4.7.4), so no separate "why" needs tracking.
func (e *Engine) interrupt(runID string) {
	e.mu.Lock()
	ar, ok := e.active[runID]
	e.mu.Unlock()
	if !ok {
		return
	}
	ar.cancel()
}

// Cancel interrupts runID if it is currently active, reporting whether it
// found one to cancel. It is the public entry point behind
// POST /threads/{id}/runs/{run_id}/cancel.
func (e *Engine) Cancel(runID string) bool {
	e.mu.Lock()
	_, ok := e.active[runID]
	e.mu.Unlock()
	if ok {
		e.interrupt(runID)
	}
	return ok
}

// waitForCompletion blocks up to timeout for runID to finish.
func (e *Engine) waitForCompletion(runID string, timeout time.Duration) {
	e.mu.Lock()
	ar, ok := e.active[runID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ar.done:
	case <-time.After(timeout):
	}
}

// waitForCompletionUnbounded blocks until runID finishes or ctx is
// canceled, used by the "enqueue" multitask strategy.
func (e *Engine) waitForCompletionUnbounded(ctx context.Context, runID string) {
	e.mu.Lock()
	ar, ok := e.active[runID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ar.done:
	case <-ctx.Done():
	}
}

// finish releases the cancellation registry entry for runID and unblocks
// anyone waiting on it (interrupt/rollback/enqueue).
func (e *Engine) finish(runID string) {
	e.mu.Lock()
	ar, ok := e.active[runID]
	delete(e.active, runID)
	e.mu.Unlock()
	if ok {
		close(ar.done)
	}
}

// buildConfigurable merges the three layers spec §4.7.2 describes:
// assistant config, run config, then server-injected runtime metadata,
// each layer overriding the previous.
func buildConfigurable(assistant model.Assistant, runConfigurable map[string]any, run model.Run) map[string]any {
	merged := make(map[string]any, len(assistant.Config.Configurable)+len(runConfigurable)+4)
	for k, v := range assistant.Config.Configurable {
		merged[k] = v
	}
	for k, v := range runConfigurable {
		merged[k] = v
	}
	merged["run_id"] = run.ID
	merged["thread_id"] = run.ThreadID
	merged["assistant_id"] = run.AssistantID
	merged["checkpoint_ns"] = model.CheckpointNamespace(run.AssistantID)
	return merged
}

// buildGraph resolves the assistant's graph factory and invokes it with a
// freshly acquired per-request checkpointer and the shared store, per
// spec §5's "no shared pool with internal locking" discipline for
// checkpointers (the store itself is safe for concurrent per-request use
// by contract of internal/store.Store).
func (e *Engine) buildGraph(ctx context.Context, assistant model.Assistant, configurable map[string]any) (graph.Graph, checkpoint.Checkpointer, error) {
	factory, err := e.Graphs.Resolve(assistant.GraphID)
	if err != nil {
		return nil, nil, fmt.Errorf("lifecycle: resolve graph %q: %w", assistant.GraphID, err)
	}
	cp, err := e.Checkpoints.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("lifecycle: acquire checkpointer: %w", err)
	}
	g, err := factory(ctx, configurable, cp, e.Store)
	if err != nil {
		cp.Close(ctx)
		return nil, nil, fmt.Errorf("lifecycle: build graph: %w", err)
	}
	return g, cp, nil
}

// terminalStatus classifies an execution error into the run status it
// produces (spec §4.7.4): any form of context cancellation — whether from
// the engine's own interrupt/rollback mechanism or a client disconnect —
// is "interrupted"; anything else is "error".
func terminalStatus(ctx context.Context, err error) model.RunStatus {
	if err == nil {
		return model.RunStatusSuccess
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return model.RunStatusInterrupted
	}
	return model.RunStatusError
}

// persistFinal writes the graph's final state to the thread (both the
// current Values and a new history snapshot) and transitions run and
// thread status, per the pseudocode's post_execution block (spec §4.7.3).
// It always runs, including on the failure paths, matching the spec's
// "finally-equivalent block" requirement.
func (e *Engine) persistFinal(ctx context.Context, a *admitted, values map[string]any, runStatus model.RunStatus) string {
	persistCtx := detach(ctx)

	checkpointID := uuid.NewString()
	if err := e.Threads.AppendStateSnapshot(persistCtx, model.ThreadStateSnapshot{
		ThreadID:     a.thread.ID,
		CheckpointNS: model.CheckpointNamespace(a.assistant.ID),
		CheckpointID: checkpointID,
		Values:       values,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		e.Warn("failed to append thread state snapshot", "thread_id", a.thread.ID, "error", err)
	}
	if err := e.Runs.SetStatus(persistCtx, a.run.ID, runStatus, ""); err != nil {
		e.Warn("failed to set run status", "run_id", a.run.ID, "error", err)
	}
	threadStatus := model.ThreadStatusIdle
	if runStatus == model.RunStatusInterrupted {
		threadStatus = model.ThreadStatusInterrupted
	}
	if err := e.Threads.SetStatus(persistCtx, a.thread.ID, threadStatus); err != nil {
		e.Warn("failed to set thread status", "thread_id", a.thread.ID, "error", err)
	}
	return checkpointID
}

// detach returns a context that carries no deadline/cancellation from ctx
// but otherwise behaves like it, so post-execution persistence still
// happens even after a client disconnect cancels the request context.
func detach(ctx context.Context) context.Context {
	return detachedContext{ctx}
}

type detachedContext struct{ parent context.Context }

func (detachedContext) Deadline() (time.Time, bool)   { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}         { return nil }
func (detachedContext) Err() error                    { return nil }
func (d detachedContext) Value(key any) any           { return d.parent.Value(key) }
