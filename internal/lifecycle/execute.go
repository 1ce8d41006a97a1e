package lifecycle

import (
	"context"
	"errors"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/streaming"
)

// ExecuteWait drives a run to completion without streaming and returns its
// final thread state snapshot (spec §4.7's execute_run_wait).
func (e *Engine) ExecuteWait(ctx context.Context, req SubmitRequest) (model.ThreadStateSnapshot, error) {
	a, err := e.admit(ctx, req)
	if err != nil {
		return model.ThreadStateSnapshot{}, err
	}
	defer e.finish(a.run.ID)

	configurable := buildConfigurable(a.assistant, req.RunConfigurable, a.run)
	g, cp, err := e.buildGraph(a.ctx, a.assistant, configurable)
	if err != nil {
		status := terminalStatus(a.ctx, err)
		e.persistFinal(a.ctx, a, graph.EncodeMessages(req.Input.Messages), status)
		return model.ThreadStateSnapshot{}, err
	}
	defer cp.Close(context.Background())

	cfg := graph.RunnableConfig{
		ThreadID:     a.thread.ID,
		CheckpointNS: model.CheckpointNamespace(a.assistant.ID),
		Configurable: configurable,
		Tags:         req.Tags,
		RunName:      req.RunName,
	}

	if e.Tracer != nil {
		e.Tracer.RunStarted(a.ctx, a.run)
	}

	_, invokeErr := g.Invoke(a.ctx, req.Input, cfg)

	finalValues := e.readFinalValues(a.ctx, a.run.ID, g, cfg, req.Input.Messages)
	status := terminalStatus(a.ctx, invokeErr)
	checkpointID := e.persistFinal(ctx, a, finalValues, status)

	if e.Tracer != nil {
		e.Tracer.RunFinished(a.ctx, a.run, invokeErr)
	}

	if invokeErr != nil {
		return model.ThreadStateSnapshot{}, invokeErr
	}
	return model.ThreadStateSnapshot{
		ThreadID:     a.thread.ID,
		CheckpointNS: cfg.CheckpointNS,
		CheckpointID: checkpointID,
		Values:       finalValues,
	}, nil
}

// ExecuteStream drives a run to completion while publishing SSE frames to
// the run's broadcast hub, returning the run ID and a channel of frames
// for the caller that initiated the stream (spec §4.7's
// execute_run_stream). Further subscribers may join the same run via
// Hub.Get(runID).Subscribe.
func (e *Engine) ExecuteStream(ctx context.Context, req SubmitRequest) (string, <-chan streaming.Frame, error) {
	a, err := e.admit(ctx, req)
	if err != nil {
		return "", nil, err
	}

	configurable := buildConfigurable(a.assistant, req.RunConfigurable, a.run)
	g, cp, err := e.buildGraph(a.ctx, a.assistant, configurable)
	if err != nil {
		e.finish(a.run.ID)
		status := terminalStatus(a.ctx, err)
		e.persistFinal(a.ctx, a, graph.EncodeMessages(req.Input.Messages), status)
		return "", nil, err
	}

	cfg := graph.RunnableConfig{
		ThreadID:     a.thread.ID,
		CheckpointNS: model.CheckpointNamespace(a.assistant.ID),
		Configurable: configurable,
		Tags:         req.Tags,
		RunName:      req.RunName,
	}

	rb := e.Hub.Start(a.run.ID)
	frames, _ := rb.Subscribe(ctx)

	go e.runStream(a, g, cp, req, cfg, rb)

	return a.run.ID, frames, nil
}

// runStream is the streaming execution body, run in its own goroutine so
// ExecuteStream can return the subscriber channel immediately. All
// post-execution bookkeeping happens here in a defer, matching the
// pseudocode's "finally-equivalent block" (spec §4.7.3).
func (e *Engine) runStream(a *admitted, g graph.Graph, cp checkpoint.Checkpointer, req SubmitRequest, cfg graph.RunnableConfig, rb *streaming.Run) {
	defer cp.Close(context.Background())
	defer e.finish(a.run.ID)

	if e.Tracer != nil {
		e.Tracer.RunStarted(a.ctx, a.run)
	}

	rb.Publish(streaming.MetadataFrame(a.run.ID, 1))

	preState, preErr := g.GetState(a.ctx, cfg)
	if preErr != nil && !errors.Is(preErr, checkpoint.ErrNotFound) {
		e.Warn("checkpointer read failure before stream start, proceeding without merged history", "run_id", a.run.ID, "error", preErr)
	}
	initialValues := graph.MergeHistory(preState.Values, req.Input.Messages)
	rb.Publish(streaming.ValuesFrame(initialValues))

	accumulated := append(graph.DecodeMessages(preState.Values), req.Input.Messages...)

	events, err := g.StreamEvents(a.ctx, req.Input, cfg)
	if err != nil {
		e.finishStream(a, rb, accumulated, g, cfg, err)
		return
	}

	var streamErr error
	for ev := range events {
		switch te := ev.(type) {
		case graph.MessagesEvent:
			rb.Publish(streaming.MessagesFrame("", te.Delta, te.Metadata))
			if te.Delta.Content != "" {
				accumulated = appendDelta(accumulated, te.Delta)
			}
		case graph.UpdatesEvent:
			rb.Publish(streaming.UpdatesFrame(te.Node, te.Values))
		case graph.ValuesEvent:
			rb.Publish(streaming.ValuesFrame(te.Values))
		case graph.ErrorEvent:
			streamErr = errors.New(te.Err)
		}
	}
	// A graph whose context is canceled closes its channel without an
	// ErrorEvent; surface the cancellation so the run ends "interrupted".
	if streamErr == nil && a.ctx.Err() != nil {
		streamErr = a.ctx.Err()
	}

	e.finishStream(a, rb, accumulated, g, cfg, streamErr)
}

// finishStream reads back final state (falling back to the accumulated
// deltas on a checkpointer read failure, spec §4.7.4), persists it,
// transitions status, and emits the closing values/end (or error/end)
// frame pair.
func (e *Engine) finishStream(a *admitted, rb *streaming.Run, accumulated []graph.Message, g graph.Graph, cfg graph.RunnableConfig, execErr error) {
	finalValues := e.readFinalValues(a.ctx, a.run.ID, g, cfg, accumulated)

	if execErr != nil {
		rb.Publish(streaming.ErrorFrame(execErr.Error()))
	} else {
		rb.Publish(streaming.ValuesFrame(finalValues))
	}

	status := terminalStatus(a.ctx, execErr)
	checkpointID := e.persistFinal(a.ctx, a, finalValues, status)

	rb.Publish(streaming.EndFrame(a.run.ID, checkpointID, string(status)))
	rb.Finish()

	if e.Tracer != nil {
		e.Tracer.RunFinished(a.ctx, a.run, execErr)
	}
}

// readFinalValues reads the graph's persisted state, falling back to the
// accumulated/input messages encoded as values when the checkpointer read
// itself fails (spec §4.7.4's reduced-fidelity fallback).
func (e *Engine) readFinalValues(ctx context.Context, runID string, g graph.Graph, cfg graph.RunnableConfig, fallback []graph.Message) map[string]any {
	state, err := g.GetState(ctx, cfg)
	if err != nil {
		e.Warn("checkpointer read failure after execution, falling back to reduced-fidelity values", "run_id", runID, "error", err)
		return graph.EncodeMessages(fallback)
	}
	return state.Values
}

// appendDelta folds one non-cumulative message delta into the
// server-side accumulator used only as a post-failure fallback; it is not
// what is sent on the wire (spec §4.8.1: deltas are never accumulated for
// clients, only internally here as a safety net).
func appendDelta(messages []graph.Message, delta graph.MessageDelta) []graph.Message {
	if len(messages) > 0 {
		last := &messages[len(messages)-1]
		if last.Role == delta.Role || (delta.Role == "" && last.Role == "assistant") {
			last.Content += delta.Content
			return messages
		}
	}
	role := delta.Role
	if role == "" {
		role = "assistant"
	}
	return append(messages, graph.Message{Role: role, Content: delta.Content})
}
