package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/store"
)

// stubGraph is a minimal graph.Graph used to drive the lifecycle engine
// without a real LLM or compiled agent behind it. Invoke/StreamEvents
// write a canned reply into the checkpointer so GetState/readFinalValues
// observe it exactly like a real graph would.
type stubGraph struct {
	mu     sync.Mutex
	cp     checkpoint.Checkpointer
	reply  string
	events []graph.Event
	// invokeErr/streamErr let a test force the run down the error/interrupt
	// terminal-status paths without a cooperating context.
	invokeErr error
	streamErr error
	// block, if non-nil, is closed by the test once it has observed the
	// run start, letting StreamEvents/Invoke hang until ctx is canceled.
	block <-chan struct{}
}

func (g *stubGraph) Invoke(ctx context.Context, input graph.Input, cfg graph.RunnableConfig) (graph.State, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return graph.State{}, ctx.Err()
		}
	}
	if g.invokeErr != nil {
		return graph.State{}, g.invokeErr
	}
	values := map[string]any{"reply": g.reply}
	if err := g.cp.Put(ctx, checkpoint.Snapshot{
		ThreadID:     cfg.ThreadID,
		CheckpointNS: cfg.CheckpointNS,
		CheckpointID: "cp-" + g.reply,
		Values:       values,
	}); err != nil {
		return graph.State{}, err
	}
	return graph.State{Values: values}, nil
}

func (g *stubGraph) StreamEvents(ctx context.Context, input graph.Input, cfg graph.RunnableConfig) (<-chan graph.Event, error) {
	if g.streamErr != nil {
		return nil, g.streamErr
	}
	out := make(chan graph.Event, len(g.events)+1)
	go func() {
		defer close(out)
		for _, ev := range g.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if g.block != nil {
			select {
			case <-g.block:
			case <-ctx.Done():
				return
			}
		}
		values := map[string]any{"reply": g.reply}
		g.mu.Lock()
		_ = g.cp.Put(ctx, checkpoint.Snapshot{
			ThreadID:     cfg.ThreadID,
			CheckpointNS: cfg.CheckpointNS,
			CheckpointID: "cp-" + g.reply,
			Values:       values,
		})
		g.mu.Unlock()
	}()
	return out, nil
}

func (g *stubGraph) GetState(ctx context.Context, cfg graph.RunnableConfig) (graph.State, error) {
	snap, err := g.cp.GetState(ctx, cfg.ThreadID, cfg.CheckpointNS)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return graph.State{}, nil
		}
		return graph.State{}, err
	}
	return graph.State{Values: snap.Values, Next: snap.Next}, nil
}

// stubFactory wraps a fixed *stubGraph in a graph.Factory, capturing the
// checkpointer buildGraph acquires so the graph can write through it.
func stubFactory(g *stubGraph, factoryErr error) graph.Factory {
	return func(ctx context.Context, configurable map[string]any, cp checkpoint.Checkpointer, st store.Store) (graph.Graph, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		g.cp = cp
		return g, nil
	}
}
