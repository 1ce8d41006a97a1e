// Package reactagent implements the default "agent" graph: a small
// tool-calling loop over an llm.Provider, checkpointed per thread. It is
// registered under graph.DefaultGraphID so that any assistant whose
// graph_id is missing or unrecognized still gets a working agent.
package reactagent

import (
	"context"
	"fmt"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/llm"
	"github.com/flowmind/agentrt/internal/store"
)

// Tool is one callable tool made available to the agent loop, typically
// adapted from an MCP tool definition by internal/mcploader.
type Tool struct {
	Definition llm.ToolDefinition
	Invoke     func(ctx context.Context, payload any) (any, error)
}

// Options configures one compiled Agent instance. A fresh Agent (and its
// Options) is built per run by the registered graph.Factory.
type Options struct {
	Provider     llm.Provider
	Model        string
	SystemPrompt string
	Tools        []Tool
	Temperature  float64

	// MaxTurns bounds the number of model-call/tool-call round trips in a
	// single Invoke/StreamEvents call, guarding against a model that never
	// stops requesting tools.
	MaxTurns int
}

// Agent implements graph.Graph.
type Agent struct {
	opts         Options
	checkpointer checkpoint.Checkpointer
	store        store.Store
}

// New builds an Agent. It is not itself a graph.Factory: the server's
// startup code wraps it in the Factory registered for
// graph.DefaultGraphID once the provider registry and tool set are wired.
func New(opts Options, checkpointer checkpoint.Checkpointer, st store.Store) *Agent {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 8
	}
	return &Agent{opts: opts, checkpointer: checkpointer, store: st}
}

// GetState returns the thread's last persisted messages, or an empty
// State if nothing has been checkpointed yet.
func (a *Agent) GetState(ctx context.Context, cfg graph.RunnableConfig) (graph.State, error) {
	snap, err := a.checkpointer.GetState(ctx, cfg.ThreadID, cfg.CheckpointNS)
	if err != nil {
		if err == checkpoint.ErrNotFound {
			return graph.State{}, nil
		}
		return graph.State{}, err
	}
	return graph.State{Values: snap.Values, Next: snap.Next}, nil
}

// Invoke runs the tool-calling loop to completion without streaming.
func (a *Agent) Invoke(ctx context.Context, input graph.Input, cfg graph.RunnableConfig) (graph.State, error) {
	history, err := a.priorMessages(ctx, cfg)
	if err != nil {
		return graph.State{}, err
	}
	messages := append(history, input.Messages...)

	final, err := a.runLoop(ctx, messages, nil)
	if err != nil {
		return graph.State{}, err
	}
	return a.persist(ctx, cfg, final)
}

// StreamEvents runs the loop, emitting a graph.MessagesEvent per
// non-cumulative output chunk and a graph.UpdatesEvent per completed tool
// call. The channel closes once the loop finishes or ctx is canceled.
func (a *Agent) StreamEvents(ctx context.Context, input graph.Input, cfg graph.RunnableConfig) (<-chan graph.Event, error) {
	history, err := a.priorMessages(ctx, cfg)
	if err != nil {
		return nil, err
	}
	messages := append(history, input.Messages...)

	out := make(chan graph.Event, 16)
	go func() {
		defer close(out)
		emit := func(text string) {
			for _, chunk := range chunkDeltas(text) {
				select {
				case out <- graph.NewMessagesEvent(
					graph.MessageDelta{Role: "assistant", Content: chunk},
					graph.MessageMetadata{RunID: cfg.RunName, ThreadID: cfg.ThreadID, CheckpointNS: cfg.CheckpointNS, ModelName: a.opts.Model},
				):
				case <-ctx.Done():
					return
				}
			}
		}
		onTool := func(name string, result any) {
			select {
			case out <- graph.NewUpdatesEvent(name, map[string]any{"result": result}):
			case <-ctx.Done():
			}
		}
		final, err := a.runLoopStreamed(ctx, messages, emit, onTool)
		if err != nil {
			select {
			case out <- graph.NewErrorEvent(err):
			case <-ctx.Done():
			}
			return
		}
		if _, perr := a.persist(ctx, cfg, final); perr != nil {
			select {
			case out <- graph.NewErrorEvent(perr):
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (a *Agent) priorMessages(ctx context.Context, cfg graph.RunnableConfig) ([]graph.Message, error) {
	state, err := a.GetState(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return graph.DecodeMessages(state.Values), nil
}

func (a *Agent) persist(ctx context.Context, cfg graph.RunnableConfig, messages []graph.Message) (graph.State, error) {
	values := graph.EncodeMessages(messages)
	if err := a.checkpointer.Put(ctx, checkpoint.Snapshot{
		ThreadID:     cfg.ThreadID,
		CheckpointNS: cfg.CheckpointNS,
		Values:       values,
	}); err != nil {
		return graph.State{}, err
	}
	return graph.State{Values: values}, nil
}

// runLoop drives the model/tool round trips without emitting any
// incremental events, used by Invoke.
func (a *Agent) runLoop(ctx context.Context, messages []graph.Message, _ func(string)) ([]graph.Message, error) {
	return a.runLoopStreamed(ctx, messages, func(string) {}, func(string, any) {})
}

// runLoopStreamed is the shared loop body: it calls the provider, and for
// every tool call the model requests, invokes the matching Tool and feeds
// the result back as a new message before calling the provider again.
func (a *Agent) runLoopStreamed(ctx context.Context, messages []graph.Message, emit func(string), onTool func(string, any)) ([]graph.Message, error) {
	for turn := 0; turn < a.opts.MaxTurns; turn++ {
		req := llm.Request{
			Model:       a.opts.Model,
			Messages:    toLLMMessages(a.opts.SystemPrompt, messages),
			Tools:       toolDefinitions(a.opts.Tools),
			Temperature: a.opts.Temperature,
		}
		resp, err := a.opts.Provider.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("model completion: %w", err)
		}
		for _, m := range resp.Content {
			messages = append(messages, graph.Message{Role: m.Role, Content: m.Content})
			emit(m.Content)
		}
		if len(resp.ToolCalls) == 0 {
			return messages, nil
		}
		for _, call := range resp.ToolCalls {
			result, terr := a.invokeTool(ctx, call)
			if terr != nil {
				result = map[string]any{"error": terr.Error()}
			}
			onTool(call.Name, result)
			messages = append(messages, graph.Message{
				Role:    "tool",
				Name:    call.Name,
				Content: fmt.Sprintf("%v", result),
			})
		}
	}
	return messages, fmt.Errorf("reactagent: exceeded max turns (%d) without a final reply", a.opts.MaxTurns)
}

func (a *Agent) invokeTool(ctx context.Context, call llm.ToolCall) (any, error) {
	for _, t := range a.opts.Tools {
		if t.Definition.Name == call.Name {
			return t.Invoke(ctx, call.Payload)
		}
	}
	return nil, fmt.Errorf("reactagent: unknown tool %q", call.Name)
}

func toLLMMessages(systemPrompt string, messages []graph.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func toolDefinitions(tools []Tool) []llm.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition
	}
	return defs
}

// chunkDeltas splits text into small non-cumulative fragments so streaming
// consumers see incremental content even when the underlying provider call
// was not itself a token stream.
func chunkDeltas(text string) []string {
	if text == "" {
		return []string{""}
	}
	const chunkSize = 24
	var chunks []string
	for len(text) > 0 {
		n := chunkSize
		if n > len(text) {
			n = len(text)
		}
		chunks = append(chunks, text[:n])
		text = text[n:]
	}
	return chunks
}
