// Package graph defines the black-box compiled-agent contract that the run
// lifecycle engine drives: a graph is anything that can accept input
// messages, optionally stream incremental events while producing a reply,
// and report its durable state for a given checkpoint configuration. The
// engine never inspects how a graph reasons internally — it only calls
// Invoke, StreamEvents and GetState.
package graph

import (
	"context"
	"sync"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/store"
)

// RunnableConfig carries the merged configurable dict plus the checkpoint
// identity a graph must read and write state against.
type RunnableConfig struct {
	ThreadID      string
	CheckpointNS  string
	Configurable  map[string]any
	Tags          []string
	RunName       string
}

// Message is the wire shape of one conversational turn, matching the
// `{role, content}` shape callers send and graphs emit.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Input is what a run hands the graph: the caller-supplied messages for
// this turn (not merged with history — the graph is responsible for
// reading prior state via GetState/its own checkpointer use).
type Input struct {
	Messages []Message
}

// State is a graph's durable view of a thread, matching
// checkpoint.Snapshot's Values/Next shape so it can be persisted verbatim
// as a thread state snapshot.
type State struct {
	Values map[string]any
	Next   []string
}

// Graph is the compiled, ready-to-run agent for one (assistant, thread)
// configurable. A fresh Graph is produced by a Factory for every run.
type Graph interface {
	// Invoke runs the graph to completion without streaming and returns
	// its final state.
	Invoke(ctx context.Context, input Input, cfg RunnableConfig) (State, error)

	// StreamEvents runs the graph, emitting Events on the returned channel
	// as they occur. The channel is closed when the run finishes, whether
	// by completion, error or context cancellation; at most one terminal
	// error event (EventError) precedes closure.
	StreamEvents(ctx context.Context, input Input, cfg RunnableConfig) (<-chan Event, error)

	// GetState returns the graph's last persisted state for cfg, or a zero
	// State with no error when nothing has been persisted yet.
	GetState(ctx context.Context, cfg RunnableConfig) (State, error)
}

// Factory builds a Graph bound to the given configurable dict and per-run
// checkpoint/store handles.
type Factory func(ctx context.Context, configurable map[string]any, checkpointer checkpoint.Checkpointer, st store.Store) (Graph, error)

// DefaultGraphID is the fallback graph used when an assistant's graph_id is
// unknown to the registry.
const DefaultGraphID = "agent"

// Registry resolves graph_id to a Factory, supporting both eager
// registration (built-ins registered at startup) and lazy registration
// (a loader invoked on first resolution, to defer import/connection cost).
type Registry struct {
	mu      sync.RWMutex
	eager   map[string]Factory
	lazy    map[string]func() (Factory, error)
	logWarn func(id string)
}

// NewRegistry returns an empty Registry. logWarn, if non-nil, is invoked
// whenever Resolve falls back to the default graph because id is unknown.
func NewRegistry(logWarn func(id string)) *Registry {
	return &Registry{
		eager:   make(map[string]Factory),
		lazy:    make(map[string]func() (Factory, error)),
		logWarn: logWarn,
	}
}

// Register adds an eagerly-constructed Factory under id.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eager[id] = f
}

// RegisterLazy adds a Factory whose construction is deferred until the
// first Resolve call for id.
func (r *Registry) RegisterLazy(id string, loader func() (Factory, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lazy[id] = loader
}

// Resolve returns the Factory registered under id. If id is unknown, it
// logs a warning (via logWarn) and falls back to DefaultGraphID so that a
// stale graph_id on a persisted assistant never breaks execution.
func (r *Registry) Resolve(id string) (Factory, error) {
	if id == "" {
		id = DefaultGraphID
	}
	r.mu.RLock()
	f, ok := r.eager[id]
	loader, lazyOK := r.lazy[id]
	r.mu.RUnlock()
	if ok {
		return f, nil
	}
	if lazyOK {
		built, err := loader()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.eager[id] = built
		delete(r.lazy, id)
		r.mu.Unlock()
		return built, nil
	}
	if id == DefaultGraphID {
		return nil, ErrNoDefaultGraph
	}
	if r.logWarn != nil {
		r.logWarn(id)
	}
	return r.Resolve(DefaultGraphID)
}

// AvailableGraphIDs lists every graph_id currently known to the registry,
// eager and lazy, for the /info capability advertisement.
func (r *Registry) AvailableGraphIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.eager)+len(r.lazy))
	for id := range r.eager {
		ids = append(ids, id)
	}
	for id := range r.lazy {
		ids = append(ids, id)
	}
	return ids
}

// ErrNoDefaultGraph is returned by Resolve when even the default graph_id
// has not been registered — a deployment configuration error.
var ErrNoDefaultGraph = errNoDefaultGraph{}

type errNoDefaultGraph struct{}

func (errNoDefaultGraph) Error() string { return "graph: no default \"agent\" graph registered" }
