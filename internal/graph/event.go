package graph

// EventType names one of the streaming wire events a graph may emit while
// executing. Values match the SSE event names sent to clients verbatim.
type EventType string

const (
	// EventValues carries a full merged state snapshot: the initial event
	// right after stream start (history + new input) and the final event
	// right before end.
	EventValues EventType = "values"

	// EventMessages carries one incremental token delta as the two-element
	// tuple [delta, metadata]. Deltas are non-cumulative: each event's
	// Delta.Content is only the new content since the previous event.
	EventMessages EventType = "messages"

	// EventUpdates carries a named node's partial state update.
	EventUpdates EventType = "updates"

	// EventError reports a fatal error that ended execution mid-stream
	// (an LLM or tool failure, spec §4.7.4). A graph emits at most one of
	// these, immediately before closing its event channel.
	EventError EventType = "error"
)

// Event is anything a graph may send on its StreamEvents channel. Base
// carries the fields every event shares; concrete events add their own
// typed fields and expose them through Payload.
type Event interface {
	Type() EventType
	Payload() any
}

// Base is embedded by every concrete event type.
type Base struct {
	EventType EventType
}

func (b Base) Type() EventType { return b.EventType }

// ValuesEvent reports a full state snapshot.
type ValuesEvent struct {
	Base
	Values map[string]any `json:"values"`
}

func NewValuesEvent(values map[string]any) ValuesEvent {
	return ValuesEvent{Base: Base{EventType: EventValues}, Values: values}
}

func (e ValuesEvent) Payload() any { return map[string]any{"values": e.Values} }

// MessageDelta is the non-cumulative chunk of a streamed assistant message.
type MessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// MessageMetadata is the flat observability dict sent alongside every
// message delta.
type MessageMetadata struct {
	GraphNode    string `json:"langgraph_node,omitempty"`
	RunID        string `json:"run_id,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
	CheckpointNS string `json:"checkpoint_ns,omitempty"`
	ModelName    string `json:"ls_model_name,omitempty"`
}

// MessagesEvent carries one token delta. Payload renders as the two-element
// tuple the wire format requires: [delta, metadata].
type MessagesEvent struct {
	Base
	Delta    MessageDelta
	Metadata MessageMetadata
}

func NewMessagesEvent(delta MessageDelta, meta MessageMetadata) MessagesEvent {
	return MessagesEvent{Base: Base{EventType: EventMessages}, Delta: delta, Metadata: meta}
}

func (e MessagesEvent) Payload() any { return []any{e.Delta, e.Metadata} }

// UpdatesEvent carries a single node's partial state update.
type UpdatesEvent struct {
	Base
	Node   string         `json:"node"`
	Values map[string]any `json:"values"`
}

func NewUpdatesEvent(node string, values map[string]any) UpdatesEvent {
	return UpdatesEvent{Base: Base{EventType: EventUpdates}, Node: node, Values: values}
}

func (e UpdatesEvent) Payload() any {
	return map[string]any{"node": e.Node, "values": e.Values}
}

// ErrorEvent reports the fatal error that stopped execution.
type ErrorEvent struct {
	Base
	Err string `json:"error"`
}

func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Base: Base{EventType: EventError}, Err: err.Error()}
}

func (e ErrorEvent) Payload() any { return map[string]any{"error": e.Err} }
