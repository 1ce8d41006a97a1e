// Package streaming implements the SSE wire format and the per-run
// broadcast hub described in spec §4.8: event framing, the required
// response headers, and a bounded-buffer fan-out so a run reconnect or a
// join can attach to an in-progress run without missing events emitted
// before it subscribed.
package streaming

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Frame is one SSE event ready to be written to a response body.
type Frame struct {
	Event string
	Data  any
}

// Encode renders f in the wire format spec §4.8 requires:
// "event: <name>\ndata: <json>\n\n".
func (f Frame) Encode() ([]byte, error) {
	payload, err := json.Marshal(f.Data)
	if err != nil {
		return nil, fmt.Errorf("streaming: encode %s event: %w", f.Event, err)
	}
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(f.Event)
	buf.WriteByte('\n')
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// MetadataFrame is the first event of every run stream.
func MetadataFrame(runID string, attempt int) Frame {
	return Frame{Event: "metadata", Data: map[string]any{"run_id": runID, "attempt": attempt}}
}

// ValuesFrame carries a full state snapshot, used for both the initial
// (history-merged) and the final values events (spec §4.7.5).
func ValuesFrame(values map[string]any) Frame {
	return Frame{Event: "values", Data: map[string]any{"values": values}}
}

// MessagesFrame carries one non-cumulative token delta as the two-element
// tuple the wire format requires (spec §4.8.1). namespace, when non-empty,
// is appended with the "|" subgraph delimiter (spec §4.8.2).
func MessagesFrame(namespace string, delta, metadata any) Frame {
	event := "messages"
	if namespace != "" {
		event = "messages|" + namespace
	}
	return Frame{Event: event, Data: []any{delta, metadata}}
}

// UpdatesFrame carries one node's partial state update.
func UpdatesFrame(node string, values map[string]any) Frame {
	return Frame{Event: "updates", Data: map[string]any{"node": node, "values": values}}
}

// ErrorFrame replaces the events at the point of failure (spec §4.7.4).
func ErrorFrame(message string) Frame {
	return Frame{Event: "error", Data: map[string]any{"error": message}}
}

// EndFrame is the last event of every run stream, happy path or not.
func EndFrame(runID, checkpointID, status string) Frame {
	return Frame{Event: "end", Data: map[string]any{
		"run_id":        runID,
		"checkpoint_id": checkpointID,
		"status":        status,
	}}
}

// SetHeaders applies the response headers spec §4.8.4 requires for every
// SSE response, before the first byte is written.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
