package graph

// EncodeMessages renders messages into the map[string]any shape every graph
// checkpoints its conversation state as: {"messages": [{"role":...,
// "content":..., "name":...}, ...]}. Exported so the run lifecycle engine
// can merge pre-existing checkpoint history with new input for the initial
// values event (spec §4.7.5) without depending on any one graph's internal
// representation.
func EncodeMessages(messages []Message) map[string]any {
	raw := make([]any, len(messages))
	for i, m := range messages {
		raw[i] = map[string]any{"role": m.Role, "content": m.Content, "name": m.Name}
	}
	return map[string]any{"messages": raw}
}

// DecodeMessages extracts the "messages" list from a values map produced by
// EncodeMessages (or an equivalent checkpointed shape), tolerating a nil or
// malformed map by returning an empty slice.
func DecodeMessages(values map[string]any) []Message {
	if values == nil {
		return nil
	}
	raw, ok := values["messages"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Message{
			Role:    stringField(m, "role"),
			Content: stringField(m, "content"),
			Name:    stringField(m, "name"),
		})
	}
	return out
}

// MergeHistory returns the values map produced by appending newMessages to
// whatever messages are already present in pre (the graph's pre-existing
// checkpoint state, possibly nil on turn 1). This is the "initial values
// must include history" merge the engine performs before emitting the
// first values SSE event.
func MergeHistory(pre map[string]any, newMessages []Message) map[string]any {
	merged := append(DecodeMessages(pre), newMessages...)
	return EncodeMessages(merged)
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
