package inmem

import "testing"

func TestMetadataSubsetMatches(t *testing.T) {
	target := map[string]any{"env": "prod", "team": "agents", "tags": []any{"a", "b"}}

	if !metadataSubsetMatches(map[string]any{"env": "prod"}, target) {
		t.Error("expected subset match")
	}
	if !metadataSubsetMatches(map[string]any{"tags": []any{"a", "b"}}, target) {
		t.Error("expected nested slice match")
	}
	if metadataSubsetMatches(map[string]any{"env": "staging"}, target) {
		t.Error("did not expect value mismatch to match")
	}
	if metadataSubsetMatches(map[string]any{"missing": "x"}, target) {
		t.Error("did not expect missing key to match")
	}
	if !metadataSubsetMatches(nil, target) {
		t.Error("empty subset should always match")
	}
}

func TestDeepEqualJSONNestedMaps(t *testing.T) {
	a := map[string]any{"x": map[string]any{"y": 1.0}}
	b := map[string]any{"x": map[string]any{"y": 1.0}}
	if !deepEqualJSON(a, b) {
		t.Error("expected equal nested maps to match")
	}
	c := map[string]any{"x": map[string]any{"y": 2.0}}
	if deepEqualJSON(a, c) {
		t.Error("did not expect differing nested maps to match")
	}
}
