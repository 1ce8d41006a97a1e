package inmem

// metadataSubsetMatches reports whether every key/value pair in subset is
// present and structurally equal in target. Used by Search/Count across all
// four entity stores for metadata/values subset filtering (spec §4.4).
func metadataSubsetMatches(subset, target map[string]any) bool {
	for k, v := range subset {
		tv, ok := target[k]
		if !ok || !deepEqualJSON(v, tv) {
			return false
		}
	}
	return true
}

func deepEqualJSON(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !deepEqualJSON(v, bv[k]) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqualJSON(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
