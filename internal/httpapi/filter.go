package httpapi

import "github.com/flowmind/agentrt/internal/repo"

// filterBody is the shared shape of every entity's POST /search and
// POST /count request body (spec §6.1).
type filterBody struct {
	GraphID   string         `json:"graph_id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata"`
	Values    map[string]any `json:"values"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
	SortBy    string         `json:"sort_by"`
	SortOrder string         `json:"sort_order"`
}

const defaultSearchLimit = 20

// toFilter converts the request body into a repo.Filter scoped to owner.
// An unset limit defaults to 20, matching the teacher's repo-layer
// listing conventions; sort_order defaults to descending by CreatedAt,
// the natural "most recent first" order for every entity this server
// exposes.
func (b filterBody) toFilter(owner string) repo.Filter {
	limit := b.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	sortOrder := repo.SortDesc
	if b.SortOrder == string(repo.SortAsc) {
		sortOrder = repo.SortAsc
	}
	return repo.Filter{
		OwnerID:   owner,
		GraphID:   b.GraphID,
		Name:      b.Name,
		Status:    b.Status,
		Metadata:  b.Metadata,
		Values:    b.Values,
		Limit:     limit,
		Offset:    b.Offset,
		SortBy:    b.SortBy,
		SortOrder: sortOrder,
	}
}
