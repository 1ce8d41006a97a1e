package httpapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/repo"
)

func TestFilterBodyToFilterDefaults(t *testing.T) {
	f := filterBody{}.toFilter("owner-1")
	require.Equal(t, "owner-1", f.OwnerID)
	require.Equal(t, defaultSearchLimit, f.Limit)
	require.Equal(t, repo.SortDesc, f.SortOrder)
}

func TestFilterBodyToFilterExplicitValues(t *testing.T) {
	body := filterBody{
		GraphID:   "agent",
		Name:      "bot",
		Status:    "idle",
		Limit:     5,
		Offset:    10,
		SortBy:    "name",
		SortOrder: "asc",
	}
	f := body.toFilter("owner-1")
	require.Equal(t, 5, f.Limit)
	require.Equal(t, 10, f.Offset)
	require.Equal(t, "name", f.SortBy)
	require.Equal(t, repo.SortAsc, f.SortOrder)
}

func TestFilterBodyToFilterNegativeLimitDefaults(t *testing.T) {
	f := filterBody{Limit: -1}.toFilter("owner-1")
	require.Equal(t, defaultSearchLimit, f.Limit)
}
