package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

func TestAssistantsCreateAndGet(t *testing.T) {
	s := NewAssistants()
	ctx := context.Background()
	created, err := s.Create(ctx, model.Assistant{ID: "a1", OwnerID: "u1", Name: "bot"}, repo.IfExistsRaise)
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)
	require.False(t, created.CreatedAt.IsZero())

	got, err := s.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Equal(t, "bot", got.Name)
}

func TestAssistantsCreateConflict(t *testing.T) {
	s := NewAssistants()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Assistant{ID: "a1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)

	_, err = s.Create(ctx, model.Assistant{ID: "a1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.ErrorIs(t, err, repo.ErrConflict)

	existing, err := s.Create(ctx, model.Assistant{ID: "a1", OwnerID: "u1"}, repo.IfExistsDoNothing)
	require.NoError(t, err)
	require.Equal(t, "a1", existing.ID)
}

func TestAssistantsGetScopedToOwner(t *testing.T) {
	s := NewAssistants()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Assistant{ID: "a1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)

	_, err = s.Get(ctx, "u2", "a1")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAssistantsSystemOwnedVisibleToEveryone(t *testing.T) {
	s := NewAssistants()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Assistant{ID: "a1", OwnerID: model.SystemOwner}, repo.IfExistsRaise)
	require.NoError(t, err)

	got, err := s.Get(ctx, "any-user", "a1")
	require.NoError(t, err)
	require.Equal(t, "a1", got.ID)
}

func TestAssistantsPatchIncrementsVersion(t *testing.T) {
	s := NewAssistants()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Assistant{ID: "a1", OwnerID: "u1", Name: "old"}, repo.IfExistsRaise)
	require.NoError(t, err)

	newName := "new"
	patched, err := s.Patch(ctx, "u1", "a1", repo.AssistantPatch{Name: &newName})
	require.NoError(t, err)
	require.Equal(t, "new", patched.Name)
	require.Equal(t, 2, patched.Version)

	_, err = s.Patch(ctx, "u1", "a1", repo.AssistantPatch{Name: &newName})
	require.NoError(t, err)
	again, err := s.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Equal(t, 3, again.Version)
}

func TestAssistantsPatchWrongOwnerNotFound(t *testing.T) {
	s := NewAssistants()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Assistant{ID: "a1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)

	newName := "hijack"
	_, err = s.Patch(ctx, "u2", "a1", repo.AssistantPatch{Name: &newName})
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAssistantsDelete(t *testing.T) {
	s := NewAssistants()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Assistant{ID: "a1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "u1", "a1"))
	_, err = s.Get(ctx, "u1", "a1")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAssistantsSearchFiltersAndPaginates(t *testing.T) {
	s := NewAssistants()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		_, err := s.Create(ctx, model.Assistant{ID: id, OwnerID: "u1", GraphID: "agent"}, repo.IfExistsRaise)
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, model.Assistant{ID: "other", OwnerID: "u2", GraphID: "agent"}, repo.IfExistsRaise)
	require.NoError(t, err)

	results, err := s.Search(ctx, repo.Filter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	count, err := s.Count(ctx, repo.Filter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 3, count)

	page, err := s.Search(ctx, repo.Filter{OwnerID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
}
