package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

func TestRunsCreateConflict(t *testing.T) {
	s := NewRuns()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Run{ID: "r1", OwnerID: "u1", ThreadID: "t1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Run{ID: "r1", OwnerID: "u1", ThreadID: "t1"})
	require.ErrorIs(t, err, repo.ErrConflict)
}

func TestRunsGetScopedToOwner(t *testing.T) {
	s := NewRuns()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Run{ID: "r1", OwnerID: "u1", ThreadID: "t1"})
	require.NoError(t, err)

	_, err = s.Get(ctx, "u2", "r1")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRunsSetStatus(t *testing.T) {
	s := NewRuns()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Run{ID: "r1", OwnerID: "u1", ThreadID: "t1", Status: model.RunStatusPending})
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, "r1", model.RunStatusRunning, model.RunPhasePlanning))
	got, err := s.Get(ctx, "u1", "r1")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusRunning, got.Status)
	require.Equal(t, model.RunPhasePlanning, got.Phase)

	require.NoError(t, s.SetStatus(ctx, "r1", model.RunStatusSuccess, ""))
	got, err = s.Get(ctx, "u1", "r1")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusSuccess, got.Status)
	require.Equal(t, model.RunPhasePlanning, got.Phase, "empty phase leaves prior phase untouched")
}

func TestRunsListByThreadScopedAndOrdered(t *testing.T) {
	s := NewRuns()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Run{ID: "r1", OwnerID: "u1", ThreadID: "t1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Run{ID: "r2", OwnerID: "u1", ThreadID: "t1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Run{ID: "r3", OwnerID: "u2", ThreadID: "t1"})
	require.NoError(t, err)

	runs, err := s.ListByThread(ctx, "u1", "t1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "r2", runs[0].ID, "newest first")
}

func TestRunsGetActiveRunSkipsTerminal(t *testing.T) {
	s := NewRuns()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Run{ID: "r1", OwnerID: "u1", ThreadID: "t1", Status: model.RunStatusSuccess})
	require.NoError(t, err)

	_, err = s.GetActiveRun(ctx, "u1", "t1")
	require.ErrorIs(t, err, repo.ErrNotFound)

	_, err = s.Create(ctx, model.Run{ID: "r2", OwnerID: "u1", ThreadID: "t1", Status: model.RunStatusRunning})
	require.NoError(t, err)

	active, err := s.GetActiveRun(ctx, "u1", "t1")
	require.NoError(t, err)
	require.Equal(t, "r2", active.ID)
}
