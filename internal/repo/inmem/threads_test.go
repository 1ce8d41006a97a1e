package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

func TestThreadsCreateDefaultsStatusIdle(t *testing.T) {
	s := NewThreads()
	created, err := s.Create(context.Background(), model.Thread{ID: "t1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)
	require.Equal(t, model.ThreadStatusIdle, created.Status)
}

func TestThreadsCreateConflict(t *testing.T) {
	s := NewThreads()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Thread{ID: "t1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Thread{ID: "t1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.ErrorIs(t, err, repo.ErrConflict)
}

func TestThreadsGetScopedToOwner(t *testing.T) {
	s := NewThreads()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Thread{ID: "t1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)

	_, err = s.Get(ctx, "u2", "t1")
	require.ErrorIs(t, err, repo.ErrNotFound)

	got, err := s.Get(ctx, "u1", "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", got.ID)
}

func TestThreadsGetStateAndHistoryAreUnscoped(t *testing.T) {
	s := NewThreads()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Thread{ID: "t1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)

	require.NoError(t, s.AppendStateSnapshot(ctx, model.ThreadStateSnapshot{
		ThreadID: "t1", CheckpointID: "c1", Values: map[string]any{"n": 1},
	}))
	require.NoError(t, s.AppendStateSnapshot(ctx, model.ThreadStateSnapshot{
		ThreadID: "t1", CheckpointID: "c2", Values: map[string]any{"n": 2},
	}))

	// No owner passed at all: an unrelated caller can still read state/history.
	state, err := s.GetState(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "c2", state.CheckpointID)

	thread, err := s.Get(ctx, "u1", "t1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"n": 2}, thread.Values, "AppendStateSnapshot syncs Thread.Values")

	history, err := s.GetHistory(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "c2", history[0].CheckpointID, "newest first")
	require.Equal(t, "c1", history[1].CheckpointID)
}

func TestThreadsDeleteClearsHistory(t *testing.T) {
	s := NewThreads()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Thread{ID: "t1", OwnerID: "u1"}, repo.IfExistsRaise)
	require.NoError(t, err)
	require.NoError(t, s.AppendStateSnapshot(ctx, model.ThreadStateSnapshot{ThreadID: "t1", CheckpointID: "c1"}))

	require.NoError(t, s.Delete(ctx, "u1", "t1"))
	_, err = s.GetState(ctx, "t1")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestThreadsSearchByStatus(t *testing.T) {
	s := NewThreads()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Thread{ID: "t1", OwnerID: "u1", Status: model.ThreadStatusBusy}, repo.IfExistsRaise)
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Thread{ID: "t2", OwnerID: "u1", Status: model.ThreadStatusIdle}, repo.IfExistsRaise)
	require.NoError(t, err)

	busy, err := s.Search(ctx, repo.Filter{OwnerID: "u1", Status: string(model.ThreadStatusBusy)})
	require.NoError(t, err)
	require.Len(t, busy, 1)
	require.Equal(t, "t1", busy[0].ID)
}
