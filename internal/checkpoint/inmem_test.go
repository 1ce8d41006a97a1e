package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInmemCheckpointerGetStateNotFound(t *testing.T) {
	f := NewInmemFactory()
	cp, err := f.Acquire(context.Background())
	require.NoError(t, err)
	_, err = cp.GetState(context.Background(), "thread-1", "assistant:a1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInmemCheckpointerPutAndGetStateReturnsLatest(t *testing.T) {
	f := NewInmemFactory()
	cp, err := f.Acquire(context.Background())
	require.NoError(t, err)
	ctx := context.Background()
	ns := "assistant:a1"

	require.NoError(t, cp.Put(ctx, Snapshot{ThreadID: "t1", CheckpointNS: ns, Values: map[string]any{"n": 1}}))
	require.NoError(t, cp.Put(ctx, Snapshot{ThreadID: "t1", CheckpointNS: ns, Values: map[string]any{"n": 2}}))

	latest, err := cp.GetState(ctx, "t1", ns)
	require.NoError(t, err)
	require.Equal(t, 2, latest.Values["n"])
	require.NotEmpty(t, latest.CheckpointID)
}

func TestInmemCheckpointerGetHistoryDescendingAndLimit(t *testing.T) {
	f := NewInmemFactory()
	cp, err := f.Acquire(context.Background())
	require.NoError(t, err)
	ctx := context.Background()
	ns := "assistant:a1"

	for i := 0; i < 5; i++ {
		require.NoError(t, cp.Put(ctx, Snapshot{ThreadID: "t1", CheckpointNS: ns, Values: map[string]any{"n": i}}))
	}

	history, err := cp.GetHistory(ctx, "t1", ns, ClampHistoryLimit(3), "")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, 4, history[0].Values["n"], "newest snapshot first")
	require.Equal(t, 2, history[2].Values["n"])
}

func TestInmemCheckpointerGetHistoryBefore(t *testing.T) {
	f := NewInmemFactory()
	cp, err := f.Acquire(context.Background())
	require.NoError(t, err)
	ctx := context.Background()
	ns := "assistant:a1"

	var ids []string
	for i := 0; i < 4; i++ {
		require.NoError(t, cp.Put(ctx, Snapshot{ThreadID: "t1", CheckpointNS: ns, Values: map[string]any{"n": i}}))
	}
	full, err := cp.GetHistory(ctx, "t1", ns, 100, "")
	require.NoError(t, err)
	require.Len(t, full, 4)
	for _, s := range full {
		ids = append(ids, s.CheckpointID)
	}

	// before the second-newest snapshot should return only the two older ones.
	before := ids[1]
	older, err := cp.GetHistory(ctx, "t1", ns, 100, before)
	require.NoError(t, err)
	require.Len(t, older, 2)
	for _, s := range older {
		require.NotEqual(t, before, s.CheckpointID)
	}
}

func TestInmemCheckpointerDelete(t *testing.T) {
	f := NewInmemFactory()
	cp, err := f.Acquire(context.Background())
	require.NoError(t, err)
	ctx := context.Background()
	ns := "assistant:a1"

	require.NoError(t, cp.Put(ctx, Snapshot{ThreadID: "t1", CheckpointNS: ns}))
	require.NoError(t, cp.Delete(ctx, "t1", ns))
	_, err = cp.GetState(ctx, "t1", ns)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInmemCheckpointerIsolatedByNamespace(t *testing.T) {
	f := NewInmemFactory()
	cp, err := f.Acquire(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cp.Put(ctx, Snapshot{ThreadID: "t1", CheckpointNS: "assistant:a1", Values: map[string]any{"n": 1}}))
	_, err = cp.GetState(ctx, "t1", "assistant:a2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInmemFactoryAcquisitionsShareStore(t *testing.T) {
	f := NewInmemFactory()
	ctx := context.Background()
	first, err := f.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, Snapshot{ThreadID: "t1", CheckpointNS: "assistant:a1", Values: map[string]any{"n": 1}}))

	second, err := f.Acquire(ctx)
	require.NoError(t, err)
	snap, err := second.GetState(ctx, "t1", "assistant:a1")
	require.NoError(t, err)
	require.Equal(t, 1, snap.Values["n"])
}
