package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInmemPutGet(t *testing.T) {
	s := NewInmem()
	ctx := context.Background()
	ns := Namespace{"users", "1"}
	require.NoError(t, s.Put(ctx, "owner-a", ns, "k", map[string]any{"v": 1}))

	item, err := s.Get(ctx, "owner-a", ns, "k")
	require.NoError(t, err)
	require.Equal(t, "k", item.Key)
	require.False(t, item.CreatedAt.IsZero())
	require.Equal(t, item.CreatedAt, item.UpdatedAt)
}

func TestInmemPutUpdatePreservesCreatedAt(t *testing.T) {
	s := NewInmem()
	ctx := context.Background()
	ns := Namespace{"a"}
	require.NoError(t, s.Put(ctx, "owner-a", ns, "k", 1))
	first, err := s.Get(ctx, "owner-a", ns, "k")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "owner-a", ns, "k", 2))
	second, err := s.Get(ctx, "owner-a", ns, "k")
	require.NoError(t, err)

	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, 2, second.Value)
}

func TestInmemGetMissingReturnsNotFound(t *testing.T) {
	s := NewInmem()
	_, err := s.Get(context.Background(), "owner-a", Namespace{"a"}, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInmemDelete(t *testing.T) {
	s := NewInmem()
	ctx := context.Background()
	ns := Namespace{"a"}
	require.NoError(t, s.Put(ctx, "owner-a", ns, "k", 1))
	require.NoError(t, s.Delete(ctx, "owner-a", ns, "k"))
	_, err := s.Get(ctx, "owner-a", ns, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Delete(ctx, "owner-a", ns, "k"), ErrNotFound)
}

func TestInmemOwnerIsolation(t *testing.T) {
	s := NewInmem()
	ctx := context.Background()
	ns := Namespace{"a"}
	require.NoError(t, s.Put(ctx, "owner-a", ns, "k", 1))
	_, err := s.Get(ctx, "owner-b", ns, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInmemSearchByPrefixAndPaging(t *testing.T) {
	s := NewInmem()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "owner-a", Namespace{"mem", "1"}, "a", 1))
	require.NoError(t, s.Put(ctx, "owner-a", Namespace{"mem", "1"}, "b", 2))
	require.NoError(t, s.Put(ctx, "owner-a", Namespace{"mem", "2"}, "c", 3))
	require.NoError(t, s.Put(ctx, "owner-a", Namespace{"other"}, "d", 4))

	result, err := s.Search(ctx, "owner-a", Namespace{"mem"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	paged, err := s.Search(ctx, "owner-a", Namespace{"mem"}, 1, 1)
	require.NoError(t, err)
	require.Len(t, paged.Items, 1)
}

func TestInmemListNamespaces(t *testing.T) {
	s := NewInmem()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "owner-a", Namespace{"mem", "1"}, "a", 1))
	require.NoError(t, s.Put(ctx, "owner-a", Namespace{"mem", "1"}, "b", 2))
	require.NoError(t, s.Put(ctx, "owner-a", Namespace{"other"}, "c", 3))

	namespaces, err := s.ListNamespaces(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, namespaces, 2)
}
