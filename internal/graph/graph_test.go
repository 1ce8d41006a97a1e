package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/store"
)

func stubFactory(tag string) Factory {
	return func(context.Context, map[string]any, checkpoint.Checkpointer, store.Store) (Graph, error) {
		return nil, errors.New(tag)
	}
}

func TestRegistryResolveEager(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("agent", stubFactory("agent-factory"))

	f, err := r.Resolve("agent")
	require.NoError(t, err)
	_, invokeErr := f(context.Background(), nil, nil, nil)
	require.EqualError(t, invokeErr, "agent-factory")
}

func TestRegistryResolveEmptyIDDefaultsToAgent(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(DefaultGraphID, stubFactory("default"))

	f, err := r.Resolve("")
	require.NoError(t, err)
	_, invokeErr := f(context.Background(), nil, nil, nil)
	require.EqualError(t, invokeErr, "default")
}

func TestRegistryResolveLazyBuildsOnceAndCaches(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	r.RegisterLazy("slow", func() (Factory, error) {
		calls++
		return stubFactory("slow-factory"), nil
	})

	_, err := r.Resolve("slow")
	require.NoError(t, err)
	_, err = r.Resolve("slow")
	require.NoError(t, err)
	require.Equal(t, 1, calls, "lazy loader should only run once")
}

func TestRegistryResolveLazyError(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterLazy("broken", func() (Factory, error) {
		return nil, errors.New("boom")
	})
	_, err := r.Resolve("broken")
	require.EqualError(t, err, "boom")
}

func TestRegistryResolveUnknownFallsBackToDefaultAndWarns(t *testing.T) {
	r := NewRegistry(nil)
	var warned string
	r.logWarn = func(id string) { warned = id }
	r.Register(DefaultGraphID, stubFactory("default"))

	f, err := r.Resolve("unknown-graph")
	require.NoError(t, err)
	require.Equal(t, "unknown-graph", warned)
	_, invokeErr := f(context.Background(), nil, nil, nil)
	require.EqualError(t, invokeErr, "default")
}

func TestRegistryResolveNoDefaultRegistered(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve(DefaultGraphID)
	require.ErrorIs(t, err, ErrNoDefaultGraph)
}

func TestRegistryAvailableGraphIDs(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("agent", stubFactory("a"))
	r.RegisterLazy("lazy-one", func() (Factory, error) { return stubFactory("b"), nil })

	ids := r.AvailableGraphIDs()
	require.ElementsMatch(t, []string{"agent", "lazy-one"}, ids)
}
