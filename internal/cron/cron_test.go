package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo/inmem"
)

func TestInputFromPayload(t *testing.T) {
	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "hello"},
			"not-a-message",
		},
	}
	input := inputFromPayload(payload)
	require.Len(t, input.Messages, 1)
	require.Equal(t, "user", input.Messages[0].Role)
	require.Equal(t, "hello", input.Messages[0].Content)
}

func TestInputFromPayloadEmpty(t *testing.T) {
	input := inputFromPayload(nil)
	require.Empty(t, input.Messages)
}

func TestConfigurableFromPayload(t *testing.T) {
	payload := map[string]any{"configurable": map[string]any{"model": "anthropic:claude"}}
	cfg := configurableFromPayload(payload)
	require.Equal(t, "anthropic:claude", cfg["model"])

	require.Nil(t, configurableFromPayload(map[string]any{}))
}

func TestEngineAddAndRemove(t *testing.T) {
	crons := inmem.NewCrons()
	e := NewEngine(crons, nil, nil)

	c := model.Cron{ID: "c1", OwnerID: "u1", Schedule: "@every 1h"}
	require.NoError(t, e.Add(c))
	require.Contains(t, e.entries, "c1")

	e.Remove("c1")
	require.NotContains(t, e.entries, "c1")

	// Removing an unknown ID is a no-op, not an error.
	e.Remove("does-not-exist")
}

func TestEngineAddInvalidSchedule(t *testing.T) {
	crons := inmem.NewCrons()
	e := NewEngine(crons, nil, nil)
	err := e.Add(model.Cron{ID: "bad", Schedule: "not a schedule"})
	require.Error(t, err)
}

func TestEngineStartSchedulesPersistedCronsWithoutFiring(t *testing.T) {
	ctx := context.Background()
	crons := inmem.NewCrons()
	_, err := crons.Create(ctx, model.Cron{ID: "c1", OwnerID: "u1", Schedule: "@every 1h"})
	require.NoError(t, err)

	e := NewEngine(crons, nil, nil)
	require.NoError(t, e.Start(ctx))
	defer e.Stop(context.Background())

	require.Contains(t, e.entries, "c1")
}

func TestEngineNextRunDateUnknownEntry(t *testing.T) {
	crons := inmem.NewCrons()
	e := NewEngine(crons, nil, nil)
	require.Nil(t, e.nextRunDate("unknown"))
}

func TestEngineStopIsIdempotentWhenNeverStarted(t *testing.T) {
	crons := inmem.NewCrons()
	e := NewEngine(crons, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e.Stop(ctx)
}
