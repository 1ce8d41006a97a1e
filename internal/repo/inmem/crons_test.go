package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

func TestCronsCreateConflict(t *testing.T) {
	s := NewCrons()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Cron{ID: "c1", OwnerID: "u1", AssistantID: "a1", Schedule: "@every 1m"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Cron{ID: "c1", OwnerID: "u1", AssistantID: "a1", Schedule: "@every 1m"})
	require.ErrorIs(t, err, repo.ErrConflict)
}

func TestCronsSetNextRunDate(t *testing.T) {
	s := NewCrons()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Cron{ID: "c1", OwnerID: "u1"})
	require.NoError(t, err)

	next := time.Now().Add(time.Hour)
	require.NoError(t, s.SetNextRunDate(ctx, "c1", &next))

	got, err := s.Get(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NotNil(t, got.NextRunDate)
	require.WithinDuration(t, next, *got.NextRunDate, time.Second)
}

func TestCronsListDue(t *testing.T) {
	s := NewCrons()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	_, err := s.Create(ctx, model.Cron{ID: "due", OwnerID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.SetNextRunDate(ctx, "due", &past))

	_, err = s.Create(ctx, model.Cron{ID: "not-due", OwnerID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.SetNextRunDate(ctx, "not-due", &future))

	_, err = s.Create(ctx, model.Cron{ID: "no-schedule", OwnerID: "u1"})
	require.NoError(t, err)

	due, err := s.ListDue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "due", due[0].ID)
}

func TestCronsDeleteScopedToOwner(t *testing.T) {
	s := NewCrons()
	ctx := context.Background()
	_, err := s.Create(ctx, model.Cron{ID: "c1", OwnerID: "u1"})
	require.NoError(t, err)

	require.ErrorIs(t, s.Delete(ctx, "u2", "c1"), repo.ErrNotFound)
	require.NoError(t, s.Delete(ctx, "u1", "c1"))
}
