package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
	"github.com/flowmind/agentrt/internal/repo/inmem"
	"github.com/flowmind/agentrt/internal/store"
	"github.com/flowmind/agentrt/internal/streaming"
)

func newTestEngine(t *testing.T) (*Engine, *inmem.Assistants, *inmem.Threads, *inmem.Runs) {
	t.Helper()
	assistants := inmem.NewAssistants()
	threads := inmem.NewThreads()
	runs := inmem.NewRuns()
	registry := graph.NewRegistry(nil)
	eng := NewEngine(Engine{
		Assistants:  assistants,
		Threads:     threads,
		Runs:        runs,
		Checkpoints: checkpoint.NewInmemFactory(),
		Store:       store.NewInmem(),
		Graphs:      registry,
		Hub:         streaming.NewHub(),
	})
	return eng, assistants, threads, runs
}

func seedAssistantAndThread(t *testing.T, assistants *inmem.Assistants, threads *inmem.Threads, graphID string) {
	t.Helper()
	ctx := context.Background()
	_, err := assistants.Create(ctx, model.Assistant{ID: "a1", GraphID: graphID, OwnerID: "owner-1"}, repo.IfExistsRaise)
	require.NoError(t, err)
	_, err = threads.Create(ctx, model.Thread{ID: "t1", OwnerID: "owner-1"}, repo.IfExistsRaise)
	require.NoError(t, err)
}

func TestExecuteWaitHappyPath(t *testing.T) {
	eng, assistants, threads, runs := newTestEngine(t)
	seedAssistantAndThread(t, assistants, threads, "agent")
	eng.Graphs.Register("agent", stubFactory(&stubGraph{reply: "hello"}, nil))

	snap, err := eng.ExecuteWait(context.Background(), SubmitRequest{
		OwnerID:     "owner-1",
		ThreadID:    "t1",
		AssistantID: "a1",
		Input:       graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi"}}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", snap.Values["reply"])
	require.NotEmpty(t, snap.CheckpointID)

	run, err := runs.ListByThread(context.Background(), "owner-1", "t1")
	require.NoError(t, err)
	require.Len(t, run, 1)
	require.Equal(t, model.RunStatusSuccess, run[0].Status)

	thread, err := threads.Get(context.Background(), "owner-1", "t1")
	require.NoError(t, err)
	require.Equal(t, model.ThreadStatusIdle, thread.Status)
}

func TestExecuteWaitUnknownAssistantFails(t *testing.T) {
	eng, assistants, threads, _ := newTestEngine(t)
	seedAssistantAndThread(t, assistants, threads, "agent")

	_, err := eng.ExecuteWait(context.Background(), SubmitRequest{
		OwnerID:     "owner-1",
		ThreadID:    "t1",
		AssistantID: "missing",
		Input:       graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi"}}},
	})
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestExecuteWaitGraphErrorSetsRunStatusError(t *testing.T) {
	eng, assistants, threads, runs := newTestEngine(t)
	seedAssistantAndThread(t, assistants, threads, "agent")
	eng.Graphs.Register("agent", stubFactory(&stubGraph{invokeErr: errBoom}, nil))

	_, err := eng.ExecuteWait(context.Background(), SubmitRequest{
		OwnerID:     "owner-1",
		ThreadID:    "t1",
		AssistantID: "a1",
		Input:       graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi"}}},
	})
	require.Error(t, err)

	run, err := runs.ListByThread(context.Background(), "owner-1", "t1")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusError, run[0].Status)

	thread, err := threads.Get(context.Background(), "owner-1", "t1")
	require.NoError(t, err)
	require.Equal(t, model.ThreadStatusIdle, thread.Status)
}

func TestExecuteWaitRejectsSecondRunWhileOneActive(t *testing.T) {
	eng, assistants, threads, _ := newTestEngine(t)
	seedAssistantAndThread(t, assistants, threads, "agent")
	block := make(chan struct{})
	eng.Graphs.Register("agent", stubFactory(&stubGraph{reply: "hello", block: block}, nil))

	done := make(chan error, 1)
	go func() {
		_, err := eng.ExecuteWait(context.Background(), SubmitRequest{
			OwnerID: "owner-1", ThreadID: "t1", AssistantID: "a1",
			Input: graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi"}}},
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, err := eng.Runs.GetActiveRun(context.Background(), "owner-1", "t1")
		return err == nil
	}, time.Second, time.Millisecond)

	_, err := eng.ExecuteWait(context.Background(), SubmitRequest{
		OwnerID: "owner-1", ThreadID: "t1", AssistantID: "a1",
		MultitaskStrategy: model.MultitaskReject,
		Input:             graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi again"}}},
	})
	require.ErrorIs(t, err, ErrThreadBusy)

	close(block)
	require.NoError(t, <-done)
}

func TestExecuteWaitInterruptCancelsActiveRun(t *testing.T) {
	eng, assistants, threads, runs := newTestEngine(t)
	seedAssistantAndThread(t, assistants, threads, "agent")
	block := make(chan struct{})
	eng.Graphs.Register("agent", stubFactory(&stubGraph{reply: "first", block: block}, nil))
	eng.InterruptWait = 200 * time.Millisecond

	firstDone := make(chan error, 1)
	go func() {
		_, err := eng.ExecuteWait(context.Background(), SubmitRequest{
			OwnerID: "owner-1", ThreadID: "t1", AssistantID: "a1",
			Input: graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi"}}},
		})
		firstDone <- err
	}()

	require.Eventually(t, func() bool {
		_, err := eng.Runs.GetActiveRun(context.Background(), "owner-1", "t1")
		return err == nil
	}, time.Second, time.Millisecond)

	eng.Graphs.Register("agent", stubFactory(&stubGraph{reply: "second"}, nil))
	snap, err := eng.ExecuteWait(context.Background(), SubmitRequest{
		OwnerID: "owner-1", ThreadID: "t1", AssistantID: "a1",
		MultitaskStrategy: model.MultitaskInterrupt,
		Input:             graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi again"}}},
	})
	require.NoError(t, err)
	require.Equal(t, "second", snap.Values["reply"])

	firstErr := <-firstDone
	require.Error(t, firstErr, "the interrupted first run should observe context cancellation")

	all, err := runs.ListByThread(context.Background(), "owner-1", "t1")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestExecuteStreamEmitsMetadataValuesAndEnd(t *testing.T) {
	eng, assistants, threads, _ := newTestEngine(t)
	seedAssistantAndThread(t, assistants, threads, "agent")
	eng.Graphs.Register("agent", stubFactory(&stubGraph{
		reply: "hello",
		events: []graph.Event{
			graph.NewMessagesEvent(graph.MessageDelta{Role: "assistant", Content: "hel"}, graph.MessageMetadata{}),
			graph.NewMessagesEvent(graph.MessageDelta{Content: "lo"}, graph.MessageMetadata{}),
		},
	}, nil))

	runID, frames, err := eng.ExecuteStream(context.Background(), SubmitRequest{
		OwnerID: "owner-1", ThreadID: "t1", AssistantID: "a1",
		Input: graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi"}}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	var events []string
	timeout := time.After(2 * time.Second)
collect:
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				break collect
			}
			events = append(events, f.Event)
			if f.Event == "end" {
				break collect
			}
		case <-timeout:
			t.Fatal("timed out waiting for stream to finish")
		}
	}

	require.Equal(t, "metadata", events[0])
	require.Equal(t, "values", events[1])
	require.Contains(t, events, "messages")
	require.Equal(t, "end", events[len(events)-1])
	require.Equal(t, "values", events[len(events)-2], "a final merged values frame precedes end")
}

func TestExecuteStreamErrorEventYieldsErrorFrame(t *testing.T) {
	eng, assistants, threads, runs := newTestEngine(t)
	seedAssistantAndThread(t, assistants, threads, "agent")
	eng.Graphs.Register("agent", stubFactory(&stubGraph{
		reply:  "unused",
		events: []graph.Event{graph.NewErrorEvent(errBoom)},
	}, nil))

	_, frames, err := eng.ExecuteStream(context.Background(), SubmitRequest{
		OwnerID: "owner-1", ThreadID: "t1", AssistantID: "a1",
		Input: graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi"}}},
	})
	require.NoError(t, err)

	var sawError bool
	timeout := time.After(2 * time.Second)
collect:
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				break collect
			}
			if f.Event == "error" {
				sawError = true
			}
			if f.Event == "end" {
				break collect
			}
		case <-timeout:
			t.Fatal("timed out waiting for stream to finish")
		}
	}
	require.True(t, sawError)

	all, err := runs.ListByThread(context.Background(), "owner-1", "t1")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusError, all[0].Status)
}

func TestCancelInterruptsActiveRun(t *testing.T) {
	eng, assistants, threads, _ := newTestEngine(t)
	seedAssistantAndThread(t, assistants, threads, "agent")
	block := make(chan struct{})
	eng.Graphs.Register("agent", stubFactory(&stubGraph{reply: "hello", block: block}, nil))

	done := make(chan error, 1)
	go func() {
		_, err := eng.ExecuteWait(context.Background(), SubmitRequest{
			OwnerID: "owner-1", ThreadID: "t1", AssistantID: "a1",
			Input: graph.Input{Messages: []graph.Message{{Role: "user", Content: "hi"}}},
		})
		done <- err
	}()

	var runID string
	require.Eventually(t, func() bool {
		active, err := eng.Runs.GetActiveRun(context.Background(), "owner-1", "t1")
		if err != nil {
			return false
		}
		runID = active.ID
		return true
	}, time.Second, time.Millisecond)

	require.True(t, eng.Cancel(runID))
	require.Error(t, <-done)

	require.False(t, eng.Cancel("never-existed"))
}

func TestCancelUnknownRunReturnsFalse(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	require.False(t, eng.Cancel("no-such-run"))
}

var errBoom = boomErr{}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }
