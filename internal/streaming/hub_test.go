package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Frame, timeout time.Duration) []Frame {
	t.Helper()
	var frames []Frame
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-time.After(timeout):
			return frames
		}
	}
}

func TestHubStartGetEvict(t *testing.T) {
	h := NewHub()
	require.Nil(t, h.Get("missing"))

	run := h.Start("r1")
	require.NotNil(t, run)
	require.Same(t, run, h.Get("r1"))

	h.Evict("r1")
	require.Nil(t, h.Get("r1"))
}

func TestRunSubscribeReplaysBufferedFrames(t *testing.T) {
	run := newRun()
	run.Publish(MetadataFrame("r1", 0))
	run.Publish(ValuesFrame(map[string]any{"n": 1}))

	ch, cancel := run.Subscribe(context.Background())
	defer cancel()

	frames := drain(t, ch, 50*time.Millisecond)
	require.Len(t, frames, 2)
	require.Equal(t, "metadata", frames[0].Event)
	require.Equal(t, "values", frames[1].Event)
}

func TestRunPublishFansOutToAllSubscribers(t *testing.T) {
	run := newRun()
	ch1, cancel1 := run.Subscribe(context.Background())
	defer cancel1()
	ch2, cancel2 := run.Subscribe(context.Background())
	defer cancel2()

	run.Publish(EndFrame("r1", "chk", "success"))

	f1 := <-ch1
	f2 := <-ch2
	require.Equal(t, "end", f1.Event)
	require.Equal(t, "end", f2.Event)
}

func TestRunFinishClosesSubscribersAndCachesFinalFrames(t *testing.T) {
	run := newRun()
	run.Publish(MetadataFrame("r1", 0))
	ch, cancel := run.Subscribe(context.Background())
	defer cancel()

	run.Finish()

	frames := drain(t, ch, 50*time.Millisecond)
	require.Len(t, frames, 1, "the pre-finish subscriber should see the buffered frame before the channel closes")

	// A subscriber joining after Finish replays the cached final frames
	// on an already-closed channel instead of blocking forever.
	late, lateCancel := run.Subscribe(context.Background())
	defer lateCancel()
	lateFrames := drain(t, late, 50*time.Millisecond)
	require.Len(t, lateFrames, 1)
}

func TestRunPublishAfterFinishIsNoop(t *testing.T) {
	run := newRun()
	run.Finish()
	run.Publish(MetadataFrame("r1", 0))

	ch, cancel := run.Subscribe(context.Background())
	defer cancel()
	frames := drain(t, ch, 20*time.Millisecond)
	require.Empty(t, frames)
}

func TestRunSubscribeCancelStopsDelivery(t *testing.T) {
	run := newRun()
	ctx, cancelCtx := context.WithCancel(context.Background())
	ch, cancel := run.Subscribe(ctx)
	defer cancel()
	cancelCtx()

	// Give the context-cancellation goroutine a moment to close the channel.
	time.Sleep(20 * time.Millisecond)
	_, open := <-ch
	require.False(t, open)
}
