package streaming

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameEncodeWireFormat(t *testing.T) {
	f := ValuesFrame(map[string]any{"n": 1})
	encoded, err := f.Encode()
	require.NoError(t, err)
	s := string(encoded)
	require.True(t, strings.HasPrefix(s, "event: values\n"))
	require.Contains(t, s, `data: {"values":{"n":1}}`)
	require.True(t, strings.HasSuffix(s, "\n\n"))
}

func TestMessagesFrameNamespaceDelimiter(t *testing.T) {
	f := MessagesFrame("", "hello", nil)
	require.Equal(t, "messages", f.Event)

	nested := MessagesFrame("sub-agent", "hello", nil)
	require.Equal(t, "messages|sub-agent", nested.Event)

	data, ok := nested.Data.([]any)
	require.True(t, ok)
	require.Len(t, data, 2, "messages frames are always a two-element tuple")
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec.Header())
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestEndFrameFields(t *testing.T) {
	f := EndFrame("run-1", "chk-1", "success")
	data, ok := f.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "run-1", data["run_id"])
	require.Equal(t, "chk-1", data["checkpoint_id"])
	require.Equal(t, "success", data["status"])
}
