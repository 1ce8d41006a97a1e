package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo/inmem"
)

func newTestServer() *Server {
	return &Server{
		Assistants: inmem.NewAssistants(),
		Threads:    inmem.NewThreads(),
		Runs:       inmem.NewRuns(),
		Crons:      inmem.NewCrons(),
	}
}

func TestCreateAndGetThread(t *testing.T) {
	s := newTestServer()
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodPost, "/threads/", strings.NewReader(`{"thread_id":"t1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created model.Thread
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "t1", created.ID)
	require.Equal(t, model.ThreadStatusIdle, created.Status)

	getReq := httptest.NewRequest(http.MethodGet, "/threads/t1", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestGetThreadNotFound(t *testing.T) {
	s := newTestServer()
	router := s.NewRouter()
	req := httptest.NewRequest(http.MethodGet, "/threads/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThreadHistoryLimitZeroIsRejected(t *testing.T) {
	s := newTestServer()
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/threads/t1/history?limit=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestThreadHistoryPostBodyLimitZeroDefaults(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()
	require.NoError(t, s.Threads.AppendStateSnapshot(ctx, model.ThreadStateSnapshot{
		ThreadID: "t1", CheckpointID: "c1", Values: map[string]any{"n": 1},
	}))
	router := s.NewRouter()

	// An explicit body limit of 0 means "unset" and falls back to the
	// default, unlike the query-string case which rejects it outright.
	req := httptest.NewRequest(http.MethodPost, "/threads/t1/history", strings.NewReader(`{"limit":0}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshots []model.ThreadStateSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshots))
	require.Len(t, snapshots, 1)
}

func TestThreadHistoryBeforeFiltersNewerSnapshots(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Threads.AppendStateSnapshot(ctx, model.ThreadStateSnapshot{
			ThreadID: "t1", CheckpointID: string(rune('a' + i)), Values: map[string]any{"n": i},
		}))
	}
	router := s.NewRouter()

	full := httptest.NewRequest(http.MethodGet, "/threads/t1/history", nil)
	fullRec := httptest.NewRecorder()
	router.ServeHTTP(fullRec, full)
	var all []model.ThreadStateSnapshot
	require.NoError(t, json.Unmarshal(fullRec.Body.Bytes(), &all))
	require.Len(t, all, 3)
	require.Equal(t, "c", all[0].CheckpointID, "newest first")

	before := httptest.NewRequest(http.MethodGet, "/threads/t1/history?before=b", nil)
	beforeRec := httptest.NewRecorder()
	router.ServeHTTP(beforeRec, before)
	require.Equal(t, http.StatusOK, beforeRec.Code)

	var older []model.ThreadStateSnapshot
	require.NoError(t, json.Unmarshal(beforeRec.Body.Bytes(), &older))
	require.Len(t, older, 1)
	require.Equal(t, "a", older[0].CheckpointID)
}

func TestThreadHistoryLimitClampedAbove1000(t *testing.T) {
	s := newTestServer()
	router := s.NewRouter()
	req := httptest.NewRequest(http.MethodGet, "/threads/t1/history?limit=5000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestThreadStateIsUnscopedByOwner(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()
	require.NoError(t, s.Threads.AppendStateSnapshot(ctx, model.ThreadStateSnapshot{
		ThreadID: "t1", CheckpointID: "c1", Values: map[string]any{"n": 1},
	}))
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/threads/t1/state", nil)
	req.Header.Set("Authorization", "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteThread(t *testing.T) {
	s := newTestServer()
	router := s.NewRouter()
	create := httptest.NewRequest(http.MethodPost, "/threads/", strings.NewReader(`{"thread_id":"t1"}`))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, create)
	require.Equal(t, http.StatusOK, createRec.Code)

	del := httptest.NewRequest(http.MethodDelete, "/threads/t1", nil)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, del)
	require.Equal(t, http.StatusOK, delRec.Code)

	get := httptest.NewRequest(http.MethodGet, "/threads/t1", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, get)
	require.Equal(t, http.StatusNotFound, getRec.Code)
}
