package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/lifecycle"
	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
	"github.com/flowmind/agentrt/internal/streaming"
)

type runCreateBody struct {
	AssistantID       string         `json:"assistant_id"`
	Input             []graph.Message `json:"input"`
	Config            map[string]any `json:"config"`
	Metadata          map[string]any `json:"metadata"`
	Tags              []string       `json:"tags"`
	RunName           string         `json:"run_name"`
	MultitaskStrategy string         `json:"multitask_strategy"`
	ThreadID          string         `json:"thread_id"`
}

func (b runCreateBody) toSubmitRequest(owner, threadID string) lifecycle.SubmitRequest {
	return lifecycle.SubmitRequest{
		OwnerID:           owner,
		ThreadID:          threadID,
		AssistantID:       b.AssistantID,
		Input:             graph.Input{Messages: b.Input},
		RunConfigurable:   b.Config,
		Metadata:          b.Metadata,
		Tags:              b.Tags,
		RunName:           b.RunName,
		MultitaskStrategy: model.MultitaskStrategy(b.MultitaskStrategy),
	}
}

// createThreadRun starts a run in background mode (spec §4.7's scheduling
// model: the run executes for the lifetime of the request that admitted
// it, but the caller here does not wait for it — it reads back the Run
// record immediately after admission completes). ExecuteStream is used
// rather than ExecuteWait because its admission step is synchronous and
// returns the run_id before execution finishes; the SSE frames it would
// also produce are simply left unread, which streaming.Run.Publish
// tolerates by design (non-blocking fan-out).
func (s *Server) createThreadRun(w http.ResponseWriter, r *http.Request) {
	var body runCreateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	owner := identity.CallerFromContext(r.Context())
	threadID := chi.URLParam(r, "threadID")
	req := body.toSubmitRequest(owner, threadID)

	runID, _, err := s.Lifecycle.ExecuteStream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	run, err := s.Runs.Get(r.Context(), owner, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) createThreadRunWait(w http.ResponseWriter, r *http.Request) {
	var body runCreateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	owner := identity.CallerFromContext(r.Context())
	req := body.toSubmitRequest(owner, chi.URLParam(r, "threadID"))
	s.executeWait(w, r, req)
}

func (s *Server) createStatelessRunWait(w http.ResponseWriter, r *http.Request) {
	var body runCreateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ThreadID == "" {
		writeError(w, missingField("thread_id"))
		return
	}
	owner := identity.CallerFromContext(r.Context())
	req := body.toSubmitRequest(owner, body.ThreadID)
	s.executeWait(w, r, req)
}

func (s *Server) executeWait(w http.ResponseWriter, r *http.Request, req lifecycle.SubmitRequest) {
	snapshot, err := s.Lifecycle.ExecuteWait(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) createThreadRunStream(w http.ResponseWriter, r *http.Request) {
	var body runCreateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	owner := identity.CallerFromContext(r.Context())
	req := body.toSubmitRequest(owner, chi.URLParam(r, "threadID"))
	s.executeStream(w, r, req)
}

func (s *Server) createStatelessRunStream(w http.ResponseWriter, r *http.Request) {
	var body runCreateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ThreadID == "" {
		writeError(w, missingField("thread_id"))
		return
	}
	owner := identity.CallerFromContext(r.Context())
	req := body.toSubmitRequest(owner, body.ThreadID)
	s.executeStream(w, r, req)
}

func (s *Server) executeStream(w http.ResponseWriter, r *http.Request, req lifecycle.SubmitRequest) {
	_, frames, err := s.Lifecycle.ExecuteStream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.pipeSSE(w, r, frames)
}

// pipeSSE writes each frame to w as it arrives, flushing after every
// event so a reverse proxy without buffering passes events through live
// (spec §4.8.4).
func (s *Server) pipeSSE(w http.ResponseWriter, r *http.Request, frames <-chan streaming.Frame) {
	streaming.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			encoded, err := f.Encode()
			if err != nil {
				s.Warn("failed to encode SSE frame", "event", f.Event, "error", err)
				continue
			}
			if _, err := w.Write(encoded); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) listThreadRuns(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	runs, err := s.Runs.ListByThread(r.Context(), owner, chi.URLParam(r, "threadID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getThreadRun(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	run, err := s.Runs.Get(r.Context(), owner, chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) deleteThreadRun(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	if err := s.Runs.Delete(r.Context(), owner, chi.URLParam(r, "runID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// cancelThreadRun cancels the active run's context through
// lifecycle.Engine.Cancel (spec §4.7.4). It is a no-op, not an error, when the run
// is no longer active (already finished by the time the request lands).
func (s *Server) cancelThreadRun(w http.ResponseWriter, r *http.Request) {
	s.Lifecycle.Cancel(chi.URLParam(r, "runID"))
	writeJSON(w, http.StatusOK, map[string]any{})
}

// joinThreadRun blocks until the run completes and returns its final
// state as JSON, never SSE (spec §6.1). If the run is still broadcasting,
// it subscribes and drains to the closing frame; if the broadcast is
// already gone (the run finished without streaming, or was evicted), it
// falls back to the persisted run/thread records.
func (s *Server) joinThreadRun(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	runID := chi.URLParam(r, "runID")

	rb := s.Hub.Get(runID)
	if rb == nil {
		s.joinFromStore(w, r, owner, runID)
		return
	}

	frames, cancel := rb.Subscribe(r.Context())
	defer cancel()

	var values map[string]any
	var status, checkpointID string
	for f := range frames {
		switch payload := f.Data.(type) {
		case map[string]any:
			if v, ok := payload["values"]; ok {
				if vm, ok := v.(map[string]any); ok {
					values = vm
				}
			}
			if st, ok := payload["status"]; ok {
				if s, ok := st.(string); ok {
					status = s
				}
			}
			if cp, ok := payload["checkpoint_id"]; ok {
				if c, ok := cp.(string); ok {
					checkpointID = c
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        runID,
		"status":        status,
		"checkpoint_id": checkpointID,
		"values":        values,
	})
}

func (s *Server) joinFromStore(w http.ResponseWriter, r *http.Request, owner, runID string) {
	run, err := s.Runs.Get(r.Context(), owner, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := s.Threads.GetState(r.Context(), run.ThreadID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        run.ID,
		"status":        run.Status,
		"checkpoint_id": state.CheckpointID,
		"values":        state.Values,
	})
}

// reconnectThreadRunStream attaches to an in-progress run's broadcast and
// replays buffered events before streaming new ones (spec §4.8.3). If the
// run has already completed, Subscribe itself replays the cached final
// frames and closes.
func (s *Server) reconnectThreadRunStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rb := s.Hub.Get(runID)
	if rb == nil {
		writeError(w, repo.ErrNotFound)
		return
	}
	frames, cancel := rb.Subscribe(r.Context())
	defer cancel()
	s.pipeSSE(w, r, frames)
}
