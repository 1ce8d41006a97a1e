package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

type threadCreateBody struct {
	ThreadID string         `json:"thread_id"`
	Metadata map[string]any `json:"metadata"`
	IfExists string         `json:"if_exists"`
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	var body threadCreateBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ifExists := repo.IfExistsRaise
	if body.IfExists == string(repo.IfExistsDoNothing) {
		ifExists = repo.IfExistsDoNothing
	}
	owner := identity.CallerFromContext(r.Context())
	thread := model.Thread{
		ID:       body.ThreadID,
		Status:   model.ThreadStatusIdle,
		Metadata: body.Metadata,
		OwnerID:  owner,
	}
	created, err := s.Threads.Create(r.Context(), thread, ifExists)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	t, err := s.Threads.Get(r.Context(), owner, chi.URLParam(r, "threadID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type threadPatchBody struct {
	Metadata map[string]any `json:"metadata"`
	Config   map[string]any `json:"config"`
}

func (s *Server) patchThread(w http.ResponseWriter, r *http.Request) {
	var body threadPatchBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	owner := identity.CallerFromContext(r.Context())
	updated, err := s.Threads.Patch(r.Context(), owner, chi.URLParam(r, "threadID"), repo.ThreadPatch{
		Metadata: body.Metadata,
		Config:   body.Config,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteThread(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	if err := s.Threads.Delete(r.Context(), owner, chi.URLParam(r, "threadID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) searchThreads(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	results, err := s.Threads.Search(r.Context(), body.toFilter(identity.CallerFromContext(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) countThreads(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	count, err := s.Threads.Count(r.Context(), body.toFilter(identity.CallerFromContext(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

// getThreadState is deliberately unscoped by owner (spec §3.2, §4.4): any
// caller holding a thread_id can read its current state snapshot.
func (s *Server) getThreadState(w http.ResponseWriter, r *http.Request) {
	state, err := s.Threads.GetState(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

const defaultHistoryLimit = 10

func (s *Server) getThreadHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, invalidBody("limit must be an integer"))
			return
		}
		limit = n
	}
	s.respondThreadHistory(w, r, limit, r.URL.Query().Get("before"))
}

type threadHistoryBody struct {
	Limit  int    `json:"limit"`
	Before string `json:"before"`
}

func (s *Server) postThreadHistory(w http.ResponseWriter, r *http.Request) {
	var body threadHistoryBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	limit := body.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	s.respondThreadHistory(w, r, limit, body.Before)
}

// respondThreadHistory applies spec §8's boundary rule (limit 0 is a
// validation error; anything else clamps to [1, 1000]) and, when before
// is set, trims the newest-first result to only snapshots strictly older
// than that checkpoint. internal/repo.ThreadRepo.GetHistory has no
// before parameter of its own, so this filters the already-sorted result
// in place rather than pushing "before" down into the repo contract.
func (s *Server) respondThreadHistory(w http.ResponseWriter, r *http.Request, limit int, before string) {
	if limit == 0 {
		writeError(w, invalidBody("limit must not be zero"))
		return
	}
	clamped := limit
	if clamped < 0 {
		clamped = defaultHistoryLimit
	}
	if clamped > 1000 {
		clamped = 1000
	}

	fetchLimit := clamped
	if before != "" {
		fetchLimit = 1000
	}
	history, err := s.Threads.GetHistory(r.Context(), chi.URLParam(r, "threadID"), fetchLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if before != "" {
		history = snapshotsBefore(history, before)
	}
	if len(history) > clamped {
		history = history[:clamped]
	}
	writeJSON(w, http.StatusOK, history)
}

func snapshotsBefore(history []model.ThreadStateSnapshot, before string) []model.ThreadStateSnapshot {
	for i, snap := range history {
		if snap.CheckpointID == before {
			return history[i+1:]
		}
	}
	return history
}
