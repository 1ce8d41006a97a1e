package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/model"
)

type cronCreateBody struct {
	CronID         string         `json:"cron_id"`
	AssistantID    string         `json:"assistant_id"`
	ThreadID       string         `json:"thread_id"`
	Schedule       string         `json:"schedule"`
	Payload        map[string]any `json:"payload"`
	EndTime        *time.Time     `json:"end_time"`
	OnRunCompleted string         `json:"on_run_completed"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) createCron(w http.ResponseWriter, r *http.Request) {
	var body cronCreateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.AssistantID == "" {
		writeError(w, missingField("assistant_id"))
		return
	}
	if body.Schedule == "" {
		writeError(w, missingField("schedule"))
		return
	}
	policy := model.CronOnCompleteKeep
	if body.OnRunCompleted == string(model.CronOnCompleteDelete) {
		policy = model.CronOnCompleteDelete
	}
	owner := identity.CallerFromContext(r.Context())
	c := model.Cron{
		ID:             body.CronID,
		AssistantID:    body.AssistantID,
		ThreadID:       body.ThreadID,
		Schedule:       body.Schedule,
		Payload:        body.Payload,
		EndTime:        body.EndTime,
		OnRunCompleted: policy,
		Metadata:       body.Metadata,
		OwnerID:        owner,
	}
	created, err := s.Crons.Create(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.CronEngine != nil {
		if err := s.CronEngine.Add(created); err != nil {
			s.Warn("failed to schedule newly created cron", "cron_id", created.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) getCron(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	c, err := s.Crons.Get(r.Context(), owner, chi.URLParam(r, "cronID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCron(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	cronID := chi.URLParam(r, "cronID")
	if err := s.Crons.Delete(r.Context(), owner, cronID); err != nil {
		writeError(w, err)
		return
	}
	if s.CronEngine != nil {
		s.CronEngine.Remove(cronID)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) searchCrons(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	results, err := s.Crons.Search(r.Context(), body.toFilter(identity.CallerFromContext(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) countCrons(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	count, err := s.Crons.Count(r.Context(), body.toFilter(identity.CallerFromContext(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}
