package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

type assistantCreateBody struct {
	AssistantID string                `json:"assistant_id"`
	GraphID     string                `json:"graph_id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Config      model.AssistantConfig `json:"config"`
	Context     map[string]any        `json:"context"`
	Metadata    map[string]any        `json:"metadata"`
	IfExists    string                `json:"if_exists"`
}

func (s *Server) createAssistant(w http.ResponseWriter, r *http.Request) {
	var body assistantCreateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.GraphID == "" {
		writeError(w, missingField("graph_id"))
		return
	}
	if body.Name == "" {
		writeError(w, missingField("name"))
		return
	}

	ifExists := repo.IfExistsRaise
	if body.IfExists == string(repo.IfExistsDoNothing) {
		ifExists = repo.IfExistsDoNothing
	}

	owner := identity.CallerFromContext(r.Context())
	assistant := model.Assistant{
		ID:          body.AssistantID,
		GraphID:     body.GraphID,
		Name:        body.Name,
		Description: body.Description,
		Version:     1,
		Config:      body.Config,
		Context:     body.Context,
		Metadata:    body.Metadata,
		OwnerID:     owner,
	}
	created, err := s.Assistants.Create(r.Context(), assistant, ifExists)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) getAssistant(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	a, err := s.Assistants.Get(r.Context(), owner, chi.URLParam(r, "assistantID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type assistantPatchBody struct {
	GraphID     *string                `json:"graph_id"`
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Config      *model.AssistantConfig `json:"config"`
	Context     map[string]any         `json:"context"`
	Metadata    map[string]any         `json:"metadata"`
}

func (s *Server) patchAssistant(w http.ResponseWriter, r *http.Request) {
	var body assistantPatchBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	owner := identity.CallerFromContext(r.Context())
	updated, err := s.Assistants.Patch(r.Context(), owner, chi.URLParam(r, "assistantID"), repo.AssistantPatch{
		GraphID:     body.GraphID,
		Name:        body.Name,
		Description: body.Description,
		Config:      body.Config,
		Context:     body.Context,
		Metadata:    body.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteAssistant(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	if err := s.Assistants.Delete(r.Context(), owner, chi.URLParam(r, "assistantID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) searchAssistants(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	f := body.toFilter(identity.CallerFromContext(r.Context()))
	results, err := s.Assistants.Search(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) countAssistants(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	f := body.toFilter(identity.CallerFromContext(r.Context()))
	count, err := s.Assistants.Count(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}
