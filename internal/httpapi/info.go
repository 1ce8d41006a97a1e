package httpapi

import (
	"context"
	"net/http"
)

// pinger is satisfied by any storage backend that can report liveness
// (goa.design/clue/health.Pinger's contract; internal/repo/mongorepo and
// internal/checkpoint/mongocheckpoint implement it).
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "agentrt"})
}

func (s *Server) handleOK(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleHealth pings every backend that exposes a Pinger. If none do
// (pure in-memory deployment), the service reports healthy as long as it
// is serving requests at all.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]pinger{
		"assistants": asPinger(s.Assistants),
		"threads":    asPinger(s.Threads),
		"runs":       asPinger(s.Runs),
		"crons":      asPinger(s.Crons),
		"store":      asPinger(s.Store),
	}

	status := "pass"
	details := make(map[string]string, len(checks))
	for name, p := range checks {
		if p == nil {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			status = "fail"
			details[name] = err.Error()
		} else {
			details[name] = "ok"
		}
	}

	code := http.StatusOK
	if status == "fail" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": details})
}

func asPinger(v any) pinger {
	p, _ := v.(pinger)
	return p
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       s.Build.Version,
		"commit":        s.Build.Commit,
		"graph_ids":     s.Graphs.AvailableGraphIDs(),
		"default_graph": "agent",
	})
}

// handleOpenAPI serves a minimal description of the surface; a full
// generated OpenAPI document is out of scope without the design-time
// code generator the distilled spec explicitly drops.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.3",
		"info":    map[string]string{"title": "agentrt", "version": s.Build.Version},
		"paths":   map[string]any{},
	})
}
