// Package httpapi wires the server's HTTP surface (spec §6.1) onto
// internal/lifecycle, internal/repo, internal/store and
// internal/streaming: a chi router with one handler group per entity,
// JSON request/response bodies, and SSE bodies for the streaming run
// endpoints.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowmind/agentrt/internal/cron"
	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/lifecycle"
	"github.com/flowmind/agentrt/internal/repo"
	"github.com/flowmind/agentrt/internal/store"
	"github.com/flowmind/agentrt/internal/streaming"
)

// BuildInfo carries static version metadata surfaced by GET /info.
type BuildInfo struct {
	Version string
	Commit  string
}

// Server holds every dependency an HTTP handler needs. One Server is
// constructed at startup and shared across all requests; it carries no
// per-request mutable state itself (internal/lifecycle.Engine is the
// only component that does, and it is already concurrency-safe).
type Server struct {
	Assistants repo.AssistantRepo
	Threads    repo.ThreadRepo
	Runs       repo.RunRepo
	Crons      repo.CronRepo
	Store      store.Store
	Lifecycle  *lifecycle.Engine
	CronEngine *cron.Engine
	Hub        *streaming.Hub
	Graphs     *graph.Registry
	Verifier   identity.Verifier
	Build      BuildInfo
	Warn       func(msg string, args ...any)

	// JoinTimeout bounds GET .../join requests (spec §6.1: "blocks to
	// completion"); zero means no timeout beyond the request context.
	JoinTimeout time.Duration
}

// NewRouter builds the complete chi.Router for the server.
func (s *Server) NewRouter() chi.Router {
	if s.Warn == nil {
		s.Warn = func(string, ...any) {}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(identity.Middleware(s.Verifier))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ok", s.handleOK)
	r.Get("/info", s.handleInfo)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/metrics/json", s.handleMetricsJSON)

	r.Route("/assistants", func(r chi.Router) {
		r.Post("/", s.createAssistant)
		r.Post("/search", s.searchAssistants)
		r.Post("/count", s.countAssistants)
		r.Get("/{assistantID}", s.getAssistant)
		r.Patch("/{assistantID}", s.patchAssistant)
		r.Delete("/{assistantID}", s.deleteAssistant)
	})

	r.Route("/threads", func(r chi.Router) {
		r.Post("/", s.createThread)
		r.Post("/search", s.searchThreads)
		r.Post("/count", s.countThreads)
		r.Get("/{threadID}", s.getThread)
		r.Patch("/{threadID}", s.patchThread)
		r.Delete("/{threadID}", s.deleteThread)

		r.Get("/{threadID}/state", s.getThreadState)
		r.Get("/{threadID}/history", s.getThreadHistory)
		r.Post("/{threadID}/history", s.postThreadHistory)

		r.Post("/{threadID}/runs", s.createThreadRun)
		r.Get("/{threadID}/runs", s.listThreadRuns)
		r.Get("/{threadID}/runs/{runID}", s.getThreadRun)
		r.Delete("/{threadID}/runs/{runID}", s.deleteThreadRun)
		r.Post("/{threadID}/runs/{runID}/cancel", s.cancelThreadRun)
		r.Get("/{threadID}/runs/{runID}/join", s.joinThreadRun)
		r.Get("/{threadID}/runs/{runID}/stream", s.reconnectThreadRunStream)
		r.Post("/{threadID}/runs/stream", s.createThreadRunStream)
		r.Post("/{threadID}/runs/wait", s.createThreadRunWait)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.createStatelessRunWait)
		r.Post("/wait", s.createStatelessRunWait)
		r.Post("/stream", s.createStatelessRunStream)

		r.Route("/crons", func(r chi.Router) {
			r.Post("/", s.createCron)
			r.Post("/search", s.searchCrons)
			r.Post("/count", s.countCrons)
			r.Get("/{cronID}", s.getCron)
			r.Delete("/{cronID}", s.deleteCron)
		})
	})

	r.Route("/store", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Put("/", s.putStoreItem)
			r.Get("/", s.getStoreItem)
			r.Delete("/", s.deleteStoreItem)
			r.Post("/search", s.searchStoreItems)
		})
		r.Get("/namespaces", s.listStoreNamespaces)
	})

	r.Post("/mcp", s.handleMCP)
	r.Post("/a2a/{assistantID}", s.handleA2A)

	return r
}
