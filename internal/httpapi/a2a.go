package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/lifecycle"
	"github.com/flowmind/agentrt/internal/model"
)

// handleA2A is a simplified agent-to-agent JSON-RPC 2.0 endpoint, adapted
// from the task vocabulary of the teacher's A2A server (tasks/send,
// tasks/get, tasks/cancel) onto this server's own run lifecycle rather
// than a generated per-skill transport: a task here is exactly one run,
// its task ID is the run ID, and "working"/"completed"/"failed" map onto
// model.RunStatus rather than a separately tracked TaskState.
func (s *Server) handleA2A(w http.ResponseWriter, r *http.Request) {
	var req jsonrpcRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, jsonrpcError(req.ID, -32700, "parse error"))
		return
	}

	assistantID := chi.URLParam(r, "assistantID")
	owner := identity.CallerFromContext(r.Context())

	switch req.Method {
	case "tasks/send":
		s.a2aTasksSend(w, r, req, owner, assistantID)
	case "tasks/get":
		s.a2aTasksGet(w, r, req, owner)
	case "tasks/cancel":
		s.a2aTasksCancel(w, req)
	default:
		writeJSON(w, http.StatusOK, jsonrpcError(req.ID, -32601, "method not found: "+req.Method))
	}
}

type jsonrpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

func jsonrpcResult(id, result any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": id, "result": result}
}

func jsonrpcError(id any, code int, message string) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": id, "error": map[string]any{"code": code, "message": message}}
}

func (s *Server) a2aTasksSend(w http.ResponseWriter, r *http.Request, req jsonrpcRequest, owner, assistantID string) {
	threadID, _ := req.Params["thread_id"].(string)
	if threadID == "" {
		threadID, _ = req.Params["session_id"].(string)
	}
	messages := a2aMessagesFromParams(req.Params)

	runID := uuid.NewString()
	snapshot, err := s.Lifecycle.ExecuteWait(r.Context(), lifecycle.SubmitRequest{
		RunID:       runID,
		OwnerID:     owner,
		ThreadID:    threadID,
		AssistantID: assistantID,
		Input:       graph.Input{Messages: messages},
	})
	if err != nil {
		writeJSON(w, http.StatusOK, jsonrpcError(req.ID, -32000, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, jsonrpcResult(req.ID, map[string]any{
		"id":     runID,
		"status": map[string]string{"state": "completed"},
		"values": snapshot.Values,
	}))
}

func (s *Server) a2aTasksGet(w http.ResponseWriter, r *http.Request, req jsonrpcRequest, owner string) {
	taskID, _ := req.Params["id"].(string)
	run, err := s.Runs.Get(r.Context(), owner, taskID)
	if err != nil {
		writeJSON(w, http.StatusOK, jsonrpcError(req.ID, -32001, "task not found"))
		return
	}
	writeJSON(w, http.StatusOK, jsonrpcResult(req.ID, map[string]any{
		"id":     run.ID,
		"status": map[string]string{"state": a2aTaskState(run.Status)},
	}))
}

func (s *Server) a2aTasksCancel(w http.ResponseWriter, req jsonrpcRequest) {
	taskID, _ := req.Params["id"].(string)
	s.Lifecycle.Cancel(taskID)
	writeJSON(w, http.StatusOK, jsonrpcResult(req.ID, map[string]any{"id": taskID, "status": map[string]string{"state": "canceled"}}))
}

func a2aMessagesFromParams(params map[string]any) []graph.Message {
	raw, _ := params["messages"].([]any)
	messages := make([]graph.Message, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		messages = append(messages, graph.Message{Role: role, Content: content})
	}
	return messages
}

// a2aTaskState maps the run state machine onto the A2A task vocabulary
// (spec has no A2A status taxonomy of its own; teacher's runtime/a2a/server.go
// uses "working"/"completed"/"failed"/"canceled").
func a2aTaskState(status model.RunStatus) string {
	switch status {
	case model.RunStatusSuccess:
		return "completed"
	case model.RunStatusError, model.RunStatusTimeout:
		return "failed"
	case model.RunStatusInterrupted:
		return "canceled"
	default:
		return "working"
	}
}
