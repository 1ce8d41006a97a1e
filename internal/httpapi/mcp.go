package httpapi

import (
	"net/http"

	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/repo"
)

// handleMCP is a minimal MCP (Model Context Protocol) server surface: it
// advertises this deployment's assistants as MCP tools and answers
// "initialize"/"tools/list" so an MCP-aware client can discover them, but
// "tools/call" execution is intentionally out of scope here — this
// endpoint is optional (spec §6.1), and the spec does not define a tool
// surface for it beyond "a JSON-RPC 2.0 server". internal/mcploader is the
// unrelated client side of MCP, used when an assistant's own config
// declares external MCP servers to load tools from.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req jsonrpcRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, jsonrpcError(req.ID, -32700, "parse error"))
		return
	}

	switch req.Method {
	case "initialize":
		writeJSON(w, http.StatusOK, jsonrpcResult(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "agentrt", "version": s.Build.Version},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}))

	case "tools/list":
		writeJSON(w, http.StatusOK, jsonrpcResult(req.ID, map[string]any{"tools": s.mcpToolList(r)}))

	default:
		writeJSON(w, http.StatusOK, jsonrpcError(req.ID, -32601, "method not found: "+req.Method))
	}
}

// mcpToolList advertises one MCP tool per assistant this deployment knows
// about, named "invoke_<assistant_id>"; a client can call these via
// /runs once it has resolved the assistant_id.
func (s *Server) mcpToolList(r *http.Request) []map[string]any {
	owner := identity.CallerFromContext(r.Context())
	results, err := s.Assistants.Search(r.Context(), repo.Filter{OwnerID: owner, Limit: defaultSearchLimit})
	if err != nil {
		return nil
	}
	tools := make([]map[string]any, 0, len(results))
	for _, a := range results {
		tools = append(tools, map[string]any{
			"name":        "invoke_" + a.ID,
			"description": a.Description,
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"thread_id": map[string]any{"type": "string"},
					"input":     map[string]any{"type": "array"},
				},
				"required": []string{"thread_id", "input"},
			},
		})
	}
	return tools
}
