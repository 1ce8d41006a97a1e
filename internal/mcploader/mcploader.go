// Package mcploader builds the tool set for an assistant at graph-build
// time: for every configured MCP server it normalizes the URL, exchanges
// the caller's bearer token for a scoped server token when required
// (cached in the namespaced store), opens a client connection, lists and
// filters tools, and adapts each to the generic llm.ToolDefinition shape
// a graph can offer to a model.
package mcploader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowmind/agentrt/internal/llm"
	"github.com/flowmind/agentrt/internal/store"
)

// ServerConfig describes one MCP server entry from an assistant's
// mcp_config.servers list.
type ServerConfig struct {
	Name         string
	URL          string
	AuthRequired bool
	Tools        []string // allowlist; empty means all tools
}

// Tool is one adapted, callable MCP tool.
type Tool struct {
	Definition llm.ToolDefinition
	Invoke     func(ctx context.Context, payload any) (any, error)
}

// Warner receives a human-readable warning when a server fails to load, a
// tool schema is invalid, or an exchanged token cannot be cached; the
// server wires this to its structured logger.
type Warner func(msg string, args ...any)

// Loader builds tool sets from MCP server configurations.
type Loader struct {
	HTTPClient   *http.Client
	Store        store.Store
	Warn         Warner
	TokenTTL     time.Duration
	RetryBackoff []time.Duration
}

// NewLoader returns a Loader with sensible defaults: a 5 minute OAuth token
// cache TTL and three retries with increasing backoff (200ms, 500ms, 1s)
// before a server is skipped.
func NewLoader(st store.Store, warn Warner) *Loader {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &Loader{
		HTTPClient:   http.DefaultClient,
		Store:        st,
		Warn:         warn,
		TokenTTL:     5 * time.Minute,
		RetryBackoff: []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second},
	}
}

// Load builds the combined, name-disambiguated tool set across every
// server in servers. A server that cannot be reached, authorized or
// queried in time is skipped with a warning; the agent proceeds without
// those tools rather than failing the run, per the loader's
// continue-on-partial-failure contract.
func (l *Loader) Load(ctx context.Context, callerToken string, servers []ServerConfig) ([]Tool, error) {
	seen := make(map[string]int)
	var out []Tool
	for _, srv := range servers {
		tools, err := l.loadServer(ctx, callerToken, srv)
		if err != nil {
			l.Warn("mcp server unavailable, continuing without its tools", "server", srv.Name, "error", err)
			continue
		}
		for _, t := range tools {
			name := disambiguate(seen, t.Definition.Name)
			t.Definition.Name = name
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *Loader) loadServer(ctx context.Context, callerToken string, srv ServerConfig) ([]Tool, error) {
	url := NormalizeURL(srv.URL)

	token := callerToken
	if srv.AuthRequired {
		exchanged, err := l.exchangeToken(ctx, url, callerToken)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		token = exchanged
	}

	var (
		c       *mcpclient.Client
		lastErr error
	)
	for attempt := 0; attempt <= len(l.RetryBackoff); attempt++ {
		c, lastErr = l.connect(ctx, url, token)
		if lastErr == nil {
			break
		}
		if attempt < len(l.RetryBackoff) {
			select {
			case <-time.After(l.RetryBackoff[attempt]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	defer c.Close()

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	allow := make(map[string]bool, len(srv.Tools))
	for _, name := range srv.Tools {
		allow[name] = true
	}

	tools := make([]Tool, 0, len(listResp.Tools))
	for _, def := range listResp.Tools {
		if len(allow) > 0 && !allow[def.Name] {
			continue
		}
		schema, err := toInputSchema(def.InputSchema)
		if err != nil {
			l.Warn("mcp tool schema invalid, skipping tool", "server", srv.Name, "tool", def.Name, "error", err)
			continue
		}
		toolName, serverName, toolDef := def.Name, srv.Name, def
		tools = append(tools, Tool{
			Definition: llm.ToolDefinition{Name: toolName, Description: toolDef.Description, InputSchema: schema},
			Invoke: func(ctx context.Context, payload any) (any, error) {
				args, _ := payload.(map[string]any)
				res, err := c.CallTool(ctx, mcp.CallToolRequest{
					Params: mcp.CallToolParams{Name: toolName, Arguments: args},
				})
				if err != nil {
					return nil, fmt.Errorf("mcp call %s/%s: %w", serverName, toolName, err)
				}
				return res, nil
			},
		})
	}
	return tools, nil
}

// exchangeToken posts the caller's bearer token to the MCP server's
// token-exchange endpoint and caches the resulting scoped server token in
// the namespaced store under an internal owner, keyed by server URL, with
// a TTL. A cache hit within the TTL skips the network round trip.
func (l *Loader) exchangeToken(ctx context.Context, serverURL, callerToken string) (string, error) {
	owner, ns := store.OAuthTokenNamespace(callerTokenCacheKey(callerToken))
	cacheKey := serverURL

	if item, err := l.Store.Get(ctx, owner, ns, cacheKey); err == nil {
		if time.Since(item.UpdatedAt) < l.TokenTTL {
			if token, ok := item.Value.(string); ok && token != "" {
				return token, nil
			}
		}
	}

	exchangeURL := strings.TrimSuffix(serverURL, "/mcp") + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, exchangeURL, strings.NewReader(""))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+callerToken)
	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange status %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned no access_token")
	}
	if err := l.Store.Put(ctx, owner, ns, cacheKey, body.AccessToken); err != nil {
		l.Warn("failed to cache exchanged mcp token", "server", serverURL, "error", err)
	}
	return body.AccessToken, nil
}

// callerTokenCacheKey derives a stable per-caller cache partition from the
// caller's bearer token: its last 16 characters, or the whole token when it
// is 16 characters or shorter.
func callerTokenCacheKey(callerToken string) string {
	if callerToken == "" {
		return "anonymous"
	}
	if len(callerToken) > 16 {
		return callerToken[len(callerToken)-16:]
	}
	return callerToken
}

func (l *Loader) connect(ctx context.Context, url, token string) (*mcpclient.Client, error) {
	var opts []mcpclient.ClientOption
	if token != "" {
		opts = append(opts, mcpclient.WithHeaders(map[string]string{"Authorization": "Bearer " + token}))
	}
	c, err := mcpclient.NewStreamableHttpClient(url, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	if _, err := c.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NormalizeURL trims a trailing slash and ensures the "/mcp" suffix is
// present, so callers may configure either form.
func NormalizeURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.HasSuffix(u, "/mcp") {
		u += "/mcp"
	}
	return u
}

func toInputSchema(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	if _, err := compiler.Compile("schema.json"); err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// disambiguate returns name unchanged the first time it is seen, and
// name-2, name-3, ... on every subsequent collision, so multiple servers
// exposing the same tool name never silently overwrite one another.
func disambiguate(seen map[string]int, name string) string {
	seen[name]++
	if seen[name] == 1 {
		return name
	}
	return fmt.Sprintf("%s-%d", name, seen[name])
}
