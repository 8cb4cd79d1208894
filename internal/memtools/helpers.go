// Package memtools exposes the memory engine as MCP tools.
//
// Each tool follows the same shape:
// - A struct with the engine injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Input errors are reported as tool errors, never as protocol errors.
package memtools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lazypower/mempack/internal/engine"
)

// NewServer builds an MCP server with every memory tool registered.
func NewServer(e *engine.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mempack",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	enrich := NewEnrichTool(e)
	s.AddTool(enrich.Definition(), enrich.Handle)

	complete := NewCompletionTool(e)
	s.AddTool(complete.Definition(), complete.Handle)

	history := NewHistoryTool(e)
	s.AddTool(history.Definition(), history.Handle)

	return s
}

// stringsArg accepts either a JSON array of strings or a single string of
// comma or newline separated values.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '\n' }) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// floatArg extracts an optional number (JSON numbers are float64).
func floatArg(req mcp.CallToolRequest, key string) *float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

// toolError renders engine errors for the agent.
func toolError(op string, err error) *mcp.CallToolResult {
	if errors.Is(err, engine.ErrInvalidInput) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid input: %v", err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}
