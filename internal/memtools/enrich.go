package memtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lazypower/mempack/internal/engine"
)

// EnrichTool handles the memory_enrich MCP tool.
type EnrichTool struct {
	engine *engine.Engine
}

// NewEnrichTool creates an EnrichTool.
func NewEnrichTool(e *engine.Engine) *EnrichTool {
	return &EnrichTool{engine: e}
}

// Definition returns the MCP tool definition for memory_enrich.
func (t *EnrichTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_enrich",
		mcp.WithDescription(
			"Get the memory envelope for a unit of work before starting it: related prior work, "+
				"connected features, per-file notes and a complexity estimate. Naming the unit of work "+
				"also records the files it touches.",
		),
		mcp.WithString("uow_id",
			mcp.Description("Unit of work id, e.g. a ticket key like CEPG-123"),
		),
		mcp.WithString("feature",
			mcp.Description("Feature to file the work under; derived from file paths when omitted"),
		),
		mcp.WithString("files",
			mcp.Description("Files the work will touch, comma separated (a JSON array also works)"),
		),
		mcp.WithString("category",
			mcp.Description("Kind of work: feature, bugfix, refactor, ..."),
		),
		mcp.WithString("description",
			mcp.Description("Free-text description; file paths mentioned here are picked up"),
		),
	)
}

// Handle processes the memory_enrich tool call.
func (t *EnrichTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	env, err := t.engine.Enrich(ctx, engine.EnrichRequest{
		FeatureHint: req.GetString("feature", ""),
		UoWID:       req.GetString("uow_id", ""),
		Files:       stringsArg(req, "files"),
		Category:    req.GetString("category", ""),
		Description: req.GetString("description", ""),
	})
	if err != nil {
		return toolError("enrich", err), nil
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode envelope: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
