package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lazypower/mempack/internal/engine"
)

// HistoryTool handles the memory_history MCP tool.
type HistoryTool struct {
	engine *engine.Engine
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(e *engine.Engine) *HistoryTool {
	return &HistoryTool{engine: e}
}

// Definition returns the MCP tool definition for memory_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_history",
		mcp.WithDescription(
			"List the recorded units of work of a feature, most recent first. Without a feature, list known features.",
		),
		mcp.WithString("feature",
			mcp.Description("Feature id"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10)"),
		),
	)
}

// Handle processes the memory_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	feature := req.GetString("feature", "")
	if feature == "" {
		features, err := t.engine.Features(ctx)
		if err != nil {
			return toolError("list features", err), nil
		}
		if len(features) == 0 {
			return mcp.NewToolResultText("No features recorded yet."), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Features (%d): %s", len(features), strings.Join(features, ", "))), nil
	}

	packs, err := t.engine.History(ctx, feature)
	if err != nil {
		return toolError("history", err), nil
	}
	if len(packs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No recorded work for %s.", feature)), nil
	}

	limit := 10
	if v := floatArg(req, "limit"); v != nil && *v > 0 {
		limit = int(*v)
	}
	if len(packs) > limit {
		packs = packs[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", feature)
	for _, p := range packs {
		fmt.Fprintf(&b, "- **%s** [%s] %s", p.UoWID, p.UpdatedAt.Format("2006-01-02"), orDash(p.Category))
		if p.Outcome != nil && p.Outcome.EffectivenessScore != nil {
			fmt.Fprintf(&b, ", effectiveness %.2f", *p.Outcome.EffectivenessScore)
		}
		if p.Summary != "" {
			fmt.Fprintf(&b, ": %s", p.Summary)
		}
		fmt.Fprintf(&b, " (%d files)\n", len(p.Files))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
