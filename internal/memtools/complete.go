package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lazypower/mempack/internal/engine"
)

// CompletionTool handles the memory_record_completion MCP tool.
type CompletionTool struct {
	engine *engine.Engine
}

// NewCompletionTool creates a CompletionTool.
func NewCompletionTool(e *engine.Engine) *CompletionTool {
	return &CompletionTool{engine: e}
}

// Definition returns the MCP tool definition for memory_record_completion.
func (t *CompletionTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_record_completion",
		mcp.WithDescription(
			"Record the outcome of a finished unit of work so later work on the same files can learn from it.",
		),
		mcp.WithString("uow_id",
			mcp.Required(),
			mcp.Description("Unit of work id the outcome belongs to"),
		),
		mcp.WithString("feature",
			mcp.Description("Feature id; defaults to the feature the unit of work was enriched under"),
		),
		mcp.WithString("summary",
			mcp.Description("What was done"),
		),
		mcp.WithString("requirement",
			mcp.Description("What was asked for"),
		),
		mcp.WithString("external_ref",
			mcp.Description("Pull request or commit reference"),
		),
		mcp.WithNumber("effectiveness_score",
			mcp.Description("How well it went, 0 to 1"),
		),
		mcp.WithString("category",
			mcp.Description("Kind of work: feature, bugfix, refactor, ..."),
		),
	)
}

// Handle processes the memory_record_completion tool call.
func (t *CompletionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uow := req.GetString("uow_id", "")
	if uow == "" {
		return mcp.NewToolResultError("'uow_id' is required"), nil
	}

	p, err := t.engine.RecordCompletion(ctx, engine.CompletionRequest{
		FeatureID:          req.GetString("feature", ""),
		UoWID:              uow,
		Summary:            req.GetString("summary", ""),
		Requirement:        req.GetString("requirement", ""),
		ExternalRef:        req.GetString("external_ref", ""),
		EffectivenessScore: floatArg(req, "effectiveness_score"),
		Category:           req.GetString("category", ""),
	})
	if err != nil {
		return toolError("record completion", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recorded %s under %s", p.UoWID, p.FeatureID)
	if p.Outcome != nil {
		fmt.Fprintf(&b, " (%s", p.Outcome.Status)
		if p.Outcome.EffectivenessScore != nil {
			fmt.Fprintf(&b, ", effectiveness %.2f", *p.Outcome.EffectivenessScore)
		}
		b.WriteString(")")
	}
	b.WriteString(".")
	return mcp.NewToolResultText(b.String()), nil
}
