package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/lazypower/mempack/internal/memtools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the memory tools over MCP stdio",
	Long:  "Exposes memory_enrich, memory_record_completion and memory_history to an MCP client on stdin/stdout. Logs go to stderr.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		rt.log.Debug("mcp stdio server starting", "version", Version)
		return server.ServeStdio(memtools.NewServer(rt.engine, Version))
	},
}
