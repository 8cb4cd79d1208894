package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/mempack/internal/config"
	"github.com/lazypower/mempack/internal/hooks"
)

var hookFormat string

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Bridge ticket workflow events to a running mempack server",
	Long:  "Reads ticket JSON on stdin and talks to the server at MEMPACK_URL. Hooks always exit 0; failures are reported on stderr.",
}

var hookEnrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Handle a ticket start: print its memory envelope",
	Run: func(cmd *cobra.Command, args []string) {
		hooks.Handle(hookClient(), "enrich", hookFormat, os.Stdin, os.Stdout)
	},
}

var hookCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Handle a ticket completion: record its outcome",
	Run: func(cmd *cobra.Command, args []string) {
		hooks.Handle(hookClient(), "complete", hooks.FormatJSON, os.Stdin, os.Stdout)
	},
}

// hookClient never fails: an unreadable config falls back to the defaults.
func hookClient() *hooks.Client {
	timeout := time.Duration(config.Default().Hooks.Timeout) * time.Second
	if cfg, _, err := config.Load(configPath); err == nil && cfg.Hooks.Timeout > 0 {
		timeout = time.Duration(cfg.Hooks.Timeout) * time.Second
	}
	return hooks.NewClient(timeout)
}

func init() {
	hookEnrichCmd.Flags().StringVar(&hookFormat, "format", hooks.FormatJSON, "Output format: json or context")

	hookCmd.AddCommand(hookEnrichCmd)
	hookCmd.AddCommand(hookCompleteCmd)
}
