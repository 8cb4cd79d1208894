package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/mempack/internal/engine"
)

// --- enrich command ---

var (
	enrichFeature     string
	enrichUoW         string
	enrichCategory    string
	enrichDescription string
	enrichFormat      string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [files...]",
	Short: "Show the memory envelope for work on the given files",
	Long:  "Ranks the feature's history against the given files. With --uow the unit of work's pack is seeded with the files.",
	RunE:  runEnrich,
}

func runEnrich(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	env, err := rt.engine.Enrich(cmd.Context(), engine.EnrichRequest{
		FeatureHint: enrichFeature,
		UoWID:       enrichUoW,
		Files:       args,
		Category:    enrichCategory,
		Description: enrichDescription,
	})
	if err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), enrichFormat, env, func(w io.Writer) { renderEnvelope(w, env) })
}

// --- record command ---

var (
	recordFeature     string
	recordUoW         string
	recordSummary     string
	recordRequirement string
	recordRef         string
	recordScore       float64
	recordCategory    string
	recordFormat      string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the outcome of a unit of work",
	RunE:  runRecord,
}

func runRecord(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	req := engine.CompletionRequest{
		FeatureID:   recordFeature,
		UoWID:       recordUoW,
		Summary:     recordSummary,
		Requirement: recordRequirement,
		ExternalRef: recordRef,
		Category:    recordCategory,
	}
	if cmd.Flags().Changed("score") {
		score := recordScore
		req.EffectivenessScore = &score
	}

	p, err := rt.engine.RecordCompletion(cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), recordFormat, p, func(w io.Writer) { renderPack(w, p) })
}

// --- history command ---

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history <feature>",
	Short: "List a feature's recorded units of work, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	packs, err := rt.engine.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(packs) > historyLimit {
		packs = packs[:historyLimit]
	}
	return writeFormatted(cmd.OutOrStdout(), historyFormat, packs, func(w io.Writer) { renderHistory(w, args[0], packs) })
}

// --- features command ---

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List features with recorded work",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		features, err := rt.engine.Features(cmd.Context())
		if err != nil {
			return err
		}
		if len(features) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No features recorded yet.")
			return nil
		}
		for _, f := range features {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

// --- graph command ---

var (
	graphLimit  int
	graphFormat string
)

var graphCmd = &cobra.Command{
	Use:   "graph <feature>",
	Short: "Show the features and files a feature's packs link to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		g, err := rt.engine.FeatureGraph(cmd.Context(), args[0], graphLimit)
		if err != nil {
			return err
		}
		return writeFormatted(cmd.OutOrStdout(), graphFormat, g, func(w io.Writer) { renderGraph(w, g) })
	},
}

// --- stats command ---

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count recorded packs per feature",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		st, err := rt.engine.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return writeFormatted(cmd.OutOrStdout(), statsFormat, st, func(w io.Writer) { renderStats(w, st) })
	},
}

// --- resolve command ---

var (
	resolveFeature     string
	resolveDescription string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [files...]",
	Short: "Print the feature a set of files resolves to",
	RunE: func(cmd *cobra.Command, args []string) error {
		files := append(args, engine.FilesFromText(resolveDescription)...)
		fmt.Fprintln(cmd.OutOrStdout(), engine.Resolve(strings.TrimSpace(resolveFeature), files))
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVarP(&enrichFeature, "feature", "f", "", "Feature id (derived from the files when omitted)")
	enrichCmd.Flags().StringVarP(&enrichUoW, "uow", "u", "", "Unit of work id; seeds its pack")
	enrichCmd.Flags().StringVarP(&enrichCategory, "category", "c", "", "Kind of work")
	enrichCmd.Flags().StringVarP(&enrichDescription, "description", "d", "", "Free-text description; file paths in it are picked up")
	enrichCmd.Flags().StringVarP(&enrichFormat, "format", "o", formatText, "Output format: text, json or yaml")

	recordCmd.Flags().StringVarP(&recordUoW, "uow", "u", "", "Unit of work id")
	recordCmd.Flags().StringVarP(&recordFeature, "feature", "f", "", "Feature id (defaults to the feature already holding the uow)")
	recordCmd.Flags().StringVarP(&recordSummary, "summary", "s", "", "What was done")
	recordCmd.Flags().StringVar(&recordRequirement, "requirement", "", "What was asked for")
	recordCmd.Flags().StringVar(&recordRef, "ref", "", "Pull request or commit reference")
	recordCmd.Flags().Float64Var(&recordScore, "score", 0, "Effectiveness score, 0 to 1")
	recordCmd.Flags().StringVarP(&recordCategory, "category", "c", "", "Kind of work")
	recordCmd.Flags().StringVarP(&recordFormat, "format", "o", formatText, "Output format: text, json or yaml")
	_ = recordCmd.MarkFlagRequired("uow")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Maximum number of packs (0 for all)")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "o", formatText, "Output format: text, json or yaml")

	graphCmd.Flags().IntVarP(&graphLimit, "limit", "n", engine.DefaultGraphLimit, "Maximum entries per list")
	graphCmd.Flags().StringVarP(&graphFormat, "format", "o", formatText, "Output format: text, json or yaml")

	statsCmd.Flags().StringVarP(&statsFormat, "format", "o", formatText, "Output format: text, json or yaml")

	resolveCmd.Flags().StringVarP(&resolveFeature, "feature", "f", "", "Explicit feature hint")
	resolveCmd.Flags().StringVarP(&resolveDescription, "description", "d", "", "Free-text description; file paths in it are picked up")
}
