package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/mempack/internal/engine"
	"github.com/lazypower/mempack/internal/pack"
)

// Output formats shared by the inspection commands.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	idStyle    = lipgloss.NewStyle().Bold(true)
)

// now is swapped in tests so relative times are stable.
var now = time.Now

// writeFormatted encodes v as json or yaml, or calls text for the text format.
func writeFormatted(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatText, "":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func renderEnvelope(w io.Writer, env *engine.Envelope) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Memory:"), env.FeatureID)
	fmt.Fprintf(w, "%s %.2f\n", labelStyle.Render("complexity"), env.ComplexityScore)

	if len(env.ConnectedFeatures) > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("connected"), strings.Join(env.ConnectedFeatures, ", "))
	}

	if len(env.PriorRuns) > 0 {
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Prior runs"))
		for _, r := range env.PriorRuns {
			fmt.Fprintf(w, "  %s %s %s", scoreStyle.Render(fmt.Sprintf("%.3f", r.Score)), idStyle.Render(r.UoWID), labelStyle.Render(humanize.RelTime(r.UpdatedAt, now(), "ago", "from now")))
			if r.Outcome != nil && r.Outcome.ExternalRef != "" {
				fmt.Fprintf(w, " %s", r.Outcome.ExternalRef)
			}
			fmt.Fprintln(w)
			if r.Summary != "" {
				fmt.Fprintf(w, "    %s\n", firstLine(r.Summary))
			}
		}
	} else if len(env.RelatedNodes) > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("related"), strings.Join(env.RelatedNodes, ", "))
	} else {
		fmt.Fprintf(w, "%s\n", labelStyle.Render("no prior work"))
	}

	if len(env.FileHints) > 0 {
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Files"))
		for _, h := range env.FileHints {
			fmt.Fprintf(w, "  %s  %s\n", h.Path, labelStyle.Render(h.Note))
		}
	}
}

func renderHistory(w io.Writer, featureID string, packs []pack.Pack) {
	if len(packs) == 0 {
		fmt.Fprintf(w, "No recorded work for %s.\n", featureID)
		return
	}
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(featureID), labelStyle.Render(humanize.Comma(int64(len(packs)))+" "+plural(len(packs), "pack")))
	for _, p := range packs {
		fmt.Fprintf(w, "  %s %s", idStyle.Render(p.UoWID), labelStyle.Render(humanize.RelTime(p.UpdatedAt, now(), "ago", "from now")))
		if p.Category != "" {
			fmt.Fprintf(w, " [%s]", p.Category)
		}
		if p.Outcome != nil && p.Outcome.EffectivenessScore != nil {
			fmt.Fprintf(w, " %s", scoreStyle.Render(fmt.Sprintf("%.2f", *p.Outcome.EffectivenessScore)))
		}
		fmt.Fprintln(w)
		if p.Summary != "" {
			fmt.Fprintf(w, "    %s\n", firstLine(p.Summary))
		}
		fmt.Fprintf(w, "    %s\n", labelStyle.Render(fmt.Sprintf("%d %s", len(p.Files), plural(len(p.Files), "file"))))
	}
}

func renderPack(w io.Writer, p *pack.Pack) {
	fmt.Fprintf(w, "%s %s/%s\n", titleStyle.Render("Pack:"), p.FeatureID, p.UoWID)
	if p.Outcome != nil {
		fmt.Fprintf(w, "%s %s", labelStyle.Render("outcome"), p.Outcome.Status)
		if p.Outcome.EffectivenessScore != nil {
			fmt.Fprintf(w, " %s", scoreStyle.Render(fmt.Sprintf("%.2f", *p.Outcome.EffectivenessScore)))
		}
		if p.Outcome.ExternalRef != "" {
			fmt.Fprintf(w, " %s", p.Outcome.ExternalRef)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("files"), strings.Join(p.FilePaths(), ", "))
}

func renderGraph(w io.Writer, g *engine.FeatureGraph) {
	fmt.Fprintf(w, "%s %s %s\n", titleStyle.Render("Graph:"), g.FeatureID, labelStyle.Render(humanize.Comma(int64(g.Packs))+" "+plural(g.Packs, "pack")))
	if g.Packs == 0 {
		fmt.Fprintf(w, "%s\n", labelStyle.Render("no prior work"))
		return
	}

	if len(g.ConnectedFeatures) > 0 {
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Connected features"))
		for _, f := range g.ConnectedFeatures {
			fmt.Fprintf(w, "  %s %s\n", scoreStyle.Render(fmt.Sprintf("%3d", f.Count)), idStyle.Render(f.ID))
		}
	}
	if len(g.Files) > 0 {
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Files"))
		for _, f := range g.Files {
			fmt.Fprintf(w, "  %s %s\n", scoreStyle.Render(fmt.Sprintf("%3d", f.Count)), f.ID)
		}
	}
	if len(g.FileLinks) > 0 {
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Linked files"))
		for _, l := range g.FileLinks {
			fmt.Fprintf(w, "  %s %s %s %s\n", scoreStyle.Render(fmt.Sprintf("%3d", l.Count)), l.From, labelStyle.Render("->"), l.To)
		}
	}
}

func renderStats(w io.Writer, st *engine.Stats) {
	if st.Features == 0 {
		fmt.Fprintln(w, "No features recorded yet.")
		return
	}
	fmt.Fprintf(w, "%s %s across %s, %s completed\n",
		titleStyle.Render("Memory:"),
		humanize.Comma(int64(st.Packs))+" "+plural(st.Packs, "pack"),
		humanize.Comma(int64(st.Features))+" "+plural(st.Features, "feature"),
		humanize.Comma(int64(st.Completed)))
	if st.Malformed > 0 {
		fmt.Fprintf(w, "%s %d\n", labelStyle.Render("malformed"), st.Malformed)
	}
	for _, f := range st.PerFeature {
		fmt.Fprintf(w, "  %s %s", idStyle.Render(f.FeatureID), labelStyle.Render(fmt.Sprintf("%d/%d completed", f.Completed, f.Packs)))
		if f.LastUpdated != nil {
			fmt.Fprintf(w, " %s", labelStyle.Render(humanize.RelTime(*f.LastUpdated, now(), "ago", "from now")))
		}
		fmt.Fprintln(w)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
