package server

import (
	"fmt"
	"strings"

	"github.com/lazypower/mempack/internal/engine"
)

// maxContextRuns caps the prior runs rendered into injected context.
const maxContextRuns = 5

// renderContext turns an envelope into the markdown block injected into an
// agent prompt.
func renderContext(env *engine.Envelope) string {
	var b strings.Builder

	b.WriteString("<context>\n")
	b.WriteString(fmt.Sprintf("## Memory: %s\n", env.FeatureID))
	b.WriteString(fmt.Sprintf("Complexity: %.2f\n", env.ComplexityScore))

	if len(env.ConnectedFeatures) > 0 {
		b.WriteString("\n### Connected Features\n")
		for _, f := range env.ConnectedFeatures {
			b.WriteString(fmt.Sprintf("- %s\n", f))
		}
	}

	runs := env.PriorRuns
	if len(runs) > maxContextRuns {
		runs = runs[:maxContextRuns]
	}
	if len(runs) > 0 {
		b.WriteString("\n### Prior Runs\n")
		for _, r := range runs {
			line := fmt.Sprintf("- %s (score %.2f", r.UoWID, r.Score)
			if r.Outcome != nil {
				if r.Outcome.EffectivenessScore != nil {
					line += fmt.Sprintf(", effectiveness %.2f", *r.Outcome.EffectivenessScore)
				}
				if r.Outcome.ExternalRef != "" {
					line += ", " + r.Outcome.ExternalRef
				}
			}
			line += ")"
			if r.Summary != "" {
				line += ": " + firstLine(r.Summary)
			}
			b.WriteString(line + "\n")
		}
	} else if len(env.RelatedNodes) > 0 {
		b.WriteString("\n### Related Work\n")
		b.WriteString(strings.Join(env.RelatedNodes, ", ") + "\n")
	}

	if len(env.FileHints) > 0 {
		b.WriteString("\n### File Notes\n")
		for _, h := range env.FileHints {
			b.WriteString(fmt.Sprintf("- `%s`: %s\n", h.Path, h.Note))
		}
	}

	b.WriteString("</context>")
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
