package pack

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Digest renders a human-readable markdown view of the pack. It only lays
// out caller-supplied data; nothing is summarised.
func Digest(p Pack) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s - %s\n\n", p.FeatureID, p.UoWID)

	if p.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n\n", p.Category)
	}
	if p.Requirement != "" {
		fmt.Fprintf(&b, "## Requirement\n%s\n\n", strings.TrimSpace(p.Requirement))
	}
	if p.Summary != "" {
		fmt.Fprintf(&b, "## Summary\n%s\n\n", strings.TrimSpace(p.Summary))
	}

	b.WriteString("## Files Involved\n")
	if len(p.Files) == 0 {
		b.WriteString("None recorded\n")
	}
	for _, f := range p.Files {
		fmt.Fprintf(&b, "- %s\n", f.Path)
	}

	fmt.Fprintf(&b, "\n## Complexity Score\n%.2f\n", p.Graph.ComplexityScore)

	b.WriteString("\n## Connected Features\n")
	if len(p.Graph.RelatedFeatures) == 0 {
		b.WriteString("None detected\n")
	} else {
		b.WriteString(strings.Join(p.Graph.RelatedFeatures, ", ") + "\n")
	}

	if len(p.Graph.RelatedFiles) > 0 {
		b.WriteString("\n## Related Files\n")
		keys := make([]string, 0, len(p.Graph.RelatedFiles))
		for k := range p.Graph.RelatedFiles {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s ↔ %s\n", k, strings.Join(p.Graph.RelatedFiles[k], ", "))
		}
	}

	if o := p.Outcome; o != nil {
		b.WriteString("\n## Outcome\n")
		if o.Status != "" {
			fmt.Fprintf(&b, "- status: %s\n", o.Status)
		}
		if o.ExternalRef != "" {
			fmt.Fprintf(&b, "- ref: %s\n", o.ExternalRef)
		}
		if o.EffectivenessScore != nil {
			fmt.Fprintf(&b, "- effectiveness: %.2f\n", *o.EffectivenessScore)
		}
		if o.CompletedAt != nil {
			fmt.Fprintf(&b, "- completed: %s\n", o.CompletedAt.Format(time.RFC3339))
		}
	}
	return b.Bytes()
}
