package engine

import (
	"strings"
	"time"

	"github.com/lazypower/mempack/internal/pack"
)

// DefaultTopN is the number of prior packs an envelope carries.
const DefaultTopN = 5

// PriorRun projects a selected pack into the envelope.
type PriorRun struct {
	UoWID     string        `json:"uow_id" yaml:"uow_id"`
	Score     float64       `json:"score" yaml:"score"`
	Category  string        `json:"category,omitempty" yaml:"category,omitempty"`
	Summary   string        `json:"summary,omitempty" yaml:"summary,omitempty"`
	Outcome   *pack.Outcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Files     []string      `json:"files" yaml:"files"`
	UpdatedAt time.Time     `json:"updated_at" yaml:"updated_at"`
}

// FileHint is guidance for one candidate file.
type FileHint struct {
	Path string `json:"path" yaml:"path"`
	Note string `json:"note" yaml:"note"`
}

// Envelope is the transient context bundle handed to the caller. It is never
// persisted.
type Envelope struct {
	FeatureID         string     `json:"feature_id" yaml:"feature_id"`
	RelatedNodes      []string   `json:"related_nodes" yaml:"related_nodes"`
	ConnectedFeatures []string   `json:"connected_features" yaml:"connected_features"`
	PriorRuns         []PriorRun `json:"prior_runs" yaml:"prior_runs"`
	FileHints         []FileHint `json:"file_hints" yaml:"file_hints"`
	ComplexityScore   float64    `json:"complexity_score" yaml:"complexity_score"`
}

// EmptyEnvelope is the valid result for a feature with no history.
func EmptyEnvelope(featureID string) *Envelope {
	return &Envelope{
		FeatureID:         featureID,
		RelatedNodes:      []string{},
		ConnectedFeatures: []string{},
		PriorRuns:         []PriorRun{},
		FileHints:         []FileHint{},
	}
}

// Assembler builds envelopes from ranked packs.
type Assembler struct {
	Hints *HintTable
	TopN  int
}

// Assemble takes the top N of scored (already ordered) and builds the
// envelope. It does no I/O.
func (a Assembler) Assemble(featureID string, c Candidate, scored []Scored, complexity float64) *Envelope {
	env := EmptyEnvelope(featureID)
	env.ComplexityScore = clamp01(complexity)

	n := a.TopN
	if n <= 0 {
		n = DefaultTopN
	}
	if len(scored) > n {
		scored = scored[:n]
	}

	anyOutcome := false
	seenFeature := map[string]bool{featureID: true}
	for _, s := range scored {
		env.RelatedNodes = append(env.RelatedNodes, s.Pack.UoWID)
		for _, f := range s.Pack.Graph.RelatedFeatures {
			if seenFeature[f] {
				continue
			}
			seenFeature[f] = true
			env.ConnectedFeatures = append(env.ConnectedFeatures, f)
		}
		if s.Pack.HasOutcome() {
			anyOutcome = true
		}
	}

	// Prior runs are omitted when no selected pack has an outcome.
	if anyOutcome {
		for _, s := range scored {
			env.PriorRuns = append(env.PriorRuns, PriorRun{
				UoWID:     s.Pack.UoWID,
				Score:     s.Score,
				Category:  s.Pack.Category,
				Summary:   s.Pack.Summary,
				Outcome:   s.Pack.Outcome,
				Files:     s.Pack.FilePaths(),
				UpdatedAt: s.Pack.UpdatedAt,
			})
		}
	}

	env.FileHints = a.fileHints(c.Files, scored)
	return env
}

func (a Assembler) fileHints(files []string, selected []Scored) []FileHint {
	touchedBy := make(map[string][]string)
	for _, s := range selected {
		for _, f := range s.Pack.Files {
			p := normalizePath(f.Path)
			touchedBy[p] = append(touchedBy[p], s.Pack.UoWID)
		}
	}

	out := []FileHint{}
	for _, f := range normalizePaths(files) {
		notes := a.Hints.Notes(f)
		if uows := touchedBy[f]; len(uows) > 0 {
			notes = append(notes, "Previously modified in "+strings.Join(uows, ", "))
		}
		if len(notes) == 0 {
			continue
		}
		out = append(out, FileHint{Path: f, Note: strings.Join(notes, "; ")})
	}
	return out
}
