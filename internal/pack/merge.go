package pack

import (
	"encoding/json"
	"time"
)

// Patch is a partial pack. Nil pointers and empty collections mean "leave
// unchanged".
type Patch struct {
	Category    *string
	Summary     *string
	Requirement *string

	Files           []FileEntry
	RelatedFeatures []string
	RelatedUoWs     []string
	RelatedFiles    map[string][]string
	ComplexityScore *float64

	Outcome *OutcomePatch
}

// OutcomePatch updates individual outcome fields.
type OutcomePatch struct {
	ExternalRef        *string
	EffectivenessScore *float64
	Status             *string
	CompletedAt        *time.Time
}

// IsEmpty reports whether applying the patch would change nothing but
// timestamps.
func (p Patch) IsEmpty() bool {
	return p.Category == nil && p.Summary == nil && p.Requirement == nil &&
		len(p.Files) == 0 && len(p.RelatedFeatures) == 0 && len(p.RelatedUoWs) == 0 &&
		len(p.RelatedFiles) == 0 && p.ComplexityScore == nil && p.Outcome == nil
}

// Merge applies patch to base and returns the result. Scalars overwrite,
// collections union (existing entries are never dropped), created_at is set
// once and updated_at never moves backwards.
func Merge(base Pack, patch Patch, now time.Time) Pack {
	out := base

	if patch.Category != nil {
		out.Category = *patch.Category
	}
	if patch.Summary != nil {
		out.Summary = *patch.Summary
	}
	if patch.Requirement != nil {
		out.Requirement = *patch.Requirement
	}

	out.Files = mergeFiles(base.Files, patch.Files)
	out.Graph.RelatedFeatures = unionStrings(base.Graph.RelatedFeatures, patch.RelatedFeatures)
	out.Graph.RelatedUoWs = unionStrings(base.Graph.RelatedUoWs, patch.RelatedUoWs)
	out.Graph.RelatedFiles = mergeAdjacency(base.Graph.RelatedFiles, patch.RelatedFiles)
	if patch.ComplexityScore != nil {
		out.Graph.ComplexityScore = *patch.ComplexityScore
	}

	if patch.Outcome != nil {
		var o Outcome
		if base.Outcome != nil {
			o = *base.Outcome
		}
		if patch.Outcome.ExternalRef != nil {
			o.ExternalRef = *patch.Outcome.ExternalRef
		}
		if patch.Outcome.EffectivenessScore != nil {
			score := *patch.Outcome.EffectivenessScore
			o.EffectivenessScore = &score
		}
		if patch.Outcome.Status != nil {
			o.Status = *patch.Outcome.Status
		}
		if patch.Outcome.CompletedAt != nil {
			t := *patch.Outcome.CompletedAt
			o.CompletedAt = &t
		}
		out.Outcome = &o
	}

	now = now.UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	if now.After(out.UpdatedAt) {
		out.UpdatedAt = now
	}
	if out.UpdatedAt.Before(out.CreatedAt) {
		out.UpdatedAt = out.CreatedAt
	}
	return out
}

func mergeFiles(base, add []FileEntry) []FileEntry {
	out := make([]FileEntry, 0, len(base)+len(add))
	index := make(map[string]int, len(base)+len(add))
	for _, f := range base {
		if _, ok := index[f.Path]; ok {
			continue
		}
		index[f.Path] = len(out)
		out = append(out, f)
	}
	for _, f := range add {
		if f.Path == "" {
			continue
		}
		i, ok := index[f.Path]
		if !ok {
			index[f.Path] = len(out)
			out = append(out, f)
			continue
		}
		if f.SizeHint > 0 {
			out[i].SizeHint = f.SizeHint
		}
		if f.ComplexityHint > 0 {
			out[i].ComplexityHint = f.ComplexityHint
		}
	}
	return out
}

func unionStrings(base, add []string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]bool, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeAdjacency(base, add map[string][]string) map[string][]string {
	if len(base) == 0 && len(add) == 0 {
		return nil
	}
	out := make(map[string][]string, len(base)+len(add))
	for k, v := range base {
		out[k] = unionStrings(nil, v)
	}
	for k, v := range add {
		out[k] = unionStrings(out[k], v)
	}
	return out
}

// Extra returns the preserved unknown fields of a document kind.
func (p *Pack) Extra(kind Kind) map[string]json.RawMessage {
	return p.extra[kind]
}
