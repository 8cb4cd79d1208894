package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/mempack/internal/pack"
)

// Weights are the relative contributions of the three relevance signals.
type Weights struct {
	FileOverlap float64 `json:"file_overlap"`
	Recency     float64 `json:"recency"`
	Category    float64 `json:"category"`
}

// DefaultWeights returns 0.5 overlap, 0.3 recency, 0.2 category.
func DefaultWeights() Weights {
	return Weights{FileOverlap: 0.5, Recency: 0.3, Category: 0.2}
}

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"file_overlap", w.FileOverlap},
		{"recency", w.Recency},
		{"category", w.Category},
	} {
		if math.IsNaN(f.v) || f.v < 0 {
			return fmt.Errorf("weight %s must be >= 0, got %v", f.name, f.v)
		}
	}
	if sum := w.FileOverlap + w.Recency + w.Category; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

// Candidate is the unit of work being enriched.
type Candidate struct {
	UoWID    string
	Files    []string
	Category string
}

// Scored is a pack with its relevance breakdown.
type Scored struct {
	Pack          pack.Pack
	Score         float64
	Overlap       float64
	Recency       float64
	CategoryMatch bool
}

// Scorer ranks packs against a candidate.
type Scorer struct {
	Weights  Weights
	HalfLife time.Duration
}

// Score computes
//
//	score = w.FileOverlap*jaccard + w.Recency*recency + w.Category*same_category
//
// for every pack except the candidate's own, ordered by score desc, then
// updated_at desc, then uow id asc. The result depends only on its inputs.
func (s Scorer) Score(now time.Time, c Candidate, packs []pack.Pack) []Scored {
	files := pathSet(c.Files)

	out := make([]Scored, 0, len(packs))
	for _, p := range packs {
		if c.UoWID != "" && p.UoWID == c.UoWID {
			continue
		}
		sc := Scored{
			Pack:          p,
			Overlap:       jaccard(files, pathSet(p.FilePaths())),
			Recency:       Recency(now.Sub(p.UpdatedAt), s.HalfLife),
			CategoryMatch: sameCategory(c.Category, p.Category),
		}
		sc.Score = s.Weights.FileOverlap*sc.Overlap + s.Weights.Recency*sc.Recency
		if sc.CategoryMatch {
			sc.Score += s.Weights.Category
		}
		out = append(out, sc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Pack.UpdatedAt.Equal(b.Pack.UpdatedAt) {
			return a.Pack.UpdatedAt.After(b.Pack.UpdatedAt)
		}
		return a.Pack.UoWID < b.Pack.UoWID
	})
	return out
}

// jaccard is |a∩b| / |a∪b|; 0 when both are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for k := range a {
		if b[k] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

func pathSet(paths []string) map[string]bool {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		if n := normalizePath(p); n != "" {
			m[n] = true
		}
	}
	return m
}

func sameCategory(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}
