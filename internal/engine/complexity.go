package engine

import (
	"fmt"
	"math"

	"github.com/lazypower/mempack/internal/pack"
)

// ComplexityParams weigh the candidate's breadth against how much of it has
// been touched before.
type ComplexityParams struct {
	FileCount        float64 `json:"file_count"`
	Overlap          float64 `json:"overlap"`
	FileCountCeiling int     `json:"file_count_ceiling"`
}

// DefaultComplexity returns 0.6 file count, 0.4 overlap, ceiling 10.
func DefaultComplexity() ComplexityParams {
	return ComplexityParams{FileCount: 0.6, Overlap: 0.4, FileCountCeiling: 10}
}

func (c ComplexityParams) Validate() error {
	if c.FileCount < 0 || c.Overlap < 0 {
		return fmt.Errorf("complexity weights must be >= 0")
	}
	if c.FileCountCeiling <= 0 {
		return fmt.Errorf("file_count_ceiling must be > 0, got %d", c.FileCountCeiling)
	}
	return nil
}

// Score returns clamp(FileCount*min(1, n/ceiling) + Overlap*fraction, 0, 1)
// where fraction is the share of candidate files any other pack in history
// already touched.
func (c ComplexityParams) Score(cand Candidate, history []pack.Pack) float64 {
	files := pathSet(cand.Files)
	if len(files) == 0 {
		return 0
	}

	ceiling := c.FileCountCeiling
	if ceiling <= 0 {
		ceiling = DefaultComplexity().FileCountCeiling
	}
	breadth := math.Min(1, float64(len(files))/float64(ceiling))

	touched := make(map[string]bool)
	for _, p := range history {
		if cand.UoWID != "" && p.UoWID == cand.UoWID {
			continue
		}
		for _, f := range p.Files {
			if n := normalizePath(f.Path); files[n] {
				touched[n] = true
			}
		}
	}
	fraction := float64(len(touched)) / float64(len(files))

	return clamp01(c.FileCount*breadth + c.Overlap*fraction)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
