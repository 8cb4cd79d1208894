package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lazypower/mempack/internal/pack"
	"github.com/lazypower/mempack/internal/store"
)

// DefaultGraphLimit caps each list in a FeatureGraph.
const DefaultGraphLimit = 10

// LinkCount is a feature or file and the number of packs that mention it.
type LinkCount struct {
	ID    string `json:"id" yaml:"id"`
	Count int    `json:"count" yaml:"count"`
}

// FileLink is a related-files edge and the number of packs recording it.
type FileLink struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Count int    `json:"count" yaml:"count"`
}

// FeatureGraph aggregates the graph documents of one feature's packs.
type FeatureGraph struct {
	FeatureID         string      `json:"feature_id" yaml:"feature_id"`
	Packs             int         `json:"packs" yaml:"packs"`
	ConnectedFeatures []LinkCount `json:"connected_features" yaml:"connected_features"`
	Files             []LinkCount `json:"files" yaml:"files"`
	FileLinks         []FileLink  `json:"file_links" yaml:"file_links"`
}

// FeatureGraph returns the features most often linked from featureID's
// packs, its most frequently touched files and the strongest file links.
// Each list is ordered by count, then id, and cut to limit entries
// (DefaultGraphLimit when limit <= 0). Malformed packs are skipped.
func (e *Engine) FeatureGraph(ctx context.Context, featureID string, limit int) (*FeatureGraph, error) {
	if err := store.ValidID(featureID); err != nil {
		return nil, fmt.Errorf("%w: feature: %v", ErrInvalidInput, err)
	}
	if limit <= 0 {
		limit = DefaultGraphLimit
	}
	packs, err := e.loader.Load(ctx, featureID)
	if err != nil {
		return nil, err
	}

	features := map[string]int{}
	files := map[string]int{}
	links := map[[2]string]int{}
	for _, p := range packs {
		for _, f := range uniq(p.Graph.RelatedFeatures) {
			if f != featureID {
				features[f]++
			}
		}
		for _, f := range uniq(p.FilePaths()) {
			files[f]++
		}
		for from, tos := range p.Graph.RelatedFiles {
			for _, to := range uniq(tos) {
				links[[2]string{from, to}]++
			}
		}
	}

	g := &FeatureGraph{
		FeatureID:         featureID,
		Packs:             len(packs),
		ConnectedFeatures: topCounts(features, limit),
		Files:             topCounts(files, limit),
		FileLinks:         []FileLink{},
	}
	for k, n := range links {
		g.FileLinks = append(g.FileLinks, FileLink{From: k[0], To: k[1], Count: n})
	}
	sort.Slice(g.FileLinks, func(i, j int) bool {
		a, b := g.FileLinks[i], g.FileLinks[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	if len(g.FileLinks) > limit {
		g.FileLinks = g.FileLinks[:limit]
	}
	return g, nil
}

func topCounts(m map[string]int, limit int) []LinkCount {
	out := make([]LinkCount, 0, len(m))
	for id, n := range m {
		out = append(out, LinkCount{ID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func uniq(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := ss[:0:0]
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// FeatureStats counts one feature's packs.
type FeatureStats struct {
	FeatureID   string     `json:"feature_id" yaml:"feature_id"`
	Packs       int        `json:"packs" yaml:"packs"`
	Completed   int        `json:"completed" yaml:"completed"`
	Malformed   int        `json:"malformed" yaml:"malformed"`
	LastUpdated *time.Time `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
}

// Stats summarises the whole store.
type Stats struct {
	Features    int            `json:"features" yaml:"features"`
	Packs       int            `json:"packs" yaml:"packs"`
	Completed   int            `json:"completed" yaml:"completed"`
	Malformed   int            `json:"malformed" yaml:"malformed"`
	PerFeature  []FeatureStats `json:"per_feature" yaml:"per_feature"`
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
}

// Stats walks every feature and counts its packs. Malformed packs are
// counted separately and are not part of Packs.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	features, err := e.store.ListFeatures(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{PerFeature: []FeatureStats{}, GeneratedAt: e.now().UTC()}
	for _, f := range features {
		recs, err := e.store.List(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("stats %s: %w", f, err)
		}
		fs := FeatureStats{FeatureID: f}
		for _, r := range recs {
			p, err := pack.Decode(r.FeatureID, r.UoWID, r.Docs, r.Revision)
			if err != nil {
				fs.Malformed++
				continue
			}
			fs.Packs++
			if p.HasOutcome() {
				fs.Completed++
			}
			if fs.LastUpdated == nil || p.UpdatedAt.After(*fs.LastUpdated) {
				updated := p.UpdatedAt
				fs.LastUpdated = &updated
			}
		}
		st.Packs += fs.Packs
		st.Completed += fs.Completed
		st.Malformed += fs.Malformed
		st.PerFeature = append(st.PerFeature, fs)
	}
	st.Features = len(st.PerFeature)
	return st, nil
}
