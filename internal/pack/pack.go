// Package pack defines the memory pack: the persisted record of one unit of
// work (UoW) filed under a feature.
//
// A pack is stored as three independent JSON documents (summary, files,
// graph), each carrying its own schema_version. Decoding validates every
// document and migrates older versions; encoding preserves fields this
// version does not understand.
package pack

import (
	"encoding/json"
	"time"
)

// Uncategorized is the feature id used when no scope signal is available.
const Uncategorized = "uncategorized"

// Outcome status values.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
)

// FileEntry is one touched file with non-negative hints.
type FileEntry struct {
	Path           string  `json:"path" yaml:"path"`
	SizeHint       int64   `json:"size_hint" yaml:"size_hint"`
	ComplexityHint float64 `json:"complexity_hint" yaml:"complexity_hint"`
}

// Graph links a pack to other features, UoWs and files.
type Graph struct {
	RelatedFeatures []string            `json:"related_features" yaml:"related_features"`
	RelatedUoWs     []string            `json:"related_uows" yaml:"related_uows"`
	RelatedFiles    map[string][]string `json:"related_files,omitempty" yaml:"related_files,omitempty"`
	ComplexityScore float64             `json:"complexity_score" yaml:"complexity_score"`
}

// Outcome is the completion record of a UoW.
type Outcome struct {
	ExternalRef        string     `json:"external_ref,omitempty" yaml:"external_ref,omitempty"`
	EffectivenessScore *float64   `json:"effectiveness_score,omitempty" yaml:"effectiveness_score,omitempty"`
	Status             string     `json:"status,omitempty" yaml:"status,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Pack is the decoded, validated memory pack for one (feature, uow) pair.
type Pack struct {
	FeatureID   string      `json:"feature_id" yaml:"feature_id"`
	UoWID       string      `json:"uow_id" yaml:"uow_id"`
	Category    string      `json:"category,omitempty" yaml:"category,omitempty"`
	Summary     string      `json:"summary,omitempty" yaml:"summary,omitempty"`
	Requirement string      `json:"requirement,omitempty" yaml:"requirement,omitempty"`
	Files       []FileEntry `json:"files" yaml:"files"`
	Graph       Graph       `json:"graph" yaml:"graph"`
	Outcome     *Outcome    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"updated_at"`

	// Revision is the store revision the pack was read at. Empty for a pack
	// that has never been written.
	Revision string `json:"-" yaml:"-"`

	// extra holds unknown top-level fields per document kind so a rewrite
	// does not drop them.
	extra map[Kind]map[string]json.RawMessage
}

// FilePaths returns the pack's file paths in recorded order.
func (p *Pack) FilePaths() []string {
	paths := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// HasOutcome reports whether a completion record is present.
func (p *Pack) HasOutcome() bool {
	return p.Outcome != nil
}

// Kind names a persisted document of a pack.
type Kind string

const (
	KindSummary Kind = "summary"
	KindFiles   Kind = "files"
	KindGraph   Kind = "graph"

	// KindDigest is a human-readable rendering. It is written alongside the
	// structured documents and never read back.
	KindDigest Kind = "digest"
)

// DataKinds are the structured document kinds, in write order. Summary goes
// last so a reader that sees a fresh updated_at also sees fresh files.
var DataKinds = []Kind{KindFiles, KindGraph, KindSummary}

// Filename returns the on-disk file name of a document kind.
func (k Kind) Filename() string {
	switch k {
	case KindDigest:
		return "README.md"
	default:
		return string(k) + ".json"
	}
}

// KindFromFilename maps a file name back to its kind.
func KindFromFilename(name string) (Kind, bool) {
	switch name {
	case "summary.json":
		return KindSummary, true
	case "files.json":
		return KindFiles, true
	case "graph.json":
		return KindGraph, true
	case "README.md":
		return KindDigest, true
	}
	return "", false
}
