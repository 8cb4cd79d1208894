package pack

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// SchemaVersion is the document schema version written by this package.
//
// Migration strategy: every document carries schema_version. Documents
// without it are version 0 (the legacy layout) and are rewritten into the
// current shape on read by migrateV0. A future version N adds a migrateVn-1
// step; the chain runs in order until the document reaches SchemaVersion.
// Documents from a newer, unknown version are rejected as malformed rather
// than half-understood.
const SchemaVersion = 1

// ErrNoDocuments is reported when a pack location holds no structured
// documents at all.
var ErrNoDocuments = errors.New("no documents")

// MalformedError reports a document that failed structural validation.
type MalformedError struct {
	FeatureID string
	UoWID     string
	Kind      Kind
	Err       error
}

func (e *MalformedError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("malformed pack %s/%s: %v", e.FeatureID, e.UoWID, e.Err)
	}
	return fmt.Sprintf("malformed pack %s/%s: %s: %v", e.FeatureID, e.UoWID, e.Kind, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

type summaryDoc struct {
	SchemaVersion int       `json:"schema_version"`
	FeatureID     string    `json:"feature_id"`
	UoWID         string    `json:"uow_id"`
	Category      string    `json:"category,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Requirement   string    `json:"requirement,omitempty"`
	Outcome       *Outcome  `json:"outcome,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type filesDoc struct {
	SchemaVersion int         `json:"schema_version"`
	Files         []FileEntry `json:"files"`
}

type graphDoc struct {
	SchemaVersion   int                 `json:"schema_version"`
	RelatedFeatures []string            `json:"related_features"`
	RelatedUoWs     []string            `json:"related_uows"`
	RelatedFiles    map[string][]string `json:"related_files,omitempty"`
	ComplexityScore float64             `json:"complexity_score"`
}

var knownKeys = map[Kind][]string{
	KindSummary: {"schema_version", "feature_id", "uow_id", "category", "summary", "requirement", "outcome", "created_at", "updated_at"},
	KindFiles:   {"schema_version", "files"},
	KindGraph:   {"schema_version", "related_features", "related_uows", "related_files", "complexity_score"},
}

// Decode builds a pack from its raw documents. Every structured document is
// decoded independently; the returned pack holds whatever decoded cleanly
// and the error (if any) joins one *MalformedError per bad document.
func Decode(featureID, uowID string, docs map[Kind][]byte, revision string) (Pack, error) {
	p := Pack{
		FeatureID: featureID,
		UoWID:     uowID,
		Revision:  revision,
		extra:     make(map[Kind]map[string]json.RawMessage),
	}

	present := 0
	var errs []error
	for _, kind := range DataKinds {
		data, ok := docs[kind]
		if !ok {
			continue
		}
		present++
		if err := p.decodeDoc(kind, data); err != nil {
			errs = append(errs, &MalformedError{FeatureID: featureID, UoWID: uowID, Kind: kind, Err: err})
		}
	}
	if present == 0 {
		return p, &MalformedError{FeatureID: featureID, UoWID: uowID, Err: ErrNoDocuments}
	}
	return p, errors.Join(errs...)
}

func (p *Pack) decodeDoc(kind Kind, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if raw == nil {
		return errors.New("document is not an object")
	}

	version := 0
	if v, ok := raw["schema_version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return fmt.Errorf("schema_version: %w", err)
		}
	}
	switch {
	case version < 0 || version > SchemaVersion:
		return fmt.Errorf("unsupported schema version %d", version)
	case version == 0:
		if err := migrateV0(kind, raw); err != nil {
			return fmt.Errorf("migrate v0: %w", err)
		}
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	switch kind {
	case KindSummary:
		var d summaryDoc
		if err := json.Unmarshal(body, &d); err != nil {
			return err
		}
		if err := validateSummary(&d); err != nil {
			return err
		}
		p.Category = d.Category
		p.Summary = d.Summary
		p.Requirement = d.Requirement
		p.Outcome = d.Outcome
		p.CreatedAt = d.CreatedAt
		p.UpdatedAt = d.UpdatedAt
	case KindFiles:
		var d filesDoc
		if err := json.Unmarshal(body, &d); err != nil {
			return err
		}
		files, err := validateFiles(d.Files)
		if err != nil {
			return err
		}
		p.Files = files
	case KindGraph:
		var d graphDoc
		if err := json.Unmarshal(body, &d); err != nil {
			return err
		}
		if err := validateUnit("complexity_score", d.ComplexityScore); err != nil {
			return err
		}
		p.Graph = Graph{
			RelatedFeatures: d.RelatedFeatures,
			RelatedUoWs:     d.RelatedUoWs,
			RelatedFiles:    d.RelatedFiles,
			ComplexityScore: d.ComplexityScore,
		}
	}

	if extra := unknownFields(kind, raw); len(extra) > 0 {
		p.extra[kind] = extra
	}
	return nil
}

func validateSummary(d *summaryDoc) error {
	if !d.CreatedAt.IsZero() && !d.UpdatedAt.IsZero() && d.UpdatedAt.Before(d.CreatedAt) {
		return fmt.Errorf("updated_at %s precedes created_at %s",
			d.UpdatedAt.Format(time.RFC3339), d.CreatedAt.Format(time.RFC3339))
	}
	if d.Outcome != nil && d.Outcome.EffectivenessScore != nil {
		if err := validateUnit("effectiveness_score", *d.Outcome.EffectivenessScore); err != nil {
			return err
		}
	}
	return nil
}

func validateFiles(files []FileEntry) ([]FileEntry, error) {
	seen := make(map[string]bool, len(files))
	out := make([]FileEntry, 0, len(files))
	for i, f := range files {
		if f.Path == "" {
			return nil, fmt.Errorf("files[%d]: empty path", i)
		}
		if f.SizeHint < 0 {
			return nil, fmt.Errorf("files[%d]: negative size_hint", i)
		}
		if f.ComplexityHint < 0 || math.IsNaN(f.ComplexityHint) || math.IsInf(f.ComplexityHint, 0) {
			return nil, fmt.Errorf("files[%d]: invalid complexity_hint", i)
		}
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		out = append(out, f)
	}
	return out, nil
}

func validateUnit(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s %v outside [0,1]", field, v)
	}
	return nil
}

func unknownFields(kind Kind, raw map[string]json.RawMessage) map[string]json.RawMessage {
	known := make(map[string]bool, len(knownKeys[kind]))
	for _, k := range knownKeys[kind] {
		known[k] = true
	}
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra
}

// Encode renders the pack's documents at the current schema version,
// including the human-readable digest.
func Encode(p Pack) (map[Kind][]byte, error) {
	docs := map[Kind]any{
		KindSummary: summaryDoc{
			SchemaVersion: SchemaVersion,
			FeatureID:     p.FeatureID,
			UoWID:         p.UoWID,
			Category:      p.Category,
			Summary:       p.Summary,
			Requirement:   p.Requirement,
			Outcome:       p.Outcome,
			CreatedAt:     p.CreatedAt,
			UpdatedAt:     p.UpdatedAt,
		},
		KindFiles: filesDoc{
			SchemaVersion: SchemaVersion,
			Files:         nonNilFiles(p.Files),
		},
		KindGraph: graphDoc{
			SchemaVersion:   SchemaVersion,
			RelatedFeatures: nonNilStrings(p.Graph.RelatedFeatures),
			RelatedUoWs:     nonNilStrings(p.Graph.RelatedUoWs),
			RelatedFiles:    p.Graph.RelatedFiles,
			ComplexityScore: p.Graph.ComplexityScore,
		},
	}

	out := make(map[Kind][]byte, len(docs)+1)
	for kind, doc := range docs {
		data, err := encodeDoc(doc, p.extra[kind])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", kind, err)
		}
		out[kind] = data
	}
	out[KindDigest] = Digest(p)
	return out, nil
}

func encodeDoc(doc any, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return json.MarshalIndent(doc, "", "  ")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.MarshalIndent(merged, "", "  ")
}

func nonNilFiles(files []FileEntry) []FileEntry {
	if files == nil {
		return []FileEntry{}
	}
	return files
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
