package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lazypower/mempack/internal/events"
	"github.com/lazypower/mempack/internal/logger"
	"github.com/lazypower/mempack/internal/pack"
	"github.com/lazypower/mempack/internal/store"
)

// Options configure an Engine. Zero values take the package defaults.
type Options struct {
	Weights     Weights
	HalfLife    time.Duration
	Complexity  ComplexityParams
	TopN        int
	MaxAttempts int
	Hints       *HintTable
	Events      events.Publisher
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine orchestrates scope resolution, ranking, envelope assembly and
// completion writes over a Store.
type Engine struct {
	store      store.Store
	loader     Loader
	writer     *Writer
	hints      *HintTable
	complexity ComplexityParams
	topN       int
	log        *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	scorer Scorer
}

// New creates an Engine over s.
func New(s store.Store, opts Options) (*Engine, error) {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.Complexity == (ComplexityParams{}) {
		opts.Complexity = DefaultComplexity()
	}
	if err := opts.Complexity.Validate(); err != nil {
		return nil, err
	}
	if opts.HalfLife <= 0 {
		opts.HalfLife = DefaultHalfLife
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Hints == nil {
		opts.Hints = MustDefaultHints()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		store:  s,
		loader: Loader{Store: s, Log: opts.Logger},
		writer: &Writer{
			Store:       s,
			Events:      opts.Events,
			Log:         opts.Logger,
			MaxAttempts: opts.MaxAttempts,
			Now:         opts.Now,
		},
		hints:      opts.Hints,
		complexity: opts.Complexity,
		topN:       opts.TopN,
		log:        opts.Logger,
		now:        opts.Now,
		scorer:     Scorer{Weights: opts.Weights, HalfLife: opts.HalfLife},
	}, nil
}

// SetScoring swaps the relevance weights and half-life of a running engine.
func (e *Engine) SetScoring(w Weights, halfLife time.Duration) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	e.mu.Lock()
	e.scorer = Scorer{Weights: w, HalfLife: halfLife}
	e.mu.Unlock()
	return nil
}

// Scoring returns the active scorer.
func (e *Engine) Scoring() Scorer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scorer
}

// EnrichRequest describes a unit of work about to start.
type EnrichRequest struct {
	FeatureHint string   `json:"feature_hint,omitempty"`
	UoWID       string   `json:"uow_id,omitempty"`
	Files       []string `json:"files,omitempty"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Enrich resolves the feature, ranks its history and assembles the envelope.
// When the request names a UoW, that UoW's pack is seeded with the touched
// files and derived graph; a failed seed is logged, not returned.
func (e *Engine) Enrich(ctx context.Context, req EnrichRequest) (*Envelope, error) {
	files := normalizePaths(append(append([]string{}, req.Files...), FilesFromText(req.Description)...))
	category := cleanText(e.log, "category", req.Category, maxCategoryChars)

	// Ids the store cannot key on degrade the request instead of failing it.
	uowID := req.UoWID
	if uowID != "" {
		if err := store.ValidID(uowID); err != nil {
			e.log.Warn("ignoring unusable uow id", "uow", uowID, "error", err)
			uowID = ""
		}
	}

	hint := req.FeatureHint
	if strings.TrimSpace(hint) == "" && uowID != "" {
		existing, err := e.locate(ctx, uowID)
		if err != nil {
			return nil, err
		}
		hint = existing
	}

	featureID := Resolve(hint, files)
	if err := store.ValidID(featureID); err != nil {
		e.log.Warn("feature cannot be stored, returning empty envelope", "feature", featureID, "error", err)
		return EmptyEnvelope(featureID), nil
	}

	packs, err := e.loader.Load(ctx, featureID)
	if err != nil {
		return nil, err
	}

	cand := Candidate{UoWID: uowID, Files: files, Category: category}
	scored := e.Scoring().Score(e.now(), cand, packs)
	complexity := e.complexity.Score(cand, packs)
	env := Assembler{Hints: e.hints, TopN: e.topN}.Assemble(featureID, cand, scored, complexity)

	e.log.Debug("enriched", "feature", featureID, "uow", uowID, "history", len(packs), "related", len(env.RelatedNodes))

	if uowID != "" {
		if _, err := e.writer.Record(ctx, featureID, uowID, e.seedPatch(featureID, cand, env)); err != nil {
			e.log.Warn("seeding pack failed", "feature", featureID, "uow", uowID, "error", err)
		}
	}
	return env, nil
}

func (e *Engine) seedPatch(featureID string, c Candidate, env *Envelope) pack.Patch {
	entries := make([]pack.FileEntry, 0, len(c.Files))
	for _, f := range c.Files {
		entries = append(entries, pack.FileEntry{Path: f, ComplexityHint: e.hints.ComplexityHint(f)})
	}
	related := e.hints.Features(c.Files, featureID)
	related = append(related, env.ConnectedFeatures...)
	complexity := env.ComplexityScore

	patch := pack.Patch{
		Files:           entries,
		RelatedFeatures: related,
		RelatedUoWs:     env.RelatedNodes,
		RelatedFiles:    heuristicLinks(c.Files, e.hints),
		ComplexityScore: &complexity,
	}
	if c.Category != "" {
		patch.Category = &c.Category
	}
	return patch
}

// CompletionRequest records the outcome of a unit of work.
type CompletionRequest struct {
	FeatureID          string   `json:"feature_id,omitempty"`
	UoWID              string   `json:"uow_id"`
	Summary            string   `json:"summary,omitempty"`
	Requirement        string   `json:"requirement,omitempty"`
	ExternalRef        string   `json:"external_ref,omitempty"`
	EffectivenessScore *float64 `json:"effectiveness_score,omitempty"`
	Category           string   `json:"category,omitempty"`
}

// RecordCompletion merges a completion into the UoW's pack. Without a
// feature id the UoW's existing feature is used, falling back to
// uncategorized. An outcome is only recorded when a reference or a score is
// supplied.
func (e *Engine) RecordCompletion(ctx context.Context, req CompletionRequest) (*pack.Pack, error) {
	if err := store.ValidID(req.UoWID); err != nil {
		return nil, fmt.Errorf("%w: uow: %v", ErrInvalidInput, err)
	}
	if err := validateScore(req.EffectivenessScore); err != nil {
		return nil, err
	}

	featureID := req.FeatureID
	if strings.TrimSpace(featureID) == "" {
		existing, err := e.locate(ctx, req.UoWID)
		if err != nil {
			return nil, err
		}
		featureID = existing
	}
	if featureID == "" {
		featureID = pack.Uncategorized
	}
	if err := store.ValidID(featureID); err != nil {
		return nil, fmt.Errorf("%w: feature: %v", ErrInvalidInput, err)
	}

	var patch pack.Patch
	if s := cleanText(e.log, "summary", req.Summary, maxSummaryChars); s != "" {
		patch.Summary = &s
	}
	if r := cleanText(e.log, "requirement", req.Requirement, maxRequirementChars); r != "" {
		patch.Requirement = &r
	}
	if c := cleanText(e.log, "category", req.Category, maxCategoryChars); c != "" {
		patch.Category = &c
	}
	if ref := strings.TrimSpace(req.ExternalRef); ref != "" || req.EffectivenessScore != nil {
		status := pack.StatusCompleted
		now := e.now().UTC()
		patch.Outcome = &pack.OutcomePatch{Status: &status, CompletedAt: &now}
		if ref != "" {
			patch.Outcome.ExternalRef = &ref
		}
		if req.EffectivenessScore != nil {
			score := *req.EffectivenessScore
			patch.Outcome.EffectivenessScore = &score
		}
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: completion for %s carries nothing to record", ErrInvalidInput, req.UoWID)
	}

	p, err := e.writer.Record(ctx, featureID, req.UoWID, patch)
	if err != nil {
		return nil, err
	}
	e.log.Info("recorded completion", "feature", featureID, "uow", req.UoWID, "completed", p.HasOutcome())
	return p, nil
}

// History returns every valid pack of a feature, most recently updated first.
func (e *Engine) History(ctx context.Context, featureID string) ([]pack.Pack, error) {
	if err := store.ValidID(featureID); err != nil {
		return nil, fmt.Errorf("%w: feature: %v", ErrInvalidInput, err)
	}
	packs, err := e.loader.Load(ctx, featureID)
	if err != nil {
		return nil, err
	}
	sort.Slice(packs, func(i, j int) bool {
		if !packs[i].UpdatedAt.Equal(packs[j].UpdatedAt) {
			return packs[i].UpdatedAt.After(packs[j].UpdatedAt)
		}
		return packs[i].UoWID < packs[j].UoWID
	})
	return packs, nil
}

// Features lists every feature with at least one pack.
func (e *Engine) Features(ctx context.Context) ([]string, error) {
	return e.store.ListFeatures(ctx)
}

// Pack returns one decoded pack. A malformed pack is returned alongside its
// *pack.MalformedError so callers can show what survived.
func (e *Engine) Pack(ctx context.Context, featureID, uowID string) (*pack.Pack, error) {
	rec, err := e.store.Get(ctx, featureID, uowID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidID) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}
	p, err := pack.Decode(featureID, uowID, rec.Docs, rec.Revision)
	return &p, err
}

// locate returns the feature already holding uowID, or "" when none does.
func (e *Engine) locate(ctx context.Context, uowID string) (string, error) {
	if err := store.ValidID(uowID); err != nil {
		return "", fmt.Errorf("%w: uow: %v", ErrInvalidInput, err)
	}
	where, err := e.store.Locate(ctx, uowID)
	if err != nil {
		return "", err
	}
	if len(where) == 0 {
		return "", nil
	}
	if len(where) > 1 {
		e.log.Warn("uow filed under several features", "uow", uowID, "features", where, "using", where[0])
	}
	return where[0], nil
}
