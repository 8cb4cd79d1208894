package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lazypower/mempack/internal/events"
	"github.com/lazypower/mempack/internal/pack"
	"github.com/lazypower/mempack/internal/store"
)

// DefaultMaxAttempts bounds read-merge-write retries on revision conflicts.
const DefaultMaxAttempts = 3

// PersistenceError is returned when a pack could not be written.
type PersistenceError struct {
	FeatureID string
	UoWID     string
	Attempts  int
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist pack %s/%s after %d attempts: %v", e.FeatureID, e.UoWID, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Writer applies patches to packs with read, merge and compare-and-swap.
type Writer struct {
	Store       store.Store
	Events      events.Publisher
	Log         *slog.Logger
	MaxAttempts int
	Now         func() time.Time
}

// Record merges patch into the (feature, uow) pack and returns the written
// pack. A malformed existing document is logged and replaced by the merge of
// whatever still decoded.
func (w *Writer) Record(ctx context.Context, featureID, uowID string, patch pack.Patch) (*pack.Pack, error) {
	attempts := w.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base, err := w.read(ctx, featureID, uowID)
		if err != nil {
			return nil, err
		}

		merged := pack.Merge(base, patch, w.now())
		docs, err := pack.Encode(merged)
		if err != nil {
			return nil, fmt.Errorf("encode pack %s/%s: %w", featureID, uowID, err)
		}

		rec := &store.Record{FeatureID: featureID, UoWID: uowID, Docs: docs, Revision: base.Revision}
		err = w.Store.Put(ctx, rec)
		if errors.Is(err, store.ErrConflict) {
			lastErr = err
			w.Log.Debug("pack write conflict", "feature", featureID, "uow", uowID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, &PersistenceError{FeatureID: featureID, UoWID: uowID, Attempts: attempt, Err: err}
		}

		merged.Revision = rec.Revision
		w.publish(ctx, &merged)
		return &merged, nil
	}

	w.Log.Error("giving up on pack write", "feature", featureID, "uow", uowID, "attempts", attempts)
	return nil, &PersistenceError{FeatureID: featureID, UoWID: uowID, Attempts: attempts, Err: lastErr}
}

func (w *Writer) read(ctx context.Context, featureID, uowID string) (pack.Pack, error) {
	rec, err := w.Store.Get(ctx, featureID, uowID)
	if errors.Is(err, store.ErrNotFound) {
		return pack.Pack{FeatureID: featureID, UoWID: uowID}, nil
	}
	if err != nil {
		return pack.Pack{}, err
	}

	p, err := pack.Decode(featureID, uowID, rec.Docs, rec.Revision)
	if err != nil {
		w.Log.Warn("rewriting malformed pack", "feature", featureID, "uow", uowID, "error", err)
	}
	p.Revision = rec.Revision
	return p, nil
}

func (w *Writer) publish(ctx context.Context, p *pack.Pack) {
	if w.Events == nil {
		return
	}
	ev := events.NewPackUpdated(p.FeatureID, p.UoWID, p.Revision, w.now())
	if p.Outcome != nil {
		ev.Completed = p.Outcome.Status == pack.StatusCompleted
		ev.EffectivenessScore = p.Outcome.EffectivenessScore
	}
	if err := w.Events.PublishPackUpdated(ctx, ev); err != nil {
		w.Log.Warn("publish pack event failed", "feature", p.FeatureID, "uow", p.UoWID, "error", err)
	}
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
