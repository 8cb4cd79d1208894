package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lazypower/mempack/internal/pack"
	"github.com/lazypower/mempack/internal/store"
)

// Loader discovers and decodes every pack of a feature.
type Loader struct {
	Store store.Store
	Log   *slog.Logger
}

// Load returns every valid pack of featureID in no particular order. A pack
// with a malformed document is skipped with a warning; an unknown feature
// yields an empty slice. Store failures propagate.
func (l Loader) Load(ctx context.Context, featureID string) ([]pack.Pack, error) {
	recs, err := l.Store.List(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", featureID, err)
	}

	out := make([]pack.Pack, 0, len(recs))
	for _, r := range recs {
		p, err := pack.Decode(r.FeatureID, r.UoWID, r.Docs, r.Revision)
		if err != nil {
			l.Log.Warn("skipping malformed pack", "feature", r.FeatureID, "uow", r.UoWID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
