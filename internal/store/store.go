// Package store persists memory pack documents keyed by (feature, uow).
//
// Backends treat documents as opaque bytes; decoding and validation belong to
// the pack package. Every backend implements the same revision
// compare-and-swap contract so the writer can retry lost updates.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lazypower/mempack/internal/pack"
)

var (
	// ErrNotFound is returned by Get when no pack exists at the location.
	ErrNotFound = errors.New("pack not found")

	// ErrConflict is returned by Put when the pack changed since it was read.
	ErrConflict = errors.New("revision conflict")

	// ErrUnavailable wraps backend failures (I/O, connection, permissions).
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidID is returned for feature or uow ids that cannot be used as
	// a storage key.
	ErrInvalidID = errors.New("invalid id")
)

// Record is the raw persisted form of one pack.
type Record struct {
	FeatureID string
	UoWID     string
	Docs      map[pack.Kind][]byte

	// Revision is the opaque token the record was read at. Empty means the
	// pack did not exist.
	Revision string
}

// Store is the persistence contract shared by all backends.
type Store interface {
	// ListFeatures returns every feature id holding at least one pack, sorted.
	ListFeatures(ctx context.Context) ([]string, error)

	// List returns every pack record of a feature. An unknown feature yields
	// an empty slice.
	List(ctx context.Context, featureID string) ([]Record, error)

	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, featureID, uowID string) (*Record, error)

	// Locate returns the features that hold a pack for uowID, sorted.
	Locate(ctx context.Context, uowID string) ([]string, error)

	// Put replaces the pack's documents if rec.Revision still matches the
	// stored revision ("" for a pack that must not exist yet). On success
	// rec.Revision is set to the new revision; otherwise ErrConflict.
	Put(ctx context.Context, rec *Record) error

	Close() error
}

const maxIDLen = 200

// ValidID reports whether id is usable as a feature or uow key on every
// backend. Separators such as "/" are allowed; the filesystem backend escapes
// them.
func ValidID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case len(id) > maxIDLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, maxIDLen)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.ContainsRune(id, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidID, id)
	}
	return nil
}

func validKey(featureID, uowID string) error {
	if err := ValidID(featureID); err != nil {
		return fmt.Errorf("feature: %w", err)
	}
	if err := ValidID(uowID); err != nil {
		return fmt.Errorf("uow: %w", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
