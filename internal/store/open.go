package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendFS       = "fs"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Root    string // fs: pack root directory
	Path    string // sqlite: database file
	DSN     string // postgres: connection URL
}

// DefaultRoot returns the default pack root: ~/.mempack/packs
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".mempack", "packs"), nil
}

// Open returns the configured backend. Empty locations fall back to the
// defaults under ~/.mempack.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFS:
		root := opts.Root
		if root == "" {
			var err error
			if root, err = DefaultRoot(); err != nil {
				return nil, err
			}
		}
		return NewFS(root)
	case BackendSQLite:
		path := opts.Path
		if path == "" {
			var err error
			if path, err = DefaultDBPath(); err != nil {
				return nil, err
			}
		}
		return OpenSQLite(path)
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a dsn")
		}
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Describe returns a short human-readable location of the store.
func Describe(s Store) string {
	switch v := s.(type) {
	case *FSStore:
		return "fs:" + v.Root
	case *SQLite:
		return "sqlite:" + v.Path
	case *Postgres:
		return "postgres"
	default:
		return fmt.Sprintf("%T", s)
	}
}

// Healthy reports whether the backend is reachable.
func Healthy(ctx context.Context, s Store) error {
	switch v := s.(type) {
	case *FSStore:
		if _, err := os.Stat(v.Root); err != nil {
			return unavailable("stat root", err)
		}
	case *SQLite:
		if err := v.PingContext(ctx); err != nil {
			return unavailable("ping sqlite", err)
		}
	case *Postgres:
		if err := v.Ping(ctx); err != nil {
			return unavailable("ping postgres", err)
		}
	}
	return nil
}
