package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/lazypower/mempack/internal/pack"
)

const (
	revisionFile = ".revision"

	// legacySummaryFile is the pre-versioned name of summary.json.
	legacySummaryFile = "agent_run.json"

	// readAttempts bounds how often a read is retried when the pack is
	// swapped underneath it by another process.
	readAttempts = 5
)

// FSStore keeps one directory per pack: <root>/<feature>/<uow>/. Ids are
// path-escaped, so "payments/checkout" lives in "payments%2Fcheckout".
//
// A write builds the complete pack in a hidden sibling directory and swaps it
// in with a rename, so a pack's documents and its .revision always change
// together. In-process readers and writers share a per-pack RWMutex; readers
// in other processes detect a swap by re-reading .revision and retry.
// Cross-process writers are not coordinated.
type FSStore struct {
	Root string

	locks sync.Map // feature + "\x00" + uow -> *sync.RWMutex
}

// NewFS opens (creating if needed) a filesystem store rooted at root.
func NewFS(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, unavailable("create root", err)
	}
	return &FSStore{Root: root}, nil
}

func (s *FSStore) ListFeatures(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, unavailable("list features", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, unescapeID(e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (s *FSStore) List(ctx context.Context, featureID string) ([]Record, error) {
	if err := ValidID(featureID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	featureDir := filepath.Join(s.Root, escapeID(featureID))
	entries, err := os.ReadDir(featureDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, unavailable("list "+featureID, err)
	}

	var out []Record
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rec, err := s.read(featureID, unescapeID(e.Name()), filepath.Join(featureDir, e.Name()))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *FSStore) Get(ctx context.Context, featureID, uowID string) (*Record, error) {
	if err := validKey(featureID, uowID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read(featureID, uowID, s.dir(featureID, uowID))
}

func (s *FSStore) Locate(ctx context.Context, uowID string) ([]string, error) {
	if err := ValidID(uowID); err != nil {
		return nil, err
	}
	features, err := s.ListFeatures(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range features {
		info, err := os.Stat(s.dir(f, uowID))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, unavailable("locate "+uowID, err)
		}
		if info.IsDir() {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *FSStore) Put(ctx context.Context, rec *Record) error {
	if err := validKey(rec.FeatureID, rec.UoWID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mu := s.lock(rec.FeatureID, rec.UoWID)
	mu.Lock()
	defer mu.Unlock()

	dir := s.dir(rec.FeatureID, rec.UoWID)
	current, err := readRevision(dir)
	if err != nil {
		return err
	}
	if current != rec.Revision {
		return fmt.Errorf("%w: %s/%s at %q, expected %q", ErrConflict, rec.FeatureID, rec.UoWID, current, rec.Revision)
	}

	featureDir := filepath.Dir(dir)
	if err := os.MkdirAll(featureDir, 0755); err != nil {
		return unavailable("create feature dir", err)
	}
	staging, err := os.MkdirTemp(featureDir, "."+filepath.Base(dir)+".tmp-*")
	if err != nil {
		return unavailable("create staging dir", err)
	}
	defer os.RemoveAll(staging)
	if err := os.Chmod(staging, 0755); err != nil {
		return unavailable("create staging dir", err)
	}

	for _, kind := range writeOrder(rec.Docs) {
		if err := writeFileSync(filepath.Join(staging, kind.Filename()), rec.Docs[kind]); err != nil {
			return unavailable("write "+kind.Filename(), err)
		}
	}
	if err := carryOver(dir, staging, rec.Docs); err != nil {
		return unavailable("copy pack extras", err)
	}
	next := uuid.NewString()
	if err := writeFileSync(filepath.Join(staging, revisionFile), []byte(next)); err != nil {
		return unavailable("write revision", err)
	}

	if err := swapDir(dir, staging); err != nil {
		return unavailable("swap pack dir", err)
	}
	rec.Revision = next
	return nil
}

func (s *FSStore) Close() error { return nil }

func (s *FSStore) dir(featureID, uowID string) string {
	return filepath.Join(s.Root, escapeID(featureID), escapeID(uowID))
}

func (s *FSStore) lock(featureID, uowID string) *sync.RWMutex {
	mu, _ := s.locks.LoadOrStore(featureID+"\x00"+uowID, &sync.RWMutex{})
	return mu.(*sync.RWMutex)
}

// escapeID maps an id to a single directory name. A leading dot is escaped
// too so packs never collide with hidden staging directories.
func escapeID(id string) string {
	name := url.PathEscape(id)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}

// unescapeID reverses escapeID. Names that were not written by escapeID are
// returned as they are.
func unescapeID(name string) string {
	if id, err := url.PathUnescape(name); err == nil {
		return id
	}
	return name
}

// read loads a pack directory. The revision is checked before and after the
// documents are read; if another process swapped the pack in between, the
// read starts over.
func (s *FSStore) read(featureID, uowID, dir string) (*Record, error) {
	mu := s.lock(featureID, uowID)
	mu.RLock()
	defer mu.RUnlock()

	for attempt := 0; attempt < readAttempts; attempt++ {
		rev, err := readRevision(dir)
		if err != nil {
			return nil, err
		}
		rec, err := readDocs(dir)
		if err != nil {
			return nil, err
		}
		after, err := readRevision(dir)
		if err != nil {
			return nil, err
		}
		if after == rev {
			rec.FeatureID, rec.UoWID, rec.Revision = featureID, uowID, rev
			return rec, nil
		}
	}
	return nil, unavailable("read pack", fmt.Errorf("%s/%s changed during %d reads", featureID, uowID, readAttempts))
}

func readDocs(dir string) (*Record, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, unavailable("stat pack", err)
	}
	if !info.IsDir() {
		return nil, ErrNotFound
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, unavailable("read pack dir", err)
	}

	rec := &Record{Docs: make(map[pack.Kind][]byte)}
	var legacy []byte
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, ok := pack.KindFromFilename(e.Name())
		if !ok && e.Name() != legacySummaryFile {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, unavailable("read "+e.Name(), err)
		}
		if !ok {
			legacy = data
			continue
		}
		rec.Docs[kind] = data
	}
	if _, ok := rec.Docs[pack.KindSummary]; !ok && legacy != nil {
		rec.Docs[pack.KindSummary] = legacy
	}
	return rec, nil
}

func readRevision(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, revisionFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return "", nil
		}
		return "", unavailable("read revision", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// writeOrder puts the structured documents first, in pack.DataKinds order,
// followed by anything else sorted by name.
func writeOrder(docs map[pack.Kind][]byte) []pack.Kind {
	out := make([]pack.Kind, 0, len(docs))
	seen := make(map[pack.Kind]bool, len(docs))
	for _, k := range pack.DataKinds {
		if _, ok := docs[k]; ok {
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []pack.Kind
	for k := range docs {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

// carryOver copies files the store does not manage (notes left by hand, for
// instance) from the old pack directory into the staging directory. The
// legacy summary is kept only while no summary.json replaces it.
func carryOver(dir, staging string, docs map[pack.Kind][]byte) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	_, hasSummary := docs[pack.KindSummary]
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || name == revisionFile {
			continue
		}
		if kind, ok := pack.KindFromFilename(name); ok {
			if _, written := docs[kind]; written {
				continue
			}
		}
		if name == legacySummaryFile && hasSummary {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := writeFileSync(filepath.Join(staging, name), data); err != nil {
			return err
		}
	}
	return nil
}

// swapDir replaces target with staging. An existing target is moved aside
// first and put back if the second rename fails.
func swapDir(target, staging string) error {
	var old string
	if _, err := os.Lstat(target); err == nil {
		old = staging + ".old"
		if err := os.Rename(target, old); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.Rename(staging, target); err != nil {
		if old != "" {
			os.Rename(old, target)
		}
		return err
	}
	if old != "" {
		os.RemoveAll(old)
	}
	syncDir(filepath.Dir(target))
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// syncDir flushes a directory entry update. Errors are ignored; not every
// platform supports syncing directories.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	f.Sync()
	f.Close()
}
