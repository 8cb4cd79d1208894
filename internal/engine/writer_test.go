package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lazypower/mempack/internal/events"
	"github.com/lazypower/mempack/internal/logger"
	"github.com/lazypower/mempack/internal/pack"
	"github.com/lazypower/mempack/internal/store"
)

func fsStore(t *testing.T) (*store.FSStore, string) {
	t.Helper()
	root := t.TempDir()
	s, err := store.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s, root
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// conflictingStore loses the first n compare-and-swap races.
type conflictingStore struct {
	store.Store
	mu    sync.Mutex
	n     int
	calls int
}

func (s *conflictingStore) Put(ctx context.Context, rec *store.Record) error {
	s.mu.Lock()
	s.calls++
	lose := s.calls <= s.n
	s.mu.Unlock()
	if lose {
		return store.ErrConflict
	}
	return s.Store.Put(ctx, rec)
}

type failingStore struct {
	store.Store
}

func (failingStore) Put(context.Context, *store.Record) error {
	return errors.New("disk full")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.PackUpdatedEvent
}

func (p *recordingPublisher) PublishPackUpdated(_ context.Context, ev *events.PackUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func summaryPatch(s string) pack.Patch {
	return pack.Patch{Summary: &s}
}

func TestWriterRecordMerges(t *testing.T) {
	s, _ := fsStore(t)
	w := &Writer{Store: s, Log: logger.Nop(), Now: fixedClock(testNow)}
	ctx := context.Background()

	if _, err := w.Record(ctx, "checkout", "SHOP-1", pack.Patch{Files: []pack.FileEntry{{Path: "a.ts"}}}); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	w.Now = fixedClock(testNow.Add(time.Hour))
	p, err := w.Record(ctx, "checkout", "SHOP-1", summaryPatch("done"))
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}

	if p.Summary != "done" || len(p.Files) != 1 {
		t.Errorf("merged pack = %+v", p)
	}
	if !p.CreatedAt.Equal(testNow) || !p.UpdatedAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("timestamps = %v / %v", p.CreatedAt, p.UpdatedAt)
	}
	if p.Revision == "" {
		t.Error("revision not set")
	}

	rec, err := s.Get(ctx, "checkout", "SHOP-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Revision != p.Revision {
		t.Errorf("stored revision %q, returned %q", rec.Revision, p.Revision)
	}
}

func TestWriterRetriesConflicts(t *testing.T) {
	s, _ := fsStore(t)
	cs := &conflictingStore{Store: s, n: 2}
	w := &Writer{Store: cs, Log: logger.Nop(), MaxAttempts: 3}

	if _, err := w.Record(context.Background(), "checkout", "SHOP-1", summaryPatch("x")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if cs.calls != 3 {
		t.Errorf("put calls = %d, want 3", cs.calls)
	}
}

func TestWriterGivesUp(t *testing.T) {
	s, _ := fsStore(t)
	cs := &conflictingStore{Store: s, n: 100}
	w := &Writer{Store: cs, Log: logger.Nop(), MaxAttempts: 3}

	_, err := w.Record(context.Background(), "checkout", "SHOP-1", summaryPatch("x"))
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PersistenceError", err)
	}
	if perr.Attempts != 3 || !errors.Is(err, store.ErrConflict) {
		t.Errorf("persistence error = %+v", perr)
	}
	if _, err := s.Get(context.Background(), "checkout", "SHOP-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("pack written despite failure: %v", err)
	}
}

func TestWriterStoreFailure(t *testing.T) {
	s, _ := fsStore(t)
	w := &Writer{Store: failingStore{s}, Log: logger.Nop()}

	_, err := w.Record(context.Background(), "checkout", "SHOP-1", summaryPatch("x"))
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Attempts != 1 {
		t.Fatalf("err = %v, want PersistenceError after 1 attempt", err)
	}
}

func TestWriterRewritesMalformedPack(t *testing.T) {
	s, root := fsStore(t)
	w := &Writer{Store: s, Log: logger.Nop(), Now: fixedClock(testNow)}
	ctx := context.Background()

	if _, err := w.Record(ctx, "checkout", "SHOP-1", pack.Patch{Files: []pack.FileEntry{{Path: "a.ts"}}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	summary := filepath.Join(root, "checkout", "SHOP-1", pack.KindSummary.Filename())
	if err := os.WriteFile(summary, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := w.Record(ctx, "checkout", "SHOP-1", summaryPatch("recovered"))
	if err != nil {
		t.Fatalf("Record over malformed pack: %v", err)
	}
	if p.Summary != "recovered" || len(p.Files) != 1 {
		t.Errorf("rewritten pack = %+v", p)
	}

	rec, _ := s.Get(ctx, "checkout", "SHOP-1")
	if _, err := pack.Decode("checkout", "SHOP-1", rec.Docs, rec.Revision); err != nil {
		t.Errorf("pack still malformed: %v", err)
	}
}

func TestWriterPublishesEvents(t *testing.T) {
	s, _ := fsStore(t)
	pub := &recordingPublisher{}
	w := &Writer{Store: s, Events: pub, Log: logger.Nop(), Now: fixedClock(testNow)}

	score := 0.8
	status := pack.StatusCompleted
	patch := pack.Patch{Outcome: &pack.OutcomePatch{Status: &status, EffectivenessScore: &score}}
	p, err := w.Record(context.Background(), "checkout", "SHOP-1", patch)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.FeatureID != "checkout" || ev.UoWID != "SHOP-1" || ev.Revision != p.Revision {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Completed || ev.EffectivenessScore == nil || *ev.EffectivenessScore != 0.8 {
		t.Errorf("event outcome = %v / %v", ev.Completed, ev.EffectivenessScore)
	}
}
