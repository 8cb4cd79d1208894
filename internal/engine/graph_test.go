package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lazypower/mempack/internal/pack"
)

func TestFeatureGraph(t *testing.T) {
	s, _ := fsStore(t)
	e := testEngine(t, s, testNow)
	ctx := context.Background()

	a, b, c := "src/orders/a.ts", "src/orders/b.ts", "src/orders/c.ts"
	patches := map[string]pack.Patch{
		"O-1": {
			Files:           []pack.FileEntry{{Path: a}, {Path: b}},
			RelatedFeatures: []string{"billing", "orders"},
			RelatedFiles:    map[string][]string{a: {b}},
		},
		"O-2": {
			Files:           []pack.FileEntry{{Path: a}, {Path: c}},
			RelatedFeatures: []string{"billing", "search"},
			RelatedFiles:    map[string][]string{a: {b, c}},
		},
		"O-3": {
			Files:           []pack.FileEntry{{Path: a}},
			RelatedFeatures: []string{"search", "billing"},
		},
	}
	for uow, p := range patches {
		if _, err := e.writer.Record(ctx, "orders", uow, p); err != nil {
			t.Fatalf("Record %s: %v", uow, err)
		}
	}

	g, err := e.FeatureGraph(ctx, "orders", 0)
	if err != nil {
		t.Fatalf("FeatureGraph: %v", err)
	}
	if g.Packs != 3 {
		t.Errorf("packs = %d, want 3", g.Packs)
	}
	wantFeatures := []LinkCount{{"billing", 3}, {"search", 2}}
	if !reflect.DeepEqual(g.ConnectedFeatures, wantFeatures) {
		t.Errorf("connected = %v, want %v", g.ConnectedFeatures, wantFeatures)
	}
	wantFiles := []LinkCount{{a, 3}, {b, 1}, {c, 1}}
	if !reflect.DeepEqual(g.Files, wantFiles) {
		t.Errorf("files = %v, want %v", g.Files, wantFiles)
	}
	wantLinks := []FileLink{{a, b, 2}, {a, c, 1}}
	if !reflect.DeepEqual(g.FileLinks, wantLinks) {
		t.Errorf("links = %v, want %v", g.FileLinks, wantLinks)
	}

	g, err = e.FeatureGraph(ctx, "orders", 1)
	if err != nil {
		t.Fatalf("FeatureGraph limit 1: %v", err)
	}
	if len(g.ConnectedFeatures) != 1 || len(g.Files) != 1 || len(g.FileLinks) != 1 || g.Files[0].ID != a {
		t.Errorf("limited graph = %+v", g)
	}
}

func TestFeatureGraphEmptyAndInvalid(t *testing.T) {
	s, _ := fsStore(t)
	e := testEngine(t, s, testNow)
	ctx := context.Background()

	g, err := e.FeatureGraph(ctx, "nothing", 5)
	if err != nil {
		t.Fatalf("FeatureGraph: %v", err)
	}
	if g.Packs != 0 || g.ConnectedFeatures == nil || len(g.Files) != 0 || g.FileLinks == nil {
		t.Errorf("empty graph = %+v", g)
	}

	if _, err := e.FeatureGraph(ctx, "..", 5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestStats(t *testing.T) {
	s, root := fsStore(t)
	e := testEngine(t, s, testNow)
	ctx := context.Background()

	reqs := []CompletionRequest{
		{FeatureID: "checkout", UoWID: "C-1", ExternalRef: "PR-1"},
		{FeatureID: "checkout", UoWID: "C-2", Summary: "in progress"},
		{FeatureID: "checkout", UoWID: "C-3", Summary: "soon broken"},
		{FeatureID: "billing", UoWID: "B-1", ExternalRef: "PR-2"},
	}
	for _, req := range reqs {
		if _, err := e.RecordCompletion(ctx, req); err != nil {
			t.Fatalf("RecordCompletion %s: %v", req.UoWID, err)
		}
	}
	broken := filepath.Join(root, "checkout", "C-3", pack.KindSummary.Filename())
	if err := os.WriteFile(broken, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Features != 2 || st.Packs != 3 || st.Completed != 2 || st.Malformed != 1 {
		t.Errorf("totals = %+v", st)
	}
	if !st.GeneratedAt.Equal(testNow) {
		t.Errorf("generated_at = %v", st.GeneratedAt)
	}
	if len(st.PerFeature) != 2 {
		t.Fatalf("per feature = %+v", st.PerFeature)
	}
	billing, checkout := st.PerFeature[0], st.PerFeature[1]
	if billing.FeatureID != "billing" || billing.Packs != 1 || billing.Completed != 1 {
		t.Errorf("billing = %+v", billing)
	}
	if checkout.FeatureID != "checkout" || checkout.Packs != 2 || checkout.Completed != 1 || checkout.Malformed != 1 {
		t.Errorf("checkout = %+v", checkout)
	}
	if checkout.LastUpdated == nil || !checkout.LastUpdated.Equal(testNow) {
		t.Errorf("last updated = %v", checkout.LastUpdated)
	}
}

func TestStatsEmptyStore(t *testing.T) {
	s, _ := fsStore(t)
	e := testEngine(t, s, testNow)

	st, err := e.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Features != 0 || st.Packs != 0 || st.PerFeature == nil {
		t.Errorf("stats = %+v", st)
	}
}
