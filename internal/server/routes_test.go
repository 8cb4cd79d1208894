package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/lazypower/mempack/internal/engine"
	"github.com/lazypower/mempack/internal/pack"
)

func TestEnrichEmptyHistory(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/enrich", `{"files":["src/checkout/cart.ts"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var env engine.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.FeatureID != "checkout" {
		t.Errorf("feature = %q", env.FeatureID)
	}
	if !strings.Contains(w.Body.String(), `"prior_runs":[]`) {
		t.Errorf("prior_runs not an empty array: %s", w.Body.String())
	}
}

func TestEnrichInvalidJSON(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/enrich", `{"files":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestEnrichUnusableFeature(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/enrich", `{"feature_hint":".."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	var env engine.Envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.FeatureID != ".." || len(env.RelatedNodes) != 0 {
		t.Errorf("envelope = %+v, want empty", env)
	}
}

func TestSlashedIDsRoundTrip(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/enrich", `{"feature_hint":"payments/checkout","uow_id":"JIRA/123","files":["src/payments/card.ts"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("enrich status = %d; body: %s", w.Code, w.Body.String())
	}
	var env engine.Envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.FeatureID != "payments/checkout" {
		t.Errorf("feature = %q", env.FeatureID)
	}

	w = do(t, srv, "GET", "/api/features/payments%2Fcheckout/packs/JIRA%2F123", "")
	if w.Code != http.StatusOK {
		t.Fatalf("pack status = %d; body: %s", w.Code, w.Body.String())
	}
	var p pack.Pack
	json.Unmarshal(w.Body.Bytes(), &p)
	if p.FeatureID != "payments/checkout" || p.UoWID != "JIRA/123" {
		t.Errorf("pack = %s/%s", p.FeatureID, p.UoWID)
	}

	w = do(t, srv, "GET", "/api/features/payments%2Fcheckout/packs", "")
	var history struct {
		FeatureID string `json:"feature_id"`
		Count     int    `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &history)
	if history.FeatureID != "payments/checkout" || history.Count != 1 {
		t.Errorf("history = %+v", history)
	}
}

func TestFeatureGraphAndStats(t *testing.T) {
	srv := testServer(t)

	for _, body := range []string{
		`{"uow_id":"SHOP-1","feature_id":"checkout","external_ref":"PR-1"}`,
		`{"uow_id":"SHOP-2","feature_id":"checkout","summary":"open"}`,
	} {
		if w := do(t, srv, "POST", "/api/completions", body); w.Code != http.StatusCreated {
			t.Fatalf("completion status = %d; body: %s", w.Code, w.Body.String())
		}
	}
	if w := do(t, srv, "POST", "/api/enrich", `{"uow_id":"SHOP-1","files":["src/checkout/cart.ts"]}`); w.Code != http.StatusOK {
		t.Fatalf("enrich status = %d", w.Code)
	}

	w := do(t, srv, "GET", "/api/features/checkout/graph?limit=3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("graph status = %d; body: %s", w.Code, w.Body.String())
	}
	var g engine.FeatureGraph
	json.Unmarshal(w.Body.Bytes(), &g)
	if g.FeatureID != "checkout" || g.Packs != 2 {
		t.Errorf("graph = %+v", g)
	}
	if len(g.Files) != 1 || g.Files[0].ID != "src/checkout/cart.ts" || g.Files[0].Count != 1 {
		t.Errorf("graph files = %+v", g.Files)
	}

	if w := do(t, srv, "GET", "/api/features/checkout/graph?limit=lots", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}

	w = do(t, srv, "GET", "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d; body: %s", w.Code, w.Body.String())
	}
	var st engine.Stats
	json.Unmarshal(w.Body.Bytes(), &st)
	if st.Features != 1 || st.Packs != 2 || st.Completed != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCompletionThenHistory(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/enrich", `{"uow_id":"SHOP-1","category":"bugfix","files":["src/checkout/cart.ts"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("enrich status = %d; body: %s", w.Code, w.Body.String())
	}

	w = do(t, srv, "POST", "/api/completions", `{"uow_id":"SHOP-1","summary":"fixed cart totals","external_ref":"PR-7","effectiveness_score":0.8}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("completion status = %d; body: %s", w.Code, w.Body.String())
	}
	var p pack.Pack
	json.Unmarshal(w.Body.Bytes(), &p)
	if p.FeatureID != "checkout" || p.Outcome == nil || p.Outcome.ExternalRef != "PR-7" {
		t.Errorf("pack = %+v", p)
	}

	w = do(t, srv, "GET", "/api/features", "")
	var features struct {
		Count    int      `json:"count"`
		Features []string `json:"features"`
	}
	json.Unmarshal(w.Body.Bytes(), &features)
	if features.Count != 1 || features.Features[0] != "checkout" {
		t.Errorf("features = %+v", features)
	}

	w = do(t, srv, "GET", "/api/features/checkout/packs", "")
	var history struct {
		Count int         `json:"count"`
		Packs []pack.Pack `json:"packs"`
	}
	json.Unmarshal(w.Body.Bytes(), &history)
	if history.Count != 1 || history.Packs[0].Summary != "fixed cart totals" {
		t.Errorf("history = %+v", history)
	}

	w = do(t, srv, "GET", "/api/features/checkout/packs/SHOP-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("pack status = %d", w.Code)
	}

	// A later unit of work on the same files sees the completed one.
	w = do(t, srv, "POST", "/api/enrich?format=context", `{"uow_id":"SHOP-2","files":["src/checkout/cart.ts"]}`)
	var ctx map[string]string
	json.Unmarshal(w.Body.Bytes(), &ctx)
	for _, want := range []string{"## Memory: checkout", "SHOP-1", "PR-7", "Previously modified in SHOP-1"} {
		if !strings.Contains(ctx["context"], want) {
			t.Errorf("context missing %q:\n%s", want, ctx["context"])
		}
	}
}

func TestCompletionValidation(t *testing.T) {
	srv := testServer(t)

	tests := []string{
		`{"summary":"no uow"}`,
		`{"uow_id":"A-1","effectiveness_score":3}`,
		`{"uow_id":"A-1"}`,
	}
	for _, body := range tests {
		if w := do(t, srv, "POST", "/api/completions", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestPackNotFound(t *testing.T) {
	srv := testServer(t)

	if w := do(t, srv, "GET", "/api/features/checkout/packs/NOPE-1", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHistoryUnknownFeature(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/features/nothing/packs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"count":0`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRenderContextWithoutOutcomes(t *testing.T) {
	env := engine.EmptyEnvelope("checkout")
	env.RelatedNodes = []string{"A-1", "A-2"}

	got := renderContext(env)
	if !strings.HasPrefix(got, "<context>\n## Memory: checkout") || !strings.HasSuffix(got, "</context>") {
		t.Errorf("context = %q", got)
	}
	if !strings.Contains(got, "### Related Work\nA-1, A-2") {
		t.Errorf("related work missing:\n%s", got)
	}
	if strings.Contains(got, "Prior Runs") {
		t.Errorf("prior runs rendered without outcomes:\n%s", got)
	}
}
