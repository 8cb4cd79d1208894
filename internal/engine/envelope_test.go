package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/mempack/internal/pack"
)

func scoredPacks(n int) []Scored {
	out := make([]Scored, 0, n)
	for i := 0; i < n; i++ {
		p := testPack(fmt.Sprintf("UOW-%d", i), time.Duration(i)*time.Hour, "bugfix", fmt.Sprintf("src/orders/f%d.ts", i))
		out = append(out, Scored{Pack: p, Score: 1 - float64(i)/10})
	}
	return out
}

func TestAssembleTopN(t *testing.T) {
	scored := scoredPacks(8)
	scored[6].Pack.Outcome = &pack.Outcome{Status: pack.StatusCompleted}
	scored[2].Pack.Outcome = &pack.Outcome{Status: pack.StatusCompleted, ExternalRef: "PR-12"}

	env := Assembler{Hints: MustDefaultHints(), TopN: 5}.Assemble("checkout", Candidate{}, scored, 0.4)

	if len(env.RelatedNodes) != 5 {
		t.Fatalf("related nodes = %d, want 5", len(env.RelatedNodes))
	}
	if len(env.PriorRuns) != 5 {
		t.Fatalf("prior runs = %d, want 5", len(env.PriorRuns))
	}
	for i, r := range env.PriorRuns {
		if want := fmt.Sprintf("UOW-%d", i); r.UoWID != want || env.RelatedNodes[i] != want {
			t.Errorf("position %d = %s/%s, want %s", i, r.UoWID, env.RelatedNodes[i], want)
		}
	}
	if env.PriorRuns[2].Outcome == nil || env.PriorRuns[2].Outcome.ExternalRef != "PR-12" {
		t.Errorf("outcome not carried: %+v", env.PriorRuns[2].Outcome)
	}
	if env.ComplexityScore != 0.4 {
		t.Errorf("complexity = %v", env.ComplexityScore)
	}
}

func TestAssembleOmitsPriorRunsWithoutOutcomes(t *testing.T) {
	scored := scoredPacks(3)
	// An outcome beyond the top N does not count.
	extra := scoredPacks(4)[3]
	extra.Pack.Outcome = &pack.Outcome{Status: pack.StatusCompleted}
	scored = append(scored, extra)

	env := Assembler{TopN: 3}.Assemble("checkout", Candidate{}, scored, 0)
	if len(env.RelatedNodes) != 3 {
		t.Errorf("related nodes = %v", env.RelatedNodes)
	}
	if env.PriorRuns == nil || len(env.PriorRuns) != 0 {
		t.Errorf("prior runs = %#v, want empty non-nil", env.PriorRuns)
	}
}

func TestAssembleConnectedFeatures(t *testing.T) {
	scored := scoredPacks(3)
	scored[0].Pack.Graph.RelatedFeatures = []string{"billing", "checkout"}
	scored[1].Pack.Graph.RelatedFeatures = []string{"configuration", "billing"}

	env := Assembler{}.Assemble("checkout", Candidate{}, scored, 0)
	if got := strings.Join(env.ConnectedFeatures, ","); got != "billing,configuration" {
		t.Errorf("connected features = %s", got)
	}
}

func TestAssembleFileHints(t *testing.T) {
	scored := scoredPacks(2)
	scored[0].Pack.Files = append(scored[0].Pack.Files, pack.FileEntry{Path: "src/config/ccm.ts"})
	scored[1].Pack.Files = append(scored[1].Pack.Files, pack.FileEntry{Path: "src/config/ccm.ts"})

	cand := Candidate{Files: []string{"src/config/ccm.ts", "src/orders/f0.ts", "src/orders/new.ts"}}
	env := Assembler{Hints: MustDefaultHints()}.Assemble("checkout", cand, scored, 0)

	if len(env.FileHints) != 2 {
		t.Fatalf("file hints = %+v, want 2", env.FileHints)
	}
	ccm := env.FileHints[0]
	if ccm.Path != "src/config/ccm.ts" {
		t.Fatalf("first hint path = %s", ccm.Path)
	}
	if !strings.Contains(ccm.Note, "CCM pattern lives here") || !strings.HasSuffix(ccm.Note, "Previously modified in UOW-0, UOW-1") {
		t.Errorf("ccm note = %q", ccm.Note)
	}
	if env.FileHints[1].Note != "Previously modified in UOW-0" {
		t.Errorf("f0 note = %q", env.FileHints[1].Note)
	}
}

func TestEmptyEnvelopeJSON(t *testing.T) {
	data, err := json.Marshal(EmptyEnvelope("checkout"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"feature_id":"checkout","related_nodes":[],"connected_features":[],"prior_runs":[],"file_hints":[],"complexity_score":0}`
	if string(data) != want {
		t.Errorf("json = %s\nwant  %s", data, want)
	}
}
