package engine

import (
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/mempack/internal/pack"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testPack(uow string, age time.Duration, category string, files ...string) pack.Pack {
	p := pack.Pack{
		FeatureID: "checkout",
		UoWID:     uow,
		Category:  category,
		CreatedAt: testNow.Add(-age),
		UpdatedAt: testNow.Add(-age),
	}
	for _, f := range files {
		p.Files = append(p.Files, pack.FileEntry{Path: f})
	}
	return p
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRecency(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		elapsed time.Duration
		want    float64
	}{
		{0, 1},
		{-time.Hour, 1},
		{30 * day, 0.5},
		{60 * day, 0.25},
	}
	for _, tt := range tests {
		if got := Recency(tt.elapsed, 30*day); !approx(got, tt.want) {
			t.Errorf("Recency(%v) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
	if got := Recency(30*day, 0); !approx(got, 0.5) {
		t.Errorf("zero half-life should use default, got %v", got)
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights invalid: %v", err)
	}
	bad := []Weights{
		{FileOverlap: 0.5, Recency: 0.5, Category: 0.5},
		{FileOverlap: -0.1, Recency: 0.6, Category: 0.5},
		{FileOverlap: math.NaN(), Recency: 0.5, Category: 0.5},
	}
	for _, w := range bad {
		if err := w.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", w)
		}
	}
	if err := (Weights{FileOverlap: 1}).Validate(); err != nil {
		t.Errorf("single-signal weights rejected: %v", err)
	}
}

func TestWeightsValidateNamesFirstBadWeight(t *testing.T) {
	w := Weights{FileOverlap: -1, Recency: math.NaN(), Category: -2}
	for i := 0; i < 50; i++ {
		err := w.Validate()
		if err == nil || !strings.Contains(err.Error(), "file_overlap") {
			t.Fatalf("Validate = %v, want the file_overlap weight named", err)
		}
	}
	err := Weights{FileOverlap: 0.5, Recency: -1, Category: -2}.Validate()
	if err == nil || !strings.Contains(err.Error(), "recency") {
		t.Errorf("Validate = %v, want the recency weight named", err)
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b []string
		want float64
	}{
		{nil, nil, 0},
		{[]string{"a"}, nil, 0},
		{[]string{"a", "b"}, []string{"a", "b"}, 1},
		{[]string{"a", "b"}, []string{"b", "c"}, 1.0 / 3},
		{[]string{"./a"}, []string{"a"}, 1},
	}
	for _, tt := range tests {
		if got := jaccard(pathSet(tt.a), pathSet(tt.b)); !approx(got, tt.want) {
			t.Errorf("jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

// A shares every file and the category and is a day old; B shares nothing
// but is fresh. A must rank first.
func TestScoreRanksOverlapAboveFreshness(t *testing.T) {
	s := Scorer{Weights: DefaultWeights(), HalfLife: DefaultHalfLife}
	cand := Candidate{UoWID: "NEW-1", Files: []string{"src/orders/a.ts", "src/orders/b.ts"}, Category: "bugfix"}
	a := testPack("A", 24*time.Hour, "BugFix", "src/orders/a.ts", "src/orders/b.ts")
	b := testPack("B", 0, "feature", "src/other/c.ts")

	got := s.Score(testNow, cand, []pack.Pack{b, a})
	if len(got) != 2 {
		t.Fatalf("scored = %d, want 2", len(got))
	}
	if got[0].Pack.UoWID != "A" {
		t.Fatalf("order = %s, %s; want A first", got[0].Pack.UoWID, got[1].Pack.UoWID)
	}
	wantA := 0.5*1 + 0.3*Recency(24*time.Hour, DefaultHalfLife) + 0.2
	if !approx(got[0].Score, wantA) {
		t.Errorf("score(A) = %v, want %v", got[0].Score, wantA)
	}
	if !approx(got[1].Score, 0.3) {
		t.Errorf("score(B) = %v, want 0.3", got[1].Score)
	}
	if !got[0].CategoryMatch || got[1].CategoryMatch {
		t.Errorf("category match = %v, %v", got[0].CategoryMatch, got[1].CategoryMatch)
	}
}

func TestScoreExcludesOwnUoW(t *testing.T) {
	s := Scorer{Weights: DefaultWeights()}
	cand := Candidate{UoWID: "SELF", Files: []string{"a.ts"}}
	got := s.Score(testNow, cand, []pack.Pack{testPack("SELF", 0, "", "a.ts"), testPack("OTHER", 0, "")})
	if len(got) != 1 || got[0].Pack.UoWID != "OTHER" {
		t.Errorf("scored = %+v", got)
	}
}

func TestScoreBlankCategoryNeverMatches(t *testing.T) {
	s := Scorer{Weights: DefaultWeights()}
	got := s.Score(testNow, Candidate{}, []pack.Pack{testPack("A", 0, "")})
	if got[0].CategoryMatch {
		t.Error("blank categories matched")
	}
}

func TestScoreTieBreaks(t *testing.T) {
	s := Scorer{Weights: Weights{FileOverlap: 1}}
	older := testPack("A", time.Hour, "")
	newer := testPack("Z", 0, "")
	sameTimeB := testPack("B", time.Hour, "")

	got := s.Score(testNow, Candidate{}, []pack.Pack{older, sameTimeB, newer})
	var order []string
	for _, sc := range got {
		order = append(order, sc.Pack.UoWID)
	}
	if fmt.Sprint(order) != "[Z A B]" {
		t.Errorf("order = %v, want [Z A B]", order)
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := Scorer{Weights: DefaultWeights()}
	cand := Candidate{Files: []string{"a.ts", "b.ts", "c.ts"}, Category: "bugfix"}
	var packs []pack.Pack
	for i := 0; i < 12; i++ {
		packs = append(packs, testPack(fmt.Sprintf("P-%02d", i), time.Duration(i%4)*24*time.Hour, []string{"bugfix", "feature"}[i%2],
			[]string{"a.ts", "b.ts", "c.ts", "d.ts"}[:1+i%4]...))
	}

	want := s.Score(testNow, cand, packs)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]pack.Pack(nil), packs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := s.Score(testNow, cand, shuffled)
		if !reflect.DeepEqual(uows(got), uows(want)) {
			t.Fatalf("order depends on input order:\n got %v\nwant %v", uows(got), uows(want))
		}
	}
}

func uows(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Pack.UoWID
	}
	return out
}

func TestComplexity(t *testing.T) {
	c := DefaultComplexity()

	if got := c.Score(Candidate{}, nil); got != 0 {
		t.Errorf("no files = %v, want 0", got)
	}

	cand := Candidate{UoWID: "NEW", Files: []string{"a.ts", "b.ts", "c.ts", "d.ts", "e.ts"}}
	if got := c.Score(cand, nil); !approx(got, 0.6*0.5) {
		t.Errorf("empty history = %v, want 0.3", got)
	}

	history := []pack.Pack{testPack("OLD", 0, "", "a.ts", "b.ts"), testPack("NEW", 0, "", "c.ts", "d.ts", "e.ts")}
	if got := c.Score(cand, history); !approx(got, 0.6*0.5+0.4*0.4) {
		t.Errorf("with history = %v, want %v", got, 0.6*0.5+0.4*0.4)
	}

	var many []string
	for i := 0; i < 30; i++ {
		many = append(many, fmt.Sprintf("f%d.ts", i))
	}
	if got := c.Score(Candidate{Files: many}, []pack.Pack{testPack("X", 0, "", many...)}); !approx(got, 1) {
		t.Errorf("saturated = %v, want 1", got)
	}
}
