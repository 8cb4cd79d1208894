package engine

import (
	"reflect"
	"testing"

	"github.com/lazypower/mempack/internal/pack"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		files    []string
		want     string
	}{
		{"explicit wins verbatim", "Checkout Flow", []string{"src/billing/a.ts"}, "Checkout Flow"},
		{"blank explicit ignored", "   ", []string{"src/billing/a.ts"}, "billing"},
		{"skips generic containers", "", []string{"src/lib/payments/charge.go"}, "payments"},
		{"all generic uses last dir", "", []string{"src/lib/x.go"}, "lib"},
		{"majority vote", "", []string{"src/a/x.ts", "src/b/y.ts", "src/b/z.ts"}, "b"},
		{"tie breaks lexicographically", "", []string{"src/zeta/x.ts", "src/alpha/y.ts"}, "alpha"},
		{"root files contribute nothing", "", []string{"README.md", "main.go"}, pack.Uncategorized},
		{"no files", "", nil, pack.Uncategorized},
		{"sanitized candidate", "", []string{"services/Store Pickup/x.ts"}, "store-pickup"},
		{"windows separators", "", []string{`src\orders\resolver.ts`}, "orders"},
		{"leading dot slash", "", []string{"./src/orders/a.ts", "/src/orders/b.ts"}, "orders"},
		{"generic match is case-insensitive", "", []string{"Src/Orders/a.ts"}, "orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.explicit, tt.files); got != tt.want {
				t.Errorf("Resolve(%q, %v) = %q, want %q", tt.explicit, tt.files, got, tt.want)
			}
		})
	}
}

func TestResolveIdempotentAndOrderIndependent(t *testing.T) {
	files := []string{"src/orders/a.ts", "src/pickup/b.ts", "src/orders/c.ts", "src/pickup/d.ts"}
	first := Resolve("", files)
	for i := 0; i < 20; i++ {
		if got := Resolve("", files); got != first {
			t.Fatalf("Resolve changed between calls: %q vs %q", got, first)
		}
	}
	reversed := []string{files[3], files[2], files[1], files[0]}
	if got := Resolve("", reversed); got != first {
		t.Errorf("order-dependent: %q vs %q", got, first)
	}
	if first != "orders" {
		t.Errorf("tie = %q, want orders", first)
	}
}

func TestFilesFromText(t *testing.T) {
	text := "Update src/graphql/resolvers/orderResolver.ts and schema.graphql; see config.yml. " +
		"Also touch src/graphql/resolvers/orderResolver.ts again but not notes.txt or v1.2."
	got := FilesFromText(text)
	want := []string{"src/graphql/resolvers/orderResolver.ts", "schema.graphql", "config.yml"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FilesFromText = %v, want %v", got, want)
	}
	if got := FilesFromText(""); len(got) != 0 {
		t.Errorf("empty text = %v", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"./a/b.go":   "a/b.go",
		"/a//b.go":   "a/b.go",
		`a\b.go`:     "a/b.go",
		"a/./b/../c": "a/c",
		"":           "",
		".":          "",
		"/":          "",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
