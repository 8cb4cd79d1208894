package engine

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// HintRule is one row of the path taxonomy. Patterns are globs matched
// against the lowercased, slash-separated path; "**" crosses directories,
// "*" does not.
type HintRule struct {
	Name     string   `json:"name" mapstructure:"name" toml:"name"`
	Patterns []string `json:"patterns" mapstructure:"patterns" toml:"patterns"`
	Note     string   `json:"note" mapstructure:"note" toml:"note"`

	// Feature is a related feature implied by touching a matching file.
	Feature string `json:"feature,omitempty" mapstructure:"feature" toml:"feature,omitempty"`

	// ComplexityHint multiplies a matching file's complexity hint.
	ComplexityHint float64 `json:"complexity_hint,omitempty" mapstructure:"complexity_hint" toml:"complexity_hint,omitempty"`
}

// DefaultHintRules is the built-in taxonomy.
func DefaultHintRules() []HintRule {
	return []HintRule{
		{
			Name:           "config",
			Patterns:       []string{"**config**", "**ccm**"},
			Note:           "CCM pattern lives here; do not modify unrelated flags.",
			Feature:        "configuration",
			ComplexityHint: 1.1,
		},
		{
			Name:           "resolver",
			Patterns:       []string{"**resolver**"},
			Note:           "GraphQL resolver - maintain existing patterns and add feature flag guards.",
			Feature:        "graphql_resolvers",
			ComplexityHint: 1.2,
		},
		{
			Name:           "schema",
			Patterns:       []string{"**.graphql", "**.gql"},
			Note:           "GraphQL schema - keep resolvers and client queries in step.",
			Feature:        "graphql_schema",
			ComplexityHint: 1.3,
		},
		{
			Name:           "migration",
			Patterns:       []string{"**.sql", "**/migrations/**", "migrations/**"},
			Note:           "Schema migration - never edit an applied migration; add a new one.",
			ComplexityHint: 1.2,
		},
		{
			Name: "test",
			Patterns: []string{
				"**_test.go", "**.test.*", "**.spec.*",
				"test/**", "tests/**", "**/test/**", "**/tests/**", "**/__tests__/**",
			},
			Note:           "Add test coverage for new functionality with CCM flag variations.",
			ComplexityHint: 0.9,
		},
	}
}

type compiledRule struct {
	HintRule
	globs []glob.Glob
}

// HintTable matches paths against taxonomy rules in declaration order.
type HintTable struct {
	rules []compiledRule
}

// NewHintTable compiles rules. A rule whose name matches an earlier rule
// replaces it in place, so configuration can override a default.
func NewHintTable(rules ...[]HintRule) (*HintTable, error) {
	t := &HintTable{}
	index := make(map[string]int)
	for _, set := range rules {
		for _, r := range set {
			if r.Name == "" {
				return nil, fmt.Errorf("hint rule without a name")
			}
			if r.ComplexityHint < 0 {
				return nil, fmt.Errorf("hint rule %s: negative complexity_hint", r.Name)
			}
			cr := compiledRule{HintRule: r}
			for _, pattern := range r.Patterns {
				g, err := glob.Compile(strings.ToLower(pattern), '/')
				if err != nil {
					return nil, fmt.Errorf("hint rule %s: invalid pattern '%s': %w", r.Name, pattern, err)
				}
				cr.globs = append(cr.globs, g)
			}
			if i, ok := index[r.Name]; ok {
				t.rules[i] = cr
				continue
			}
			index[r.Name] = len(t.rules)
			t.rules = append(t.rules, cr)
		}
	}
	return t, nil
}

// MustDefaultHints returns the built-in table.
func MustDefaultHints() *HintTable {
	t, err := NewHintTable(DefaultHintRules())
	if err != nil {
		panic(err)
	}
	return t
}

// Match returns every rule matching path, in table order.
func (t *HintTable) Match(path string) []HintRule {
	if t == nil {
		return nil
	}
	p := strings.ToLower(normalizePath(path))
	if p == "" {
		return nil
	}
	var out []HintRule
	for _, r := range t.rules {
		for _, g := range r.globs {
			if g.Match(p) {
				out = append(out, r.HintRule)
				break
			}
		}
	}
	return out
}

// Notes returns the notes of every matching rule.
func (t *HintTable) Notes(path string) []string {
	var out []string
	for _, r := range t.Match(path) {
		if r.Note != "" {
			out = append(out, r.Note)
		}
	}
	return out
}

// ComplexityHint is the product of matching rules' multipliers; 1 when
// nothing matches.
func (t *HintTable) ComplexityHint(path string) float64 {
	hint := 1.0
	for _, r := range t.Match(path) {
		if r.ComplexityHint > 0 {
			hint *= r.ComplexityHint
		}
	}
	return hint
}

// Features returns the related features implied by paths, first-seen order,
// excluding exclude.
func (t *HintTable) Features(paths []string, exclude string) []string {
	var out []string
	seen := map[string]bool{exclude: true}
	for _, p := range paths {
		for _, r := range t.Match(p) {
			if r.Feature == "" || seen[r.Feature] {
				continue
			}
			seen[r.Feature] = true
			out = append(out, r.Feature)
		}
	}
	return out
}
