package engine

import (
	"path"
	"regexp"
	"strings"

	"github.com/lazypower/mempack/internal/pack"
)

// genericSegments are container directories that say nothing about the
// feature a file belongs to.
var genericSegments = map[string]bool{
	"src":      true,
	"lib":      true,
	"app":      true,
	"internal": true,
	"pkg":      true,
	"cmd":      true,
	"packages": true,
	"modules":  true,
	"services": true,
	"source":   true,
}

// Resolve picks the feature a unit of work belongs to. A non-blank explicit
// hint wins verbatim. Otherwise every path votes for its first meaningful
// directory; the most frequent candidate wins and ties go to the
// lexicographically smallest. No candidate at all yields pack.Uncategorized.
func Resolve(explicit string, files []string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}

	votes := make(map[string]int)
	for _, f := range files {
		if c := scopeCandidate(f); c != "" {
			votes[c]++
		}
	}
	if len(votes) == 0 {
		return pack.Uncategorized
	}

	best, bestVotes := "", 0
	for c, n := range votes {
		if n > bestVotes || (n == bestVotes && c < best) {
			best, bestVotes = c, n
		}
	}
	return best
}

func scopeCandidate(file string) string {
	p := normalizePath(file)
	if p == "" {
		return ""
	}
	segs := strings.Split(p, "/")
	dirs := segs[:len(segs)-1]
	if len(dirs) == 0 {
		return ""
	}
	for _, d := range dirs {
		if genericSegments[strings.ToLower(d)] {
			continue
		}
		if c := sanitizeSegment(d); c != "" {
			return c
		}
	}
	return sanitizeSegment(dirs[len(dirs)-1])
}

// normalizePath converts p to a clean slash-separated relative path.
// Returns "" for paths that name nothing.
func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimLeft(p, "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "." || p == "" {
		return ""
	}
	return p
}

// normalizePaths normalizes and dedupes paths, keeping first-seen order.
func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		n := normalizePath(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

var fileRefPattern = regexp.MustCompile(`\b[\w\-./]+\.(?:ts|js|tsx|jsx|py|java|go|graphql|gql|sql|json|yml|yaml)\b`)

// FilesFromText extracts path-like tokens with a known source extension
// from free text, deduplicated in order of appearance.
func FilesFromText(text string) []string {
	return normalizePaths(fileRefPattern.FindAllString(text, -1))
}
