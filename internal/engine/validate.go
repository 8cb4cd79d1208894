package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidInput reports a caller mistake: a missing id or a value out of
// range.
var ErrInvalidInput = errors.New("invalid input")

// Text size limits for caller-supplied fields.
const (
	maxSummaryChars     = 40000
	maxRequirementChars = 40000
	maxCategoryChars    = 100
)

// validSegmentChar returns true if the character is allowed in a derived
// feature id. Allowed: lowercase alphanumeric, hyphens, underscores.
func validSegmentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// sanitizeSegment normalizes a path segment to [a-z0-9_-].
// Uppercases become lowercase, spaces/dots become hyphens, invalid chars are dropped.
// Returns empty string if the result is empty after sanitization.
func sanitizeSegment(seg string) string {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return ""
	}

	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(seg) {
		if validSegmentChar(r) {
			b.WriteRune(r)
			prevHyphen = (r == '-')
		} else if r == ' ' || r == '.' {
			// Collapse separators to single hyphen
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}

	return strings.Trim(b.String(), "-_")
}

// validateScore checks an effectiveness score is a finite value in [0,1].
func validateScore(score *float64) error {
	if score == nil {
		return nil
	}
	if math.IsNaN(*score) || *score < 0 || *score > 1 {
		return fmt.Errorf("%w: effectiveness_score %v outside [0,1]", ErrInvalidInput, *score)
	}
	return nil
}

// cleanText trims caller text and truncates oversized values rather than
// rejecting them.
func cleanText(log *slog.Logger, field, s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		log.Warn("truncating field", "field", field, "from", len(s), "to", maxLen)
		s = truncateClean(s, maxLen)
	}
	return s
}

// truncateClean truncates a string to at most maxLen bytes, cutting at the
// last word boundary to avoid mid-word breaks and never inside a rune.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	truncated := s[:cut]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > 0 && idx > cut-200 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
