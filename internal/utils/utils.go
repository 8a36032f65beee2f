package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// ShortenString cuts s to at most l bytes without splitting a rune.
func ShortenString(s string, l int) string {
	if len(s) > l && l != 0 {
		cut := l
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return fmt.Sprintf("%s...", s[:cut])
	}
	return s
}

// ClosestString returns the candidate with the smallest edit distance to
// s, compared case-insensitively, if that distance is at most maxDist.
func ClosestString(s string, candidates []string, maxDist int) (string, bool) {
	best, bestDist := "", maxDist+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(strings.ToLower(s), strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist <= maxDist
}
