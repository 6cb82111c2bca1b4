package eval

import (
	"github.com/agnivade/levenshtein"
)

// suggest returns the candidate closest to name, or "" when nothing is
// within a third of the name's length (at least two edits, so a swapped
// pair of letters still matches).
// Ties resolve to the lexically smaller candidate; candidates are sorted.
func suggest(name string, candidates []string) string {
	limit := max(2, len(name)/3)
	best, bestDist := "", limit+1
	for _, c := range candidates {
		if c == name {
			continue
		}
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
