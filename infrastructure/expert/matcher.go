// Package expert stores human-curated answers and the questions that still
// need one. Questions are matched fuzzily so that trivial rephrasings
// ("What is your return policy" vs "what's your return policy?") reuse the
// same expert answer.
package expert

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultMatchThreshold is the minimum similarity for a fuzzy match.
const DefaultMatchThreshold = 0.9

var foldCaser = cases.Fold()

// Normalize canonicalizes a question for comparison: Unicode NFC, case
// folded, whitespace collapsed, and trailing punctuation removed.
func Normalize(question string) string {
	s := foldCaser.String(norm.NFC.String(question))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRightFunc(s, unicode.IsPunct)
}

// Similarity returns 1 - levenshtein(a, b) / max rune length, in [0,1].
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}

	similarity := 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	return max(similarity, 0)
}

// Matcher finds the stored question closest to an incoming one.
type Matcher struct {
	// Threshold is the minimum similarity of normalized questions. Zero
	// selects DefaultMatchThreshold.
	Threshold float64
}

func (m Matcher) threshold() float64 {
	if m.Threshold <= 0 {
		return DefaultMatchThreshold
	}
	return m.Threshold
}

// Best returns the entry whose normalized question is most similar to
// normalized, when that similarity reaches the threshold. Ties keep the
// earliest entry.
func (m Matcher) Best(normalized string, entries []Entry) (Entry, float64, bool) {
	var (
		best      Entry
		bestScore = -1.0
	)
	for _, e := range entries {
		score := Similarity(normalized, Normalize(e.Question))
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	if bestScore < m.threshold() {
		return Entry{}, max(bestScore, 0), false
	}
	return best, bestScore, true
}
