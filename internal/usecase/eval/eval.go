// Package eval scores generated answers against references with
// lightweight lexical metrics. Not a benchmark harness, just enough to
// compare prompt or provider variants.
package eval

import "strings"

// Scores holds precision/recall/F1 for one metric.
type Scores struct {
	Precision float64
	Recall    float64
	F1        float64
}

// Report is the combined evaluation of one candidate answer.
type Report struct {
	BLEU   float64
	ROUGEL Scores
}

// Evaluate scores a candidate answer against a reference.
func Evaluate(candidate, reference string) Report {
	return Report{
		BLEU:   BLEU(candidate, reference),
		ROUGEL: ROUGEL(candidate, reference),
	}
}

// BLEU computes clipped unigram precision: the fraction of candidate
// tokens that also occur in the reference, each reference token usable
// at most as often as it appears there. Returns a value in [0, 1].
func BLEU(candidate, reference string) float64 {
	cand := tokenize(candidate)
	ref := tokenize(reference)
	if len(cand) == 0 || len(ref) == 0 {
		return 0
	}

	refCounts := make(map[string]int, len(ref))
	for _, tok := range ref {
		refCounts[tok]++
	}

	matches := 0
	for _, tok := range cand {
		if refCounts[tok] > 0 {
			matches++
			refCounts[tok]--
		}
	}

	return float64(matches) / float64(len(cand))
}

// ROUGEL computes LCS-based precision, recall and F1 over tokens.
func ROUGEL(candidate, reference string) Scores {
	cand := tokenize(candidate)
	ref := tokenize(reference)
	if len(cand) == 0 || len(ref) == 0 {
		return Scores{}
	}

	lcs := float64(lcsLen(cand, ref))
	if lcs == 0 {
		return Scores{}
	}

	p := lcs / float64(len(cand))
	r := lcs / float64(len(ref))
	return Scores{
		Precision: p,
		Recall:    r,
		F1:        2 * p * r / (p + r),
	}
}

// lcsLen computes the longest common subsequence length with a
// two-row dynamic program.
func lcsLen(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
