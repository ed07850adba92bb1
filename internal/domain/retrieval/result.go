package retrieval

import (
	"sort"

	"github.com/kailas-cloud/modelmux/internal/domain/document"
)

// Result is a single retrieval hit.
type Result struct {
	doc   document.Document
	score float64
}

// New creates a retrieval result.
func New(doc document.Document, score float64) Result {
	return Result{doc: doc, score: score}
}

// Document returns the retrieved document.
func (r *Result) Document() *document.Document { return &r.doc }

// Score returns the similarity score.
func (r *Result) Score() float64 { return r.score }

// Rank sorts results in place: descending score, ties broken by
// ascending document ID for determinism.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].doc.ID() < results[j].doc.ID()
	})
}

// Truncate returns at most topK results.
func Truncate(results []Result, topK int) []Result {
	if topK > 0 && len(results) > topK {
		return results[:topK]
	}
	return results
}
