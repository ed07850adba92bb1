// Package chunk implements the deterministic splitting policy applied to
// documents whose content exceeds one embedding call's input budget:
// fixed-size rune windows with overlap, breaking at whitespace where
// possible. Chunk IDs derive from the source ID and chunk index, so
// re-ingesting the same content always produces the same IDs.
package chunk

import (
	"fmt"
	"strings"
	"unicode"
)

// Splitting defaults.
const (
	DefaultMaxRunes = 2000
	DefaultOverlap  = 200
)

// Piece is one chunk of a source document.
type Piece struct {
	ID   string
	Text string
}

// Policy is a validated chunking configuration.
type Policy struct {
	maxRunes int
	overlap  int
}

// New validates and creates a Policy. overlap must be smaller than maxRunes.
func New(maxRunes, overlap int) (Policy, error) {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxRunes {
		return Policy{}, fmt.Errorf("chunk overlap %d must be smaller than window %d", overlap, maxRunes)
	}
	return Policy{maxRunes: maxRunes, overlap: overlap}, nil
}

// MustNew creates a Policy or panics. For composition roots and tests.
func MustNew(maxRunes, overlap int) Policy {
	p, err := New(maxRunes, overlap)
	if err != nil {
		panic(err)
	}
	return p
}

// WindowSize returns the maximum chunk length in runes.
func (p Policy) WindowSize() int { return p.maxRunes }

// Split cuts content into pieces of at most WindowSize runes. Content that
// fits a single window passes through under the source ID itself; longer
// content yields pieces with IDs "<sourceID>#0", "<sourceID>#1", ...
func (p Policy) Split(sourceID, content string) []Piece {
	runes := []rune(content)
	if len(runes) <= p.maxRunes {
		return []Piece{{ID: sourceID, Text: content}}
	}

	var pieces []Piece
	start := 0
	for start < len(runes) {
		end := start + p.maxRunes
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakAt(runes, start, end)
		}

		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			pieces = append(pieces, Piece{
				ID:   fmt.Sprintf("%s#%d", sourceID, len(pieces)),
				Text: text,
			})
		}

		if end == len(runes) {
			break
		}
		start = end - p.overlap
	}

	return pieces
}

// breakAt moves the cut left to the last whitespace inside the window,
// unless that would shrink the chunk below half a window.
func breakAt(runes []rune, start, end int) int {
	min := start + (end-start)/2
	for i := end - 1; i > min; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}
