package document

import (
	"strings"
	"testing"
)

func TestNew_Valid(t *testing.T) {
	doc, err := New("doc-1.a#0", "hello", map[string]string{"lang": "en"}, map[string]float64{"year": 2024})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID() != "doc-1.a#0" || doc.Content() != "hello" {
		t.Errorf("id/content = %q/%q", doc.ID(), doc.Content())
	}
	if doc.Tags()["lang"] != "en" || doc.Numerics()["year"] != 2024 {
		t.Errorf("metadata not preserved: %v %v", doc.Tags(), doc.Numerics())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		content string
	}{
		{"empty id", "", "content"},
		{"id with space", "a b", "content"},
		{"id with slash", "a/b", "content"},
		{"id too long", strings.Repeat("x", 257), "content"},
		{"empty content", "doc", ""},
		{"content too large", "doc", strings.Repeat("x", MaxContentSize+1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.id, tc.content, nil, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_ClonesMetadata(t *testing.T) {
	tags := map[string]string{"lang": "en"}
	doc, err := New("doc", "content", tags, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tags["lang"] = "fr"
	if doc.Tags()["lang"] != "en" {
		t.Error("caller mutation leaked into document")
	}
}

func TestMatchesTags(t *testing.T) {
	doc, _ := New("doc", "content", map[string]string{"lang": "en", "topic": "go"}, nil)

	tests := []struct {
		name   string
		filter map[string]string
		want   bool
	}{
		{"nil filter matches", nil, true},
		{"empty filter matches", map[string]string{}, true},
		{"single match", map[string]string{"lang": "en"}, true},
		{"conjunction match", map[string]string{"lang": "en", "topic": "go"}, true},
		{"value mismatch", map[string]string{"lang": "fr"}, false},
		{"missing key", map[string]string{"author": "x"}, false},
		{"partial conjunction fails", map[string]string{"lang": "en", "topic": "rust"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := doc.MatchesTags(tc.filter); got != tc.want {
				t.Errorf("MatchesTags(%v) = %v, want %v", tc.filter, got, tc.want)
			}
		})
	}
}

func TestWithVector_DoesNotMutateOriginal(t *testing.T) {
	doc, _ := New("doc", "content", nil, nil)
	v := []float32{1, 2, 3}

	copied := doc.WithVector(v)
	if doc.Vector() != nil {
		t.Error("original should have no vector")
	}
	if len(copied.Vector()) != 3 {
		t.Errorf("copy vector = %v", copied.Vector())
	}
}

func TestReconstruct_SkipsValidation(t *testing.T) {
	doc := Reconstruct("any id with spaces", "", nil, nil, []float32{1})
	if doc.ID() != "any id with spaces" {
		t.Errorf("id = %q", doc.ID())
	}
}
