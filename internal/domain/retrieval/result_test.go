package retrieval

import (
	"testing"

	"github.com/kailas-cloud/modelmux/internal/domain/document"
)

func mustDoc(t *testing.T, id string) document.Document {
	t.Helper()
	doc, err := document.New(id, "content for "+id, nil, nil)
	if err != nil {
		t.Fatalf("New(%s): %v", id, err)
	}
	return doc
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i := range results {
		out[i] = results[i].Document().ID()
	}
	return out
}

func TestRank_DescendingScore(t *testing.T) {
	results := []Result{
		New(mustDoc(t, "low"), 0.2),
		New(mustDoc(t, "high"), 0.9),
		New(mustDoc(t, "mid"), 0.5),
	}
	Rank(results)

	want := []string{"high", "mid", "low"}
	got := ids(results)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRank_TiesBreakByAscendingID(t *testing.T) {
	results := []Result{
		New(mustDoc(t, "b"), 0.5),
		New(mustDoc(t, "c"), 0.5),
		New(mustDoc(t, "a"), 0.5),
	}
	Rank(results)

	want := []string{"a", "b", "c"}
	got := ids(results)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	results := []Result{
		New(mustDoc(t, "a"), 0.9),
		New(mustDoc(t, "b"), 0.8),
		New(mustDoc(t, "c"), 0.7),
	}

	if got := Truncate(results, 2); len(got) != 2 {
		t.Errorf("Truncate(2) len = %d, want 2", len(got))
	}
	if got := Truncate(results, 5); len(got) != 3 {
		t.Errorf("Truncate(5) len = %d, want 3", len(got))
	}
	if got := Truncate(results, 0); len(got) != 3 {
		t.Errorf("Truncate(0) len = %d, want 3", len(got))
	}
}

func TestResult_Accessors(t *testing.T) {
	doc := mustDoc(t, "a")
	r := New(doc, 0.42)
	if r.Score() != 0.42 {
		t.Errorf("Score() = %g", r.Score())
	}
	if r.Document().ID() != "a" {
		t.Errorf("ID() = %s", r.Document().ID())
	}
}
