package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/document"
	"github.com/kailas-cloud/modelmux/internal/store"
)

func mustDoc(t *testing.T, id, content string, vector []float32, tags map[string]string) document.Document {
	t.Helper()
	doc, err := document.New(id, content, tags, nil)
	if err != nil {
		t.Fatalf("new document %s: %v", id, err)
	}
	doc.SetVector(vector)
	return doc
}

func TestAddAndQuery_RanksByScore(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	docs := []document.Document{
		mustDoc(t, "far", "far away", []float32{0, 1, 0}, nil),
		mustDoc(t, "close", "very close", []float32{1, 0, 0}, nil),
		mustDoc(t, "mid", "somewhere between", []float32{1, 1, 0}, nil),
	}
	if err := s.Add(ctx, docs); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := s.Query(ctx, []float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Document().ID() != "close" || results[2].Document().ID() != "far" {
		t.Errorf("order = [%s %s %s], want [close mid far]",
			results[0].Document().ID(), results[1].Document().ID(), results[2].Document().ID())
	}
	if results[0].Score() < results[1].Score() || results[1].Score() < results[2].Score() {
		t.Error("scores are not descending")
	}
}

func TestQuery_TieBreaksByID(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.Add(ctx, []document.Document{
		mustDoc(t, "beta", "b", []float32{1, 0}, nil),
		mustDoc(t, "alpha", "a", []float32{1, 0}, nil),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := s.Query(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if results[0].Document().ID() != "alpha" {
		t.Errorf("equal scores must order by ID, got %s first", results[0].Document().ID())
	}
}

func TestAdd_UpsertReplacesDocument(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.Add(ctx, []document.Document{mustDoc(t, "d1", "old", []float32{1, 0}, nil)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, []document.Document{mustDoc(t, "d1", "new", []float32{0, 1}, nil)}); err != nil {
		t.Fatalf("Add (upsert): %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	results, err := s.Query(ctx, []float32{0, 1}, 1, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if results[0].Document().Content() != "new" {
		t.Errorf("content = %q, want the replacement", results[0].Document().Content())
	}
}

func TestAdd_DimensionMismatch(t *testing.T) {
	s := New(3)
	ctx := context.Background()

	err := s.Add(ctx, []document.Document{mustDoc(t, "bad", "x", []float32{1, 0}, nil)})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("err = %v, want dimension mismatch", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0 after rejected batch", s.Len())
	}
}

func TestQuery_DimensionMismatch(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.Add(ctx, []document.Document{mustDoc(t, "d1", "x", []float32{1, 0, 0}, nil)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := s.Query(ctx, []float32{1, 0}, 1, nil); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("err = %v, want dimension mismatch", err)
	}
}

func TestQuery_TagFilter(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.Add(ctx, []document.Document{
		mustDoc(t, "en", "hello", []float32{1, 0}, map[string]string{"lang": "en"}),
		mustDoc(t, "de", "hallo", []float32{1, 0}, map[string]string{"lang": "de"}),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := s.Query(ctx, []float32{1, 0}, 10, store.Filter{"lang": "de"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Document().ID() != "de" {
		t.Errorf("results = %v, want only the de document", results)
	}
}

func TestDelete_IgnoresMissing(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.Add(ctx, []document.Document{mustDoc(t, "d1", "x", []float32{1}, nil)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Delete(ctx, []string{"d1", "no-such-doc"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestAdd_ConcurrentDisjointBatches(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				doc := mustDocNoT(fmt.Sprintf("w%d-d%d", w, i), []float32{1, float32(i)})
				if err := s.Add(ctx, []document.Document{doc}); err != nil {
					t.Errorf("Add: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if s.Len() != writers*perWriter {
		t.Errorf("Len = %d, want %d", s.Len(), writers*perWriter)
	}
}

func mustDocNoT(id string, vector []float32) document.Document {
	doc, err := document.New(id, "content", nil, nil)
	if err != nil {
		panic(err)
	}
	doc.SetVector(vector)
	return doc
}

func TestCosine_ZeroVector(t *testing.T) {
	if got := cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("cosine with zero vector = %g, want 0", got)
	}
}
