package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/modelmux/internal/domain/usage"
)

type mirrorFn func(ctx context.Context, rec usage.Record) error

func (f mirrorFn) Record(ctx context.Context, rec usage.Record) error { return f(ctx, rec) }

func rec(provider string) usage.Record {
	return usage.Record{
		Timestamp:        time.Now(),
		Provider:         provider,
		Model:            "gpt-4",
		Op:               usage.OpChat,
		PromptTokens:     100,
		CompletionTokens: 50,
		CostUSD:          0.006,
		Priced:           true,
	}
}

func TestAppendAndSnapshot(t *testing.T) {
	l := New(nil)

	if err := l.Append(context.Background(), rec("openai")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(context.Background(), rec("google")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap := l.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}
	if snap[0].Provider != "openai" || snap[1].Provider != "google" {
		t.Errorf("append order not preserved: %s, %s", snap[0].Provider, snap[1].Provider)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	l := New(nil)
	_ = l.Append(context.Background(), rec("openai"))

	snap := l.Snapshot()
	snap[0].Provider = "mutated"

	if l.Snapshot()[0].Provider != "openai" {
		t.Error("mutating the snapshot changed the ledger")
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := New(nil)

	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_ = l.Append(context.Background(), rec("openai"))
			}
		}()
	}
	wg.Wait()

	if got := l.Len(); got != goroutines*perGoroutine {
		t.Errorf("len = %d, want %d", got, goroutines*perGoroutine)
	}
}

func TestMirrorReceivesRecords(t *testing.T) {
	var mirrored []usage.Record
	l := New(nil).WithMirror(mirrorFn(func(_ context.Context, r usage.Record) error {
		mirrored = append(mirrored, r)
		return nil
	}))

	_ = l.Append(context.Background(), rec("openai"))

	if len(mirrored) != 1 || mirrored[0].Provider != "openai" {
		t.Errorf("mirrored = %+v", mirrored)
	}
}

func TestMirrorFailureDoesNotFailAppend(t *testing.T) {
	l := New(nil).WithMirror(mirrorFn(func(context.Context, usage.Record) error {
		return errors.New("redis down")
	}))

	if err := l.Append(context.Background(), rec("openai")); err != nil {
		t.Fatalf("Append returned mirror error: %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("record not kept in memory after mirror failure")
	}
}
