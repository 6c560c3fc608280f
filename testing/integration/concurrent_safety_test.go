package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/fieldz"
)

// TestConcurrentChainsStayConsistent runs many workers that each build a
// two-level hierarchy and fire events in it. Every document must show the
// chain and fields of exactly one worker.
func TestConcurrentChainsStayConsistent(t *testing.T) {
	h := NewHarness(t)

	var wg sync.WaitGroup
	numGoroutines := 20
	spansPerGoroutine := 50

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for j := 0; j < spansPerGoroutine; j++ {
				ctx1, span1 := h.Tracer.StartSpan(context.Background(), fieldz.LevelInfo, "parent",
					fieldz.Int("worker", worker))
				ctx2, span2 := h.Tracer.StartSpan(ctx1, fieldz.LevelDebug, "child")

				span1.Record(fieldz.Int("iteration", j))
				span2.Record(fieldz.String("owner", fmt.Sprintf("%d/%d", worker, j)))

				h.Tracer.Info(ctx2, "tick")

				span2.Finish()
				span1.Finish()
			}
		}(i)
	}

	wg.Wait()

	docs := h.Sink.AssertDocumentCount(numGoroutines * spansPerGoroutine)
	for _, doc := range docs {
		if err := VerifyChain(doc, "parent", "child"); err != nil {
			t.Fatal(err)
		}
		worker, _ := SpanField(doc, "parent", "worker")
		iteration, _ := SpanField(doc, "parent", "iteration")
		owner, _ := SpanField(doc, "child", "owner")
		if want := fmt.Sprintf("%d/%d", worker.Int64(), iteration.Int64()); owner.Str() != want {
			t.Fatalf("Mixed fields: parent says %s, child says %s", want, owner.Str())
		}
	}

	h.AssertDrained(t)
}

// TestConcurrentRecordsOnSharedSpan verifies last-write-wins recording from
// many goroutines leaves one value per key.
func TestConcurrentRecordsOnSharedSpan(t *testing.T) {
	h := NewHarness(t)

	ctx, span := h.Tracer.StartSpan(context.Background(), fieldz.LevelInfo, "shared")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				span.Record(fieldz.Int("counter", j), fieldz.Int(fmt.Sprintf("writer_%02d", idx), j))
				if j%25 == 0 {
					h.Tracer.Debug(ctx, "")
				}
			}
		}(i)
	}
	wg.Wait()

	h.Tracer.Info(ctx, "final")
	span.Finish()

	final := h.Sink.DocumentsNamed("final")
	if len(final) != 1 {
		t.Fatalf("Expected 1 final document, got %d", len(final))
	}
	fields := final[0].Spans[0].Fields
	if fields.Len() != 17 {
		t.Errorf("Expected 17 fields, got %d: %v", fields.Len(), fields.Keys())
	}
	for i := 0; i < 16; i++ {
		if v, _ := fields.Get(fmt.Sprintf("writer_%02d", i)); v.Int64() != 99 {
			t.Errorf("writer_%02d = %v, want 99", i, v)
		}
	}
	if v, _ := fields.Get("counter"); v.Int64() != 99 {
		t.Errorf("counter = %v, want 99", v)
	}

	if n := len(h.Sink.Documents()); n != 16*4+1 {
		t.Errorf("Expected %d documents, got %d", 16*4+1, n)
	}

	h.AssertDrained(t)
}
