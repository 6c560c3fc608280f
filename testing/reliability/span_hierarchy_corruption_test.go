package reliability

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/fieldz"
)

// Span hierarchy corruption tests - verify emitted span chains under stress.
// Every span records its depth, so a document is consistent when span i
// carries depth=i.

func TestSpanHierarchyCorruption(t *testing.T) {
	config := getReliabilityConfig(t)

	switch config.Level {
	case "basic":
		t.Run("deep_chain", func(t *testing.T) { testDeepChain(t, config) })
		t.Run("out_of_order_finish", testOutOfOrderFinish)
		t.Run("orphaned_events", testOrphanedEvents)
	case "stress":
		t.Run("hierarchy_storm", func(t *testing.T) { testHierarchyStorm(t, config) })
		t.Run("buffered_backpressure", func(t *testing.T) { testBufferedBackpressure(t, config) })
	default:
		t.Skip("FIELDZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
}

// checkingSink decodes every document and validates its chain.
type checkingSink struct {
	mu      sync.Mutex
	bad     []string
	count   atomic.Int64
	maxSeen atomic.Int64
}

func (s *checkingSink) WriteDocument(doc []byte) error {
	s.count.Add(1)
	decoded, err := fieldz.DecodeDocument(doc)
	if err != nil {
		s.report(fmt.Sprintf("decode: %v", err))
		return nil
	}
	if n := int64(len(decoded.Spans)); n > s.maxSeen.Load() {
		s.maxSeen.Store(n)
	}
	for i, span := range decoded.Spans {
		depth, ok := span.Fields.Get("depth")
		if !ok || depth.Int64() != int64(i) {
			s.report(fmt.Sprintf("span %d (%s) has depth %v", i, span.Name, depth))
			return nil
		}
	}
	return nil
}

func (s *checkingSink) Close() error { return nil }

func (s *checkingSink) report(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bad = append(s.bad, msg)
}

func (s *checkingSink) verify(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.bad {
		if i == 10 {
			t.Errorf("... and %d more", len(s.bad)-10)
			break
		}
		t.Error(msg)
	}
}

func newCheckedTracer(t *testing.T) (*fieldz.Tracer, *fieldz.Registry, *checkingSink) {
	sink := &checkingSink{}
	registry := fieldz.NewRegistry()
	tracer := fieldz.New(fieldz.WithLayer(fieldz.NewJSONLayer(registry, sink)))
	t.Cleanup(tracer.Close)
	return tracer, registry, sink
}

func assertDrained(t *testing.T, tracer *fieldz.Tracer, registry *fieldz.Registry) {
	t.Helper()
	if live := tracer.LiveSpans(); live != 0 {
		t.Errorf("Expected 0 live spans, got %d", live)
	}
	if n := registry.Len(); n != 0 {
		t.Errorf("Registry still holds %d spans", n)
	}
}

// testDeepChain builds one chain as deep as configured and fires an event
// at every level.
func testDeepChain(t *testing.T, config ReliabilityConfig) {
	tracer, registry, sink := newCheckedTracer(t)

	ctx := context.Background()
	spans := make([]*fieldz.ActiveSpan, 0, config.MaxDepth)
	for i := 0; i < config.MaxDepth; i++ {
		var span *fieldz.ActiveSpan
		ctx, span = tracer.StartSpan(ctx, fieldz.LevelTrace, fmt.Sprintf("level-%d", i), fieldz.Int("depth", i))
		spans = append(spans, span)
		tracer.Trace(ctx, "")
	}
	for i := len(spans) - 1; i >= 0; i-- {
		spans[i].Finish()
	}

	if got := sink.count.Load(); got != int64(config.MaxDepth) {
		t.Errorf("Expected %d documents, got %d", config.MaxDepth, got)
	}
	if got := sink.maxSeen.Load(); got != int64(config.MaxDepth) {
		t.Errorf("Deepest chain %d, want %d", got, config.MaxDepth)
	}
	sink.verify(t)
	assertDrained(t, tracer, registry)
}

// testOutOfOrderFinish finishes spans in random order while events keep
// firing from the deepest context.
func testOutOfOrderFinish(t *testing.T) {
	tracer, registry, sink := newCheckedTracer(t)
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 100; round++ {
		ctx := context.Background()
		var spans []*fieldz.ActiveSpan
		for i := 0; i < 8; i++ {
			var span *fieldz.ActiveSpan
			ctx, span = tracer.StartSpan(ctx, fieldz.LevelDebug, "node", fieldz.Int("depth", i))
			spans = append(spans, span)
		}

		for _, idx := range rng.Perm(len(spans)) {
			spans[idx].Finish()
			// The chain runs from the root to the innermost unfinished span.
			tracer.Debug(ctx, "after finish", fieldz.Int("finished", idx))
		}
	}

	if got := sink.count.Load(); got != 800 {
		t.Errorf("Expected 800 documents, got %d", got)
	}
	sink.verify(t)
	assertDrained(t, tracer, registry)
}

// testOrphanedEvents fires events from contexts whose spans are all gone.
func testOrphanedEvents(t *testing.T) {
	tracer, registry, _ := newCheckedTracer(t)

	var contexts []context.Context
	for i := 0; i < 50; i++ {
		ctx, span := tracer.StartSpan(context.Background(), fieldz.LevelInfo, "short", fieldz.Int("depth", 0))
		span.Finish()
		contexts = append(contexts, ctx)
	}

	for _, ctx := range contexts {
		if scope := fieldz.Scope(ctx); len(scope) != 0 {
			t.Fatalf("Finished span still in scope: %v", scope)
		}
		tracer.Info(ctx, "orphan")
		_, child := tracer.StartSpan(ctx, fieldz.LevelInfo, "child", fieldz.Int("depth", 0))
		if child.Span().ParentID != "" {
			t.Errorf("Child attached to finished span %s", child.Span().ParentID)
		}
		child.Finish()
	}

	assertDrained(t, tracer, registry)
}

// testHierarchyStorm grows random trees from many goroutines for the
// configured duration.
func testHierarchyStorm(t *testing.T, config ReliabilityConfig) {
	tracer, registry, sink := newCheckedTracer(t)

	deadline := time.Now().Add(config.Duration)
	var wg sync.WaitGroup
	var events atomic.Int64

	for w := 0; w < config.MaxGoroutines; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			for time.Now().Before(deadline) {
				events.Add(grow(context.Background(), tracer, rng, 0, 6))
			}
		}(w)
	}
	wg.Wait()

	if got := sink.count.Load(); got != events.Load() {
		t.Errorf("Fired %d events, sink saw %d", events.Load(), got)
	}
	sink.verify(t)
	assertDrained(t, tracer, registry)
}

// grow builds a random subtree below ctx and returns the events fired.
func grow(ctx context.Context, tracer *fieldz.Tracer, rng *rand.Rand, depth, maxDepth int) int64 {
	ctx, span := tracer.StartSpan(ctx, fieldz.LevelInfo, "storm", fieldz.Int("depth", depth))
	defer span.Finish()

	span.Record(fieldz.Float64("weight", rng.Float64()))
	tracer.Info(ctx, "")
	fired := int64(1)

	if depth+1 < maxDepth {
		for i := rng.Intn(3); i > 0; i-- {
			fired += grow(ctx, tracer, rng, depth+1, maxDepth)
		}
	}
	return fired
}

// testBufferedBackpressure pushes documents through a BufferedSink whose
// queue is far smaller than the load. Writers block; nothing is dropped.
func testBufferedBackpressure(t *testing.T, config ReliabilityConfig) {
	next := &checkingSink{}
	buffered := fieldz.NewBufferedSink(next, fieldz.BufferedOptions{
		FlushInterval: 5 * time.Millisecond,
		BatchSize:     16,
		QueueSize:     8,
	})
	registry := fieldz.NewRegistry()
	tracer := fieldz.New(fieldz.WithLayer(fieldz.NewJSONLayer(registry, buffered)))
	defer tracer.Close()

	perWorker := 200
	var wg sync.WaitGroup
	for w := 0; w < config.MaxGoroutines; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			ctx, span := tracer.StartSpan(context.Background(), fieldz.LevelInfo, "producer", fieldz.Int("depth", 0))
			defer span.Finish()
			for i := 0; i < perWorker; i++ {
				tracer.Info(ctx, "", fieldz.Int("worker", worker), fieldz.Int("seq", i))
			}
		}(w)
	}
	wg.Wait()

	if err := buffered.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := int64(config.MaxGoroutines * perWorker)
	if got := buffered.Written(); got != want {
		t.Errorf("Forwarded %d documents, want %d", got, want)
	}
	if got := next.count.Load(); got != want {
		t.Errorf("Sink saw %d documents, want %d", got, want)
	}
	next.verify(t)
	assertDrained(t, tracer, registry)
}
