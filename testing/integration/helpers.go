package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/fieldz"
)

// MockSink wraps a real collector with test utilities.
// Provides synchronous collection and document assertions.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockSink struct {
	decoded []fieldz.Document
	*fieldz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockSink creates a synchronous collector for testing.
func NewMockSink(t *testing.T, name string) *MockSink {
	collector := fieldz.NewCollector(name, 1024)
	collector.SetSyncMode(true) // Enable synchronous collection for testing.
	t.Cleanup(func() { _ = collector.Close() })
	return &MockSink{
		Collector: collector,
		t:         t,
	}
}

// Documents returns every document written so far, decoded, in write order.
func (m *MockSink) Documents() []fieldz.Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, err := m.Collector.ExportDocuments()
	if err != nil {
		m.t.Fatalf("decode documents: %v", err)
	}
	m.decoded = append(m.decoded, docs...)

	all := make([]fieldz.Document, len(m.decoded))
	copy(all, m.decoded)
	return all
}

// AssertDocumentCount verifies the exact document count.
func (m *MockSink) AssertDocumentCount(expected int) []fieldz.Document {
	docs := m.Documents()
	if len(docs) != expected {
		m.t.Errorf("Expected %d documents, got %d", expected, len(docs))
	}
	return docs
}

// DocumentsNamed returns the documents whose message field equals msg.
func (m *MockSink) DocumentsNamed(msg string) []fieldz.Document {
	var out []fieldz.Document
	for _, doc := range m.Documents() {
		if Message(doc) == msg {
			out = append(out, doc)
		}
	}
	return out
}

// Message returns the document's "message" field, or "".
func Message(doc fieldz.Document) string {
	v, ok := doc.Fields.Get("message")
	if !ok {
		return ""
	}
	return v.Str()
}

// Chain returns the span names of doc, outermost first.
func Chain(doc fieldz.Document) []string {
	names := make([]string, len(doc.Spans))
	for i, span := range doc.Spans {
		names[i] = span.Name
	}
	return names
}

// VerifyChain reports whether doc's spans are exactly names, outermost first.
func VerifyChain(doc fieldz.Document, names ...string) error {
	got := Chain(doc)
	if len(got) != len(names) {
		return fmt.Errorf("chain length %d, want %d: %s", len(got), len(names), strings.Join(got, " > "))
	}
	for i := range names {
		if got[i] != names[i] {
			return fmt.Errorf("chain %s, want %s", strings.Join(got, " > "), strings.Join(names, " > "))
		}
	}
	return nil
}

// SpanField returns the value of key in the span named spanName inside doc.
func SpanField(doc fieldz.Document, spanName, key string) (fieldz.Value, bool) {
	for _, span := range doc.Spans {
		if span.Name == spanName {
			return span.Fields.Get(key)
		}
	}
	return fieldz.Value{}, false
}

// Harness wires a tracer to a JSON layer writing into a MockSink.
type Harness struct {
	Tracer   *fieldz.Tracer
	Registry *fieldz.Registry
	Sink     *MockSink
}

// NewHarness creates a harness closed automatically when t ends.
func NewHarness(t *testing.T) *Harness {
	sink := NewMockSink(t, t.Name())
	registry := fieldz.NewRegistry()
	tracer := fieldz.New(fieldz.WithLayer(fieldz.NewJSONLayer(registry, sink)))
	t.Cleanup(tracer.Close)
	return &Harness{Tracer: tracer, Registry: registry, Sink: sink}
}

// AssertDrained verifies that no span is left open or registered.
func (h *Harness) AssertDrained(t *testing.T) {
	t.Helper()
	if live := h.Tracer.LiveSpans(); live != 0 {
		t.Errorf("Expected 0 live spans, got %d", live)
	}
	if n := h.Registry.Len(); n != 0 {
		t.Errorf("Expected empty registry, got %d entries", n)
	}
}

// ErrServiceFailed is returned by MockService.Call on a simulated failure.
var ErrServiceFailed = errors.New("service failed")

// MockService simulates a downstream service for testing.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockService struct {
	tracer  *fieldz.Tracer
	name    string
	latency time.Duration
	failOn  map[string]bool
	mu      sync.RWMutex
}

// NewMockService creates a service that traces every call.
func NewMockService(name string, tracer *fieldz.Tracer) *MockService {
	return &MockService{
		name:   name,
		tracer: tracer,
		failOn: make(map[string]bool),
	}
}

// SetLatency configures simulated latency.
func (m *MockService) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// FailOn makes calls to operation fail.
func (m *MockService) FailOn(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[operation] = true
}

// Call opens a span for operation, logs an event inside it and records
// the outcome on the span.
func (m *MockService) Call(ctx context.Context, operation string) (context.Context, error) {
	ctx, span := m.tracer.StartSpan(ctx, fieldz.LevelInfo, m.name+"."+operation,
		fieldz.String("service", m.name),
		fieldz.String("operation", operation),
	)
	defer span.Finish()

	m.mu.RLock()
	latency := m.latency
	fail := m.failOn[operation]
	m.mu.RUnlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	if fail {
		err := fmt.Errorf("%s.%s: %w", m.name, operation, ErrServiceFailed)
		span.Record(fieldz.Err("error", err), fieldz.Bool("ok", false))
		m.tracer.Error(ctx, "call failed", fieldz.Err("error", err))
		return ctx, err
	}

	span.Record(fieldz.Bool("ok", true))
	m.tracer.Info(ctx, "call completed")
	return ctx, nil
}
