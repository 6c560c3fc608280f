package fieldz

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// LayerOption configures a JSONLayer.
type LayerOption func(*JSONLayer)

// WithLayerLogger sets the layer's logger.
func WithLayerLogger(logger *zap.Logger) LayerOption {
	return func(l *JSONLayer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics counts layer activity into m.
func WithMetrics(m *Metrics) LayerOption {
	return func(l *JSONLayer) {
		l.metrics = m
	}
}

// JSONLayer stores span fields in a Registry and writes one JSON document
// per event through an Emitter.
//
// A missing span and a failed sink write both panic: the first is a broken
// contract with the Tracer, the second leaves no way to recover the document.
type JSONLayer struct {
	registry *Registry
	emitter  *Emitter
	logger   *zap.Logger
	metrics  *Metrics
}

// NewJSONLayer binds registry and sink. The caller keeps ownership of both.
func NewJSONLayer(registry *Registry, sink Sink, opts ...LayerOption) *JSONLayer {
	l := &JSONLayer{
		registry: registry,
		emitter:  NewEmitter(registry, sink),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the layer's registry.
func (l *JSONLayer) Registry() *Registry {
	return l.registry
}

// OnNewSpan attaches the span's declared fields.
func (l *JSONLayer) OnNewSpan(span Span, fields []Field) {
	if err := l.registry.Create(span.ID, span.Metadata, fields...); err != nil {
		l.fatal("span create", err)
	}
	l.metrics.spanCreated()
}

// OnRecord merges fields into the span's store.
func (l *JSONLayer) OnRecord(id SpanID, fields []Field) {
	if err := l.registry.Record(id, fields...); err != nil {
		l.fatal("span record", err)
	}
	l.metrics.recorded()
}

// OnEvent writes the event's document.
func (l *JSONLayer) OnEvent(event Event, scope []SpanID) {
	if err := l.emitter.Emit(event, scope); err != nil {
		if errors.Is(err, ErrSink) {
			l.metrics.sinkError()
		}
		l.fatal("event emit", err)
	}
	l.metrics.emitted()
}

// OnClose releases the span's store.
func (l *JSONLayer) OnClose(id SpanID) {
	if l.registry.Release(id) {
		l.metrics.spanReleased()
	}
}

func (l *JSONLayer) fatal(op string, err error) {
	l.logger.Error("fieldz layer failed", zap.String("op", op), zap.Error(err))
	panic(fmt.Errorf("fieldz: %s: %w", op, err))
}

// PrintLayer writes a plain-text trace of every notification and every
// captured field. Meant for debugging instrumentation.
// Safe for concurrent use by multiple goroutines.
type PrintLayer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewPrintLayer writes to w.
func NewPrintLayer(w io.Writer) *PrintLayer {
	return &PrintLayer{w: w}
}

// OnNewSpan prints the span header and its fields.
func (p *PrintLayer) OnNewSpan(span Span, fields []Field) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "new span id=%s name=%s target=%s level=%s\n", span.ID, span.Name, span.Target, span.Level)
	p.printFields(fields)
}

// OnRecord prints the recorded fields.
func (p *PrintLayer) OnRecord(id SpanID, fields []Field) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "record span id=%s\n", id)
	p.printFields(fields)
}

// OnEvent prints the event header, its scope and its fields.
func (p *PrintLayer) OnEvent(event Event, scope []SpanID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "event name=%s target=%s level=%s scope=%v\n", event.Name, event.Target, event.Level, scope)
	p.printFields(event.Fields)
}

// OnClose prints the closed span's identity.
func (p *PrintLayer) OnClose(id SpanID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "close span id=%s\n", id)
}

func (p *PrintLayer) printFields(fields []Field) {
	for _, f := range fields {
		fmt.Fprintf(p.w, "    field=%s value=%s\n", f.Key, f.Value)
	}
}
