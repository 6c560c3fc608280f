package fieldz

import "fmt"

// Event is a point-in-time occurrence with its own fields.
type Event struct {
	Fields []Field
	Metadata
}

// SpanDocument is one enclosing span inside a Document.
//
//nolint:govet // Field order is the JSON output order
type SpanDocument struct {
	Target string  `json:"target"`
	Name   string  `json:"name"`
	Level  Level   `json:"level"`
	Fields *Fields `json:"fields"`
}

// Document is the serialized form of one event.
// Spans run from the outermost span to the innermost.
//
//nolint:govet // Field order is the JSON output order
type Document struct {
	Target string         `json:"target"`
	Name   string         `json:"name"`
	Level  Level          `json:"level"`
	Fields *Fields        `json:"fields"`
	Spans  []SpanDocument `json:"spans"`
}

// Emitter builds one Document per event from the registry and writes it to a sink.
// Safe for concurrent use when its sink is.
type Emitter struct {
	registry *Registry
	sink     Sink
}

// NewEmitter creates an emitter reading span fields from registry.
func NewEmitter(registry *Registry, sink Sink) *Emitter {
	return &Emitter{registry: registry, sink: sink}
}

// Build assembles the document for event. scope lists the enclosing
// spans root first and may be empty.
func (e *Emitter) Build(event Event, scope []SpanID) (Document, error) {
	doc := Document{
		Target: event.Target,
		Name:   event.Name,
		Level:  event.Level,
		Fields: FieldsOf(event.Fields...),
		Spans:  make([]SpanDocument, 0, len(scope)),
	}
	for _, id := range scope {
		rec, err := e.registry.Lookup(id)
		if err != nil {
			return Document{}, fmt.Errorf("build event %q: %w", event.Name, err)
		}
		doc.Spans = append(doc.Spans, SpanDocument{
			Target: rec.Target,
			Name:   rec.Name,
			Level:  rec.Level,
			Fields: rec.Fields,
		})
	}
	return doc, nil
}

// Emit builds, encodes and writes the document for event as one unit.
func (e *Emitter) Emit(event Event, scope []SpanID) error {
	doc, err := e.Build(event, scope)
	if err != nil {
		return err
	}
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}
	if err := e.sink.WriteDocument(data); err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	return nil
}

// EncodeDocument renders doc as JSON indented by two spaces, without a
// trailing newline. Nil fields encode as {} and nil spans as [].
func EncodeDocument(doc Document) ([]byte, error) {
	if doc.Fields == nil {
		doc.Fields = NewFields()
	}
	spans := make([]SpanDocument, len(doc.Spans))
	copy(spans, doc.Spans)
	for i := range spans {
		if spans[i].Fields == nil {
			spans[i].Fields = NewFields()
		}
	}
	doc.Spans = spans
	data, err := jsonAPI.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}
