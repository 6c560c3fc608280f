package fieldz

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// SpanRecord is a snapshot of one span's registry entry.
type SpanRecord struct {
	Fields *Fields
	ID     SpanID
	Metadata
}

// spanEntry guards one span's store. Metadata never changes after creation.
type spanEntry struct {
	fields *Fields
	meta   Metadata
	mu     sync.Mutex
}

// Registry maps span identities to their accumulated fields.
// Safe for concurrent use by multiple goroutines; each span has its own lock.
type Registry struct {
	entries sync.Map // SpanID -> *spanEntry
	count   atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Create attaches a fresh store populated from fields to id.
// Returns ErrSpanExists if id is already attached.
func (r *Registry) Create(id SpanID, meta Metadata, fields ...Field) error {
	entry := &spanEntry{meta: meta, fields: FieldsOf(fields...)}
	if _, loaded := r.entries.LoadOrStore(id, entry); loaded {
		return fmt.Errorf("create span %s: %w", id, ErrSpanExists)
	}
	r.count.Add(1)
	return nil
}

// Record merges fields into id's store, last write wins.
// Returns ErrSpanNotFound if id was never created or was released.
func (r *Registry) Record(id SpanID, fields ...Field) error {
	entry, err := r.entry(id)
	if err != nil {
		return fmt.Errorf("record span %s: %w", id, err)
	}
	entry.mu.Lock()
	entry.fields.Capture(fields...)
	entry.mu.Unlock()
	return nil
}

// Fields returns a snapshot of id's store.
func (r *Registry) Fields(id SpanID) (*Fields, error) {
	entry, err := r.entry(id)
	if err != nil {
		return nil, fmt.Errorf("read span %s: %w", id, err)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.fields.Clone(), nil
}

// Lookup returns a snapshot of id's metadata and fields.
func (r *Registry) Lookup(id SpanID) (SpanRecord, error) {
	entry, err := r.entry(id)
	if err != nil {
		return SpanRecord{}, fmt.Errorf("lookup span %s: %w", id, err)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return SpanRecord{ID: id, Metadata: entry.meta, Fields: entry.fields.Clone()}, nil
}

// Release drops id's entry. Reports whether the entry existed.
func (r *Registry) Release(id SpanID) bool {
	if _, loaded := r.entries.LoadAndDelete(id); loaded {
		r.count.Add(-1)
		return true
	}
	return false
}

// Len returns the number of attached spans.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

func (r *Registry) entry(id SpanID) (*spanEntry, error) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, ErrSpanNotFound
	}
	return v.(*spanEntry), nil
}
