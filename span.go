package fieldz

import (
	"context"
	"sync"
)

// contextKeyType is a private type for context keys to avoid collisions.
type contextKeyType string

const (
	spanKey contextKeyType = "fieldz"
)

// Span identifies a span and its immutable metadata.
type Span struct {
	ID       SpanID
	ParentID SpanID
	Metadata
}

// spanNode is the tracer's handle on a live span.
//
// refs counts the ActiveSpan handle, each live child, and each in-flight
// record or event pinning the span. The span closes when refs reaches zero,
// which can only happen after Finish drops the handle's reference.
type spanNode struct {
	parent  *spanNode
	tracer  *Tracer
	span    Span
	mu      sync.Mutex
	refs    int
	closing bool
}

// acquire pins n unless Finish was already called.
func (n *spanNode) acquire() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closing {
		return false
	}
	n.refs++
	return true
}

// unref drops one reference and closes the span on the last one.
func (n *spanNode) unref() {
	n.mu.Lock()
	n.refs--
	last := n.refs == 0
	n.mu.Unlock()

	if last {
		n.tracer.closeSpan(n)
	}
}

// path returns the span identities from the root down to n.
func (n *spanNode) path() []SpanID {
	depth := 0
	for cur := n; cur != nil; cur = cur.parent {
		depth++
	}
	ids := make([]SpanID, depth)
	for cur := n; cur != nil; cur = cur.parent {
		depth--
		ids[depth] = cur.span.ID
	}
	return ids
}

// pinEntered walks up from n to the innermost span that has not been
// finished, pins it and returns it. Returns nil when none is left.
func pinEntered(n *spanNode) *spanNode {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.acquire() {
			return cur
		}
	}
	return nil
}

// ActiveSpan is the handle returned by StartSpan.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	node     *spanNode
	mu       sync.Mutex
	finished bool
}

// Record adds fields to the span; later values for a name replace earlier ones.
// No-op once the span is finished.
func (a *ActiveSpan) Record(fields ...Field) {
	if len(fields) == 0 || !a.node.acquire() {
		return
	}
	defer a.node.unref()
	a.node.tracer.record(a.node.span.ID, fields)
}

// Finish ends the span. Its fields stay readable to events in child spans
// that are still open; the span is released once those close.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return
	}
	a.finished = true
	a.mu.Unlock()

	a.node.mu.Lock()
	a.node.closing = true
	a.node.mu.Unlock()
	a.node.unref()
}

// ID returns the span's identity.
func (a *ActiveSpan) ID() SpanID {
	return a.node.span.ID
}

// Span returns the span's identity and metadata.
func (a *ActiveSpan) Span() Span {
	return a.node.span
}

// Context returns parent with this span entered.
// Spans and events started from the returned context nest under it.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, spanKey, a.node)
}

// GetSpan returns the span entered in ctx, if any.
func GetSpan(ctx context.Context) (Span, bool) {
	n := nodeFrom(ctx)
	if n == nil {
		return Span{}, false
	}
	return n.span, true
}

// Scope returns the identities of the spans entered in ctx, root first.
// Finished spans are skipped; the result is empty outside any span.
func Scope(ctx context.Context) []SpanID {
	n := pinEntered(nodeFrom(ctx))
	if n == nil {
		return []SpanID{}
	}
	defer n.unref()
	return n.path()
}

func nodeFrom(ctx context.Context) *spanNode {
	if ctx == nil {
		return nil
	}
	n, _ := ctx.Value(spanKey).(*spanNode)
	return n
}
