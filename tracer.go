package fieldz

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Layer receives span and event notifications from a Tracer.
// Calls for one span arrive in order: OnNewSpan, any OnRecord, OnClose.
// OnEvent scopes list span identities root first; every listed span is
// kept open until OnEvent returns.
type Layer interface {
	OnNewSpan(span Span, fields []Field)
	OnRecord(id SpanID, fields []Field)
	OnEvent(event Event, scope []SpanID)
	OnClose(id SpanID)
}

// SpanHandler is called when a span closes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithLayer adds a layer. Layers are notified in the order added.
func WithLayer(layer Layer) Option {
	return func(t *Tracer) {
		if layer != nil {
			t.layers = append(t.layers, layer)
		}
	}
}

// WithLogger sets the tracer's logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithIDFactory replaces the span identity generator.
func WithIDFactory(factory func() SpanID) Option {
	return func(t *Tracer) {
		t.idFactory = factory
	}
}

// Tracer owns the span hierarchy and forwards lifecycle notifications to
// its layers. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	layers       []Layer
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	spanIDPool   *IDPool
	idFactory    func() SpanID
	logger       *zap.Logger
	handlersLock sync.RWMutex
	idPoolOnce   sync.Once
	nextID       atomic.Uint64
	liveSpans    atomic.Int64
	droppedCalls atomic.Uint64
}

// New creates a tracer.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers: make([]handlerEntry, 0),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ensureIDPool initializes the ID pool if not already created.
func (t *Tracer) ensureIDPool() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		t.spanIDPool = NewIDPool(runtime.NumCPU()*100, t.idFactory)
	})
}

func (t *Tracer) newID() SpanID {
	t.ensureIDPool()
	if t.spanIDPool == nil {
		// Closed before the first span.
		if t.idFactory != nil {
			return t.idFactory()
		}
		return newSpanID()
	}
	return t.spanIDPool.Get()
}

// StartSpan opens a span named name at level, nested under the span in ctx.
// The target is the calling function's package path.
func (t *Tracer) StartSpan(ctx context.Context, level Level, name string, fields ...Field) (context.Context, *ActiveSpan) {
	target, _ := callerInfo(2)
	return t.StartSpanWithMetadata(ctx, Metadata{Target: target, Name: name, Level: level}, fields...)
}

// StartSpanWithMetadata opens a span with explicit metadata, nested under
// the innermost unfinished span in ctx.
func (t *Tracer) StartSpanWithMetadata(ctx context.Context, meta Metadata, fields ...Field) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}

	node := &spanNode{
		tracer: t,
		span:   Span{ID: t.newID(), Metadata: meta},
		refs:   1,
	}

	// The child holds a reference on its parent until it closes.
	if parent := pinEntered(nodeFrom(ctx)); parent != nil {
		node.parent = parent
		node.span.ParentID = parent.span.ID
	}

	t.liveSpans.Add(1)
	for _, l := range t.layers {
		l.OnNewSpan(node.span, fields)
	}

	active := &ActiveSpan{node: node}
	return context.WithValue(ctx, spanKey, node), active
}

// Event fires an event inside the spans entered in ctx.
func (t *Tracer) Event(ctx context.Context, meta Metadata, fields ...Field) {
	leaf := pinEntered(nodeFrom(ctx))
	scope := []SpanID{}
	if leaf != nil {
		defer leaf.unref()
		scope = leaf.path()
	}

	event := Event{Metadata: meta, Fields: fields}
	for _, l := range t.layers {
		l.OnEvent(event, scope)
	}
}

// Trace fires a TRACE event with msg recorded as the "message" field.
func (t *Tracer) Trace(ctx context.Context, msg string, fields ...Field) {
	t.log(ctx, LevelTrace, msg, fields)
}

// Debug fires a DEBUG event with msg recorded as the "message" field.
func (t *Tracer) Debug(ctx context.Context, msg string, fields ...Field) {
	t.log(ctx, LevelDebug, msg, fields)
}

// Info fires an INFO event with msg recorded as the "message" field.
func (t *Tracer) Info(ctx context.Context, msg string, fields ...Field) {
	t.log(ctx, LevelInfo, msg, fields)
}

// Warn fires a WARN event with msg recorded as the "message" field.
func (t *Tracer) Warn(ctx context.Context, msg string, fields ...Field) {
	t.log(ctx, LevelWarn, msg, fields)
}

// Error fires an ERROR event with msg recorded as the "message" field.
func (t *Tracer) Error(ctx context.Context, msg string, fields ...Field) {
	t.log(ctx, LevelError, msg, fields)
}

// log names the event after its call site, "event <file>:<line>", and
// targets the caller's package.
func (t *Tracer) log(ctx context.Context, level Level, msg string, fields []Field) {
	target, site := callerInfo(3)
	all := make([]Field, 0, len(fields)+1)
	if msg != "" {
		all = append(all, String("message", msg))
	}
	all = append(all, fields...)
	t.Event(ctx, Metadata{Target: target, Name: "event " + site, Level: level}, all...)
}

func (t *Tracer) record(id SpanID, fields []Field) {
	for _, l := range t.layers {
		l.OnRecord(id, fields)
	}
}

// closeSpan runs once per span, when its last reference drops.
func (t *Tracer) closeSpan(n *spanNode) {
	for _, l := range t.layers {
		l.OnClose(n.span.ID)
	}
	t.liveSpans.Add(-1)
	t.executeHandlers(n.span)
	if n.parent != nil {
		n.parent.unref()
	}
}

// LiveSpans returns the number of spans not yet closed.
func (t *Tracer) LiveSpans() int64 {
	return t.liveSpans.Load()
}

// OnSpanClose registers a synchronous handler called when spans close.
func (t *Tracer) OnSpanClose(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCloseAsync registers an asynchronous handler called when spans close.
func (t *Tracer) OnSpanCloseAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// Flusher is a sink that can push out buffered documents on request.
type Flusher interface {
	Flush()
}

// FlushOnRootClose flushes f each time a root span closes, so the documents
// of a finished operation reach the output without waiting for a timer.
// The flush runs as an async close handler, on the worker pool if enabled.
func (t *Tracer) FlushOnRootClose(f Flusher) uint64 {
	if f == nil {
		return 0
	}
	return t.OnSpanCloseAsync(func(span Span) {
		if span.ParentID == "" {
			f.Flush()
		}
	})
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any close handler is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0
}

// SetPanicHook sets a function called when a close handler panics.
// Without a hook the panic is logged.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// executeHandlers calls all registered handlers with the closed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			if workers != nil {
				workers.submit(func() {
					t.safeCall(entry, span)
				})
			} else {
				go t.safeCall(entry, span)
			}
		} else {
			t.safeCall(h, span)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.handlersLock.RLock()
			hook := t.panicHook
			t.handlersLock.RUnlock()
			if hook != nil {
				hook(entry.id, r)
				return
			}
			t.logger.Error("span close handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.String("span_id", string(span.ID)),
				zap.Any("panic", r),
			)
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedCalls,
		logger:  t.logger,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedHandlerCalls returns the number of async handler calls dropped on a full worker queue.
func (t *Tracer) DroppedHandlerCalls() uint64 {
	return t.droppedCalls.Load()
}

// Close stops handler execution and background goroutines.
// Layers and their sinks belong to the caller and are not closed.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	if workers != nil {
		workers.shutdown()
	}

	// Blocks pool creation after Close and orders the read below.
	t.idPoolOnce.Do(func() {})
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}

// callerInfo returns the package path of the function skip frames above
// its caller and the call site as "file.go:line".
func callerInfo(skip int) (target, site string) {
	var pcs [1]uintptr
	if runtime.Callers(skip+1, pcs[:]) == 0 {
		return "unknown", "unknown"
	}
	frame, _ := runtime.CallersFrames(pcs[:]).Next()
	site = filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
	if frame.Function == "" {
		return "unknown", site
	}
	return packagePath(frame.Function), site
}

// packagePath trims the function part from a fully qualified function name:
// "github.com/a/b.(*T).M" becomes "github.com/a/b".
func packagePath(funcName string) string {
	slash := strings.LastIndex(funcName, "/")
	if dot := strings.Index(funcName[slash+1:], "."); dot >= 0 {
		return funcName[:slash+1+dot]
	}
	return funcName
}

// workerPool manages a fixed number of workers for async close handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
		w.logger.Warn("worker queue full, dropping span close handler call")
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
