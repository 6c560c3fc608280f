package fieldz

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Sink receives serialized documents, one complete document per call.
// Implementations must not interleave concurrent documents and must add
// the record boundary themselves.
type Sink interface {
	WriteDocument(doc []byte) error
	Close() error
}

// WriterSink writes each document followed by a newline to an io.Writer.
// Safe for concurrent use by multiple goroutines.
type WriterSink struct {
	w      io.Writer
	buf    []byte
	mu     sync.Mutex
	closed bool
}

// NewWriterSink wraps w. Close closes w when it implements io.Closer.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// WriteDocument writes doc and a newline in a single Write call.
func (s *WriterSink) WriteDocument(doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.buf = append(s.buf[:0], doc...)
	s.buf = append(s.buf, '\n')
	if _, err := s.w.Write(s.buf); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Close marks the sink closed and closes the underlying writer if possible.
// Safe to call multiple times.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CompressedSink writes documents into a zstd stream. Each document is
// flushed as its own block so readers see whole documents.
// Safe for concurrent use by multiple goroutines.
type CompressedSink struct {
	w      io.Writer
	enc    *zstd.Encoder
	mu     sync.Mutex
	closed bool
}

// NewCompressedSink starts a zstd stream on w.
func NewCompressedSink(w io.Writer, opts ...zstd.EOption) (*CompressedSink, error) {
	enc, err := zstd.NewWriter(w, opts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &CompressedSink{w: w, enc: enc}, nil
}

// WriteDocument compresses doc and a newline, then flushes the block.
func (s *CompressedSink) WriteDocument(doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.enc.Write(doc); err != nil {
		return fmt.Errorf("compress document: %w", err)
	}
	if _, err := s.enc.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("compress document: %w", err)
	}
	if err := s.enc.Flush(); err != nil {
		return fmt.Errorf("flush document: %w", err)
	}
	return nil
}

// Close ends the zstd stream and closes the underlying writer if possible.
func (s *CompressedSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("close zstd stream: %w", err)
	}
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// BufferedOptions tunes a BufferedSink. Zero values take defaults.
type BufferedOptions struct {
	Clock         clockz.Clock
	Logger        *zap.Logger
	FlushInterval time.Duration // default 1s
	BatchSize     int           // default 100
	QueueSize     int           // default 1024
}

// BufferedSink hands documents to a background goroutine that forwards
// them to the next sink in batches, on a timer or when a batch fills.
// WriteDocument blocks while the queue is full; documents are never dropped.
//
//nolint:govet // Field order optimized for readability
type BufferedSink struct {
	next     Sink
	clock    clockz.Clock
	logger   *zap.Logger
	docs     chan []byte
	flushReq chan struct{}
	stop     chan struct{}
	done     chan struct{}
	err      error
	interval time.Duration
	batch    int
	errMu    sync.Mutex
	closeMu  sync.RWMutex
	closed   bool
	written  atomic.Int64
}

// NewBufferedSink starts the forwarding goroutine. Call Close to stop it.
func NewBufferedSink(next Sink, opts BufferedOptions) *BufferedSink {
	if opts.Clock == nil {
		opts.Clock = clockz.RealClock
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}

	s := &BufferedSink{
		next:     next,
		clock:    opts.Clock,
		logger:   opts.Logger,
		interval: opts.FlushInterval,
		batch:    opts.BatchSize,
		docs:     make(chan []byte, opts.QueueSize),
		flushReq: make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// WriteDocument queues a copy of doc. It returns the first forwarding
// error seen so far, or ErrClosed after Close.
func (s *BufferedSink) WriteDocument(doc []byte) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.failure(); err != nil {
		return err
	}
	s.docs <- append([]byte(nil), doc...)
	return nil
}

// Flush asks the forwarding goroutine to write out everything queued so
// far without waiting for the timer or a full batch. It does not block;
// requests made while one is pending are merged.
func (s *BufferedSink) Flush() {
	select {
	case s.flushReq <- struct{}{}:
	default:
	}
}

// Written returns the number of documents forwarded to the next sink.
func (s *BufferedSink) Written() int64 {
	return s.written.Load()
}

// Close flushes every queued document, closes the next sink and returns
// the first error met along the way.
func (s *BufferedSink) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return s.failure()
	}
	s.closed = true
	close(s.stop)
	s.closeMu.Unlock()

	<-s.done
	if err := s.next.Close(); err != nil {
		s.fail(err)
	}
	return s.failure()
}

func (s *BufferedSink) run() {
	defer close(s.done)

	pending := make([][]byte, 0, s.batch)
	flush := func() {
		for _, doc := range pending {
			if err := s.next.WriteDocument(doc); err != nil {
				s.logger.Error("buffered sink flush failed", zap.Error(err), zap.Int("pending", len(pending)))
				s.fail(err)
				break
			}
			s.written.Add(1)
		}
		pending = pending[:0]
	}

	drain := func() {
		for {
			select {
			case doc := <-s.docs:
				pending = append(pending, doc)
			default:
				return
			}
		}
	}

	timer := s.clock.After(s.interval)
	for {
		select {
		case doc := <-s.docs:
			pending = append(pending, doc)
			if len(pending) >= s.batch {
				flush()
			}
		case <-timer:
			flush()
			timer = s.clock.After(s.interval)
		case <-s.flushReq:
			drain()
			flush()
		case <-s.stop:
			drain()
			flush()
			return
		}
	}
}

func (s *BufferedSink) fail(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *BufferedSink) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}
