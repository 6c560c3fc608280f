package fieldz

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Collector is an in-memory Sink that buffers documents for later export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	docs         [][]byte
	docsCh       chan []byte
	stopCh       chan struct{}
	done         chan struct{}
	clock        clockz.Clock
	logger       *zap.Logger
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a collector with the given name and channel buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:   name,
		docs:   make([][]byte, 0, 8),
		docsCh: make(chan []byte, bufferSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		clock:  clockz.RealClock,
		logger: zap.NewNop(),
	}
	go c.start()
	return c
}

// SetLogger replaces the collector's logger.
func (c *Collector) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetClock replaces the clock used for the shutdown timeout.
func (c *Collector) SetClock(clock clockz.Clock) {
	if clock != nil {
		c.clock = clock
	}
}

// start receives documents from the channel until stopped.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining documents before shutdown.
			for {
				select {
				case doc := <-c.docsCh:
					c.buffer(doc)
				default:
					return
				}
			}
		case doc := <-c.docsCh:
			c.buffer(doc)
		}
	}
}

// Close stops the collector goroutine, waiting up to 100ms for the drain.
// Buffered documents remain available to Export.
func (c *Collector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stopCh)
	select {
	case <-c.done:
	case <-c.clock.After(100 * time.Millisecond):
		c.logger.Warn("collector drain timed out", zap.String("collector", c.name))
	}
	return nil
}

// WriteDocument buffers a copy of doc. If the channel is full the document
// is dropped and counted. In sync mode documents are buffered directly.
func (c *Collector) WriteDocument(doc []byte) error {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return ErrClosed
	}

	docCopy := append([]byte(nil), doc...)

	if c.syncMode.Load() {
		c.buffer(docCopy)
		return nil
	}

	select {
	case c.docsCh <- docCopy:
	default:
		c.droppedCount.Add(1)
		c.logger.Warn("collector full, dropping document", zap.String("collector", c.name))
	}
	return nil
}

func (c *Collector) buffer(doc []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.docs) >= cap(c.docs) {
		currentCap := cap(c.docs)
		var newCap int
		if currentCap < 1024 {
			newCap = currentCap * 2
		} else {
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([][]byte, len(c.docs), newCap)
		copy(grown, c.docs)
		c.docs = grown
	}
	c.docs = append(c.docs, doc)
}

// Export returns the buffered documents and clears the buffer.
func (c *Collector) Export() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.docs) == 0 {
		return nil
	}

	result := make([][]byte, len(c.docs))
	copy(result, c.docs)

	// Shrink only when badly oversized to avoid allocation churn.
	if cap(c.docs) > 256 && len(c.docs) < cap(c.docs)/8 {
		newCap := cap(c.docs) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.docs = make([][]byte, 0, newCap)
	} else {
		c.docs = c.docs[:0]
	}

	return result
}

// ExportDocuments exports and decodes the buffered documents.
func (c *Collector) ExportDocuments() ([]Document, error) {
	raw := c.Export()
	docs := make([]Document, 0, len(raw))
	for _, data := range raw {
		doc, err := DecodeDocument(data)
		if err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of buffered documents.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

// DroppedCount returns the number of documents dropped on a full channel or after Close.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode makes WriteDocument buffer directly, for deterministic tests.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears the buffer and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = c.docs[:0]
	c.droppedCount.Store(0)
}
