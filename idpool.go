package fieldz

import (
	"sync"

	"github.com/google/uuid"
)

// IDPool keeps a channel of pre-generated span identities so StartSpan
// rarely waits on the generator.
type IDPool struct {
	factory func() SpanID
	ids     chan SpanID
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a pool holding up to capacity identities.
// A nil factory generates random UUIDs.
func NewIDPool(capacity int, factory func() SpanID) *IDPool {
	if factory == nil {
		factory = newSpanID
	}
	pool := &IDPool{
		ids:     make(chan SpanID, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

func newSpanID() SpanID {
	return SpanID(uuid.NewString())
}

// Get returns a pooled identity, generating one inline when the pool is empty.
func (p *IDPool) Get() SpanID {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

// refill tops the pool up until Close.
func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.factory():
		}
	}
}

// Close stops the refill goroutine. Get keeps working afterwards.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
