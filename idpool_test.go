package fieldz

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

// TestIDPoolBasicOperation tests basic ID pool functionality.
func TestIDPoolBasicOperation(t *testing.T) {
	factory := func() SpanID { return "test-id" }
	pool := NewIDPool(10, factory)
	defer pool.Close()

	if id := pool.Get(); id != "test-id" {
		t.Errorf("Expected 'test-id', got %s", id)
	}
}

// TestIDPoolDefaultFactory tests that a nil factory yields distinct UUIDs.
func TestIDPoolDefaultFactory(t *testing.T) {
	pool := NewIDPool(4, nil)
	defer pool.Close()

	seen := make(map[SpanID]bool)
	for i := 0; i < 100; i++ {
		id := pool.Get()
		if _, err := uuid.Parse(string(id)); err != nil {
			t.Fatalf("Expected a UUID, got %q: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("Duplicate span ID %s", id)
		}
		seen[id] = true
	}
}

// TestIDPoolEmpty tests behavior when pool is empty.
func TestIDPoolEmpty(t *testing.T) {
	var callCount int
	var mu sync.Mutex
	factory := func() SpanID {
		mu.Lock()
		defer mu.Unlock()
		callCount++
		return "direct-id"
	}

	// Very small pool that will be empty.
	pool := NewIDPool(1, factory)
	defer pool.Close()

	ids := make([]SpanID, 5)
	for i := range ids {
		ids[i] = pool.Get()
	}

	mu.Lock()
	finalCount := callCount
	mu.Unlock()
	if finalCount < 2 {
		t.Errorf("Expected factory to be called multiple times, got %d", finalCount)
	}

	for _, id := range ids {
		if id != "direct-id" {
			t.Errorf("Expected 'direct-id', got %s", id)
		}
	}
}

// TestIDPoolConcurrentAccess tests concurrent access to ID pool.
func TestIDPoolConcurrentAccess(t *testing.T) {
	pool := NewIDPool(50, nil)
	defer pool.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[SpanID]bool)
	numGoroutines := 10
	idsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				id := pool.Get()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if len(seen) != numGoroutines*idsPerGoroutine {
		t.Errorf("Expected %d unique IDs, got %d", numGoroutines*idsPerGoroutine, len(seen))
	}
}

// TestIDPoolCleanShutdown tests that Get keeps working after Close.
func TestIDPoolCleanShutdown(t *testing.T) {
	pool := NewIDPool(10, func() SpanID { return "shutdown-test" })
	pool.Close()

	// Multiple closes should be safe.
	pool.Close()

	if id := pool.Get(); id != "shutdown-test" {
		t.Errorf("Expected 'shutdown-test' after close, got %s", id)
	}
}
