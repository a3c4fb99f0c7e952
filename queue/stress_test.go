package queue

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/plinthdb/plinth/mem"
)

// TestConcurrentConservation checks the conservation property under
// contention: successful enqueues minus successful dequeues equals the
// final count, whatever the interleaving.
func TestConcurrentConservation(t *testing.T) {
	const (
		capacity  = 64
		producers = 8
		consumers = 8
		perWorker = 5000
	)

	region := mem.NewRegion(int64(headerSize + capacity*8))
	q, err := NewTyped[uint64](region)
	if err != nil {
		t.Fatalf("NewTyped: %v", err)
	}

	var enqueued, dequeued atomic.Int64
	var wg sync.WaitGroup

	for p := range producers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range perWorker {
				v := uint64(p*perWorker + i)
				if q.Enqueue(&v) == nil {
					enqueued.Add(1)
				}
			}
		}(p)
	}
	for range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				if _, err := q.Dequeue(); err == nil {
					dequeued.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if balance := enqueued.Load() - dequeued.Load(); balance != int64(q.Len()) {
		t.Fatalf("conservation violated: %d enqueued - %d dequeued = %d, Len = %d",
			enqueued.Load(), dequeued.Load(), balance, q.Len())
	}
	if q.Len() < 0 || q.Len() > capacity {
		t.Fatalf("Len out of bounds: %d", q.Len())
	}

	// drain what is left; every Dequeue must keep succeeding until empty
	remaining := q.Len()
	for range remaining {
		if _, err := q.Dequeue(); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len after drain: got %d, want 0", q.Len())
	}
}

// TestConcurrentEnqueueOnly checks that under pure producer contention
// exactly capacity enqueues succeed and the rest fail with the full
// guard, with each slot granted to exactly one writer.
func TestConcurrentEnqueueOnly(t *testing.T) {
	const (
		capacity = 32
		workers  = 16
		attempts = 1000
	)

	region := mem.NewRegion(int64(headerSize + capacity*8))
	q, err := NewTyped[uint64](region)
	if err != nil {
		t.Fatalf("NewTyped: %v", err)
	}

	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range attempts {
				v := uint64(w)<<32 | uint64(i)
				if q.Enqueue(&v) == nil {
					succeeded.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	if succeeded.Load() != capacity {
		t.Fatalf("succeeded: got %d, want %d", succeeded.Load(), capacity)
	}
	if q.Len() != capacity {
		t.Fatalf("Len: got %d, want %d", q.Len(), capacity)
	}

	// with producers quiesced, every slot holds a distinct value
	seen := make(map[uint64]bool, capacity)
	for v := range q.All() {
		if seen[v] {
			t.Fatalf("value %#x delivered to two slots", v)
		}
		seen[v] = true
	}
	if len(seen) != capacity {
		t.Fatalf("distinct values: got %d, want %d", len(seen), capacity)
	}
}
