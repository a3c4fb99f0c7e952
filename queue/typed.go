package queue

import (
	"iter"
	"unsafe"

	"github.com/plinthdb/plinth"
)

// Typed wraps a Queue with a fixed-size element type, storing the raw
// in-memory representation of T in each slot.
//
// T must not contain pointers, slices, maps, channels, or strings: the
// bytes are copied verbatim into the shared region, outside the reach
// of the garbage collector. The slot image uses host byte order and
// host struct layout; regions written by a Typed queue are portable
// only between identical architectures.
type Typed[T any] struct {
	queue *Queue
}

// NewTyped constructs a fresh typed queue over region. The record size
// is the in-memory size of T.
func NewTyped[T any](region plinth.Region, opts ...Option) (*Typed[T], error) {
	var zero T
	q, err := New(region, int64(unsafe.Sizeof(zero)), opts...)
	if err != nil {
		return nil, err
	}
	return &Typed[T]{queue: q}, nil
}

// OpenTyped reconstructs a typed queue over a region that already
// carries state.
func OpenTyped[T any](region plinth.Region, opts ...Option) (*Typed[T], error) {
	var zero T
	q, err := Open(region, int64(unsafe.Sizeof(zero)), opts...)
	if err != nil {
		return nil, err
	}
	return &Typed[T]{queue: q}, nil
}

// Raw returns the underlying byte-level queue.
func (q *Typed[T]) Raw() *Queue {
	return q.queue
}

// Cap returns the queue capacity in elements.
func (q *Typed[T]) Cap() int {
	return q.queue.Cap()
}

// Len returns the current element count.
func (q *Typed[T]) Len() int {
	return q.queue.Len()
}

func (q *Typed[T]) bytes(elem *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(elem)), q.queue.recordSize)
}

// Enqueue copies *elem into the queue.
// Returns ErrCapacityExceeded if the queue is full.
func (q *Typed[T]) Enqueue(elem *T) error {
	return q.queue.Enqueue(q.bytes(elem))
}

// Dequeue removes and returns the oldest element.
// Returns ErrEmpty if the queue holds no elements.
func (q *Typed[T]) Dequeue() (T, error) {
	var elem T
	err := q.queue.DequeueInto(q.bytes(&elem))
	return elem, err
}

// Peek returns the oldest element without removing it, with the same
// weak-read semantics as Queue.Peek.
func (q *Typed[T]) Peek() (T, error) {
	var elem T
	record, err := q.queue.Peek()
	if err != nil {
		return elem, err
	}
	copy(q.bytes(&elem), record)
	return elem, nil
}

// All returns a restartable lazy sequence over the elements held when
// iteration starts, with the same snapshot semantics as Queue.All.
func (q *Typed[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for record := range q.queue.All() {
			var elem T
			copy(q.bytes(&elem), record)
			if !yield(elem) {
				return
			}
		}
	}
}

// Save flushes the header words; see Queue.Save.
func (q *Typed[T]) Save() error {
	return q.queue.Save()
}

// Load reloads the header words; see Queue.Load.
func (q *Typed[T]) Load() error {
	return q.queue.Load()
}
