// Package queue implements a bounded multi-producer multi-consumer FIFO
// of fixed-size records stored directly inside a shared mapped region.
//
// The queue owns the first 12 bytes of its region as a header of three
// little-endian uint32 fields (count, read position, write position)
// and the rest as a ring of capacity fixed-width record slots. All
// coordination between goroutines happens through atomic compare-and-
// swap retry loops on in-memory mirrors of the header fields; there are
// no locks and no waiting. Persistence of the header is decoupled: a
// mutation may return before Save has flushed the three words back to
// their fixed offsets.
//
// The queue is safe for many goroutines within one process. It is not
// safe across processes sharing the same mapping.
package queue

import (
	"fmt"
	"iter"
	"math"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"

	"github.com/plinthdb/plinth"
)

// Header field offsets inside the region, and the slot base.
const (
	offCount   = 0
	offRead    = 4
	offWrite   = 8
	headerSize = 12
)

// Queue is a bounded lock-free FIFO of fixed-size byte records.
//
// Each operation runs two independent atomic retry loops: the first
// reserves a logical slot by adjusting count, the second reserves a
// physical index by advancing the position. The two loops are not one
// linearizable unit - count can transiently run ahead of the matching
// position claim - but each physical index is granted to exactly one
// writer and one reader, which is the property everything above relies
// on.
type Queue struct {
	count atomix.Uint32
	read  atomix.Uint32
	write atomix.Uint32

	region     plinth.Region
	view       plinth.View
	committer  plinth.Committer
	capacity   uint32
	recordSize int64
}

var _ plinth.Saver = (*Queue)(nil)

// Option configures a queue at construction.
type Option func(*Queue)

// WithCommitter attaches a persistence scheduler. Every successful
// Enqueue and Dequeue triggers its Commit.
func WithCommitter(committer plinth.Committer) Option {
	return func(q *Queue) { q.committer = committer }
}

// SetCommitter attaches a persistence scheduler after construction.
// A scheduler usually needs the queue as its Saver, so the two cannot
// both be built first; construct the queue, the scheduler over it, then
// attach. Call before sharing the queue between goroutines.
func (q *Queue) SetCommitter(committer plinth.Committer) {
	q.committer = committer
}

// New constructs a fresh queue over region with the given record size,
// zeroing the header. Capacity is fixed at construction from the region
// size and the record size; the queue never grows.
func New(region plinth.Region, recordSize int64, opts ...Option) (*Queue, error) {
	q, err := prepare(region, recordSize, opts)
	if err != nil {
		return nil, err
	}
	q.view.PutUint32(offCount, 0)
	q.view.PutUint32(offRead, 0)
	q.view.PutUint32(offWrite, 0)
	return q, nil
}

// Open reconstructs a queue over a region that already carries state,
// loading the header from its bytes.
func Open(region plinth.Region, recordSize int64, opts ...Option) (*Queue, error) {
	q, err := prepare(region, recordSize, opts)
	if err != nil {
		return nil, err
	}
	if err = q.Load(); err != nil {
		return nil, err
	}
	return q, nil
}

func prepare(region plinth.Region, recordSize int64, opts []Option) (*Queue, error) {
	if recordSize <= 0 {
		return nil, fmt.Errorf("queue: record size %d: %w", recordSize, plinth.ErrInvalidRecordSize)
	}

	view := plinth.NewView(region)
	capacity := (view.Capacity() - headerSize) / recordSize
	if capacity < 1 {
		return nil, fmt.Errorf("queue: %d byte region, %d byte records: %w",
			view.Capacity(), recordSize, plinth.ErrRegionTooSmall)
	}
	if capacity > math.MaxUint32 {
		capacity = math.MaxUint32
	}

	q := &Queue{
		region:     region,
		view:       view,
		capacity:   uint32(capacity),
		recordSize: recordSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Cap returns the queue capacity in records.
func (q *Queue) Cap() int {
	return int(q.capacity)
}

// Len returns the current element count. Under concurrent mutation the
// value is a snapshot and may be stale by the time it is observed.
func (q *Queue) Len() int {
	return int(q.count.LoadAcquire())
}

// RecordSize returns the fixed record size in bytes.
func (q *Queue) RecordSize() int64 {
	return q.recordSize
}

func (q *Queue) slot(index uint32) []byte {
	return q.view.Bytes(headerSize+int64(index)*q.recordSize, q.recordSize)
}

func (q *Queue) commit() {
	if q.committer != nil {
		q.committer.Commit()
	}
}

// Enqueue appends record to the queue.
// Returns ErrCapacityExceeded if the queue is full; the record must be
// exactly RecordSize bytes.
func (q *Queue) Enqueue(record []byte) error {
	if int64(len(record)) != q.recordSize {
		return fmt.Errorf("queue: enqueue %d bytes into %d byte slots: %w",
			len(record), q.recordSize, plinth.ErrInvalidRecordSize)
	}

	sw := spin.Wait{}
	for {
		count := q.count.LoadAcquire()
		if count >= q.capacity {
			return ErrCapacityExceeded
		}
		if q.count.CompareAndSwapAcqRel(count, count+1) {
			break
		}
		sw.Once()
	}

	var claimed uint32
	sw = spin.Wait{}
	for {
		write := q.write.LoadAcquire()
		if q.write.CompareAndSwapAcqRel(write, (write+1)%q.capacity) {
			claimed = write
			break
		}
		sw.Once()
	}

	copy(q.slot(claimed), record)
	q.commit()
	return nil
}

// Dequeue removes the oldest record and returns a copy of it.
// Returns ErrEmpty if the queue holds no elements.
func (q *Queue) Dequeue() ([]byte, error) {
	record := make([]byte, q.recordSize)
	if err := q.DequeueInto(record); err != nil {
		return nil, err
	}
	return record, nil
}

// DequeueInto removes the oldest record into dst, which must be exactly
// RecordSize bytes. Returns ErrEmpty if the queue holds no elements.
func (q *Queue) DequeueInto(dst []byte) error {
	if int64(len(dst)) != q.recordSize {
		return fmt.Errorf("queue: dequeue into %d bytes from %d byte slots: %w",
			len(dst), q.recordSize, plinth.ErrInvalidRecordSize)
	}

	sw := spin.Wait{}
	for {
		count := q.count.LoadAcquire()
		if count == 0 {
			return ErrEmpty
		}
		if q.count.CompareAndSwapAcqRel(count, count-1) {
			break
		}
		sw.Once()
	}

	var claimed uint32
	sw = spin.Wait{}
	for {
		read := q.read.LoadAcquire()
		if q.read.CompareAndSwapAcqRel(read, (read+1)%q.capacity) {
			claimed = read
			break
		}
		sw.Once()
	}

	copy(dst, q.slot(claimed))
	q.commit()
	return nil
}

// Peek returns a copy of the oldest record without removing it.
// Returns ErrEmpty if the queue holds no elements.
//
// Peek is a weak read: the count check and the slot read are two
// separate steps, not synchronized against a concurrent Dequeue, so the
// returned record may be one that was just (or is about to be) removed.
func (q *Queue) Peek() ([]byte, error) {
	if q.count.LoadAcquire() == 0 {
		return nil, ErrEmpty
	}

	record := make([]byte, q.recordSize)
	copy(record, q.slot(q.read.LoadAcquire()))
	return record, nil
}

// All returns a restartable lazy sequence over the records held when
// iteration starts: exactly count elements beginning at the read
// position, wrapping around the ring. Only the indices are a snapshot -
// slot contents read during iteration may have been overwritten by
// concurrent mutations.
func (q *Queue) All() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		count := q.count.LoadAcquire()
		read := q.read.LoadAcquire()
		for i := uint32(0); i < count; i++ {
			record := make([]byte, q.recordSize)
			copy(record, q.slot((read+i)%q.capacity))
			if !yield(record) {
				return
			}
		}
	}
}

// Save writes the three header words back to offsets 0/4/8 and flushes
// the region. Concurrent mutations may interleave between the three
// stores; the image is best-effort, like every flush of this queue.
func (q *Queue) Save() error {
	q.view.PutUint32(offCount, q.count.LoadAcquire())
	q.view.PutUint32(offRead, q.read.LoadAcquire())
	q.view.PutUint32(offWrite, q.write.LoadAcquire())
	if err := q.region.Sync(); err != nil {
		return fmt.Errorf("queue: save: %w", err)
	}
	return nil
}

// Load reloads the header from offsets 0/4/8, replacing in-memory
// state. The values are validated against the capacity.
func (q *Queue) Load() error {
	count := q.view.Uint32(offCount)
	read := q.view.Uint32(offRead)
	write := q.view.Uint32(offWrite)

	if count > q.capacity || read >= q.capacity || write >= q.capacity {
		return fmt.Errorf("queue: count=%d read=%d write=%d capacity=%d: %w",
			count, read, write, q.capacity, plinth.ErrInvalidHeader)
	}

	q.count.StoreRelease(count)
	q.read.StoreRelease(read)
	q.write.StoreRelease(write)
	return nil
}
