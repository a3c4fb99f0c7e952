package queue

import (
	"fmt"

	"code.hybscloud.com/iox"
)

// ErrEmpty and ErrCapacityExceeded are control flow signals, not
// failures: the queue never blocks or waits, it fails immediately when
// it cannot proceed. Both wrap [iox.ErrWouldBlock] for ecosystem
// consistency, so generic backoff loops written against iox work
// unchanged while callers can still tell the two conditions apart with
// errors.Is.
var (
	// ErrEmpty is returned by Dequeue and Peek when the queue holds no
	// elements.
	ErrEmpty = fmt.Errorf("queue empty: %w", iox.ErrWouldBlock)

	// ErrCapacityExceeded is returned by Enqueue when the queue is full.
	ErrCapacityExceeded = fmt.Errorf("queue full: %w", iox.ErrWouldBlock)
)

// IsWouldBlock reports whether err indicates an operation that could
// not proceed immediately (full or empty queue).
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}
