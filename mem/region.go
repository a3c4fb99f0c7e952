// Package mem provides an in-memory implementation of the plinth.Region
// interface, mainly for tests and ephemeral use.
package mem

import (
	"io"

	"github.com/plinthdb/plinth"
)

// Region is a fixed-capacity in-memory byte region.
//
// Sync is a no-op; the bytes are the only copy. Region is safe to share
// between goroutines under the same rules as a mapped file: concurrent
// access to disjoint ranges needs no coordination.
type Region struct {
	buf []byte
}

var _ plinth.Region = (*Region)(nil)

// NewRegion allocates a zeroed region of the given capacity.
func NewRegion(capacity int64) *Region {
	return &Region{buf: make([]byte, capacity)}
}

// Bytes returns the region's buffer.
func (region *Region) Bytes() []byte {
	return region.buf
}

// Size returns the region capacity in bytes.
func (region *Region) Size() int64 {
	return int64(len(region.buf))
}

// Sync is a no-op for in-memory regions.
func (region *Region) Sync() error {
	return nil
}

// Close releases the buffer. Slices obtained from Bytes become invalid.
func (region *Region) Close() error {
	region.buf = nil
	return nil
}

// WriteTo writes the entire region content to w, for snapshotting.
func (region *Region) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(region.buf)
	return int64(n), err
}

// ReadFrom replaces the region content with bytes read from r. The
// capacity does not change: reading stops at the region boundary, and a
// short read leaves the remainder untouched.
func (region *Region) ReadFrom(r io.Reader) (int64, error) {
	n, err := io.ReadFull(r, region.buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return int64(n), err
}
