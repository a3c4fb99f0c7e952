package plinth

import (
	"encoding/binary"
	"fmt"
)

// View is a borrowed window into a shared byte buffer: a base offset
// plus a length. Components address their layouts through a View so
// that every access is bounds-checked against the window, never against
// the whole region.
//
// The fixed-width accessors use little-endian byte order. They check
// bounds the way slice indexing does: an access past the window panics.
// Callers positioning from untrusted input should validate against
// Capacity first, or carve a smaller window with Sub.
//
// A View performs no synchronization of its own.
type View struct {
	buf []byte
}

// NewView returns a View spanning the region's whole buffer.
func NewView(region Region) View {
	return View{buf: region.Bytes()}
}

// ViewOf returns a View spanning buf.
func ViewOf(buf []byte) View {
	return View{buf: buf}
}

// Capacity returns the window length in bytes.
func (v View) Capacity() int64 {
	return int64(len(v.buf))
}

// Sub carves a sub-window [off, off+length) out of v.
func (v View) Sub(off, length int64) (View, error) {
	if off < 0 || length < 0 || off+length > int64(len(v.buf)) {
		return View{}, fmt.Errorf("sub [%d, %d+%d): %w", off, off, length, ErrOutOfRange)
	}
	return View{buf: v.buf[off : off+length : off+length]}, nil
}

// Bytes returns the raw sub-range [off, off+n). The slice aliases the
// shared buffer; writing through it mutates the region.
func (v View) Bytes(off, n int64) []byte {
	return v.buf[off : off+n]
}

// Uint32 reads the little-endian uint32 at off.
func (v View) Uint32(off int64) uint32 {
	return binary.LittleEndian.Uint32(v.buf[off:])
}

// PutUint32 writes x as a little-endian uint32 at off.
func (v View) PutUint32(off int64, x uint32) {
	binary.LittleEndian.PutUint32(v.buf[off:], x)
}

// Uint64 reads the little-endian uint64 at off.
func (v View) Uint64(off int64) uint64 {
	return binary.LittleEndian.Uint64(v.buf[off:])
}

// PutUint64 writes x as a little-endian uint64 at off.
func (v View) PutUint64(off int64, x uint64) {
	binary.LittleEndian.PutUint64(v.buf[off:], x)
}
