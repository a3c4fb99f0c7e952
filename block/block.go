// Copyright 2026 plinthdb
// SPDX-License-Identifier: Apache-2.0

// Package block encodes and decodes one allocation unit's on-disk
// header in the manually managed heap format.
//
// A block starts with an 8-byte little-endian header word: the low 3
// bits are flags (bit 0 this-block-free, bit 1 previous-block-free,
// bit 2 reserved), the remaining bits are the block size in bytes, a
// multiple of 8 once the flags are stripped. A free block additionally
// carries an 8-byte next-free pointer right after the header and, when
// it has a successor on the free list, a trailing mirror of the header
// word (the boundary tag) in its last 8 bytes. The tail free block
// omits the mirror, letting it be exactly header+pointer sized.
//
// The boundary tag lets whoever releases a block locate a free left
// neighbor without walking the heap, which is what keeps the "no two
// adjacent free blocks" invariant cheap to maintain. The arena package
// builds a first-fit allocator on this format.
//
// A Cursor performs no synchronization of its own; it is a transient
// view over mapped bytes, constructed at a position, read or written,
// and discarded.
package block

import (
	"fmt"

	"github.com/plinthdb/plinth"
)

const (
	// HeaderSize is the size of the block header word.
	HeaderSize = 8

	// Alignment is the block size granularity. Sizes are kept multiples
	// of 8 so the low 3 bits of the header word are free for flags.
	Alignment = 8

	// MinFreeSize is the smallest encodable free block:
	// header + next pointer + boundary tag.
	MinFreeSize = 24

	flagFree     = 1 << 0
	flagPrevFree = 1 << 1
	flagMask     = 0b111
)

// Tag decodes a raw header or boundary-tag word.
func Tag(word uint64) (size uint64, free, prevFree bool) {
	return word &^ flagMask, word&flagFree != 0, word&flagPrevFree != 0
}

// ClearPrevFree clears the previous-block-free bit of the header at
// position, rewriting only that single word. Used when a used block
// takes the place of a free one and the stale bit must not survive.
func ClearPrevFree(view plinth.View, position int64) {
	if position < 0 || position+HeaderSize > view.Capacity() {
		return
	}
	word := view.Uint64(position)
	if word&flagPrevFree != 0 {
		view.PutUint64(position, word&^flagPrevFree)
	}
}

// Cursor is a transient view of one block's header at a byte position
// inside a mapped region. Read populates the exported fields from the
// bytes; Write encodes them back.
type Cursor struct {
	// Size is the block size in bytes, header included. Write re-aligns
	// it to a multiple of 8.
	Size uint64

	// Next is the free-list successor position; 0 terminates the list.
	// Meaningful only when Free is set.
	Next uint64

	// Free marks this block free.
	Free bool

	// PrevFree marks the block immediately before this one free.
	PrevFree bool

	view plinth.View
	pos  int64
}

// NewCursor returns an unpositioned cursor over view. Operations on it
// fail with ErrInvalidPosition until the first successful Read or
// Write.
func NewCursor(view plinth.View) *Cursor {
	return &Cursor{view: view, pos: -1}
}

// Position returns the cursor's byte position, or -1 when unset.
func (c *Cursor) Position() int64 {
	return c.pos
}

// Read loads the header at position. When position+8 would exceed the
// region capacity there is no block there: Read unsets the cursor and
// returns (false, nil), which terminates a heap walk at end-of-region.
//
// If the free flag is set the next-free pointer is loaded from the 8
// bytes following the header; otherwise Next is zero.
func (c *Cursor) Read(position int64) (bool, error) {
	if position < 0 {
		return false, fmt.Errorf("block: read at %d: %w", position, plinth.ErrInvalidPosition)
	}
	if position+HeaderSize > c.view.Capacity() {
		c.pos = -1
		c.Size, c.Next = 0, 0
		c.Free, c.PrevFree = false, false
		return false, nil
	}

	word := c.view.Uint64(position)
	c.pos = position
	c.Size, c.Free, c.PrevFree = Tag(word)
	c.Next = 0
	if c.Free && position+HeaderSize+8 <= c.view.Capacity() {
		c.Next = c.view.Uint64(position + HeaderSize)
	}
	return true, nil
}

// Write encodes the cursor at position.
//
// Size is first re-aligned: the low 3 bits are stripped and, when they
// were non-zero, a further 8 bytes are added so the block keeps room
// for a trailing boundary tag. The header word is then written with the
// flags packed in. For a free block the next-free pointer follows, and,
// only when Next > 0, the mirror of the header word lands in the
// block's last 8 bytes; the tail free block has no mirror.
//
// After writing a free block the header of the immediately following
// block, if any, gets its previous-block-free bit set; only that single
// word is rewritten.
func (c *Cursor) Write(position int64) error {
	if position < 0 {
		return fmt.Errorf("block: write at %d: %w", position, plinth.ErrInvalidPosition)
	}
	c.pos = position

	size := c.Size &^ flagMask
	if c.Size&flagMask != 0 {
		size += Alignment
	}
	c.Size = size

	word := size
	if c.Free {
		word |= flagFree
	}
	if c.PrevFree {
		word |= flagPrevFree
	}
	c.view.PutUint64(position, word)

	if !c.Free {
		return nil
	}

	c.view.PutUint64(position+HeaderSize, c.Next)
	if c.Next > 0 {
		c.view.PutUint64(position+int64(size)-HeaderSize, word)
	}

	following := position + int64(size)
	if following+HeaderSize <= c.view.Capacity() {
		neighbor := c.view.Uint64(following)
		if neighbor&flagPrevFree == 0 {
			c.view.PutUint64(following, neighbor|flagPrevFree)
		}
	}
	return nil
}

// Data returns the payload range [position+8, position+Size): the
// usable bytes handed back to an allocation caller.
func (c *Cursor) Data() ([]byte, error) {
	if c.pos < 0 {
		return nil, fmt.Errorf("block: data: %w", plinth.ErrInvalidPosition)
	}
	return c.view.Bytes(c.pos+HeaderSize, int64(c.Size)-HeaderSize), nil
}

// MoveNext repositions the cursor at its free-list successor and reads
// it. Returns (false, nil) when Next is zero, terminating free-list
// traversal without recursion.
func (c *Cursor) MoveNext() (bool, error) {
	if c.pos < 0 {
		return false, fmt.Errorf("block: move next: %w", plinth.ErrInvalidPosition)
	}
	if c.Next == 0 {
		return false, nil
	}
	return c.Read(int64(c.Next))
}

// ReadNext reads the free-list successor into a fresh cursor, leaving
// c in place. Returns (nil, false, nil) when Next is zero.
func (c *Cursor) ReadNext() (*Cursor, bool, error) {
	if c.pos < 0 {
		return nil, false, fmt.Errorf("block: read next: %w", plinth.ErrInvalidPosition)
	}
	if c.Next == 0 {
		return nil, false, nil
	}

	next := NewCursor(c.view)
	ok, err := next.Read(int64(c.Next))
	if !ok {
		return nil, ok, err
	}
	return next, true, nil
}
