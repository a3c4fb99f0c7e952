// Copyright 2026 plinthdb
// SPDX-License-Identifier: Apache-2.0

// Package arena implements a minimal first-fit allocator over the block
// package's boundary-tag heap format.
//
// The arena owns the first 8 bytes of its region as the free-list head
// pointer; blocks follow from offset 8. The free list is kept in
// address order, which makes the tail free block (Next == 0) the
// highest-addressed one and keeps coalescing a single forward walk.
// Released blocks merge eagerly with free neighbors, so no two free
// blocks are ever adjacent.
//
// The block cursor performs no synchronization; the arena supplies the
// external locking discipline with a single mutex.
package arena

import (
	"fmt"
	"iter"
	"sync"

	"github.com/plinthdb/plinth"
	"github.com/plinthdb/plinth/block"
)

// base is the first block position, right after the head-pointer word.
const base = 8

// Arena is a manually managed heap inside a mapped region.
type Arena struct {
	mu     sync.Mutex
	region plinth.Region
	view   plinth.View
	head   int64
}

var _ plinth.Saver = (*Arena)(nil)

// New constructs a fresh arena over region: one spanning free block
// after the head-pointer word.
func New(region plinth.Region) (*Arena, error) {
	a := &Arena{region: region, view: plinth.NewView(region)}

	span := (a.view.Capacity() - base) &^ (block.Alignment - 1)
	if span < block.MinFreeSize {
		return nil, fmt.Errorf("arena: %d byte region: %w", a.view.Capacity(), plinth.ErrRegionTooSmall)
	}

	cursor := block.NewCursor(a.view)
	cursor.Size = uint64(span)
	cursor.Free = true
	if err := cursor.Write(base); err != nil {
		return nil, err
	}

	a.setHead(base)
	return a, nil
}

// Open reconstructs an arena over a region that already carries state,
// loading the free-list head pointer from its bytes.
func Open(region plinth.Region) (*Arena, error) {
	a := &Arena{region: region, view: plinth.NewView(region)}

	head := int64(a.view.Uint64(0))
	if head != 0 {
		if head < base || head+block.HeaderSize > a.view.Capacity() || head%block.Alignment != 0 {
			return nil, fmt.Errorf("arena: free list head %d: %w", head, plinth.ErrInvalidHeader)
		}
	}
	a.head = head
	return a, nil
}

func (a *Arena) setHead(head int64) {
	a.head = head
	a.view.PutUint64(0, uint64(head))
}

// Alloc reserves n payload bytes and returns their byte offset inside
// the region. Returns ErrNoSpace when no free block can hold them.
func (a *Arena) Alloc(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("arena: alloc %d bytes: %w", n, plinth.ErrOutOfRange)
	}

	need := (n + block.HeaderSize + block.Alignment - 1) &^ (block.Alignment - 1)
	if need < block.MinFreeSize {
		// a used block must still be releasable as a free one
		need = block.MinFreeSize
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cursor := block.NewCursor(a.view)
	var prev *block.Cursor

	pos := a.head
	for pos != 0 {
		ok, err := cursor.Read(pos)
		if err != nil {
			return 0, err
		}
		if !ok || !cursor.Free {
			return 0, fmt.Errorf("arena: free list at %d: %w", pos, plinth.ErrInvalidHeader)
		}
		if cursor.Size >= uint64(need) {
			break
		}
		cp := *cursor
		prev = &cp
		pos = int64(cursor.Next)
	}
	if pos == 0 {
		return 0, fmt.Errorf("arena: alloc %d bytes: %w", n, plinth.ErrNoSpace)
	}

	found := *cursor
	successor := found.Next

	if found.Size-uint64(need) >= block.MinFreeSize {
		// split: the remainder takes the found block's place in the list
		remainder := block.NewCursor(a.view)
		remainder.Size = found.Size - uint64(need)
		remainder.Free = true
		remainder.Next = successor
		if err := remainder.Write(pos + need); err != nil {
			return 0, err
		}
		successor = uint64(pos + need)
	} else {
		need = int64(found.Size)
		block.ClearPrevFree(a.view, pos+need)
	}

	used := block.NewCursor(a.view)
	used.Size = uint64(need)
	used.PrevFree = found.PrevFree
	if err := used.Write(pos); err != nil {
		return 0, err
	}

	if err := a.relink(prev, successor); err != nil {
		return 0, err
	}
	return pos + block.HeaderSize, nil
}

// relink points prev's Next (or the list head) at successor.
func (a *Arena) relink(prev *block.Cursor, successor uint64) error {
	if prev == nil {
		a.setHead(int64(successor))
		return nil
	}
	prev.Next = successor
	return prev.Write(prev.Position())
}

// Data returns the payload bytes of the allocation at off, as handed
// out by Alloc.
func (a *Arena) Data(off int64) ([]byte, error) {
	if off < base+block.HeaderSize {
		return nil, fmt.Errorf("arena: data at %d: %w", off, plinth.ErrInvalidPosition)
	}
	cursor := block.NewCursor(a.view)
	ok, err := cursor.Read(off - block.HeaderSize)
	if err != nil {
		return nil, err
	}
	if !ok || cursor.Free {
		return nil, fmt.Errorf("arena: data at %d: %w", off, plinth.ErrInvalidPosition)
	}
	return cursor.Data()
}

// Free releases the allocation at off, eagerly merging it with any
// adjacent free neighbor so no two free blocks are left adjacent.
func (a *Arena) Free(off int64) error {
	if off < base+block.HeaderSize {
		return fmt.Errorf("arena: free at %d: %w", off, plinth.ErrInvalidPosition)
	}
	pos := off - block.HeaderSize

	a.mu.Lock()
	defer a.mu.Unlock()

	cursor := block.NewCursor(a.view)
	ok, err := cursor.Read(pos)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("arena: free at %d: %w", off, plinth.ErrInvalidPosition)
		}
		return err
	}
	if cursor.Free {
		return fmt.Errorf("arena: free at %d: already free: %w", off, plinth.ErrInvalidPosition)
	}
	released := *cursor

	// locate the free-list neighbors around pos
	var prev *block.Cursor
	walk := block.NewCursor(a.view)
	succPos := a.head
	for succPos != 0 && succPos < pos {
		if ok, err = walk.Read(succPos); err != nil {
			return err
		}
		if !ok || !walk.Free {
			return fmt.Errorf("arena: free list at %d: %w", succPos, plinth.ErrInvalidHeader)
		}
		cp := *walk
		prev = &cp
		succPos = int64(walk.Next)
	}

	merged := block.NewCursor(a.view)
	merged.Free = true
	merged.Size = released.Size
	merged.PrevFree = released.PrevFree
	mergedPos := pos

	next := uint64(succPos)
	if succPos != 0 && pos+int64(released.Size) == succPos {
		// merge the free right neighbor, splicing it out
		if _, err = walk.Read(succPos); err != nil {
			return err
		}
		merged.Size += walk.Size
		next = walk.Next
	}
	merged.Next = next

	backward := prev != nil && prev.Position()+int64(prev.Size) == pos
	if backward {
		// merge into the free left neighbor; it keeps its list slot
		mergedPos = prev.Position()
		merged.Size += prev.Size
		merged.PrevFree = prev.PrevFree
		return merged.Write(mergedPos)
	}

	if err = merged.Write(mergedPos); err != nil {
		return err
	}
	return a.relink(prev, uint64(mergedPos))
}

// FreeBlocks returns a sequence over the free list in address order,
// yielding each free block's position and size. Intended for
// inspection; hold no allocation calls concurrent with the walk.
func (a *Arena) FreeBlocks() iter.Seq2[int64, uint64] {
	return func(yield func(int64, uint64) bool) {
		a.mu.Lock()
		defer a.mu.Unlock()

		cursor := block.NewCursor(a.view)
		pos := a.head
		for pos != 0 {
			ok, err := cursor.Read(pos)
			if err != nil || !ok || !cursor.Free {
				return
			}
			if !yield(pos, cursor.Size) {
				return
			}
			pos = int64(cursor.Next)
		}
	}
}

// Save flushes the region; the head-pointer word is written through on
// every mutation, so Save only forces durability.
func (a *Arena) Save() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.region.Sync(); err != nil {
		return fmt.Errorf("arena: save: %w", err)
	}
	return nil
}

// Load reloads the free-list head pointer from the region bytes.
func (a *Arena) Load() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	head := int64(a.view.Uint64(0))
	if head != 0 {
		if head < base || head+block.HeaderSize > a.view.Capacity() || head%block.Alignment != 0 {
			return fmt.Errorf("arena: free list head %d: %w", head, plinth.ErrInvalidHeader)
		}
	}
	a.head = head
	return nil
}
