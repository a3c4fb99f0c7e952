package block

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinthdb/plinth"
)

func testView(capacity int64) plinth.View {
	return plinth.ViewOf(make([]byte, capacity))
}

// TestFreeBlockLayout pins the on-disk format: free block at position
// 100, size 32, next 200.
func TestFreeBlockLayout(t *testing.T) {
	view := testView(256)

	c := NewCursor(view)
	c.Size = 32
	c.Free = true
	c.Next = 200
	require.NoError(t, c.Write(100))

	word := view.Uint64(100)
	require.EqualValues(t, 0b001, word&0b111)
	require.EqualValues(t, 32, word&^0b111)
	require.EqualValues(t, 200, view.Uint64(108))
	require.Equal(t, word, view.Uint64(124)) // boundary tag at 100+32-8
}

func TestUsedBlockLayout(t *testing.T) {
	view := testView(256)

	c := NewCursor(view)
	c.Size = 48
	c.PrevFree = true
	require.NoError(t, c.Write(64))

	word := view.Uint64(64)
	require.EqualValues(t, 0b010, word&0b111)
	require.EqualValues(t, 48, word&^0b111)
	// used blocks carry neither next pointer nor boundary tag
	require.Zero(t, view.Uint64(72))
	require.Zero(t, view.Uint64(104))
}

func TestRoundTrip(t *testing.T) {
	view := testView(512)

	in := NewCursor(view)
	in.Size = 64
	in.Free = true
	in.PrevFree = true
	in.Next = 320
	require.NoError(t, in.Write(128))

	out := NewCursor(view)
	ok, err := out.Read(128)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 64, out.Size)
	require.True(t, out.Free)
	require.True(t, out.PrevFree)
	require.EqualValues(t, 320, out.Next)
	require.EqualValues(t, 128, out.Position())
}

func TestWriteAlignment(t *testing.T) {
	cases := []struct {
		in, out uint64
	}{
		{24, 24},
		{32, 32},
		{33, 40},
		{37, 40},
		{39, 40},
		{40, 40},
	}
	for _, tc := range cases {
		view := testView(256)
		c := NewCursor(view)
		c.Size = tc.in
		require.NoError(t, c.Write(0))
		require.EqualValues(t, tc.out, c.Size, "size %d", tc.in)
		require.EqualValues(t, tc.out, view.Uint64(0)&^0b111, "size %d", tc.in)
	}
}

func TestReadPastEndOfRegion(t *testing.T) {
	view := testView(64)
	c := NewCursor(view)

	ok, err := c.Read(60) // 60+8 exceeds capacity
	require.NoError(t, err)
	require.False(t, ok)
	require.EqualValues(t, -1, c.Position())

	ok, err = c.Read(56) // exactly at the boundary still decodes
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTailFreeBlockHasNoMirror(t *testing.T) {
	view := testView(256)

	c := NewCursor(view)
	c.Size = 32
	c.Free = true
	c.Next = 0
	require.NoError(t, c.Write(100))

	require.EqualValues(t, 0, view.Uint64(108)) // next pointer written as zero
	require.Zero(t, view.Uint64(124))           // no boundary tag
}

func TestWritePropagatesPrevFree(t *testing.T) {
	view := testView(256)

	// used neighbor at 132
	neighbor := NewCursor(view)
	neighbor.Size = 40
	require.NoError(t, neighbor.Write(132))

	free := NewCursor(view)
	free.Size = 32
	free.Free = true
	free.Next = 200
	require.NoError(t, free.Write(100))

	word := view.Uint64(132)
	require.EqualValues(t, 0b010, word&0b111)
	require.EqualValues(t, 40, word&^0b111)

	// a used write does not touch its neighbor
	used := NewCursor(view)
	used.Size = 32
	require.NoError(t, used.Write(100))
	require.EqualValues(t, 0b010, view.Uint64(132)&0b111)
}

func TestClearPrevFree(t *testing.T) {
	view := testView(256)

	c := NewCursor(view)
	c.Size = 32
	c.PrevFree = true
	require.NoError(t, c.Write(48))

	ClearPrevFree(view, 48)
	require.Zero(t, view.Uint64(48)&0b111)

	// out-of-range positions are ignored
	ClearPrevFree(view, 250)
	ClearPrevFree(view, -8)
}

func TestData(t *testing.T) {
	view := testView(256)

	c := NewCursor(view)
	c.Size = 40
	require.NoError(t, c.Write(64))

	data, err := c.Data()
	require.NoError(t, err)
	require.Len(t, data, 32)

	copy(data, "payload")
	require.Equal(t, "payload", string(view.Bytes(72, 7)))
}

func TestFreeListTraversal(t *testing.T) {
	view := testView(512)

	write := func(pos int64, size, next uint64) {
		c := NewCursor(view)
		c.Size = size
		c.Free = true
		c.Next = next
		require.NoError(t, c.Write(pos))
	}
	write(32, 32, 128)
	write(128, 48, 256)
	write(256, 32, 0)

	c := NewCursor(view)
	ok, err := c.Read(32)
	require.NoError(t, err)
	require.True(t, ok)

	var positions []int64
	positions = append(positions, c.Position())
	for {
		ok, err = c.MoveNext()
		require.NoError(t, err)
		if !ok {
			break
		}
		positions = append(positions, c.Position())
	}
	require.Equal(t, []int64{32, 128, 256}, positions)

	// ReadNext leaves the receiver in place
	first := NewCursor(view)
	_, err = first.Read(32)
	require.NoError(t, err)
	second, ok, err := first.ReadNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 32, first.Position())
	require.EqualValues(t, 128, second.Position())

	tail := NewCursor(view)
	_, err = tail.Read(256)
	require.NoError(t, err)
	next, ok, err := tail.ReadNext()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, next)
}

func TestInvalidPosition(t *testing.T) {
	view := testView(64)
	c := NewCursor(view)

	_, err := c.Read(-1)
	require.True(t, errors.Is(err, plinth.ErrInvalidPosition))

	require.True(t, errors.Is(c.Write(-8), plinth.ErrInvalidPosition))

	_, err = c.Data()
	require.True(t, errors.Is(err, plinth.ErrInvalidPosition))

	_, err = c.MoveNext()
	require.True(t, errors.Is(err, plinth.ErrInvalidPosition))

	_, _, err = c.ReadNext()
	require.True(t, errors.Is(err, plinth.ErrInvalidPosition))
}

func TestTag(t *testing.T) {
	size, free, prevFree := Tag(32 | 0b011)
	require.EqualValues(t, 32, size)
	require.True(t, free)
	require.True(t, prevFree)

	size, free, prevFree = Tag(128)
	require.EqualValues(t, 128, size)
	require.False(t, free)
	require.False(t, prevFree)
}
