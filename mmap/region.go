//go:build unix

// Package mmap provides a file-backed plinth.Region using mmap(2).
// Mutations land directly in the page cache; Sync forces them to disk
// with msync(2).
package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/plinthdb/plinth"
)

// Region is a shared mapping of a regular file.
type Region struct {
	file *os.File
	buf  []byte
}

var _ plinth.Region = (*Region)(nil)

// Open maps the file at path with the given capacity, creating it if
// necessary and growing it to capacity bytes. Shrinking an existing
// file is refused: a region that already carries state keeps it.
func Open(path string, capacity int64) (*Region, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("mmap.Open: capacity %d: %w", capacity, plinth.ErrRegionTooSmall)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap.Open: %w", err)
	}
	if info.Size() > capacity {
		file.Close()
		return nil, fmt.Errorf("mmap.Open: file is %d bytes, capacity %d: %w", info.Size(), capacity, plinth.ErrOutOfRange)
	}
	if info.Size() < capacity {
		if err = file.Truncate(capacity); err != nil {
			file.Close()
			return nil, fmt.Errorf("mmap.Open: %w", err)
		}
	}

	buf, err := unix.Mmap(int(file.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap.Open: %w", err)
	}

	return &Region{file: file, buf: buf}, nil
}

// Bytes returns the mapped buffer.
func (region *Region) Bytes() []byte {
	return region.buf
}

// Size returns the mapping length in bytes.
func (region *Region) Size() int64 {
	return int64(len(region.buf))
}

// Sync flushes the mapping to disk with msync(2).
func (region *Region) Sync() error {
	if region.buf == nil {
		return plinth.ErrClosed
	}
	if err := unix.Msync(region.buf, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmap.Sync: %w", err)
	}
	return nil
}

// Close unmaps the buffer and closes the file. Dirty pages are left to
// the kernel; call Sync first for durability.
func (region *Region) Close() error {
	if region.buf == nil {
		return nil
	}

	err := unix.Munmap(region.buf)
	region.buf = nil
	if cerr := region.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("mmap.Close: %w", err)
	}
	return nil
}
