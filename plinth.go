// Package plinth defines the byte-level primitives of a persistent
// storage engine: a shared mapped Region, a bounds-checked View over its
// bytes, and the persistence contracts shared by the components that
// keep their state directly inside the region as raw bytes.
package plinth

// Region provides access to a shared byte buffer, typically a
// memory-mapped file. The buffer has a fixed capacity; components carve
// their layouts out of it with a View.
//
// The mmap package provides a file-backed implementation, the mem
// package an in-memory one.
type Region interface {
	// Bytes returns the shared buffer. The slice remains valid until
	// Close. Concurrent access to disjoint ranges is safe; overlapping
	// mutation requires coordination by the caller.
	Bytes() []byte

	// Sync flushes written bytes to the backing storage, if any.
	Sync() error

	// Close releases the buffer. Bytes obtained earlier become invalid.
	Close() error
}

// Saver is implemented by components whose state image lives inside a
// Region. Save rewrites the component's header bytes and flushes them;
// Load reconstructs in-memory state from whatever was last flushed.
//
// Durability is decoupled from logical operations: a mutation may
// return before Save has run. After a crash, Load observes the last
// flushed image, which may lag slot bytes already written.
type Saver interface {
	Save() error
	Load() error
}

// Committer schedules persistence for accumulated mutations. Commit is
// best-effort and must never block: implementations typically set a
// dirty flag and flush on their own cadence. The flush package provides
// a ticker-driven implementation.
type Committer interface {
	Commit()
}
