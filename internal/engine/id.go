package engine

import "sync/atomic"

// ID uniquely identifies a node within a runtime. IDs are monotonically
// allocated and never reused, even after the node they named is dropped.
type ID uint64

type idAllocator struct {
	next atomic.Uint64
}

func (a *idAllocator) allocate() ID {
	return ID(a.next.Add(1))
}
