// Package defrag compacts the allocations of a chunk.List toward the start of its pool. It plans
// the new layout on a shadow list, stages every moved allocation in a scratch buffer, writes it
// back at its new address and then tells each owner where its data went.
package defrag

import (
	"github.com/nitroengine/vramkit/memutils/chunk"
)

// GraphicsConsumer is implemented by allocation owners that cache an address, such as a GPU
// descriptor word. Relocated is called once per moved allocation, after the data has been copied
// and the pool bookkeeping has been updated.
type GraphicsConsumer[P any] interface {
	Relocated(oldAddress, newAddress chunk.Address[P]) error
}

// Memory is the backing store of a pool. Reads and writes are synchronous and complete on return.
type Memory[P any] interface {
	ReadAt(address chunk.Address[P], p []byte) error
	WriteAt(address chunk.Address[P], p []byte) error
}

// ScratchAllocator provides the staging buffer for a defragmentation run. Returning an error aborts the
// run before any data has moved.
type ScratchAllocator func(size int) ([]byte, error)

// DefaultScratch allocates the staging buffer on the Go heap
func DefaultScratch(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Options controls how allocations are laid out by a defragmentation run
type Options struct {
	// Scratch provides the staging buffer. If nil, DefaultScratch is used.
	Scratch ScratchAllocator
	// Less orders movable allocations by their user data before they are repacked. If nil,
	// allocations keep their address order.
	Less func(a, b any) bool
	// Pinned reports allocations that must not move. Locked chunks never move regardless.
	Pinned func(userData any) bool
}
