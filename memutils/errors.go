package memutils

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrInvalidArgument is returned for nil handles, zero sizes and other nonsensical input
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidRange is returned when a pool is initialized with end <= start
	ErrInvalidRange = errors.New("invalid range")
	// ErrOutOfRange is returned when an address or range is not fully inside the pool
	ErrOutOfRange = errors.New("out of range")
	// ErrNotFree is returned when a fixed-address request does not fit inside one free chunk
	ErrNotFree = errors.New("range is not free")
	// ErrNotFound is returned when no chunk satisfies a request, or no chunk starts at an address
	ErrNotFound = errors.New("not found")
	// ErrWrongState is returned when a chunk or slot is not in the state an operation requires
	ErrWrongState = errors.New("wrong state")
	// ErrOutOfMemory is returned when bookkeeping records cannot be allocated. It is distinct from
	// pool exhaustion.
	ErrOutOfMemory = errors.New("out of bookkeeping memory")
	// ErrOutOfSpace is returned when a graphics pool cannot hold a resource. Errors matching it are
	// *OutOfSpaceError values carrying the requested size.
	ErrOutOfSpace = errors.New("out of graphics memory")
	// ErrInvalidHandle is returned when a slot, material or sprite handle was never loaded or is out of range
	ErrInvalidHandle = errors.New("invalid handle")
)

// OutOfSpaceError reports a graphics pool that could not satisfy a request, along with the pool's
// statistics at the time of failure so the caller can decide what to free before retrying
type OutOfSpaceError struct {
	Pool      string
	Requested int
	Stats     Stats
}

func (e *OutOfSpaceError) Error() string {
	return fmt.Sprintf("%s: %s: requested %d bytes (free %d, used %d, locked %d)",
		ErrOutOfSpace.Error(), e.Pool, e.Requested, e.Stats.Free, e.Stats.Used, e.Stats.Locked)
}

func (e *OutOfSpaceError) Is(target error) bool {
	return target == ErrOutOfSpace
}

// NewOutOfSpaceError builds an OutOfSpaceError with a stack trace attached
func NewOutOfSpaceError(pool string, requested int, stats Stats) error {
	return errors.WithStack(&OutOfSpaceError{
		Pool:      pool,
		Requested: requested,
		Stats:     stats,
	})
}
