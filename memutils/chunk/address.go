package chunk

import "fmt"

// Address is a byte address inside a pool. The type parameter names the pool the address belongs
// to and is never instantiated; it exists so that an address handed out by one pool cannot be
// passed to another pool's allocator without an explicit conversion.
type Address[P any] uint32

// Add returns the address size bytes after a
func (a Address[P]) Add(size int) Address[P] {
	return a + Address[P](size)
}

// Sub returns the address size bytes before a
func (a Address[P]) Sub(size int) Address[P] {
	return a - Address[P](size)
}

// Offset returns the number of bytes between base and a. The result is negative if a is below base.
func (a Address[P]) Offset(base Address[P]) int {
	return int(a) - int(base)
}

func (a Address[P]) String() string {
	return fmt.Sprintf("0x%08x", uint32(a))
}
