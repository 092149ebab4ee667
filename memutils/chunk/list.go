package chunk

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/nitroengine/vramkit/memutils"
)

// DefaultGranularity is the minimum allocation size. Every request is rounded up to a multiple of it.
const DefaultGranularity uint = 16

// Options configures a List. Zero values select defaults.
type Options struct {
	// Granularity is the minimum allocation size in bytes, and must be a power of two. If 0,
	// DefaultGranularity is used.
	Granularity uint
	// MaxChunks caps the number of chunk records the list may hold at once. Operations that would need
	// more records fail with memutils.ErrOutOfMemory and leave the list untouched. If 0, the number of
	// records is unbounded.
	MaxChunks int
}

type chunk[P any] struct {
	start Address[P]
	end   Address[P]
	state State

	prev *chunk[P]
	next *chunk[P]

	userData any
}

func (c *chunk[P]) size() int {
	return c.end.Offset(c.start)
}

// List is an allocator over the address range [start, end). It keeps an address-ordered, doubly
// linked list of chunks that exactly tiles the range. Every chunk is Free, Used or Locked, and
// no two neighboring chunks are ever both Free.
//
// A List is not safe for concurrent use.
type List[P any] struct {
	start       Address[P]
	end         Address[P]
	granularity uint
	maxChunks   int

	head  *chunk[P]
	tail  *chunk[P]
	count int

	index *swiss.Map[Address[P], *chunk[P]]
}

var _ memutils.Validatable = &List[struct{}]{}

// New initializes a List spanning [start, end) with a single free chunk
func New[P any](start, end Address[P], options Options) (*List[P], error) {
	if end <= start {
		return nil, errors.Wrapf(memutils.ErrInvalidRange, "pool end %s must be greater than pool start %s", end, start)
	}

	granularity := options.Granularity
	if granularity == 0 {
		granularity = DefaultGranularity
	}
	err := memutils.CheckPow2(granularity, "granularity")
	if err != nil {
		return nil, err
	}

	if options.MaxChunks < 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "max chunks must not be negative, got %d", options.MaxChunks)
	}

	l := &List[P]{
		start:       start,
		end:         end,
		granularity: granularity,
		maxChunks:   options.MaxChunks,
		index:       swiss.NewMap[Address[P], *chunk[P]](42),
	}

	c, err := l.allocateChunk(start, end, StateFree)
	if err != nil {
		return nil, err
	}
	l.head = c
	l.tail = c

	return l, nil
}

// NewShadow creates an empty List over the same range and with the same options as l. It is used to
// plan a new layout without touching l.
func (l *List[P]) NewShadow() (*List[P], error) {
	if err := l.checkAlive(); err != nil {
		return nil, err
	}

	return New[P](l.start, l.end, Options{Granularity: l.granularity, MaxChunks: l.maxChunks})
}

// Adopt replaces the contents of l with the chunks of shadow, which must cover the same range. shadow is
// destroyed by the call.
func (l *List[P]) Adopt(shadow *List[P]) error {
	if err := l.checkAlive(); err != nil {
		return err
	}
	if err := shadow.checkAlive(); err != nil {
		return err
	}
	if shadow.start != l.start || shadow.end != l.end {
		return errors.Wrapf(memutils.ErrInvalidArgument, "cannot adopt list spanning [%s, %s) into list spanning [%s, %s)",
			shadow.start, shadow.end, l.start, l.end)
	}

	l.head = shadow.head
	l.tail = shadow.tail
	l.count = shadow.count
	l.index = shadow.index

	shadow.head = nil
	shadow.tail = nil
	shadow.count = 0
	shadow.index = nil

	return nil
}

// Destroy releases every chunk record. The pool memory itself is not touched. Every later call
// on the list fails with memutils.ErrInvalidArgument.
func (l *List[P]) Destroy() error {
	if err := l.checkAlive(); err != nil {
		return err
	}

	for c := l.head; c != nil; {
		next := c.next
		c.prev = nil
		c.next = nil
		c.userData = nil
		c = next
	}

	l.head = nil
	l.tail = nil
	l.count = 0
	l.index = nil
	return nil
}

func (l *List[P]) checkAlive() error {
	if l == nil || l.head == nil {
		return errors.Wrap(memutils.ErrInvalidArgument, "chunk list is nil or has been destroyed")
	}
	return nil
}

func (l *List[P]) allocateChunk(start, end Address[P], state State) (*chunk[P], error) {
	if l.maxChunks > 0 && l.count >= l.maxChunks {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "chunk list already holds %d records", l.count)
	}

	c := &chunk[P]{
		start: start,
		end:   end,
		state: state,
	}
	l.count++
	l.index.Put(start, c)
	return c, nil
}

func (l *List[P]) releaseChunk(c *chunk[P]) {
	if existing, ok := l.index.Get(c.start); ok && existing == c {
		l.index.Delete(c.start)
	}
	l.count--
	c.prev = nil
	c.next = nil
	c.userData = nil
}

func (l *List[P]) insertAfter(c *chunk[P], n *chunk[P]) {
	n.prev = c
	n.next = c.next
	if c.next != nil {
		c.next.prev = n
	} else {
		l.tail = n
	}
	c.next = n
}

func (l *List[P]) unlink(c *chunk[P]) {
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		l.head = c.next
	}

	if c.next != nil {
		c.next.prev = c.prev
	} else {
		l.tail = c.prev
	}
}

func (l *List[P]) roundSize(size int) (int, error) {
	return memutils.RoundUpSize(size, l.granularity)
}

// Start returns the first address of the pool
func (l *List[P]) Start() Address[P] {
	return l.start
}

// End returns the address one past the end of the pool
func (l *List[P]) End() Address[P] {
	return l.end
}

// Size returns the size of the pool in bytes
func (l *List[P]) Size() int {
	return l.end.Offset(l.start)
}

// Granularity returns the minimum allocation size
func (l *List[P]) Granularity() uint {
	return l.granularity
}

// ChunkCount returns the number of chunk records currently tiling the pool
func (l *List[P]) ChunkCount() int {
	return l.count
}

// Contains reports whether address lies inside the pool
func (l *List[P]) Contains(address Address[P]) bool {
	return address >= l.start && address < l.end
}

// AllocFront returns the lowest-addressed free chunk that can hold size bytes, after rounding size up
// to the granularity. A larger chunk is split, with the allocation taking its low end.
func (l *List[P]) AllocFront(size int) (Address[P], error) {
	if err := l.checkAlive(); err != nil {
		return 0, err
	}

	size, err := l.roundSize(size)
	if err != nil {
		return 0, err
	}

	for c := l.head; c != nil; c = c.next {
		if c.state != StateFree || c.size() < size {
			continue
		}

		if c.size() == size {
			c.state = StateUsed
			return c.start, nil
		}

		remainder, err := l.allocateChunk(c.start.Add(size), c.end, StateFree)
		if err != nil {
			return 0, err
		}

		c.end = remainder.start
		c.state = StateUsed
		l.insertAfter(c, remainder)

		memutils.DebugValidate(l)
		return c.start, nil
	}

	return 0, errors.Wrapf(memutils.ErrNotFound, "no free chunk of %d bytes", size)
}

// AllocBack returns the highest-addressed free chunk that can hold size bytes, after rounding size up
// to the granularity. A larger chunk is split, with the allocation taking its high end, so repeated
// calls grow downward from the end of the pool.
func (l *List[P]) AllocBack(size int) (Address[P], error) {
	if err := l.checkAlive(); err != nil {
		return 0, err
	}

	size, err := l.roundSize(size)
	if err != nil {
		return 0, err
	}

	for c := l.tail; c != nil; c = c.prev {
		if c.state != StateFree || c.size() < size {
			continue
		}

		if c.size() == size {
			c.state = StateUsed
			return c.start, nil
		}

		used, err := l.allocateChunk(c.end.Sub(size), c.end, StateUsed)
		if err != nil {
			return 0, err
		}

		c.end = used.start
		l.insertAfter(c, used)

		memutils.DebugValidate(l)
		return used.start, nil
	}

	return 0, errors.Wrapf(memutils.ErrNotFound, "no free chunk of %d bytes", size)
}

func (l *List[P]) chunkContaining(address Address[P]) *chunk[P] {
	for c := l.head; c != nil; c = c.next {
		if address >= c.start && address < c.end {
			return c
		}
	}
	return nil
}

// AllocAt allocates exactly [address, address+size), with size rounded up to the granularity. The whole
// range must lie inside a single free chunk; a range that crosses into another chunk is rejected
// even if that chunk is free too.
func (l *List[P]) AllocAt(address Address[P], size int) error {
	if err := l.checkAlive(); err != nil {
		return err
	}

	if !l.Contains(address) {
		return errors.Wrapf(memutils.ErrOutOfRange, "address %s is outside pool [%s, %s)", address, l.start, l.end)
	}

	size, err := l.roundSize(size)
	if err != nil {
		return err
	}

	if size > l.end.Offset(address) {
		return errors.Wrapf(memutils.ErrOutOfRange, "range of %d bytes at %s extends past pool end %s", size, address, l.end)
	}
	end := address.Add(size)

	c := l.chunkContaining(address)
	if c == nil || c.state != StateFree || end > c.end {
		return errors.Wrapf(memutils.ErrNotFree, "range [%s, %s) is not inside a single free chunk", address, end)
	}

	needFront := address > c.start
	needBack := end < c.end

	// Reserve every record first so that a failure leaves the list untouched
	var used, back *chunk[P]
	if needFront {
		used, err = l.allocateChunk(address, end, StateUsed)
		if err != nil {
			return err
		}
	}
	if needBack {
		back, err = l.allocateChunk(end, c.end, StateFree)
		if err != nil {
			if used != nil {
				l.releaseChunk(used)
			}
			return err
		}
	}

	if needFront {
		// c stays behind as the free front remainder
		c.end = address
		l.insertAfter(c, used)
	} else {
		used = c
		used.state = StateUsed
	}

	if needBack {
		used.end = end
		l.insertAfter(used, back)
	}

	memutils.DebugValidate(l)
	return nil
}

func (l *List[P]) lookup(address Address[P]) (*chunk[P], error) {
	c, ok := l.index.Get(address)
	if !ok {
		return nil, errors.Wrapf(memutils.ErrNotFound, "no chunk starts at %s", address)
	}
	return c, nil
}

// Free releases the used chunk starting at address and merges it with free neighbors, the previous
// neighbor first and then the next one.
func (l *List[P]) Free(address Address[P]) error {
	if err := l.checkAlive(); err != nil {
		return err
	}

	c, err := l.lookup(address)
	if err != nil {
		return err
	}

	if c.state != StateUsed {
		return errors.Wrapf(memutils.ErrWrongState, "chunk at %s is %s, not Used", address, c.state)
	}

	c.state = StateFree
	c.userData = nil

	if c.prev != nil && c.prev.state == StateFree {
		prev := c.prev
		prev.end = c.end
		l.unlink(c)
		l.releaseChunk(c)
		c = prev
	}

	if c.next != nil && c.next.state == StateFree {
		next := c.next
		c.end = next.end
		l.unlink(next)
		l.releaseChunk(next)
	}

	memutils.DebugValidate(l)
	return nil
}

// Lock moves the used chunk at address to the Locked state, removing it from accounting
func (l *List[P]) Lock(address Address[P]) error {
	if err := l.checkAlive(); err != nil {
		return err
	}

	c, err := l.lookup(address)
	if err != nil {
		return err
	}

	if c.state != StateUsed {
		return errors.Wrapf(memutils.ErrWrongState, "cannot lock chunk at %s: it is %s, not Used", address, c.state)
	}

	c.state = StateLocked
	return nil
}

// Unlock moves the locked chunk at address back to the Used state. It does not free the chunk.
func (l *List[P]) Unlock(address Address[P]) error {
	if err := l.checkAlive(); err != nil {
		return err
	}

	c, err := l.lookup(address)
	if err != nil {
		return err
	}

	if c.state != StateLocked {
		return errors.Wrapf(memutils.ErrWrongState, "cannot unlock chunk at %s: it is %s, not Locked", address, c.state)
	}

	c.state = StateUsed
	return nil
}

// ChunkSize returns the size of the allocated chunk starting at address
func (l *List[P]) ChunkSize(address Address[P]) (int, error) {
	if err := l.checkAlive(); err != nil {
		return 0, err
	}

	c, err := l.lookup(address)
	if err != nil {
		return 0, err
	}

	if c.state == StateFree {
		return 0, errors.Wrapf(memutils.ErrWrongState, "chunk at %s is free", address)
	}

	return c.size(), nil
}

// ChunkState returns the state of the chunk starting at address
func (l *List[P]) ChunkState(address Address[P]) (State, error) {
	if err := l.checkAlive(); err != nil {
		return StateFree, err
	}

	c, err := l.lookup(address)
	if err != nil {
		return StateFree, err
	}

	return c.state, nil
}

// SetUserData attaches an owner to the allocated chunk at address. Defragmentation hands the owner
// back when the chunk moves.
func (l *List[P]) SetUserData(address Address[P], userData any) error {
	if err := l.checkAlive(); err != nil {
		return err
	}

	c, err := l.lookup(address)
	if err != nil {
		return err
	}

	if c.state == StateFree {
		return errors.Wrapf(memutils.ErrWrongState, "user data cannot be attached to the free chunk at %s", address)
	}

	c.userData = userData
	return nil
}

// UserData returns the owner attached to the allocated chunk at address
func (l *List[P]) UserData(address Address[P]) (any, error) {
	if err := l.checkAlive(); err != nil {
		return nil, err
	}

	c, err := l.lookup(address)
	if err != nil {
		return nil, err
	}

	if c.state == StateFree {
		return nil, errors.Wrapf(memutils.ErrWrongState, "user data cannot be retrieved for the free chunk at %s", address)
	}

	return c.userData, nil
}
