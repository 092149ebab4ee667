package chunk

import (
	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
)

// FindFree looks for size bytes of free memory inside [rangeStart, rangeEnd] without changing the list.
// Chunks are scanned in address order. A free chunk that begins before rangeStart is considered from
// rangeStart onward. The first free chunk that intersects the range decides the outcome: if size bytes
// from its usable start would run past rangeEnd, the search fails instead of continuing.
func (l *List[P]) FindFree(rangeStart, rangeEnd Address[P], size int) (Address[P], error) {
	if err := l.checkAlive(); err != nil {
		return 0, err
	}

	size, err := l.roundSize(size)
	if err != nil {
		return 0, err
	}

	for c := l.head; c != nil; c = c.next {
		if c.end <= rangeStart {
			continue
		}

		if c.start >= rangeEnd {
			break
		}

		if c.state != StateFree {
			continue
		}

		usable := c.start
		if usable < rangeStart {
			usable = rangeStart
		}

		if size > rangeEnd.Offset(usable) {
			break
		}

		if size <= c.end.Offset(usable) {
			return usable, nil
		}
	}

	return 0, errors.Wrapf(memutils.ErrNotFound, "no free range of %d bytes in [%s, %s]", size, rangeStart, rangeEnd)
}
