package chunk

import "github.com/pkg/errors"

// Validate walks the list and verifies that it tiles the pool exactly, that its links are consistent,
// that no two neighboring chunks are free, that allocated chunk sizes are multiples of the granularity
// and that the address index matches the list
func (l *List[P]) Validate() error {
	if err := l.checkAlive(); err != nil {
		return err
	}

	if l.head.prev != nil {
		return errors.New("the first chunk has a previous chunk")
	}

	if l.tail.next != nil {
		return errors.New("the last chunk has a next chunk")
	}

	if l.head.start != l.start {
		return errors.Errorf("the first chunk starts at %s, but the pool starts at %s", l.head.start, l.start)
	}

	if l.tail.end != l.end {
		return errors.Errorf("the last chunk ends at %s, but the pool ends at %s", l.tail.end, l.end)
	}

	var count int
	for c := l.head; c != nil; c = c.next {
		count++

		if c.end <= c.start {
			return errors.Errorf("chunk at %s has an empty or inverted range ending at %s", c.start, c.end)
		}

		if c.next != nil {
			if c.next.prev != c {
				return errors.Errorf("chunk at %s lists the chunk at %s as its next chunk, but the reverse reference is broken", c.start, c.next.start)
			}

			if c.end != c.next.start {
				return errors.Errorf("chunk at %s does not end at the next chunk's start address %s", c.start, c.next.start)
			}

			if c.state == StateFree && c.next.state == StateFree {
				return errors.Errorf("chunks at %s and %s are both free and were not merged", c.start, c.next.start)
			}
		} else if c != l.tail {
			return errors.Errorf("chunk at %s has no next chunk but is not the tail", c.start)
		}

		// AllocAt may place a chunk at any address, but allocated sizes are always rounded
		if c.state != StateFree && c.size()%int(l.granularity) != 0 {
			return errors.Errorf("%s chunk at %s holds %d bytes, not a multiple of the %d-byte granularity", c.state, c.start, c.size(), l.granularity)
		}

		if c.state == StateFree && c.userData != nil {
			return errors.Errorf("free chunk at %s still carries user data", c.start)
		}

		indexed, ok := l.index.Get(c.start)
		if !ok || indexed != c {
			return errors.Errorf("chunk at %s is missing from the address index", c.start)
		}
	}

	if count != l.count {
		return errors.Errorf("list holds %d chunks, but %d records are accounted for", count, l.count)
	}

	if l.index.Count() != count {
		return errors.Errorf("address index holds %d entries, but the list holds %d chunks", l.index.Count(), count)
	}

	if l.maxChunks > 0 && count > l.maxChunks {
		return errors.Errorf("list holds %d chunks, more than the limit of %d", count, l.maxChunks)
	}

	return nil
}
