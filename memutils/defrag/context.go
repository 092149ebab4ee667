package defrag

import (
	"errors"

	cerrors "github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"github.com/nitroengine/vramkit/memutils/chunk"
	"golang.org/x/exp/slices"
)

type movable[P any] struct {
	src      chunk.Address[P]
	size     int
	userData any
}

// Context carries a single defragmentation run over one chunk.List. Plan computes the new layout
// without changing anything; Apply performs it. A Context can be reused by calling Plan again.
type Context[P any] struct {
	list    *chunk.List[P]
	memory  Memory[P]
	options Options

	shadow *chunk.List[P]
	moves  []DefragmentationMove[P]
}

// NewContext prepares a run over list, reading and writing allocation data through memory
func NewContext[P any](list *chunk.List[P], memory Memory[P], options Options) *Context[P] {
	if options.Scratch == nil {
		options.Scratch = DefaultScratch
	}

	return &Context[P]{
		list:    list,
		memory:  memory,
		options: options,
	}
}

// Moves returns the relocations found by the last call to Plan
func (c *Context[P]) Moves() []DefragmentationMove[P] {
	return c.moves
}

func (c *Context[P]) discardPlan() {
	if c.shadow != nil {
		_ = c.shadow.Destroy()
		c.shadow = nil
	}
	c.moves = c.moves[:0]
}

// Plan lays out every allocation again on a shadow list. Locked and pinned chunks are placed first at
// their current address. Movable allocations are then packed from the pool start in the order given by
// Options.Less. The original list is not modified.
func (c *Context[P]) Plan() error {
	c.discardPlan()

	shadow, err := c.list.NewShadow()
	if err != nil {
		return err
	}
	c.shadow = shadow

	var movables []movable[P]
	err = c.list.VisitAllChunks(func(info chunk.ChunkInfo[P]) error {
		switch {
		case info.State == chunk.StateFree:
			return nil
		case info.State == chunk.StateUsed && (c.options.Pinned == nil || !c.options.Pinned(info.UserData)):
			movables = append(movables, movable[P]{src: info.Start, size: info.Size(), userData: info.UserData})
			return nil
		}

		err := shadow.AllocAt(info.Start, info.Size())
		if err != nil {
			return err
		}
		if info.UserData != nil {
			err = shadow.SetUserData(info.Start, info.UserData)
			if err != nil {
				return err
			}
		}
		if info.State == chunk.StateLocked {
			return shadow.Lock(info.Start)
		}
		return nil
	})
	if err != nil {
		c.discardPlan()
		return err
	}

	if c.options.Less != nil {
		slices.SortStableFunc(movables, func(a, b movable[P]) bool {
			return c.options.Less(a.userData, b.userData)
		})
	}

	for _, m := range movables {
		dst, err := shadow.AllocFront(m.size)
		if err != nil {
			c.discardPlan()
			return cerrors.Wrapf(err, "compacted layout has no room for the %d-byte allocation at %s", m.size, m.src)
		}

		if m.userData != nil {
			err = shadow.SetUserData(dst, m.userData)
			if err != nil {
				c.discardPlan()
				return err
			}
		}

		if dst != m.src {
			c.moves = append(c.moves, DefragmentationMove[P]{
				Size:     m.size,
				Src:      m.src,
				Dst:      dst,
				UserData: m.userData,
			})
		}
	}

	return nil
}

// Apply performs the planned run. The scratch buffer is obtained and every moved allocation is read into
// it before anything is written, so a failure at either step leaves the pool exactly as it was. Once the
// data is in place the list adopts the planned layout and every GraphicsConsumer is notified; their
// errors are joined into the returned error.
func (c *Context[P]) Apply() (DefragmentationStats, error) {
	var stats DefragmentationStats
	if c.shadow == nil {
		return stats, cerrors.Wrap(memutils.ErrWrongState, "defragmentation must be planned before it is applied")
	}
	defer c.discardPlan()

	for _, move := range c.moves {
		stats.ScratchBytes += move.Size
	}

	var scratch []byte
	if stats.ScratchBytes > 0 {
		var err error
		scratch, err = c.options.Scratch(stats.ScratchBytes)
		if err != nil {
			return DefragmentationStats{}, cerrors.Wrapf(memutils.ErrOutOfMemory, "scratch buffer of %d bytes: %v", stats.ScratchBytes, err)
		}
		if len(scratch) < stats.ScratchBytes {
			return DefragmentationStats{}, cerrors.Wrapf(memutils.ErrOutOfMemory, "scratch buffer holds %d bytes, %d needed", len(scratch), stats.ScratchBytes)
		}
	}

	staged := make([][]byte, len(c.moves))
	offset := 0
	for i, move := range c.moves {
		staged[i] = scratch[offset : offset+move.Size]
		offset += move.Size

		err := c.memory.ReadAt(move.Src, staged[i])
		if err != nil {
			return DefragmentationStats{}, cerrors.Wrapf(err, "staging allocation at %s", move.Src)
		}
	}

	for i, move := range c.moves {
		err := c.memory.WriteAt(move.Dst, staged[i])
		if err != nil {
			return DefragmentationStats{}, c.restore(staged, cerrors.Wrapf(err, "writing allocation to %s", move.Dst))
		}
	}

	err := c.list.Adopt(c.shadow)
	if err != nil {
		return DefragmentationStats{}, c.restore(staged, err)
	}
	c.shadow = nil

	var allErrors []error
	for _, move := range c.moves {
		stats.BytesMoved += move.Size
		stats.AllocationsMoved++

		consumer, ok := move.UserData.(GraphicsConsumer[P])
		if !ok {
			continue
		}

		err := consumer.Relocated(move.Src, move.Dst)
		if err != nil {
			allErrors = append(allErrors, err)
		}
	}

	if len(allErrors) == 1 {
		return stats, allErrors[0]
	}

	if len(allErrors) > 0 {
		return stats, errors.Join(allErrors...)
	}

	return stats, nil
}

// restore writes every staged allocation back to its source address after a failed write
func (c *Context[P]) restore(staged [][]byte, cause error) error {
	var allErrors []error
	allErrors = append(allErrors, cause)

	for i, move := range c.moves {
		err := c.memory.WriteAt(move.Src, staged[i])
		if err != nil {
			allErrors = append(allErrors, cerrors.Wrapf(err, "restoring allocation at %s", move.Src))
		}
	}

	if len(allErrors) == 1 {
		return cause
	}
	return errors.Join(allErrors...)
}

// Compact plans and applies a defragmentation run over list in one call
func Compact[P any](list *chunk.List[P], memory Memory[P], options Options) (DefragmentationStats, error) {
	ctx := NewContext[P](list, memory, options)

	err := ctx.Plan()
	if err != nil {
		return DefragmentationStats{}, err
	}

	return ctx.Apply()
}
