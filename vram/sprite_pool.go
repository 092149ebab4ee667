package vram

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/nitroengine/vramkit/memutils"
	"github.com/nitroengine/vramkit/memutils/chunk"
	"github.com/nitroengine/vramkit/memutils/defrag"
	"golang.org/x/exp/slog"
)

type spritePoolConfig struct {
	name string
	base uint32
	size int
	// bank is the LCD bank behind the pool, or BankNone for the CPU-mapped sprite windows
	bank Bank

	paletteBank  Bank
	paletteSlots int

	// billboard pools hand out texture descriptors instead of tile indices
	billboard bool
}

// gfxSlot is one block of sprite graphics resident in a sprite pool
type gfxSlot[P any] struct {
	pool  *SpritePool[P]
	index int
	ram   int

	buffer     *gfxBuffer
	address    chunk.Address[P]
	size       int
	keepFrames bool
	frameSize  int
	lastFrame  int
}

func (g *gfxSlot[P]) Relocated(oldAddress, newAddress chunk.Address[P]) error {
	if oldAddress != g.address {
		return errors.Wrapf(memutils.ErrWrongState, "%s gfx slot %d moved from %s but is recorded at %s", g.pool.name, g.index, oldAddress, g.address)
	}

	g.address = newAddress
	g.pool.refreshDescriptors(g)
	return nil
}

func (g *gfxSlot[P]) describe(json *jwriter.ObjectState) {
	json.Name("Type").String("SpriteGfx")
	json.Name("Slot").Int(g.index)
	json.Name("RAMSlot").Int(g.ram)
	json.Name("Width").Int(g.buffer.width)
	json.Name("Height").Int(g.buffer.height)
	json.Name("KeepFrames").Bool(g.keepFrames)
}

type sprite[P any] struct {
	id         int
	gfx        *gfxSlot[P]
	palette    int
	frame      int
	descriptor uint32
}

// SpritePoolInfo is the tracking record of a sprite pool
type SpritePoolInfo struct {
	// Free is the number of free bytes in the pool
	Free int
	// Fragmented is the number of free bytes outside the untouched tail of the pool
	Fragmented int
	// InARow is the size of the untouched tail of the pool
	InARow int
	// Deleted is the number of free holes before the tail
	Deleted int
	// Next is the address where the tail starts, or the pool end when the tail is empty
	Next uint32
	// Last is the highest resident gfx slot, or -1
	Last int
}

// SpritePool manages the graphics memory of one sprite pool: a screen's sprite window, or the bank
// holding 3D billboard graphics. Up to MaxGfxSlots blocks of graphics are placed in the pool and up
// to MaxSprites sprites draw from them.
type SpritePool[P any] struct {
	engine *Engine
	name   string
	list   *chunk.List[P]
	bank   Bank

	billboard bool

	gfx      [MaxGfxSlots]*gfxSlot[P]
	sprites  [MaxSprites]*sprite[P]
	palettes *PaletteSlots
}

func newSpritePool[P any](e *Engine, config spritePoolConfig) (*SpritePool[P], error) {
	base := chunk.Address[P](config.base)
	list, err := chunk.New[P](base, base.Add(config.size), chunk.Options{Granularity: spriteGranularity})
	if err != nil {
		return nil, err
	}

	pool := &SpritePool[P]{
		engine:    e,
		name:      config.name,
		list:      list,
		bank:      config.bank,
		billboard: config.billboard,
	}
	pool.palettes = &PaletteSlots{
		engine:     e,
		name:       config.name,
		bank:       config.paletteBank,
		slots:      make([]paletteSlot, config.paletteSlots),
		referenced: pool.paletteReferenced,
	}

	return pool, nil
}

// Name returns the name the pool is logged and reported under
func (p *SpritePool[P]) Name() string {
	return p.name
}

// Base returns the first address of the pool
func (p *SpritePool[P]) Base() chunk.Address[P] {
	return p.list.Start()
}

// Palettes returns the extended palette slots of the pool
func (p *SpritePool[P]) Palettes() *PaletteSlots {
	return p.palettes
}

func (p *SpritePool[P]) checkGfxSlot(slot int) error {
	if err := p.engine.checkAlive(); err != nil {
		return err
	}
	if slot < 0 || slot >= MaxGfxSlots {
		return errors.Wrapf(memutils.ErrInvalidHandle, "%s gfx slot %d is out of range", p.name, slot)
	}
	return nil
}

func (p *SpritePool[P]) residentGfx(slot int) (*gfxSlot[P], error) {
	if err := p.checkGfxSlot(slot); err != nil {
		return nil, err
	}
	if p.gfx[slot] == nil {
		return nil, errors.Wrapf(memutils.ErrInvalidHandle, "%s gfx slot %d is not resident", p.name, slot)
	}
	return p.gfx[slot], nil
}

// place finds room for size bytes. Freed holes are tried before the untouched tail: first a hole of
// exactly the right size, then the first larger one in address order.
func (p *SpritePool[P]) place(size int) (chunk.Address[P], error) {
	var exact, larger, tail *chunk.ChunkInfo[P]
	_ = p.list.VisitAllChunks(func(info chunk.ChunkInfo[P]) error {
		if info.State != chunk.StateFree {
			return nil
		}

		switch {
		case info.End == p.list.End():
			tail = &info
		case info.Size() == size && exact == nil:
			exact = &info
		case info.Size() > size && larger == nil:
			larger = &info
		}
		return nil
	})

	var choice *chunk.ChunkInfo[P]
	switch {
	case exact != nil:
		choice = exact
	case larger != nil:
		choice = larger
	case tail != nil && tail.Size() >= size:
		choice = tail
	default:
		return 0, memutils.NewOutOfSpaceError(p.name, size, p.list.Stats())
	}

	err := p.list.AllocAt(choice.Start, size)
	if err != nil {
		return 0, err
	}
	return choice.Start, nil
}

// PlaceInVram copies the graphics in RAM slot ram into the pool as gfx slot slot. With keepFrames
// only one frame is placed in the pool and SetFrame copies frames in from RAM; otherwise every
// frame is placed. When the pool has no room the error matches memutils.ErrOutOfSpace.
func (p *SpritePool[P]) PlaceInVram(ram, slot int, keepFrames bool) error {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	p.engine.logger.Debug("SpritePool::PlaceInVram",
		slog.String("Pool", p.name),
		slog.Int("RAMSlot", ram),
		slog.Int("Slot", slot),
		slog.Bool("KeepFrames", keepFrames))
	if err := p.checkGfxSlot(slot); err != nil {
		return err
	}
	if p.gfx[slot] != nil {
		return errors.Wrapf(memutils.ErrWrongState, "%s gfx slot %d is already resident", p.name, slot)
	}

	buffer, err := p.engine.loadedGfx(ram)
	if err != nil {
		return err
	}
	if p.billboard {
		// Billboards are drawn as textures, so both sides must be valid texture sizes
		if _, err := widthCode(buffer.width); err != nil {
			return err
		}
		if _, err := widthCode(buffer.height); err != nil {
			return err
		}
	}

	frameSize := buffer.frameSize()
	dataSize := len(buffer.data)
	if keepFrames {
		dataSize = frameSize
	}

	size, err := memutils.RoundUpSize(dataSize, p.list.Granularity())
	if err != nil {
		return err
	}

	address, err := p.place(size)
	if err != nil {
		return err
	}

	g := &gfxSlot[P]{
		pool:       p,
		index:      slot,
		ram:        ram,
		buffer:     buffer,
		address:    address,
		size:       size,
		keepFrames: keepFrames,
		frameSize:  frameSize,
		lastFrame:  len(buffer.data)/frameSize - 1,
	}
	err = p.list.SetUserData(address, g)
	if err == nil {
		err = p.engine.copyToVRAM(uint32(address), buffer.data[:dataSize])
	}
	if err != nil {
		if freeErr := p.list.Free(address); freeErr != nil {
			p.engine.logger.Error("failed to free sprite graphics after a failed load", slog.Any("error", freeErr))
		}
		return err
	}

	p.gfx[slot] = g
	return nil
}

// Free zeroes gfx slot slot and returns its memory to the pool. It fails with ErrWrongState while a
// sprite uses the slot. When the free space outside the pool's tail grows to half the tail, the
// pool is defragmented before Free returns.
func (p *SpritePool[P]) Free(slot int) error {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	p.engine.logger.Debug("SpritePool::Free", slog.String("Pool", p.name), slog.Int("Slot", slot))
	g, err := p.residentGfx(slot)
	if err != nil {
		return err
	}

	for _, s := range p.sprites {
		if s != nil && s.gfx == g {
			return errors.Wrapf(memutils.ErrWrongState, "%s gfx slot %d is used by sprite %d", p.name, slot, s.id)
		}
	}

	err = p.engine.fillVRAM(uint32(g.address), g.size, 0)
	if err != nil {
		return err
	}

	err = p.list.Free(g.address)
	if err != nil {
		return err
	}
	p.gfx[slot] = nil

	info := p.info()
	if info.Fragmented > 0 && info.Fragmented >= info.InARow/2 {
		_, err = p.defragment()
		if err != nil {
			p.engine.logger.Error("automatic defragmentation failed", slog.String("Pool", p.name), slog.Any("error", err))
			return errors.Wrapf(err, "%s gfx slot %d was freed, but the pool could not be defragmented", p.name, slot)
		}
	}

	return nil
}

func (p *SpritePool[P]) defragment() (defrag.DefragmentationStats, error) {
	guard := p.engine.acquireLCD(p.bank)
	defer guard.Release()

	stats, err := defrag.Compact[P](p.list, deviceMemory[P]{device: p.engine.device}, defrag.Options{
		Scratch: p.engine.scratch,
		Less: func(a, b any) bool {
			return a.(*gfxSlot[P]).index < b.(*gfxSlot[P]).index
		},
	})
	if err != nil {
		return stats, err
	}

	p.engine.logger.Debug("SpritePool::Defragment complete",
		slog.String("Pool", p.name),
		slog.Int("BytesMoved", stats.BytesMoved),
		slog.Int("AllocationsMoved", stats.AllocationsMoved))
	return stats, nil
}

// Defragment packs every resident gfx slot toward the pool base in slot order and updates the
// descriptor of every sprite using a moved slot. If the scratch buffer cannot be allocated nothing
// is moved.
func (p *SpritePool[P]) Defragment() (defrag.DefragmentationStats, error) {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	p.engine.logger.Debug("SpritePool::Defragment", slog.String("Pool", p.name))
	if err := p.engine.checkAlive(); err != nil {
		return defrag.DefragmentationStats{}, err
	}

	return p.defragment()
}

func (p *SpritePool[P]) info() SpritePoolInfo {
	info := SpritePoolInfo{
		Next: uint32(p.list.End()),
		Last: -1,
	}

	_ = p.list.VisitAllChunks(func(c chunk.ChunkInfo[P]) error {
		if c.State != chunk.StateFree {
			return nil
		}

		info.Free += c.Size()
		if c.End == p.list.End() {
			info.InARow = c.Size()
			info.Next = uint32(c.Start)
		} else {
			info.Fragmented += c.Size()
			info.Deleted++
		}
		return nil
	})

	for i := MaxGfxSlots - 1; i >= 0; i-- {
		if p.gfx[i] != nil {
			info.Last = i
			break
		}
	}

	return info
}

// Info returns the pool's tracking record
func (p *SpritePool[P]) Info() SpritePoolInfo {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	if p.engine.checkAlive() != nil {
		return SpritePoolInfo{Last: -1}
	}
	return p.info()
}

// Stats returns the accounting of the pool
func (p *SpritePool[P]) Stats() memutils.Stats {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	return p.list.Stats()
}

// GfxAddress returns where gfx slot slot lives
func (p *SpritePool[P]) GfxAddress(slot int) (chunk.Address[P], error) {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	g, err := p.residentGfx(slot)
	if err != nil {
		return 0, err
	}
	return g.address, nil
}

func (p *SpritePool[P]) validate() error {
	err := p.list.Validate()
	if err != nil {
		return errors.Wrap(err, p.name)
	}

	for i, g := range p.gfx {
		if g == nil {
			continue
		}

		owner, err := p.list.UserData(g.address)
		if err != nil {
			return errors.Wrapf(err, "%s gfx slot %d", p.name, i)
		}
		if owner != g {
			return errors.Errorf("%s gfx slot %d at %s is owned by another allocation", p.name, i, g.address)
		}

		size, err := p.list.ChunkSize(g.address)
		if err != nil {
			return errors.Wrapf(err, "%s gfx slot %d", p.name, i)
		}
		if size != g.size {
			return errors.Errorf("%s gfx slot %d records %d bytes but its chunk holds %d", p.name, i, g.size, size)
		}
	}

	for _, s := range p.sprites {
		if s == nil {
			continue
		}
		if p.gfx[s.gfx.index] != s.gfx {
			return errors.Errorf("%s sprite %d uses gfx slot %d, which is no longer resident", p.name, s.id, s.gfx.index)
		}
		if s.descriptor != p.encode(s.gfx, s.frame) {
			return errors.Errorf("%s sprite %d has a stale descriptor", p.name, s.id)
		}
	}

	return nil
}
