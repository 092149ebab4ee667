package vram

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"github.com/nitroengine/vramkit/memutils/chunk"
	"github.com/nitroengine/vramkit/memutils/defrag"
	"golang.org/x/exp/slog"
)

// Palette is a block of 16-bit colors in the texture palette pool
type Palette struct {
	engine *Engine
	index  int

	address PaletteAddress
	size    int
	format  TextureFormat
}

var _ defrag.GraphicsConsumer[PalettePool] = &Palette{}

func (p *Palette) checkValid() error {
	if p == nil {
		return errors.Wrap(memutils.ErrInvalidArgument, "palette may not be nil")
	}
	if err := p.engine.checkAlive(); err != nil {
		return err
	}
	if p.index >= len(p.engine.palettes) || p.engine.palettes[p.index] != p {
		return errors.Wrapf(memutils.ErrInvalidHandle, "palette %d has been deleted", p.index)
	}
	return nil
}

// checkOwner is checkValid for a palette handed to e
func (p *Palette) checkOwner(e *Engine) error {
	if p != nil && p.engine != e {
		return errors.Wrapf(memutils.ErrInvalidHandle, "palette %d belongs to another engine", p.index)
	}
	return p.checkValid()
}

func (p *Palette) Relocated(oldAddress, newAddress PaletteAddress) error {
	if oldAddress != p.address {
		return errors.Wrapf(memutils.ErrWrongState, "palette %d moved from %s but is recorded at %s", p.index, oldAddress, p.address)
	}
	p.address = newAddress
	return nil
}

// encodePalette builds the palette base word. PAL4 palettes are addressed in 8-byte units, every
// other format in 16-byte units.
func encodePalette(address uint32, format TextureFormat) uint32 {
	shift := uint32(4)
	if format == TextureFormatPAL4 {
		shift = 3
	}
	return (address - VRAME) >> shift
}

func colorBytes(colors []uint16) []byte {
	data := make([]byte, len(colors)*2)
	for i, color := range colors {
		binary.LittleEndian.PutUint16(data[i*2:], color)
	}
	return data
}

// LoadPalette copies colors into the texture palette pool. format is the format of the textures
// that will use the palette and only affects the descriptor. When the pool has no room the error
// matches memutils.ErrOutOfSpace.
func (e *Engine) LoadPalette(format TextureFormat, colors []uint16) (*Palette, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::LoadPalette", slog.String("Format", format.String()), slog.Int("Colors", len(colors)))
	if err := e.checkAlive(); err != nil {
		return nil, err
	}
	if len(colors) == 0 {
		return nil, errors.Wrap(memutils.ErrInvalidArgument, "palette has no colors")
	}
	if !format.Paletted() && format != TextureFormatTEX4X4 {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "%s textures do not use palettes", format)
	}

	index := -1
	for i, p := range e.palettes {
		if p == nil {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "all %d palettes are in use", len(e.palettes))
	}

	size := len(colors) * 2
	address, err := e.texturePalettes.AllocFront(size)
	if err != nil {
		if errors.Is(err, memutils.ErrNotFound) {
			return nil, memutils.NewOutOfSpaceError("TexturePalettes", size, e.texturePalettes.Stats())
		}
		return nil, err
	}

	p := &Palette{
		engine:  e,
		index:   index,
		address: address,
		size:    size,
		format:  format,
	}

	err = e.texturePalettes.SetUserData(address, p)
	if err == nil {
		err = e.copyToVRAM(uint32(address), colorBytes(colors))
	}
	if err != nil {
		if freeErr := e.texturePalettes.Free(address); freeErr != nil {
			e.logger.Error("failed to free palette after a failed load", slog.Any("error", freeErr))
		}
		return nil, err
	}

	e.palettes[index] = p
	return p, nil
}

// DeletePalette frees the palette and unlinks it from every material using it
func (e *Engine) DeletePalette(p *Palette) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::DeletePalette")
	if err := p.checkOwner(e); err != nil {
		return err
	}

	err := e.texturePalettes.Free(p.address)
	if err != nil {
		return err
	}

	for _, m := range e.materials {
		if m != nil && m.palette == p {
			m.palette = nil
		}
	}

	e.palettes[p.index] = nil
	return nil
}

// DeleteAllPalettes frees every palette and unlinks them from all materials
func (e *Engine) DeleteAllPalettes() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::DeleteAllPalettes")
	if err := e.checkAlive(); err != nil {
		return err
	}

	for i, p := range e.palettes {
		if p == nil {
			continue
		}

		err := e.texturePalettes.Free(p.address)
		if err != nil {
			return err
		}
		e.palettes[i] = nil
	}

	for _, m := range e.materials {
		if m != nil {
			m.palette = nil
		}
	}
	return nil
}

// Index returns the palette's slot
func (p *Palette) Index() int {
	return p.index
}

// Address returns where the palette lives
func (p *Palette) Address() PaletteAddress {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	return p.address
}

// Descriptor returns the palette base word. It changes when DefragmentPalettes moves the palette.
func (p *Palette) Descriptor() uint32 {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	return encodePalette(uint32(p.address), p.format)
}

// DefragmentPalettes packs every palette toward the start of the palette pool
func (e *Engine) DefragmentPalettes() (defrag.DefragmentationStats, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::DefragmentPalettes")
	if err := e.checkAlive(); err != nil {
		return defrag.DefragmentationStats{}, err
	}

	guard := e.acquireLCD(BankE)
	defer guard.Release()

	stats, err := defrag.Compact[PalettePool](e.texturePalettes, deviceMemory[PalettePool]{device: e.device}, defrag.Options{
		Scratch: e.scratch,
		Less: func(a, b any) bool {
			return a.(*Palette).index < b.(*Palette).index
		},
	})
	if err != nil {
		e.logger.Error("palette defragmentation failed", slog.Any("error", err))
		return stats, err
	}

	return stats, nil
}

// FreePaletteMem returns the number of free bytes in the texture palette pool
func (e *Engine) FreePaletteMem() int {
	return e.PaletteStats().Free
}

// validatePalettes checks that every palette pool chunk is owned by a live palette of this engine
// and that materials only link live palettes
func (e *Engine) validatePalettes() error {
	for i, p := range e.palettes {
		if p == nil {
			continue
		}
		if p.engine != e || p.index != i {
			return errors.Errorf("palette slot %d holds palette %d of another engine", i, p.index)
		}

		owner, err := e.texturePalettes.UserData(p.address)
		if err != nil {
			return errors.Wrapf(err, "palette %d", i)
		}
		if owner != p {
			return errors.Errorf("palette %d at %s is owned by another allocation", i, p.address)
		}
	}

	for i, m := range e.materials {
		if m == nil || m.palette == nil {
			continue
		}
		if m.palette.engine != e || e.palettes[m.palette.index] != m.palette {
			return errors.Errorf("material %d links a palette that is not live in this engine", i)
		}
	}

	return e.texturePalettes.VisitAllChunks(func(info chunk.ChunkInfo[PalettePool]) error {
		if info.State == chunk.StateFree {
			return nil
		}

		p, ok := info.UserData.(*Palette)
		if !ok || p.engine != e || e.palettes[p.index] != p || p.address != info.Start {
			return errors.Errorf("palette chunk at %s is not owned by a live palette", info.Start)
		}
		return nil
	})
}
