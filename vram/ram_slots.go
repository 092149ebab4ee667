package vram

import (
	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"golang.org/x/exp/slog"
)

const (
	tileBytes        = 64
	maxPaletteColors = 256
)

// gfxBuffer is the RAM-side copy of a sprite's graphics: every animation frame, 8 bits per pixel
type gfxBuffer struct {
	data          []byte
	width, height int
}

func (b *gfxBuffer) frameSize() int {
	return (b.width / 8) * (b.height / 8) * tileBytes
}

// LoadGfx stores sprite graphics in RAM slot ram. data holds one or more frames of width x height
// pixels; both dimensions must be multiples of 8. The data is copied.
func (e *Engine) LoadGfx(ram int, data []byte, width, height int) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::LoadGfx", slog.Int("RAMSlot", ram), slog.Int("Size", len(data)))
	if err := e.checkAlive(); err != nil {
		return err
	}
	if ram < 0 || ram >= len(e.gfxRAM) {
		return errors.Wrapf(memutils.ErrInvalidHandle, "gfx RAM slot %d is out of range", ram)
	}
	if e.gfxRAM[ram] != nil {
		return errors.Wrapf(memutils.ErrWrongState, "gfx RAM slot %d is already loaded", ram)
	}
	if width <= 0 || height <= 0 || width%8 != 0 || height%8 != 0 {
		return errors.Wrapf(memutils.ErrInvalidArgument, "sprite size %dx%d is not made of 8x8 tiles", width, height)
	}

	buffer := &gfxBuffer{width: width, height: height}
	frameSize := buffer.frameSize()
	if len(data) == 0 || len(data)%frameSize != 0 {
		return errors.Wrapf(memutils.ErrInvalidArgument, "%d bytes is not a whole number of %d-byte frames", len(data), frameSize)
	}

	buffer.data = make([]byte, len(data))
	copy(buffer.data, data)
	e.gfxRAM[ram] = buffer
	return nil
}

// UnloadGfx empties RAM slot ram. Graphics already placed in VRAM keep their own reference to the
// frames, so resident sprites can still change frames.
func (e *Engine) UnloadGfx(ram int) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::UnloadGfx", slog.Int("RAMSlot", ram))
	if err := e.checkAlive(); err != nil {
		return err
	}
	if ram < 0 || ram >= len(e.gfxRAM) || e.gfxRAM[ram] == nil {
		return errors.Wrapf(memutils.ErrInvalidHandle, "gfx RAM slot %d is not loaded", ram)
	}

	e.gfxRAM[ram] = nil
	return nil
}

func (e *Engine) loadedGfx(ram int) (*gfxBuffer, error) {
	if ram < 0 || ram >= len(e.gfxRAM) || e.gfxRAM[ram] == nil {
		return nil, errors.Wrapf(memutils.ErrInvalidHandle, "gfx RAM slot %d is not loaded", ram)
	}
	return e.gfxRAM[ram], nil
}

// LoadSpritePalette stores up to 256 colors in sprite palette RAM slot ram
func (e *Engine) LoadSpritePalette(ram int, colors []uint16) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::LoadSpritePalette", slog.Int("RAMSlot", ram), slog.Int("Colors", len(colors)))
	if err := e.checkAlive(); err != nil {
		return err
	}
	if ram < 0 || ram >= len(e.palRAM) {
		return errors.Wrapf(memutils.ErrInvalidHandle, "palette RAM slot %d is out of range", ram)
	}
	if e.palRAM[ram] != nil {
		return errors.Wrapf(memutils.ErrWrongState, "palette RAM slot %d is already loaded", ram)
	}
	if len(colors) == 0 || len(colors) > maxPaletteColors {
		return errors.Wrapf(memutils.ErrInvalidArgument, "sprite palettes hold 1 to %d colors, got %d", maxPaletteColors, len(colors))
	}

	e.palRAM[ram] = colorBytes(colors)
	return nil
}

// SetSpritePaletteColor changes one color of a loaded RAM palette. The change reaches VRAM when the
// palette slots using it are refreshed.
func (e *Engine) SetSpritePaletteColor(ram, index int, color uint16) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if err := e.checkAlive(); err != nil {
		return err
	}
	palette, err := e.spritePalette(ram)
	if err != nil {
		return err
	}
	if index < 0 || index*2 >= len(palette) {
		return errors.Wrapf(memutils.ErrInvalidArgument, "color %d is outside the %d-color palette", index, len(palette)/2)
	}

	palette[index*2] = byte(color)
	palette[index*2+1] = byte(color >> 8)
	return nil
}

// UnloadSpritePalette empties sprite palette RAM slot ram
func (e *Engine) UnloadSpritePalette(ram int) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::UnloadSpritePalette", slog.Int("RAMSlot", ram))
	if err := e.checkAlive(); err != nil {
		return err
	}
	if _, err := e.spritePalette(ram); err != nil {
		return err
	}

	e.palRAM[ram] = nil
	return nil
}

func (e *Engine) spritePalette(ram int) ([]byte, error) {
	if ram < 0 || ram >= len(e.palRAM) || e.palRAM[ram] == nil {
		return nil, errors.Wrapf(memutils.ErrInvalidHandle, "palette RAM slot %d is not loaded", ram)
	}
	return e.palRAM[ram], nil
}
