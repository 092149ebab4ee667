package vram

import (
	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"golang.org/x/exp/slog"
)

// encode returns the descriptor of a sprite showing frame of g. Sprites in a screen pool address
// their graphics by 32-byte tile index from the pool base; billboards use a 256-color texture word
// with color 0 transparent.
func (p *SpritePool[P]) encode(g *gfxSlot[P], frame int) uint32 {
	address := g.address
	if !g.keepFrames {
		address = address.Add(g.frameSize * frame)
	}

	if p.billboard {
		wCode, _ := widthCode(g.buffer.width)
		hCode, _ := widthCode(g.buffer.height)
		return encodeTexture(uint32(address), TextureFormatPAL256, wCode, hCode, TextureColor0Transparent)
	}

	return uint32(address.Offset(p.list.Start())) >> 5
}

// refreshDescriptors recomputes the descriptor of every sprite drawing from g
func (p *SpritePool[P]) refreshDescriptors(g *gfxSlot[P]) {
	for _, s := range p.sprites {
		if s != nil && s.gfx == g {
			s.descriptor = p.encode(g, s.frame)
		}
	}
}

func (p *SpritePool[P]) paletteReferenced(slot int) bool {
	for _, s := range p.sprites {
		if s != nil && s.palette == slot {
			return true
		}
	}
	return false
}

func (p *SpritePool[P]) checkSpriteID(id int) error {
	if err := p.engine.checkAlive(); err != nil {
		return err
	}
	if id < 0 || id >= MaxSprites {
		return errors.Wrapf(memutils.ErrInvalidHandle, "%s sprite %d is out of range", p.name, id)
	}
	return nil
}

func (p *SpritePool[P]) liveSprite(id int) (*sprite[P], error) {
	if err := p.checkSpriteID(id); err != nil {
		return nil, err
	}
	if p.sprites[id] == nil {
		return nil, errors.Wrapf(memutils.ErrInvalidHandle, "%s sprite %d does not exist", p.name, id)
	}
	return p.sprites[id], nil
}

// CreateSprite creates sprite id drawing frame 0 of gfx slot gfx with palette slot pal. The gfx
// slot must be resident and the palette slot must hold a palette.
func (p *SpritePool[P]) CreateSprite(id, gfx, pal int) error {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	p.engine.logger.Debug("SpritePool::CreateSprite",
		slog.String("Pool", p.name),
		slog.Int("Sprite", id),
		slog.Int("Gfx", gfx),
		slog.Int("Palette", pal))
	if err := p.checkSpriteID(id); err != nil {
		return err
	}
	if p.sprites[id] != nil {
		return errors.Wrapf(memutils.ErrWrongState, "%s sprite %d already exists", p.name, id)
	}

	g, err := p.residentGfx(gfx)
	if err != nil {
		return err
	}
	if !p.palettes.inUse(pal) {
		return errors.Wrapf(memutils.ErrInvalidHandle, "%s palette slot %d is not in use", p.name, pal)
	}

	s := &sprite[P]{
		id:      id,
		gfx:     g,
		palette: pal,
	}
	s.descriptor = p.encode(g, 0)
	p.sprites[id] = s
	return nil
}

// SetFrame shows frame of the sprite's graphics. For graphics placed with keepFrames the frame is
// copied from RAM into the resident slot, and every sprite sharing the slot moves to that frame.
func (p *SpritePool[P]) SetFrame(id, frame int) error {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	s, err := p.liveSprite(id)
	if err != nil {
		return err
	}

	g := s.gfx
	if frame < 0 || frame > g.lastFrame {
		return errors.Wrapf(memutils.ErrInvalidArgument, "%s sprite %d has frames 0 to %d, got %d", p.name, id, g.lastFrame, frame)
	}

	if !g.keepFrames {
		s.frame = frame
		s.descriptor = p.encode(g, frame)
		return nil
	}

	offset := g.frameSize * frame
	err = p.engine.copyToVRAM(uint32(g.address), g.buffer.data[offset:offset+g.frameSize])
	if err != nil {
		return err
	}

	// The resident frame is shared, so every sprite on the slot now shows it
	for _, other := range p.sprites {
		if other != nil && other.gfx == g {
			other.frame = frame
			other.descriptor = p.encode(g, frame)
		}
	}
	return nil
}

// DeleteSprite removes sprite id. Its graphics stay resident.
func (p *SpritePool[P]) DeleteSprite(id int) error {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	p.engine.logger.Debug("SpritePool::DeleteSprite", slog.String("Pool", p.name), slog.Int("Sprite", id))
	if _, err := p.liveSprite(id); err != nil {
		return err
	}

	p.sprites[id] = nil
	return nil
}

// SpriteDescriptor returns the descriptor of sprite id. It changes when the sprite's graphics move.
func (p *SpritePool[P]) SpriteDescriptor(id int) (uint32, error) {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	s, err := p.liveSprite(id)
	if err != nil {
		return 0, err
	}
	return s.descriptor, nil
}

// SpriteFrame returns the frame sprite id shows
func (p *SpritePool[P]) SpriteFrame(id int) (int, error) {
	p.engine.mutex.Lock()
	defer p.engine.mutex.Unlock()

	s, err := p.liveSprite(id)
	if err != nil {
		return 0, err
	}
	return s.frame, nil
}
