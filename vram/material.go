package vram

import (
	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"golang.org/x/exp/slog"
)

// Material is a user handle that may own a texture. Materials cloned from one another share the
// texture, which is freed when the last of them lets go of it.
type Material struct {
	engine *Engine
	index  int

	texture *texture
	palette *Palette
}

// CreateMaterial returns a new material without a texture. It fails with ErrOutOfMemory when
// MaxMaterials materials are alive.
func (e *Engine) CreateMaterial() (*Material, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::CreateMaterial")
	if err := e.checkAlive(); err != nil {
		return nil, err
	}

	for i, m := range e.materials {
		if m == nil {
			material := &Material{engine: e, index: i}
			e.materials[i] = material
			return material, nil
		}
	}

	return nil, errors.Wrapf(memutils.ErrOutOfMemory, "all %d materials are in use", len(e.materials))
}

// DeleteMaterial releases the material's texture and frees its slot. The handle may not be used
// afterward.
func (e *Engine) DeleteMaterial(m *Material) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::DeleteMaterial")
	if err := m.checkOwner(e); err != nil {
		return err
	}

	err := m.releaseTexture()
	if err != nil {
		return err
	}

	e.materials[m.index] = nil
	m.palette = nil
	return nil
}

// DeleteAllMaterials deletes every live material, releasing their textures
func (e *Engine) DeleteAllMaterials() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::DeleteAllMaterials")
	if err := e.checkAlive(); err != nil {
		return err
	}

	for i, m := range e.materials {
		if m == nil {
			continue
		}

		err := m.releaseTexture()
		if err != nil {
			return err
		}
		e.materials[i] = nil
		m.palette = nil
	}
	return nil
}

func (m *Material) checkValid() error {
	if m == nil {
		return errors.Wrap(memutils.ErrInvalidArgument, "material may not be nil")
	}
	if err := m.engine.checkAlive(); err != nil {
		return err
	}
	if m.index >= len(m.engine.materials) || m.engine.materials[m.index] != m {
		return errors.Wrapf(memutils.ErrInvalidHandle, "material %d has been deleted", m.index)
	}
	return nil
}

// checkOwner is checkValid for a material handed to e
func (m *Material) checkOwner(e *Engine) error {
	if m != nil && m.engine != e {
		return errors.Wrapf(memutils.ErrInvalidHandle, "material %d belongs to another engine", m.index)
	}
	return m.checkValid()
}

func (m *Material) releaseTexture() error {
	if m.texture == nil {
		return nil
	}

	t := m.texture
	m.texture = nil
	return t.release()
}

// Index returns the material's slot
func (m *Material) Index() int {
	return m.index
}

// LoadTexture replaces the material's texture with a new one. Any texture the material already had is
// released first, so a failed load leaves the material without a texture. When the texture pool has
// no room the error matches memutils.ErrOutOfSpace.
func (m *Material) LoadTexture(format TextureFormat, width, height int, flags TextureFlags, data []byte) error {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	m.engine.logger.Debug("Material::LoadTexture",
		slog.Int("Index", m.index),
		slog.String("Format", format.String()),
		slog.Int("Width", width),
		slog.Int("Height", height))
	if err := m.checkValid(); err != nil {
		return err
	}

	err := m.releaseTexture()
	if err != nil {
		return err
	}

	t, err := m.engine.loadTexture(format, width, height, flags, data)
	if err != nil {
		return err
	}

	m.texture = t
	return nil
}

// LoadTex4x4 replaces the material's texture with a compressed texture. texels holds the slot 0/2
// texel block and indices the slot 1 palette index block.
func (m *Material) LoadTex4x4(width, height int, flags TextureFlags, texels, indices []byte) error {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	m.engine.logger.Debug("Material::LoadTex4x4", slog.Int("Index", m.index), slog.Int("Width", width), slog.Int("Height", height))
	if err := m.checkValid(); err != nil {
		return err
	}

	err := m.releaseTexture()
	if err != nil {
		return err
	}

	t, err := m.engine.loadTex4x4(width, height, flags, texels, indices)
	if err != nil {
		return err
	}

	m.texture = t
	return nil
}

// CloneFrom makes m share src's texture and palette. Whatever texture m had is released first.
func (m *Material) CloneFrom(src *Material) error {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	m.engine.logger.Debug("Material::CloneFrom", slog.Int("Index", m.index))
	if err := m.checkValid(); err != nil {
		return err
	}
	if err := src.checkOwner(m.engine); err != nil {
		return err
	}
	if src.texture == nil {
		return errors.Wrapf(memutils.ErrInvalidHandle, "material %d has no texture to clone", src.index)
	}
	if src == m {
		return nil
	}

	err := m.releaseTexture()
	if err != nil {
		return err
	}

	src.texture.refs++
	m.texture = src.texture
	m.palette = src.palette
	return nil
}

// ReleaseTexture drops the material's reference to its texture
func (m *Material) ReleaseTexture() error {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	m.engine.logger.Debug("Material::ReleaseTexture", slog.Int("Index", m.index))
	if err := m.checkValid(); err != nil {
		return err
	}

	return m.releaseTexture()
}

// SetPalette links the material to p. A nil palette unlinks it.
func (m *Material) SetPalette(p *Palette) error {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	if err := m.checkValid(); err != nil {
		return err
	}
	if p != nil {
		if err := p.checkOwner(m.engine); err != nil {
			return err
		}
	}

	m.palette = p
	return nil
}

// Palette returns the palette linked to the material
func (m *Material) Palette() *Palette {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	return m.palette
}

// Descriptor returns the texture descriptor word of the material's texture, and false when the
// material has none. The word changes when DefragmentTextures moves the texture.
func (m *Material) Descriptor() (uint32, bool) {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	if m.texture == nil {
		return 0, false
	}
	return m.texture.descriptor(), true
}

// TextureAddress returns where the material's texture lives
func (m *Material) TextureAddress() (TextureAddress, bool) {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	if m.texture == nil {
		return 0, false
	}
	return m.texture.address, true
}

// TextureSize returns the width and height the material's texture was loaded with
func (m *Material) TextureSize() (width, height int) {
	m.engine.mutex.Lock()
	defer m.engine.mutex.Unlock()

	if m.texture == nil {
		return 0, 0
	}
	return m.texture.width, m.texture.height
}
