package vram

import (
	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"github.com/nitroengine/vramkit/memutils/chunk"
	"github.com/nitroengine/vramkit/memutils/defrag"
	"golang.org/x/exp/slog"
)

const tex4x4IndexHalf = 64 * 1024

// texture is one allocation in the texture pool, shared by every material cloned from the material
// that loaded it
type texture struct {
	engine *Engine

	address TextureAddress
	// indexAddress is the palette index block of a compressed texture
	indexAddress TextureAddress
	size         int

	format                TextureFormat
	width, height         int
	widthCode, heightCode uint32
	flags                 TextureFlags

	refs int
}

var _ defrag.GraphicsConsumer[TexturePool] = &texture{}

func (t *texture) compressed() bool {
	return t.format == TextureFormatTEX4X4
}

func (t *texture) descriptor() uint32 {
	return encodeTexture(uint32(t.address), t.format, t.widthCode, t.heightCode, t.flags)
}

func (t *texture) Relocated(oldAddress, newAddress TextureAddress) error {
	if oldAddress != t.address {
		return errors.Wrapf(memutils.ErrWrongState, "%s texture moved from %s but is recorded at %s", t.format, oldAddress, t.address)
	}
	t.address = newAddress
	return nil
}

// release drops one reference and frees the texture's chunks when none are left
func (t *texture) release() error {
	t.refs--
	if t.refs > 0 {
		return nil
	}

	// Both blocks of a compressed texture are freed even when one of them fails
	err := t.engine.textures.Free(t.address)
	if t.compressed() {
		err = errors.CombineErrors(err, t.engine.textures.Free(t.indexAddress))
	}
	return err
}

func (e *Engine) textureOutOfSpace(err error, size int) error {
	if errors.Is(err, memutils.ErrNotFound) {
		return memutils.NewOutOfSpaceError("Textures", size, e.textures.Stats())
	}
	return err
}

func (e *Engine) loadTexture(format TextureFormat, width, height int, flags TextureFlags, data []byte) (*texture, error) {
	if format == TextureFormatTEX4X4 {
		return nil, errors.Wrap(memutils.ErrInvalidArgument, "compressed textures are loaded with LoadTex4x4")
	}

	wCode, err := widthCode(width)
	if err != nil {
		return nil, err
	}
	hCode, err := heightCode(height)
	if err != nil {
		return nil, err
	}

	size, err := TextureSize(format, width, height)
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "%dx%d %s texture needs %d bytes, got %d", width, height, format, size, len(data))
	}

	address, err := e.textures.AllocFront(size)
	if err != nil {
		return nil, e.textureOutOfSpace(err, size)
	}

	texels := data[:size]
	if format == TextureFormatRGB5 {
		// Stored as A1RGB5 with every texel opaque
		texels = make([]byte, size)
		copy(texels, data)
		for i := 1; i < size; i += 2 {
			texels[i] |= 0x80
		}
	}

	t := &texture{
		engine:     e,
		address:    address,
		size:       size,
		format:     format,
		width:      width,
		height:     height,
		widthCode:  wCode,
		heightCode: hCode,
		flags:      flags,
		refs:       1,
	}

	err = e.textures.SetUserData(address, t)
	if err == nil {
		err = e.copyToVRAM(uint32(address), texels)
	}
	if err != nil {
		if freeErr := t.release(); freeErr != nil {
			e.logger.Error("failed to free texture after a failed load", slog.Any("error", freeErr))
		}
		return nil, err
	}

	return t, nil
}

// findTex4x4Pair looks for a texel block in the slot 0 or slot 2 range whose mirrored palette index
// block in bank B is free too. The two searches alternate: whenever the index block is taken, the
// texel search resumes at the texel address mirroring the next free index address.
func (e *Engine) findTex4x4Pair(texelSize, indexSize int) (TextureAddress, TextureAddress, error) {
	type slotRange struct {
		start, end TextureAddress
		indexBase  TextureAddress
	}
	ranges := []slotRange{
		{TextureAddress(VRAMA), TextureAddress(VRAMB), TextureAddress(VRAMB)},
		{TextureAddress(VRAMC), TextureAddress(VRAMD), TextureAddress(VRAMB + tex4x4IndexHalf)},
	}

	for _, r := range ranges {
		indexEnd := r.indexBase.Add(tex4x4IndexHalf)
		start := r.start

		for {
			texels, err := e.textures.FindFree(start, r.end, texelSize)
			if err != nil {
				break
			}

			mirrored := r.indexBase.Add(texels.Offset(r.start) / 2)
			indices, err := e.textures.FindFree(mirrored, indexEnd, indexSize)
			if err != nil {
				break
			}

			if indices == mirrored {
				return texels, indices, nil
			}
			start = r.start.Add(indices.Offset(r.indexBase) * 2)
		}
	}

	return 0, 0, errors.Wrapf(memutils.ErrNotFound, "no compressed texture slot for %d texel bytes", texelSize)
}

func (e *Engine) loadTex4x4(width, height int, flags TextureFlags, texelData, indexData []byte) (*texture, error) {
	wCode, err := widthCode(width)
	if err != nil {
		return nil, err
	}
	hCode, err := heightCode(height)
	if err != nil {
		return nil, err
	}

	texelSize, err := TextureSize(TextureFormatTEX4X4, width, height)
	if err != nil {
		return nil, err
	}
	indexSize := texelSize / 2
	if len(texelData) < texelSize || len(indexData) < indexSize {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "%dx%d compressed texture needs %d texel and %d index bytes, got %d and %d",
			width, height, texelSize, indexSize, len(texelData), len(indexData))
	}

	texels, indices, err := e.findTex4x4Pair(texelSize, indexSize)
	if err != nil {
		return nil, e.textureOutOfSpace(err, texelSize+indexSize)
	}

	err = e.textures.AllocAt(texels, texelSize)
	if err != nil {
		return nil, err
	}
	err = e.textures.AllocAt(indices, indexSize)
	if err != nil {
		if freeErr := e.textures.Free(texels); freeErr != nil {
			e.logger.Error("failed to roll back compressed texel block", slog.Any("error", freeErr))
		}
		return nil, err
	}

	t := &texture{
		engine:       e,
		address:      texels,
		indexAddress: indices,
		size:         texelSize + indexSize,
		format:       TextureFormatTEX4X4,
		width:        width,
		height:       height,
		widthCode:    wCode,
		heightCode:   hCode,
		flags:        flags,
		refs:         1,
	}

	err = e.textures.SetUserData(texels, t)
	if err == nil {
		err = e.textures.SetUserData(indices, t)
	}
	if err == nil {
		err = e.copyToVRAM(uint32(texels), texelData[:texelSize])
	}
	if err == nil {
		err = e.copyToVRAM(uint32(indices), indexData[:indexSize])
	}
	if err != nil {
		if freeErr := t.release(); freeErr != nil {
			e.logger.Error("failed to free compressed texture after a failed load", slog.Any("error", freeErr))
		}
		return nil, err
	}

	return t, nil
}

// DefragmentTextures packs every uncompressed texture toward the start of the texture pool and
// updates the descriptor of every material using a moved texture. Compressed textures stay where
// they are, since their two blocks must keep mirroring each other.
func (e *Engine) DefragmentTextures() (defrag.DefragmentationStats, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::DefragmentTextures")
	if err := e.checkAlive(); err != nil {
		return defrag.DefragmentationStats{}, err
	}

	var banks []Bank
	for bank := BankA; bank <= BankD; bank++ {
		if e.textureBanks.Has(bank) {
			banks = append(banks, bank)
		}
	}
	guard := e.acquireLCD(banks...)
	defer guard.Release()

	stats, err := defrag.Compact[TexturePool](e.textures, deviceMemory[TexturePool]{device: e.device}, defrag.Options{
		Scratch: e.scratch,
		Pinned: func(userData any) bool {
			t, ok := userData.(*texture)
			return ok && t.compressed()
		},
	})
	if err != nil {
		e.logger.Error("texture defragmentation failed", slog.Any("error", err))
		return stats, err
	}

	e.logger.Debug("Engine::DefragmentTextures complete",
		slog.Int("BytesMoved", stats.BytesMoved),
		slog.Int("AllocationsMoved", stats.AllocationsMoved))
	return stats, nil
}

// FreeTextureMem returns the number of free bytes in the texture pool
func (e *Engine) FreeTextureMem() int {
	return e.TextureStats().Free
}

// validateTextures checks that every texture pool chunk is owned by a live texture of this engine
// and that reference counts match the materials sharing each texture
func (e *Engine) validateTextures() error {
	refs := map[*texture]int{}
	for i, m := range e.materials {
		if m == nil || m.texture == nil {
			continue
		}
		if m.engine != e || m.index != i {
			return errors.Errorf("material slot %d holds material %d of another engine", i, m.index)
		}
		refs[m.texture]++
	}

	for t, count := range refs {
		if t.engine != e {
			return errors.Errorf("%s texture at %s belongs to another engine", t.format, t.address)
		}
		if t.refs != count {
			return errors.Errorf("%s texture at %s counts %d references but %d materials use it", t.format, t.address, t.refs, count)
		}

		addresses := []TextureAddress{t.address}
		if t.compressed() {
			addresses = append(addresses, t.indexAddress)
		}
		for _, address := range addresses {
			owner, err := e.textures.UserData(address)
			if err != nil {
				return errors.Wrapf(err, "%s texture at %s", t.format, address)
			}
			if owner != t {
				return errors.Errorf("%s texture at %s is owned by another allocation", t.format, address)
			}
		}
	}

	return e.textures.VisitAllChunks(func(info chunk.ChunkInfo[TexturePool]) error {
		switch {
		case info.State == chunk.StateFree:
			return nil
		case info.State == chunk.StateLocked && info.UserData == nil:
			// Fenced-off bank
			return nil
		}

		t, ok := info.UserData.(*texture)
		if !ok || refs[t] == 0 {
			return errors.Errorf("texture chunk at %s is not used by any material", info.Start)
		}
		return nil
	})
}
