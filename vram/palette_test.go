package vram_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"github.com/nitroengine/vramkit/vram"
	"github.com/stretchr/testify/require"
)

func colors(n int, seed uint16) []uint16 {
	result := make([]uint16, n)
	for i := range result {
		result[i] = seed + uint16(i)*0x0421
	}
	return result
}

func colorBytes(colors []uint16) []byte {
	data := make([]byte, 0, len(colors)*2)
	for _, c := range colors {
		data = append(data, byte(c), byte(c>>8))
	}
	return data
}

func TestLoadPalette_DescriptorAndContent(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{})

	first, err := engine.LoadPalette(vram.TextureFormatPAL16, colors(16, 1))
	require.NoError(t, err)
	require.Equal(t, vram.PaletteAddress(vram.VRAME), first.Address())
	require.Equal(t, uint32(0), first.Descriptor())

	second, err := engine.LoadPalette(vram.TextureFormatPAL4, colors(4, 2))
	require.NoError(t, err)
	require.Equal(t, vram.PaletteAddress(vram.VRAME+32), second.Address())
	require.Equal(t, uint32(32>>3), second.Descriptor())
	require.Equal(t, 1, second.Index())

	third, err := engine.LoadPalette(vram.TextureFormatPAL256, colors(256, 3))
	require.NoError(t, err)
	require.Equal(t, vram.PaletteAddress(vram.VRAME+48), third.Address())
	require.Equal(t, uint32(48>>4), third.Descriptor())

	require.Equal(t, colorBytes(colors(16, 1)), peek(t, device, vram.VRAME, 32))
	require.Equal(t, colorBytes(colors(4, 2)), peek(t, device, vram.VRAME+32, 8))
	require.Equal(t, vram.BankModeTexturePalette, device.Mode(vram.BankE))
	require.Equal(t, 32+16+512, engine.PaletteStats().Used)
}

func TestLoadPalette_InvalidInput(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	_, err := engine.LoadPalette(vram.TextureFormatPAL16, nil)
	require.ErrorIs(t, err, memutils.ErrInvalidArgument)

	_, err = engine.LoadPalette(vram.TextureFormatRGB5, colors(16, 1))
	require.ErrorIs(t, err, memutils.ErrInvalidArgument)
}

func TestLoadPalette_Limit(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{MaxPalettes: 1})

	p, err := engine.LoadPalette(vram.TextureFormatPAL16, colors(16, 1))
	require.NoError(t, err)

	_, err = engine.LoadPalette(vram.TextureFormatPAL16, colors(16, 1))
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	require.NoError(t, engine.DeletePalette(p))
	_, err = engine.LoadPalette(vram.TextureFormatPAL16, colors(16, 1))
	require.NoError(t, err)

	require.ErrorIs(t, engine.DeletePalette(p), memutils.ErrInvalidHandle)
}

func TestLoadPalette_OutOfSpace(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{MaxPalettes: 200})

	for i := 0; i < 128; i++ {
		_, err := engine.LoadPalette(vram.TextureFormatPAL256, colors(256, uint16(i)))
		require.NoError(t, err, "palette %d", i)
	}
	require.Equal(t, 0, engine.FreePaletteMem())

	_, err := engine.LoadPalette(vram.TextureFormatPAL16, colors(16, 1))
	require.ErrorIs(t, err, memutils.ErrOutOfSpace)

	var outOfSpace *memutils.OutOfSpaceError
	require.True(t, errors.As(err, &outOfSpace))
	require.Equal(t, "TexturePalettes", outOfSpace.Pool)
	require.Equal(t, 32, outOfSpace.Requested)
	require.Equal(t, 64*1024, outOfSpace.Stats.Used)
}

func TestDeletePalette_UnlinksMaterials(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	p, err := engine.LoadPalette(vram.TextureFormatPAL256, colors(256, 1))
	require.NoError(t, err)

	first, err := engine.CreateMaterial()
	require.NoError(t, err)
	second, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, first.SetPalette(p))
	require.NoError(t, second.SetPalette(p))

	require.NoError(t, engine.DeletePalette(p))
	require.Nil(t, first.Palette())
	require.Nil(t, second.Palette())
	require.Equal(t, 0, engine.PaletteStats().Used)

	require.ErrorIs(t, first.SetPalette(p), memutils.ErrInvalidHandle)
}

func TestEngine_DeleteAllMaterialsAndPalettes(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	p, err := engine.LoadPalette(vram.TextureFormatPAL16, colors(16, 1))
	require.NoError(t, err)
	_, err = engine.LoadPalette(vram.TextureFormatPAL4, colors(4, 2))
	require.NoError(t, err)

	first, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, first.LoadTexture(vram.TextureFormatPAL256, 16, 16, 0, pattern(256, 1)))
	require.NoError(t, first.SetPalette(p))
	second, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, second.CloneFrom(first))

	require.NoError(t, engine.DeleteAllMaterials())
	require.Equal(t, 0, engine.TextureStats().Used)
	require.ErrorIs(t, first.SetPalette(p), memutils.ErrInvalidHandle)
	require.ErrorIs(t, engine.DeleteMaterial(second), memutils.ErrInvalidHandle)

	require.NoError(t, engine.DeleteAllPalettes())
	require.Equal(t, 0, engine.PaletteStats().Used)
	require.ErrorIs(t, engine.DeletePalette(p), memutils.ErrInvalidHandle)
	require.NoError(t, engine.Validate())
}

func TestEngine_RejectsHandlesOfAnotherEngine(t *testing.T) {
	first, _ := newEngine(t, vram.CreateOptions{})
	second, _ := newEngine(t, vram.CreateOptions{})

	firstPalette, err := first.LoadPalette(vram.TextureFormatPAL16, colors(16, 1))
	require.NoError(t, err)
	secondPalette, err := second.LoadPalette(vram.TextureFormatPAL16, colors(16, 2))
	require.NoError(t, err)
	require.Equal(t, firstPalette.Address(), secondPalette.Address())

	firstMaterial := loadedMaterial(t, first, vram.TextureFormatPAL256, 16, 16, pattern(256, 1))
	secondMaterial := loadedMaterial(t, second, vram.TextureFormatPAL256, 16, 16, pattern(256, 2))

	require.ErrorIs(t, first.DeletePalette(secondPalette), memutils.ErrInvalidHandle)
	require.ErrorIs(t, first.DeleteMaterial(secondMaterial), memutils.ErrInvalidHandle)
	require.ErrorIs(t, firstMaterial.SetPalette(secondPalette), memutils.ErrInvalidHandle)
	require.ErrorIs(t, firstMaterial.CloneFrom(secondMaterial), memutils.ErrInvalidHandle)

	// Neither engine's bookkeeping was touched
	require.Equal(t, 32, first.PaletteStats().Used)
	require.Equal(t, 256, first.TextureStats().Used)
	require.Equal(t, 32, second.PaletteStats().Used)
	require.Equal(t, 256, second.TextureStats().Used)
	require.NoError(t, first.Validate())
	require.NoError(t, second.Validate())

	third, err := first.LoadPalette(vram.TextureFormatPAL16, colors(16, 3))
	require.NoError(t, err)
	require.NotEqual(t, firstPalette.Address(), third.Address())

	require.NoError(t, firstMaterial.ReleaseTexture())
	require.NoError(t, second.DeleteMaterial(secondMaterial))
	require.NoError(t, second.DeletePalette(secondPalette))
}

func TestDefragmentPalettes_PreservesContentAndDescriptors(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{})

	first, err := engine.LoadPalette(vram.TextureFormatPAL16, colors(16, 1))
	require.NoError(t, err)
	second, err := engine.LoadPalette(vram.TextureFormatPAL16, colors(16, 2))
	require.NoError(t, err)
	third, err := engine.LoadPalette(vram.TextureFormatPAL4, colors(4, 3))
	require.NoError(t, err)
	require.NoError(t, engine.DeletePalette(second))

	stats, err := engine.DefragmentPalettes()
	require.NoError(t, err)
	require.Equal(t, 1, stats.AllocationsMoved)
	require.Equal(t, 16, stats.BytesMoved)

	require.Equal(t, vram.PaletteAddress(vram.VRAME), first.Address())
	require.Equal(t, vram.PaletteAddress(vram.VRAME+32), third.Address())
	require.Equal(t, uint32(32>>3), third.Descriptor())
	require.Equal(t, colorBytes(colors(4, 3)), peek(t, device, vram.VRAME+32, 8))
	require.Equal(t, vram.BankModeTexturePalette, device.Mode(vram.BankE))
	require.NoError(t, engine.Validate())
}
