package vram_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"github.com/nitroengine/vramkit/vram"
	"github.com/stretchr/testify/require"
)

func loadedMaterial(t *testing.T, engine *vram.Engine, format vram.TextureFormat, width, height int, data []byte) *vram.Material {
	t.Helper()

	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, m.LoadTexture(format, width, height, 0, data))
	return m
}

func TestTextureSize(t *testing.T) {
	size, err := vram.TextureSize(vram.TextureFormatPAL256, 64, 32)
	require.NoError(t, err)
	require.Equal(t, 2048, size)

	size, err = vram.TextureSize(vram.TextureFormatPAL4, 64, 32)
	require.NoError(t, err)
	require.Equal(t, 512, size)

	size, err = vram.TextureSize(vram.TextureFormatRGB5, 8, 8)
	require.NoError(t, err)
	require.Equal(t, 128, size)

	size, err = vram.TextureSize(vram.TextureFormatTEX4X4, 16, 16)
	require.NoError(t, err)
	require.Equal(t, 64, size)

	_, err = vram.TextureSize(vram.TextureFormat(42), 8, 8)
	require.ErrorIs(t, err, memutils.ErrInvalidArgument)
	_, err = vram.TextureSize(vram.TextureFormatPAL16, 0, 8)
	require.ErrorIs(t, err, memutils.ErrInvalidArgument)
}

func TestLoadTexture_DescriptorAndPlacement(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{})

	first, err := engine.CreateMaterial()
	require.NoError(t, err)
	firstData := pattern(256, 1)
	require.NoError(t, first.LoadTexture(vram.TextureFormatPAL256, 16, 16, vram.TextureWrapS, firstData))

	address, ok := first.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMA), address)

	descriptor, ok := first.Descriptor()
	require.True(t, ok)
	require.Equal(t, uint32(1<<20|1<<23|4<<26|1<<16), descriptor)

	second, err := engine.CreateMaterial()
	require.NoError(t, err)
	secondData := pattern(128, 2)
	require.NoError(t, second.LoadTexture(vram.TextureFormatPAL16, 32, 8, 0, secondData))

	descriptor, ok = second.Descriptor()
	require.True(t, ok)
	require.Equal(t, uint32(2<<20|0<<23|(256>>3)|3<<26), descriptor)

	width, height := second.TextureSize()
	require.Equal(t, 32, width)
	require.Equal(t, 8, height)

	require.Equal(t, firstData, peek(t, device, vram.VRAMA, 256))
	require.Equal(t, secondData, peek(t, device, vram.VRAMA+256, 128))
	require.Equal(t, vram.BankModeTexture, device.Mode(vram.BankA))
	require.Equal(t, 384, engine.TextureStats().Used)
}

func TestLoadTexture_HeightRoundsUpInDescriptor(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	m := loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 20, pattern(320, 1))
	descriptor, ok := m.Descriptor()
	require.True(t, ok)
	require.Equal(t, uint32(2), descriptor>>23&7)
	require.Equal(t, 320, engine.TextureStats().Used)
}

func TestLoadTexture_RGB5IsStoredOpaque(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{})

	data := make([]byte, 128)
	for i := range data {
		data[i] = 0x11
	}
	m := loadedMaterial(t, engine, vram.TextureFormatRGB5, 8, 8, data)

	stored := peek(t, device, vram.VRAMA, 128)
	for i := 0; i < len(stored); i += 2 {
		require.Equal(t, byte(0x11), stored[i])
		require.Equal(t, byte(0x91), stored[i+1])
	}
	// The caller's buffer is untouched
	require.Equal(t, byte(0x11), data[1])

	descriptor, ok := m.Descriptor()
	require.True(t, ok)
	require.Equal(t, uint32(vram.TextureFormatA1RGB5), descriptor>>26&7)
}

func TestLoadTexture_InvalidInput(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	m, err := engine.CreateMaterial()
	require.NoError(t, err)

	require.ErrorIs(t, m.LoadTexture(vram.TextureFormatPAL256, 12, 8, 0, make([]byte, 96)), memutils.ErrInvalidArgument)
	require.ErrorIs(t, m.LoadTexture(vram.TextureFormatPAL256, 8, 2048, 0, make([]byte, 8*2048)), memutils.ErrInvalidArgument)
	require.ErrorIs(t, m.LoadTexture(vram.TextureFormatPAL256, 8, 8, 0, make([]byte, 63)), memutils.ErrInvalidArgument)
	require.ErrorIs(t, m.LoadTexture(vram.TextureFormatTEX4X4, 8, 8, 0, make([]byte, 64)), memutils.ErrInvalidArgument)

	_, ok := m.Descriptor()
	require.False(t, ok)
	require.Equal(t, 512*1024, engine.FreeTextureMem())
}

func TestLoadTexture_OutOfSpaceCarriesPoolStats(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{TextureBanks: vram.BankFlagA})

	loadedMaterial(t, engine, vram.TextureFormatPAL256, 1024, 64, make([]byte, 65536))
	loadedMaterial(t, engine, vram.TextureFormatPAL256, 1024, 32, make([]byte, 32768))

	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	err = m.LoadTexture(vram.TextureFormatPAL256, 1024, 64, 0, make([]byte, 65536))
	require.ErrorIs(t, err, memutils.ErrOutOfSpace)

	var outOfSpace *memutils.OutOfSpaceError
	require.True(t, errors.As(err, &outOfSpace))
	require.Equal(t, "Textures", outOfSpace.Pool)
	require.Equal(t, 65536, outOfSpace.Requested)
	require.Equal(t, 32768, outOfSpace.Stats.Free)
	require.Equal(t, 98304, outOfSpace.Stats.Used)
	require.Equal(t, 384*1024, outOfSpace.Stats.Locked)

	_, ok := m.Descriptor()
	require.False(t, ok)
}

func TestLoadTexture_ReplacesPreviousTexture(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	m := loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 16, pattern(256, 1))
	require.NoError(t, m.LoadTexture(vram.TextureFormatPAL256, 32, 32, 0, pattern(1024, 2)))

	require.Equal(t, 1024, engine.TextureStats().Used)
	address, ok := m.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMA), address)
}

func TestCreateMaterial_Limit(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{MaxMaterials: 2})

	first, err := engine.CreateMaterial()
	require.NoError(t, err)
	second, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.Equal(t, 1, second.Index())

	_, err = engine.CreateMaterial()
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	require.NoError(t, engine.DeleteMaterial(first))
	third, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.Equal(t, 0, third.Index())

	require.ErrorIs(t, engine.DeleteMaterial(first), memutils.ErrInvalidHandle)
	require.ErrorIs(t, first.LoadTexture(vram.TextureFormatPAL256, 8, 8, 0, make([]byte, 64)), memutils.ErrInvalidHandle)
}

func TestMaterial_CloneSharesTexture(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	palette, err := engine.LoadPalette(vram.TextureFormatPAL256, make([]uint16, 256))
	require.NoError(t, err)

	original := loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 16, pattern(256, 1))
	require.NoError(t, original.SetPalette(palette))

	clone, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, clone.CloneFrom(original))
	require.Equal(t, palette, clone.Palette())

	originalDescriptor, _ := original.Descriptor()
	cloneDescriptor, ok := clone.Descriptor()
	require.True(t, ok)
	require.Equal(t, originalDescriptor, cloneDescriptor)
	require.Equal(t, 256, engine.TextureStats().Used)

	require.NoError(t, engine.DeleteMaterial(original))
	require.Equal(t, 256, engine.TextureStats().Used)
	_, ok = clone.Descriptor()
	require.True(t, ok)

	require.NoError(t, clone.ReleaseTexture())
	require.Equal(t, 0, engine.TextureStats().Used)
	_, ok = clone.Descriptor()
	require.False(t, ok)
}

func TestMaterial_CloneFromEmptyMaterialFails(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	empty, err := engine.CreateMaterial()
	require.NoError(t, err)
	m, err := engine.CreateMaterial()
	require.NoError(t, err)

	require.ErrorIs(t, m.CloneFrom(empty), memutils.ErrInvalidHandle)
}

func TestTex4x4_BlocksMirrorEachOther(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{})

	texels := pattern(64, 1)
	indices := pattern(32, 2)
	first, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, first.LoadTex4x4(16, 16, 0, texels, indices))

	address, ok := first.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMA), address)
	require.Equal(t, texels, peek(t, device, vram.VRAMA, 64))
	require.Equal(t, indices, peek(t, device, vram.VRAMB, 32))

	second, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, second.LoadTex4x4(16, 16, 0, pattern(64, 3), pattern(32, 4)))

	address, ok = second.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMA+64), address)
	require.Equal(t, pattern(32, 4), peek(t, device, vram.VRAMB+32, 32))

	descriptor, ok := second.Descriptor()
	require.True(t, ok)
	require.Equal(t, uint32(vram.TextureFormatTEX4X4), descriptor>>26&7)
	require.Equal(t, uint32(64>>3), descriptor&0xFFFF)
	require.Equal(t, 192, engine.TextureStats().Used)

	require.NoError(t, engine.DeleteMaterial(first))
	require.Equal(t, 96, engine.TextureStats().Used)
	require.NoError(t, engine.Validate())
}

func TestTex4x4_DeleteFreesBothBlocks(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{})

	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, m.LoadTex4x4(16, 16, 0, pattern(64, 1), pattern(32, 2)))
	require.Equal(t, 96, engine.TextureStats().Used)

	require.NoError(t, engine.DeleteMaterial(m))
	require.Equal(t, 0, engine.TextureStats().Used)
	require.NoError(t, engine.Validate())

	// Both blocks are handed out again
	again, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, again.LoadTex4x4(16, 16, 0, pattern(64, 3), pattern(32, 4)))
	address, ok := again.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMA), address)
}

func TestTex4x4_FallsBackToSlot2(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{TextureBanks: vram.BankFlagB | vram.BankFlagC | vram.BankFlagD})

	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, m.LoadTex4x4(16, 16, 0, pattern(64, 1), pattern(32, 2)))

	address, ok := m.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMC), address)
	require.Equal(t, pattern(32, 2), peek(t, device, vram.VRAMB+64*1024, 32))
}

func TestTex4x4_NoRoomWithoutBankB(t *testing.T) {
	engine, _ := newEngine(t, vram.CreateOptions{TextureBanks: vram.BankFlagA | vram.BankFlagC})

	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	err = m.LoadTex4x4(16, 16, 0, pattern(64, 1), pattern(32, 2))
	require.ErrorIs(t, err, memutils.ErrOutOfSpace)
	require.Equal(t, 0, engine.TextureStats().Used)
}

func TestDefragmentTextures_PreservesContentAndDescriptors(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{})

	first := loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 16, pattern(256, 1))
	loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 16, pattern(256, 2))
	third := loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 16, pattern(256, 3))
	require.NoError(t, engine.DeleteMaterial(first))

	stats, err := engine.DefragmentTextures()
	require.NoError(t, err)
	require.Equal(t, 512, stats.BytesMoved)
	require.Equal(t, 2, stats.AllocationsMoved)

	address, ok := third.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMA+256), address)
	descriptor, ok := third.Descriptor()
	require.True(t, ok)
	require.Equal(t, uint32(256>>3), descriptor&0xFFFF)
	require.Equal(t, pattern(256, 3), peek(t, device, vram.VRAMA+256, 256))

	for bank := vram.BankA; bank <= vram.BankD; bank++ {
		require.Equal(t, vram.BankModeTexture, device.Mode(bank))
	}
	require.NoError(t, engine.Validate())
}

func TestDefragmentTextures_CompressedTexturesStayPut(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{})

	plain := loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 16, pattern(256, 1))
	compressed, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, compressed.LoadTex4x4(16, 16, 0, pattern(64, 2), pattern(32, 3)))
	require.NoError(t, engine.DeleteMaterial(plain))

	stats, err := engine.DefragmentTextures()
	require.NoError(t, err)
	require.Equal(t, 0, stats.AllocationsMoved)

	address, ok := compressed.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMA+256), address)
	require.Equal(t, pattern(32, 3), peek(t, device, vram.VRAMB+128, 32))
}

func TestDefragmentTextures_ScratchFailureMovesNothing(t *testing.T) {
	engine, device := newEngine(t, vram.CreateOptions{
		Scratch: func(size int) ([]byte, error) {
			return nil, errors.New("no scratch memory")
		},
	})

	first := loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 16, pattern(256, 1))
	second := loadedMaterial(t, engine, vram.TextureFormatPAL256, 16, 16, pattern(256, 2))
	require.NoError(t, engine.DeleteMaterial(first))

	_, err := engine.DefragmentTextures()
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	address, ok := second.TextureAddress()
	require.True(t, ok)
	require.Equal(t, vram.TextureAddress(vram.VRAMA+256), address)
	require.Equal(t, pattern(256, 2), peek(t, device, vram.VRAMA+256, 256))
	require.Equal(t, vram.BankModeTexture, device.Mode(vram.BankA))
	require.NoError(t, engine.Validate())
}
