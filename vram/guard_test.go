package vram_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/vram"
	mock_vram "github.com/nitroengine/vramkit/vram/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newMockEngine expects the clearing pass of New for the default bank layout: a mode switch in and
// out of LCD and a fill for each of banks A-F and I, then a fill of both sprite windows
func newMockEngine(t *testing.T) (*vram.Engine, *mock_vram.MockDevice) {
	ctrl := gomock.NewController(t)
	device := mock_vram.NewMockDevice(ctrl)

	claimed := map[vram.Bank]vram.BankMode{
		vram.BankA: vram.BankModeTexture,
		vram.BankB: vram.BankModeTexture,
		vram.BankC: vram.BankModeTexture,
		vram.BankD: vram.BankModeTexture,
		vram.BankE: vram.BankModeTexturePalette,
		vram.BankF: vram.BankModeMainSpriteExtPalette,
		vram.BankI: vram.BankModeSubSpriteExtPalette,
	}
	for bank, mode := range claimed {
		gomock.InOrder(
			device.EXPECT().SetBankMode(bank, vram.BankModeLCD),
			device.EXPECT().Fill(bank.Address(), bank.Size(), byte(0)).Return(nil),
			device.EXPECT().SetBankMode(bank, mode),
		)
	}
	device.EXPECT().Fill(vram.MainSpriteBase, 128*1024, byte(0)).Return(nil)
	device.EXPECT().Fill(vram.SubSpriteBase, 64*1024, byte(0)).Return(nil)

	engine, err := vram.New(discardLogger(), device, vram.CreateOptions{})
	require.NoError(t, err)
	return engine, device
}

func TestGuard_CopyRunsInLCDMode(t *testing.T) {
	engine, device := newMockEngine(t)

	data := pattern(256, 3)
	gomock.InOrder(
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeLCD),
		device.EXPECT().Copy(vram.VRAMA, data).Return(nil),
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeTexture),
	)

	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, m.LoadTexture(vram.TextureFormatPAL256, 16, 16, 0, data))
}

func TestGuard_RestoresModeWhenCopyFails(t *testing.T) {
	engine, device := newMockEngine(t)

	copyErr := errors.New("bus error")
	gomock.InOrder(
		device.EXPECT().SetBankMode(vram.BankE, vram.BankModeLCD),
		device.EXPECT().Copy(vram.VRAME, gomock.Any()).Return(copyErr),
		device.EXPECT().SetBankMode(vram.BankE, vram.BankModeTexturePalette),
	)

	_, err := engine.LoadPalette(vram.TextureFormatPAL16, make([]uint16, 16))
	require.ErrorIs(t, err, copyErr)

	// The failed palette's memory went back to the pool
	require.Equal(t, 64*1024, engine.FreePaletteMem())
	require.NoError(t, engine.Validate())
}

func TestLoadTexture_FailedCopyReleasesTheBlock(t *testing.T) {
	engine, device := newMockEngine(t)

	copyErr := errors.New("bus error")
	gomock.InOrder(
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeLCD),
		device.EXPECT().Copy(vram.VRAMA, gomock.Any()).Return(copyErr),
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeTexture),
	)

	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.ErrorIs(t, m.LoadTexture(vram.TextureFormatPAL256, 16, 16, 0, pattern(256, 1)), copyErr)

	_, ok := m.TextureAddress()
	require.False(t, ok)
	require.Equal(t, 0, engine.TextureStats().Used)
	require.NoError(t, engine.Validate())
}

func TestLoadTex4x4_FailedIndexCopyReleasesBothBlocks(t *testing.T) {
	engine, device := newMockEngine(t)

	copyErr := errors.New("bus error")
	gomock.InOrder(
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeLCD),
		device.EXPECT().Copy(vram.VRAMA, gomock.Any()).Return(nil),
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeTexture),
		device.EXPECT().SetBankMode(vram.BankB, vram.BankModeLCD),
		device.EXPECT().Copy(vram.VRAMB, gomock.Any()).Return(copyErr),
		device.EXPECT().SetBankMode(vram.BankB, vram.BankModeTexture),
	)

	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.ErrorIs(t, m.LoadTex4x4(16, 16, 0, pattern(64, 1), pattern(32, 2)), copyErr)

	_, ok := m.TextureAddress()
	require.False(t, ok)
	require.Equal(t, 0, engine.TextureStats().Used)
	require.NoError(t, engine.Validate())
}

func TestPlaceInVram_FailedCopyReleasesTheBlock(t *testing.T) {
	engine, device := newMockEngine(t)
	pool := engine.MainSprites()

	data := pattern(128, 9)
	copyErr := errors.New("bus error")
	gomock.InOrder(
		device.EXPECT().Copy(vram.MainSpriteBase, data).Return(copyErr),
		device.EXPECT().Copy(vram.MainSpriteBase, data).Return(nil),
	)

	require.NoError(t, engine.LoadGfx(0, data, 8, 16))
	require.ErrorIs(t, pool.PlaceInVram(0, 0, false), copyErr)

	info := pool.Info()
	require.Equal(t, 128*1024, info.Free)
	require.Equal(t, -1, info.Last)
	_, err := pool.GfxAddress(0)
	require.Error(t, err)
	require.NoError(t, engine.Validate())

	// The slot and its memory are usable again
	require.NoError(t, pool.PlaceInVram(0, 0, false))
	address, err := pool.GfxAddress(0)
	require.NoError(t, err)
	require.Equal(t, pool.Base(), address)
}

func TestGuard_SpriteWindowNeedsNoBankSwitch(t *testing.T) {
	engine, device := newMockEngine(t)

	data := pattern(128, 9)
	device.EXPECT().Copy(vram.MainSpriteBase, data).Return(nil)

	require.NoError(t, engine.LoadGfx(0, data, 8, 16))
	require.NoError(t, engine.MainSprites().PlaceInVram(0, 0, false))
}

func TestGuard_CopySpanningBanksSwitchesBoth(t *testing.T) {
	engine, device := newMockEngine(t)

	// Fill bank A up to its last 1024 bytes
	filler := make([]byte, 1024*127)
	gomock.InOrder(
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeLCD),
		device.EXPECT().Copy(vram.VRAMA, gomock.Any()).Return(nil),
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeTexture),
	)
	m, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, m.LoadTexture(vram.TextureFormatPAL256, 1024, 127, 0, filler))

	gomock.InOrder(
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeLCD),
		device.EXPECT().SetBankMode(vram.BankB, vram.BankModeLCD),
		device.EXPECT().Copy(vram.VRAMB-1024, gomock.Any()).Return(nil),
		device.EXPECT().SetBankMode(vram.BankA, vram.BankModeTexture),
		device.EXPECT().SetBankMode(vram.BankB, vram.BankModeTexture),
	)
	m2, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, m2.LoadTexture(vram.TextureFormatPAL256, 64, 32, 0, pattern(2048, 1)))
}

func TestGuard_DefragmentationHoldsEnabledTextureBanks(t *testing.T) {
	engine, device := newMockEngine(t)

	device.EXPECT().SetBankMode(vram.BankA, vram.BankModeLCD).Times(3)
	device.EXPECT().Copy(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	device.EXPECT().SetBankMode(vram.BankA, vram.BankModeTexture).Times(3)

	first, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, first.LoadTexture(vram.TextureFormatPAL256, 16, 16, 0, pattern(256, 1)))
	second, err := engine.CreateMaterial()
	require.NoError(t, err)
	require.NoError(t, second.LoadTexture(vram.TextureFormatPAL256, 16, 16, 0, pattern(256, 2)))
	require.NoError(t, engine.DeleteMaterial(first))

	gomock.InOrder(
		device.EXPECT().SetBankMode(vram.BankB, vram.BankModeLCD),
		device.EXPECT().SetBankMode(vram.BankC, vram.BankModeLCD),
		device.EXPECT().SetBankMode(vram.BankD, vram.BankModeLCD),
		device.EXPECT().Read(vram.VRAMA+256, gomock.Any()).Return(nil),
		device.EXPECT().Copy(vram.VRAMA, gomock.Any()).Return(nil),
		device.EXPECT().SetBankMode(vram.BankB, vram.BankModeTexture),
		device.EXPECT().SetBankMode(vram.BankC, vram.BankModeTexture),
		device.EXPECT().SetBankMode(vram.BankD, vram.BankModeTexture),
	)

	stats, err := engine.DefragmentTextures()
	require.NoError(t, err)
	require.Equal(t, 256, stats.BytesMoved)
	require.Equal(t, 1, stats.AllocationsMoved)
}
