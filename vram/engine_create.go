package vram

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"github.com/nitroengine/vramkit/memutils/chunk"
	"github.com/nitroengine/vramkit/memutils/defrag"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific engine behaviors to activate or deactivate
type CreateFlags int32

const (
	// EngineCreateExternallySynchronized ensures that the engine and every pool it owns will not be
	// synchronized internally. The consumer must guarantee they are used from only one goroutine at a
	// time.
	EngineCreateExternallySynchronized CreateFlags = 1 << iota
)

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	if f&EngineCreateExternallySynchronized != 0 {
		names = append(names, "EngineCreateExternallySynchronized")
		f &^= EngineCreateExternallySynchronized
	}
	if f != 0 {
		names = append(names, fmt.Sprintf("CreateFlags(%#x)", int32(f)))
	}
	return strings.Join(names, "|")
}

const (
	defaultMaxMaterials   = 128
	defaultMaxPalettes    = 64
	defaultGfxRAMSlots    = 256
	defaultPalRAMSlots    = 64
	defaultMainSpriteVRAM = 128 * 1024
	subSpriteVRAM         = 64 * 1024

	// MaxGfxSlots and MaxSprites bound every sprite pool
	MaxGfxSlots = 128
	MaxSprites  = 128

	mainExtPaletteSlots      = 16
	subExtPaletteSlots       = 16
	billboardPaletteSlots    = 32
	spriteGranularity   uint = 32
)

// CreateOptions contains optional settings when creating an engine. The zero value selects every
// default.
type CreateOptions struct {
	// Flags indicates specific engine behaviors to activate or deactivate
	Flags CreateFlags

	// TextureBanks are the banks the texture pool may use. Zero selects every texture bank except
	// BillboardBank. Banks left out are locked in the texture pool.
	TextureBanks BankFlags
	// BillboardBank is the texture bank that holds 3D billboard sprite graphics. It may not also be
	// one of TextureBanks. Defaults to BankNone, which disables billboards.
	BillboardBank Bank

	// MaxMaterials caps the number of live materials. Defaults to 128.
	MaxMaterials int
	// MaxPalettes caps the number of live texture palettes. Defaults to 64.
	MaxPalettes int

	// MainSpriteVRAM is the size of the main screen sprite window, 64 or 128 KiB. Defaults to 128 KiB.
	MainSpriteVRAM int
	// SubSpriteVRAM is the size of the sub screen sprite window, which is always 64 KiB
	SubSpriteVRAM int

	// GfxRAMSlots is the number of RAM-side sprite graphics buffers. Defaults to 256.
	GfxRAMSlots int
	// PalRAMSlots is the number of RAM-side sprite palette buffers. Defaults to 64.
	PalRAMSlots int

	// Scratch supplies the temporary buffer used during defragmentation. Defaults to make.
	Scratch defrag.ScratchAllocator
}

type bankClaims map[Bank]string

func (c bankClaims) claim(bank Bank, owner string) error {
	if !bank.valid() {
		return errors.Wrapf(memutils.ErrInvalidArgument, "%s cannot use %s", owner, bank)
	}
	if previous, claimed := c[bank]; claimed {
		return errors.Wrapf(memutils.ErrInvalidArgument, "%s is claimed by both %s and %s", bank, previous, owner)
	}
	c[bank] = owner
	return nil
}

// New creates an engine that owns every managed VRAM pool of device. All managed memory is cleared
// and every managed bank is handed to the GPU before New returns.
func New(logger *slog.Logger, device Device, options CreateOptions) (*Engine, error) {
	if logger == nil {
		return nil, errors.Wrap(memutils.ErrInvalidArgument, "logger may not be nil")
	}
	if device == nil {
		return nil, errors.Wrap(memutils.ErrInvalidArgument, "device may not be nil")
	}

	err := applyDefaults(&options)
	if err != nil {
		return nil, err
	}

	textureBanks := options.TextureBanks
	if textureBanks == 0 {
		textureBanks = TextureBankFlags &^ options.BillboardBank.Flag()
	}
	if textureBanks&^TextureBankFlags != 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidArgument, "texture banks %s include banks outside A-D", textureBanks)
	}

	claims := bankClaims{}
	for bank := BankA; bank <= BankD; bank++ {
		if textureBanks.Has(bank) {
			if err := claims.claim(bank, "textures"); err != nil {
				return nil, err
			}
		}
	}
	if options.BillboardBank != BankNone {
		if !TextureBankFlags.Has(options.BillboardBank) {
			return nil, errors.Wrapf(memutils.ErrInvalidArgument, "billboard bank must be one of A-D, got %s", options.BillboardBank)
		}
		if err := claims.claim(options.BillboardBank, "billboards"); err != nil {
			return nil, err
		}
		if err := claims.claim(BankG, "billboard palettes"); err != nil {
			return nil, err
		}
	}
	if err := claims.claim(BankE, "texture palettes"); err != nil {
		return nil, err
	}
	if err := claims.claim(BankF, "main sprite palettes"); err != nil {
		return nil, err
	}
	if err := claims.claim(BankI, "sub sprite palettes"); err != nil {
		return nil, err
	}

	e := &Engine{
		logger:        logger,
		device:        device,
		scratch:       options.Scratch,
		textureBanks:  textureBanks,
		billboardBank: options.BillboardBank,
		materials:     make([]*Material, options.MaxMaterials),
		palettes:      make([]*Palette, options.MaxPalettes),
		gfxRAM:        make([]*gfxBuffer, options.GfxRAMSlots),
		palRAM:        make([][]byte, options.PalRAMSlots),
	}
	e.mutex.UseMutex = options.Flags&EngineCreateExternallySynchronized == 0

	err = e.createPools(options)
	if err != nil {
		e.destroyPools()
		return nil, err
	}

	err = e.clearManagedMemory(claims)
	if err != nil {
		e.destroyPools()
		return nil, err
	}

	logger.Debug("Engine::New",
		slog.String("TextureBanks", textureBanks.String()),
		slog.String("BillboardBank", options.BillboardBank.String()),
		slog.String("Flags", options.Flags.String()),
	)
	return e, nil
}

func applyDefaults(options *CreateOptions) error {
	if options.MaxMaterials == 0 {
		options.MaxMaterials = defaultMaxMaterials
	}
	if options.MaxPalettes == 0 {
		options.MaxPalettes = defaultMaxPalettes
	}
	if options.GfxRAMSlots == 0 {
		options.GfxRAMSlots = defaultGfxRAMSlots
	}
	if options.PalRAMSlots == 0 {
		options.PalRAMSlots = defaultPalRAMSlots
	}
	if options.MainSpriteVRAM == 0 {
		options.MainSpriteVRAM = defaultMainSpriteVRAM
	}
	if options.SubSpriteVRAM == 0 {
		options.SubSpriteVRAM = subSpriteVRAM
	}
	if options.Scratch == nil {
		options.Scratch = defrag.DefaultScratch
	}

	if options.MaxMaterials < 0 || options.MaxPalettes < 0 || options.GfxRAMSlots < 0 || options.PalRAMSlots < 0 {
		return errors.Wrap(memutils.ErrInvalidArgument, "slot limits may not be negative")
	}
	if options.MainSpriteVRAM != 64*1024 && options.MainSpriteVRAM != 128*1024 {
		return errors.Wrapf(memutils.ErrInvalidArgument, "main sprite VRAM must be 64 or 128 KiB, got %d bytes", options.MainSpriteVRAM)
	}
	if options.SubSpriteVRAM != subSpriteVRAM {
		return errors.Wrapf(memutils.ErrInvalidArgument, "sub sprite VRAM must be 64 KiB, got %d bytes", options.SubSpriteVRAM)
	}

	return nil
}

func (e *Engine) createPools(options CreateOptions) error {
	var err error
	e.textures, err = chunk.New[TexturePool](TextureAddress(VRAMA), TextureAddress(VRAME), chunk.Options{})
	if err != nil {
		return err
	}

	// Banks that do not belong to the texture pool are fenced off for its whole lifetime
	for bank := BankA; bank <= BankD; bank++ {
		if e.textureBanks.Has(bank) {
			continue
		}

		address := TextureAddress(bank.Address())
		err = e.textures.AllocAt(address, bank.Size())
		if err != nil {
			return err
		}
		err = e.textures.Lock(address)
		if err != nil {
			return err
		}
	}

	e.texturePalettes, err = chunk.New[PalettePool](PaletteAddress(VRAME), PaletteAddress(VRAMF), chunk.Options{})
	if err != nil {
		return err
	}

	e.mainSprites, err = newSpritePool[MainSpritePool](e, spritePoolConfig{
		name:         "MainSprites",
		base:         MainSpriteBase,
		size:         options.MainSpriteVRAM,
		paletteBank:  BankF,
		paletteSlots: mainExtPaletteSlots,
	})
	if err != nil {
		return err
	}

	e.subSprites, err = newSpritePool[SubSpritePool](e, spritePoolConfig{
		name:         "SubSprites",
		base:         SubSpriteBase,
		size:         options.SubSpriteVRAM,
		paletteBank:  BankI,
		paletteSlots: subExtPaletteSlots,
	})
	if err != nil {
		return err
	}

	if e.billboardBank != BankNone {
		e.billboards, err = newSpritePool[BillboardPool](e, spritePoolConfig{
			name:         "Billboards",
			base:         e.billboardBank.Address(),
			size:         e.billboardBank.Size(),
			bank:         e.billboardBank,
			paletteBank:  BankG,
			paletteSlots: billboardPaletteSlots,
			billboard:    true,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// clearManagedMemory zeroes every managed bank and sprite window, then hands each bank to the GPU
func (e *Engine) clearManagedMemory(claims bankClaims) error {
	for bank := BankA; bank <= BankI; bank++ {
		if _, claimed := claims[bank]; !claimed {
			continue
		}

		switch {
		case bank <= BankD:
			e.bankModes[bank] = BankModeTexture
		case bank == BankE || bank == BankG:
			e.bankModes[bank] = BankModeTexturePalette
		case bank == BankF:
			e.bankModes[bank] = BankModeMainSpriteExtPalette
		case bank == BankI:
			e.bankModes[bank] = BankModeSubSpriteExtPalette
		}

		err := e.fillVRAM(bank.Address(), bank.Size(), 0)
		if err != nil {
			return errors.Wrapf(err, "clearing %s", bank)
		}
	}

	err := e.device.Fill(MainSpriteBase, e.mainSprites.list.Size(), 0)
	if err != nil {
		return errors.Wrap(err, "clearing main sprite window")
	}

	err = e.device.Fill(SubSpriteBase, e.subSprites.list.Size(), 0)
	if err != nil {
		return errors.Wrap(err, "clearing sub sprite window")
	}

	return nil
}
