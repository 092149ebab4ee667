package vram

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/nitroengine/vramkit/internal/utils"
	"github.com/nitroengine/vramkit/memutils"
	"github.com/nitroengine/vramkit/memutils/chunk"
	"github.com/nitroengine/vramkit/memutils/defrag"
	"golang.org/x/exp/slog"
)

// Pool identities. Addresses are typed by the pool that handed them out, so an address from one
// pool cannot be given to another.
type (
	TexturePool    struct{}
	PalettePool    struct{}
	MainSpritePool struct{}
	SubSpritePool  struct{}
	BillboardPool  struct{}
)

type (
	TextureAddress    = chunk.Address[TexturePool]
	PaletteAddress    = chunk.Address[PalettePool]
	MainSpriteAddress = chunk.Address[MainSpritePool]
	SubSpriteAddress  = chunk.Address[SubSpritePool]
	BillboardAddress  = chunk.Address[BillboardPool]
)

// Engine owns every managed VRAM pool of one device: the texture pool, the texture palette pool, a
// sprite pool per screen and the optional billboard pool, along with the RAM-side buffers sprite
// graphics and palettes are loaded from.
type Engine struct {
	mutex  utils.OptionalMutex
	logger *slog.Logger
	device Device

	scratch       defrag.ScratchAllocator
	bankModes     [bankSlots]BankMode
	textureBanks  BankFlags
	billboardBank Bank

	textures        *chunk.List[TexturePool]
	texturePalettes *chunk.List[PalettePool]
	materials       []*Material
	palettes        []*Palette

	gfxRAM []*gfxBuffer
	palRAM [][]byte

	mainSprites *SpritePool[MainSpritePool]
	subSprites  *SpritePool[SubSpritePool]
	billboards  *SpritePool[BillboardPool]

	destroyed bool
}

func (e *Engine) checkAlive() error {
	if e.destroyed {
		return errors.Wrap(memutils.ErrWrongState, "engine has been destroyed")
	}
	return nil
}

// MainSprites returns the sprite pool of the main screen
func (e *Engine) MainSprites() *SpritePool[MainSpritePool] {
	return e.mainSprites
}

// SubSprites returns the sprite pool of the sub screen
func (e *Engine) SubSprites() *SpritePool[SubSpritePool] {
	return e.subSprites
}

// Billboards returns the 3D billboard sprite pool, or nil when the engine was created without a
// billboard bank
func (e *Engine) Billboards() *SpritePool[BillboardPool] {
	return e.billboards
}

// BankMode returns the mode the engine keeps bank in while no copy is in progress
func (e *Engine) BankMode(bank Bank) BankMode {
	if !bank.valid() {
		return BankModeLCD
	}
	return e.bankModes[bank]
}

// TextureStats returns the accounting of the texture pool. Banks fenced off from the pool count as
// locked.
func (e *Engine) TextureStats() memutils.Stats {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.textures.Stats()
}

// PaletteStats returns the accounting of the texture palette pool
func (e *Engine) PaletteStats() memutils.Stats {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.texturePalettes.Stats()
}

// CalculateStatistics adds the detailed statistics of every pool to stats
func (e *Engine) CalculateStatistics(stats *memutils.DetailedStatistics) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	stats.Clear()
	if e.destroyed {
		return
	}

	e.textures.AddDetailedStatistics(stats)
	e.texturePalettes.AddDetailedStatistics(stats)
	e.mainSprites.list.AddDetailedStatistics(stats)
	e.subSprites.list.AddDetailedStatistics(stats)
	if e.billboards != nil {
		e.billboards.list.AddDetailedStatistics(stats)
	}
}

func describeOwner(json *jwriter.ObjectState, userData any) {
	switch owner := userData.(type) {
	case *texture:
		json.Name("Type").String("Texture")
		json.Name("Format").String(owner.format.String())
		json.Name("Width").Int(owner.width)
		json.Name("Height").Int(owner.height)
		json.Name("References").Int(owner.refs)
	case *Palette:
		json.Name("Type").String("Palette")
		json.Name("Index").Int(owner.index)
		json.Name("Colors").Int(owner.size / 2)
	case interface{ describe(json *jwriter.ObjectState) }:
		owner.describe(json)
	}
}

// BuildStatsString renders the accounting of every pool as JSON. With detailed set, every chunk of
// every pool is listed along with its owner.
func (e *Engine) BuildStatsString(detailed bool) string {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	writer := jwriter.NewWriter()
	objState := writer.Object()
	{
		var total memutils.Stats
		if !e.destroyed {
			for _, stats := range []memutils.Stats{
				e.textures.Stats(),
				e.texturePalettes.Stats(),
				e.mainSprites.list.Stats(),
				e.subSprites.list.Stats(),
			} {
				total.AddStats(&stats)
			}
			if e.billboards != nil {
				stats := e.billboards.list.Stats()
				total.AddStats(&stats)
			}
		}

		totalState := objState.Name("Total").Object()
		totalState.Name("FreeBytes").Int(total.Free)
		totalState.Name("UsedBytes").Int(total.Used)
		totalState.Name("LockedBytes").Int(total.Locked)
		totalState.Name("FreePercent").Int(total.FreePercent)
		totalState.End()

		if !e.destroyed {
			poolsState := objState.Name("Pools").Object()
			writePool(&poolsState, "Textures", e.textures, detailed)
			writePool(&poolsState, "TexturePalettes", e.texturePalettes, detailed)
			writePool(&poolsState, e.mainSprites.name, e.mainSprites.list, detailed)
			writePool(&poolsState, e.subSprites.name, e.subSprites.list, detailed)
			if e.billboards != nil {
				writePool(&poolsState, e.billboards.name, e.billboards.list, detailed)
			}
			poolsState.End()

			banksState := objState.Name("Banks").Object()
			for bank := BankA; bank <= BankI; bank++ {
				banksState.Name(bank.String()).String(e.bankModes[bank].String())
			}
			banksState.End()
		}
	}
	objState.End()

	return string(writer.Bytes())
}

func writePool[P any](json *jwriter.ObjectState, name string, list *chunk.List[P], detailed bool) {
	poolState := json.Name(name).Object()
	defer poolState.End()

	if detailed {
		list.PrintDetailedMap(&poolState, describeOwner)
		return
	}
	list.BlockJsonData(&poolState)
}

func logUnreleased[P any](pool string) func(log *slog.Logger, address chunk.Address[P], size int, state chunk.State, userData any) {
	return func(log *slog.Logger, address chunk.Address[P], size int, state chunk.State, userData any) {
		if state == chunk.StateLocked && userData == nil {
			// Fenced-off banks
			return
		}

		log.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] "+pool,
			slog.String("Address", address.String()),
			slog.Int("Size", size),
			slog.String("State", state.String()),
		)
	}
}

// Destroy tears down every pool. Graphics that are still allocated are reported as leaks in the
// log; the device memory itself is left as it is.
func (e *Engine) Destroy() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.logger.Debug("Engine::Destroy")
	if err := e.checkAlive(); err != nil {
		return err
	}

	e.textures.DebugLogAllAllocations(e.logger, logUnreleased[TexturePool]("Textures"))
	e.texturePalettes.DebugLogAllAllocations(e.logger, logUnreleased[PalettePool]("TexturePalettes"))
	e.mainSprites.list.DebugLogAllAllocations(e.logger, logUnreleased[MainSpritePool](e.mainSprites.name))
	e.subSprites.list.DebugLogAllAllocations(e.logger, logUnreleased[SubSpritePool](e.subSprites.name))
	if e.billboards != nil {
		e.billboards.list.DebugLogAllAllocations(e.logger, logUnreleased[BillboardPool](e.billboards.name))
	}

	e.destroyPools()
	e.destroyed = true
	return nil
}

func (e *Engine) destroyPools() {
	if e.textures != nil {
		_ = e.textures.Destroy()
	}
	if e.texturePalettes != nil {
		_ = e.texturePalettes.Destroy()
	}
	if e.mainSprites != nil {
		_ = e.mainSprites.list.Destroy()
	}
	if e.subSprites != nil {
		_ = e.subSprites.list.Destroy()
	}
	if e.billboards != nil {
		_ = e.billboards.list.Destroy()
	}
}

// Validate checks the consistency of every pool
func (e *Engine) Validate() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if err := e.checkAlive(); err != nil {
		return err
	}

	if err := e.textures.Validate(); err != nil {
		return errors.Wrap(err, "textures")
	}
	if err := e.texturePalettes.Validate(); err != nil {
		return errors.Wrap(err, "texture palettes")
	}
	if err := e.validateTextures(); err != nil {
		return errors.Wrap(err, "textures")
	}
	if err := e.validatePalettes(); err != nil {
		return errors.Wrap(err, "texture palettes")
	}
	if err := e.mainSprites.validate(); err != nil {
		return err
	}
	if err := e.subSprites.validate(); err != nil {
		return err
	}
	if e.billboards != nil {
		return e.billboards.validate()
	}
	return nil
}
