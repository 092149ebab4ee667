package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/internal/hardware"
	"github.com/nitroengine/vramkit/vram"
	"golang.org/x/exp/slog"
)

// MapCmd builds a small scene on the simulated device and prints the resulting memory map
type MapCmd struct {
	Summary bool `help:"Print only the per-pool summaries."`
	Defrag  bool `help:"Defragment every pool before printing."`
}

func demoData(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed ^ byte(i)
	}
	return data
}

func demoColors(count int) []uint16 {
	colors := make([]uint16, count)
	for i := range colors {
		colors[i] = uint16(i) * 0x0421
	}
	return colors
}

func loadDemoTextures(engine *vram.Engine) error {
	palette, err := engine.LoadPalette(vram.TextureFormatPAL256, demoColors(256))
	if err != nil {
		return err
	}

	sizes := [][2]int{{64, 64}, {128, 32}, {32, 32}, {256, 128}}
	var materials []*vram.Material
	for i, size := range sizes {
		m, err := engine.CreateMaterial()
		if err != nil {
			return err
		}
		err = m.LoadTexture(vram.TextureFormatPAL256, size[0], size[1], vram.TextureWrapS|vram.TextureWrapT, demoData(size[0]*size[1], byte(i)))
		if err != nil {
			return err
		}
		err = m.SetPalette(palette)
		if err != nil {
			return err
		}
		materials = append(materials, m)
	}

	clone, err := engine.CreateMaterial()
	if err != nil {
		return err
	}
	err = clone.CloneFrom(materials[0])
	if err != nil {
		return err
	}

	compressed, err := engine.CreateMaterial()
	if err != nil {
		return err
	}
	err = compressed.LoadTex4x4(64, 64, 0, demoData(64*64/4, 0x40), demoData(64*64/8, 0x80))
	if err != nil {
		return err
	}

	// Leave a hole for the defragmenter
	return engine.DeleteMaterial(materials[1])
}

func loadDemoSprites[P any](engine *vram.Engine, pool *vram.SpritePool[P], firstRAM int) error {
	err := engine.LoadSpritePalette(firstRAM, demoColors(256))
	if err != nil {
		return err
	}
	err = pool.Palettes().Upload(firstRAM, 0)
	if err != nil {
		return err
	}

	sizes := [][2]int{{16, 16}, {32, 32}, {16, 32}, {64, 64}}
	for i, size := range sizes {
		ram := firstRAM + i
		err = engine.LoadGfx(ram, demoData(size[0]*size[1]*2, byte(ram)), size[0], size[1])
		if err != nil {
			return err
		}
		err = pool.PlaceInVram(ram, i, i%2 == 0)
		if err != nil {
			return err
		}
		err = pool.CreateSprite(i, i, 0)
		if err != nil {
			return err
		}
	}

	err = pool.DeleteSprite(1)
	if err != nil {
		return err
	}
	return pool.Free(1)
}

// Run executes the map command.
func (c *MapCmd) Run(logger *slog.Logger) error {
	device := hardware.New()
	engine, err := vram.New(logger, device, vram.CreateOptions{BillboardBank: vram.BankD})
	if err != nil {
		return err
	}
	defer func() {
		_ = engine.Destroy()
	}()

	err = loadDemoTextures(engine)
	if err != nil {
		return errors.Wrap(err, "loading textures")
	}
	err = loadDemoSprites(engine, engine.MainSprites(), 0)
	if err != nil {
		return errors.Wrap(err, "loading main screen sprites")
	}
	err = loadDemoSprites(engine, engine.SubSprites(), 8)
	if err != nil {
		return errors.Wrap(err, "loading sub screen sprites")
	}
	err = loadDemoSprites(engine, engine.Billboards(), 16)
	if err != nil {
		return errors.Wrap(err, "loading billboards")
	}

	if c.Defrag {
		textures, err := engine.DefragmentTextures()
		if err != nil {
			return err
		}
		palettes, err := engine.DefragmentPalettes()
		if err != nil {
			return err
		}
		sprites, err := engine.MainSprites().Defragment()
		if err != nil {
			return err
		}
		textures.Add(palettes)
		textures.Add(sprites)
		logger.Info("defragmented", slog.Int("BytesMoved", textures.BytesMoved), slog.Int("AllocationsMoved", textures.AllocationsMoved))
	}

	err = engine.Validate()
	if err != nil {
		return err
	}

	fmt.Println(engine.BuildStatsString(!c.Summary))

	// Everything the demo loaded is released so Destroy reports no leaks
	return releaseDemo(engine)
}

func releaseDemo(engine *vram.Engine) error {
	for _, release := range []func() error{
		func() error { return releaseSprites(engine.MainSprites()) },
		func() error { return releaseSprites(engine.SubSprites()) },
		func() error { return releaseSprites(engine.Billboards()) },
	} {
		if err := release(); err != nil {
			return err
		}
	}

	err := engine.DeleteAllMaterials()
	if err != nil {
		return err
	}
	return engine.DeleteAllPalettes()
}

func releaseSprites[P any](pool *vram.SpritePool[P]) error {
	for id := 0; id < vram.MaxSprites; id++ {
		if _, err := pool.SpriteDescriptor(id); err == nil {
			if err := pool.DeleteSprite(id); err != nil {
				return err
			}
		}
	}
	for slot := 0; slot < vram.MaxGfxSlots; slot++ {
		if _, err := pool.GfxAddress(slot); err == nil {
			if err := pool.Free(slot); err != nil {
				return err
			}
		}
	}
	return nil
}
