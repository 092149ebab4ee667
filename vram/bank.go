package vram

import (
	"fmt"
	"strings"
)

// Bank identifies one of the nine switchable VRAM banks
type Bank int

const (
	// BankNone marks an optional bank setting as unused
	BankNone Bank = iota
	BankA
	BankB
	BankC
	BankD
	BankE
	BankF
	BankG
	BankH
	BankI

	// BankCount is the number of switchable banks
	BankCount = int(BankI - BankA + 1)

	bankSlots = int(BankI) + 1
)

// LCD window addresses of every bank. The texture pool spans [VRAMA, VRAME) and the texture
// palette pool spans [VRAME, VRAMF).
const (
	VRAMA uint32 = 0x06800000
	VRAMB uint32 = 0x06820000
	VRAMC uint32 = 0x06840000
	VRAMD uint32 = 0x06860000
	VRAME uint32 = 0x06880000
	VRAMF uint32 = 0x06890000
	VRAMG uint32 = 0x06894000
	VRAMH uint32 = 0x06898000
	VRAMI uint32 = 0x068A0000

	// LCDEnd is the first address past bank I
	LCDEnd uint32 = 0x068A4000

	// MainSpriteBase and SubSpriteBase are the CPU-mapped sprite graphics windows of each screen
	MainSpriteBase uint32 = 0x06400000
	SubSpriteBase  uint32 = 0x06600000
)

type bankInfo struct {
	name    string
	address uint32
	size    int
}

var banks = [bankSlots]bankInfo{
	BankA: {"A", VRAMA, 128 * 1024},
	BankB: {"B", VRAMB, 128 * 1024},
	BankC: {"C", VRAMC, 128 * 1024},
	BankD: {"D", VRAMD, 128 * 1024},
	BankE: {"E", VRAME, 64 * 1024},
	BankF: {"F", VRAMF, 16 * 1024},
	BankG: {"G", VRAMG, 16 * 1024},
	BankH: {"H", VRAMH, 32 * 1024},
	BankI: {"I", VRAMI, 16 * 1024},
}

func (b Bank) valid() bool {
	return b >= BankA && b <= BankI
}

// Address returns the start of the bank's LCD window
func (b Bank) Address() uint32 {
	if !b.valid() {
		return 0
	}
	return banks[b].address
}

// Size returns the number of bytes in the bank
func (b Bank) Size() int {
	if !b.valid() {
		return 0
	}
	return banks[b].size
}

// End returns the first address past the bank's LCD window
func (b Bank) End() uint32 {
	return b.Address() + uint32(b.Size())
}

func (b Bank) String() string {
	if b == BankNone {
		return "BankNone"
	}
	if !b.valid() {
		return fmt.Sprintf("Bank(%d)", int(b))
	}
	return "Bank" + banks[b].name
}

// BankContaining returns the bank whose LCD window holds address, or BankNone
func BankContaining(address uint32) Bank {
	for b := BankA; b <= BankI; b++ {
		if address >= banks[b].address && address < banks[b].address+uint32(banks[b].size) {
			return b
		}
	}
	return BankNone
}

// BanksInRange returns every bank whose LCD window overlaps [start, end), in bank order
func BanksInRange(start, end uint32) []Bank {
	var result []Bank
	for b := BankA; b <= BankI; b++ {
		if start < b.End() && end > b.Address() {
			result = append(result, b)
		}
	}
	return result
}

// BankFlags is a set of banks
type BankFlags uint32

const (
	BankFlagA BankFlags = 1 << iota
	BankFlagB
	BankFlagC
	BankFlagD
	BankFlagE
	BankFlagF
	BankFlagG
	BankFlagH
	BankFlagI

	// TextureBankFlags are the banks that can hold textures
	TextureBankFlags = BankFlagA | BankFlagB | BankFlagC | BankFlagD
)

// Flag returns the set containing only b
func (b Bank) Flag() BankFlags {
	if !b.valid() {
		return 0
	}
	return 1 << BankFlags(b-BankA)
}

// Has reports whether b is in the set
func (f BankFlags) Has(b Bank) bool {
	return b.valid() && f&b.Flag() != 0
}

func (f BankFlags) String() string {
	var names []string
	for b := BankA; b <= BankI; b++ {
		if f.Has(b) {
			names = append(names, b.String())
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// BankMode is what a bank is mapped to. In BankModeLCD the CPU can read and write the bank through
// its LCD window; in every other mode the bank belongs to the GPU.
type BankMode int

const (
	BankModeLCD BankMode = iota
	BankModeTexture
	BankModeTexturePalette
	BankModeMainSpriteExtPalette
	BankModeSubSpriteExtPalette
)

var bankModeNames = map[BankMode]string{
	BankModeLCD:                  "LCD",
	BankModeTexture:              "Texture",
	BankModeTexturePalette:       "TexturePalette",
	BankModeMainSpriteExtPalette: "MainSpriteExtPalette",
	BankModeSubSpriteExtPalette:  "SubSpriteExtPalette",
}

func (m BankMode) String() string {
	name, ok := bankModeNames[m]
	if !ok {
		return fmt.Sprintf("BankMode(%d)", int(m))
	}
	return name
}
