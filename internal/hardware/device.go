// Package hardware is a byte-backed model of the console's video memory. It enforces the bank
// discipline of the real hardware: the CPU may only touch a bank's LCD window while the bank is in
// LCD mode. The sprite windows are always CPU-mapped.
package hardware

import (
	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/vram"
	"golang.org/x/exp/slices"
)

const spriteWindowSize = 128 * 1024

// ErrBankNotMapped is returned for CPU access to a bank that belongs to the GPU
var ErrBankNotMapped = errors.New("bank is not mapped to the CPU")

// ErrUnmappedAddress is returned for access outside every modelled window
var ErrUnmappedAddress = errors.New("address is not mapped")

// ModeChange records one SetBankMode call
type ModeChange struct {
	Bank vram.Bank
	Mode vram.BankMode
}

// Device implements vram.Device over plain byte slices
type Device struct {
	modes   map[vram.Bank]vram.BankMode
	history []ModeChange

	lcd         []byte
	mainSprites []byte
	subSprites  []byte
}

var _ vram.Device = &Device{}

// New returns a device with every bank in LCD mode and all memory zeroed
func New() *Device {
	d := &Device{
		modes:       make(map[vram.Bank]vram.BankMode),
		lcd:         make([]byte, vram.LCDEnd-vram.VRAMA),
		mainSprites: make([]byte, spriteWindowSize),
		subSprites:  make([]byte, spriteWindowSize),
	}
	for bank := vram.BankA; bank <= vram.BankI; bank++ {
		d.modes[bank] = vram.BankModeLCD
	}
	return d
}

func (d *Device) SetBankMode(bank vram.Bank, mode vram.BankMode) {
	d.modes[bank] = mode
	d.history = append(d.history, ModeChange{Bank: bank, Mode: mode})
}

// Mode returns the current mode of bank
func (d *Device) Mode(bank vram.Bank) vram.BankMode {
	return d.modes[bank]
}

// ModeChanges returns every SetBankMode call made so far
func (d *Device) ModeChanges() []ModeChange {
	return slices.Clone(d.history)
}

// ResetModeChanges forgets the recorded SetBankMode calls
func (d *Device) ResetModeChanges() {
	d.history = d.history[:0]
}

// BanksInLCD returns the banks currently mapped to the CPU, in bank order
func (d *Device) BanksInLCD() []vram.Bank {
	var result []vram.Bank
	for bank, mode := range d.modes {
		if mode == vram.BankModeLCD {
			result = append(result, bank)
		}
	}
	slices.Sort(result)
	return result
}

// window resolves [address, address+size) to the backing bytes. With checkModes set, every bank the
// range touches must be in LCD mode.
func (d *Device) window(address uint32, size int, checkModes bool) ([]byte, error) {
	if size < 0 {
		return nil, errors.Newf("negative size %d", size)
	}
	end := address + uint32(size)

	switch {
	case address >= vram.VRAMA && end <= vram.LCDEnd:
		if checkModes {
			for _, bank := range vram.BanksInRange(address, end) {
				if d.modes[bank] != vram.BankModeLCD {
					return nil, errors.Wrapf(ErrBankNotMapped, "%s is in %s mode at 0x%08x", bank, d.modes[bank], address)
				}
			}
		}
		return d.lcd[address-vram.VRAMA : end-vram.VRAMA], nil
	case address >= vram.MainSpriteBase && end <= vram.MainSpriteBase+spriteWindowSize:
		return d.mainSprites[address-vram.MainSpriteBase : end-vram.MainSpriteBase], nil
	case address >= vram.SubSpriteBase && end <= vram.SubSpriteBase+spriteWindowSize:
		return d.subSprites[address-vram.SubSpriteBase : end-vram.SubSpriteBase], nil
	}

	return nil, errors.Wrapf(ErrUnmappedAddress, "[0x%08x, 0x%08x)", address, end)
}

func (d *Device) Copy(dst uint32, src []byte) error {
	window, err := d.window(dst, len(src), true)
	if err != nil {
		return err
	}

	copy(window, src)
	return nil
}

func (d *Device) Read(src uint32, dst []byte) error {
	window, err := d.window(src, len(dst), true)
	if err != nil {
		return err
	}

	copy(dst, window)
	return nil
}

func (d *Device) Fill(dst uint32, size int, value byte) error {
	window, err := d.window(dst, size, true)
	if err != nil {
		return err
	}

	for i := range window {
		window[i] = value
	}
	return nil
}

// Peek returns a copy of memory regardless of bank modes, the way the GPU sees it
func (d *Device) Peek(address uint32, size int) ([]byte, error) {
	window, err := d.window(address, size, false)
	if err != nil {
		return nil, err
	}

	return slices.Clone(window), nil
}
