package vram

import (
	"github.com/nitroengine/vramkit/memutils/chunk"
)

// bankGuard holds a set of banks in LCD mode. Release hands every bank back to the GPU mode the
// engine assigned it and must run on every exit path, so callers defer it immediately.
type bankGuard struct {
	device   Device
	modes    *[bankSlots]BankMode
	banks    []Bank
	released bool
}

// acquireLCD switches banks to LCD mode. Banks that are not switchable are ignored.
func (e *Engine) acquireLCD(banks ...Bank) *bankGuard {
	guard := &bankGuard{device: e.device, modes: &e.bankModes}
	for _, bank := range banks {
		if !bank.valid() {
			continue
		}
		e.device.SetBankMode(bank, BankModeLCD)
		guard.banks = append(guard.banks, bank)
	}
	return guard
}

// acquireRange switches every bank overlapping [start, end) to LCD mode. Addresses outside the LCD
// windows, such as the sprite windows, need no switch.
func (e *Engine) acquireRange(start uint32, size int) *bankGuard {
	return e.acquireLCD(BanksInRange(start, start+uint32(size))...)
}

func (g *bankGuard) Release() {
	if g.released {
		return
	}
	g.released = true

	for _, bank := range g.banks {
		g.device.SetBankMode(bank, g.modes[bank])
	}
}

// copyToVRAM copies data to dst with every touched bank held in LCD mode for the duration
func (e *Engine) copyToVRAM(dst uint32, data []byte) error {
	guard := e.acquireRange(dst, len(data))
	defer guard.Release()

	return e.device.Copy(dst, data)
}

func (e *Engine) fillVRAM(dst uint32, size int, value byte) error {
	guard := e.acquireRange(dst, size)
	defer guard.Release()

	return e.device.Fill(dst, size, value)
}

// deviceMemory exposes one pool of the device to the defragmenter. Callers hold the pool's banks in
// LCD mode for the whole run.
type deviceMemory[P any] struct {
	device Device
}

func (m deviceMemory[P]) ReadAt(address chunk.Address[P], p []byte) error {
	return m.device.Read(uint32(address), p)
}

func (m deviceMemory[P]) WriteAt(address chunk.Address[P], p []byte) error {
	return m.device.Copy(uint32(address), p)
}
