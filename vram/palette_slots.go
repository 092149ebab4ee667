package vram

import (
	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils"
	"golang.org/x/exp/slog"
)

const paletteSlotBytes = maxPaletteColors * 2

type paletteSlot struct {
	inUse bool
	ram   int
}

// PaletteSlots tracks the extended palette slots of one sprite pool. Each slot is a 256-color block
// of a palette bank and is backed by a sprite palette RAM slot.
type PaletteSlots struct {
	engine *Engine
	name   string
	bank   Bank
	slots  []paletteSlot

	// referenced reports whether a sprite still uses the slot
	referenced func(slot int) bool
}

func (s *PaletteSlots) checkSlot(slot int) error {
	if err := s.engine.checkAlive(); err != nil {
		return err
	}
	if slot < 0 || slot >= len(s.slots) {
		return errors.Wrapf(memutils.ErrInvalidHandle, "%s palette slot %d is out of range", s.name, slot)
	}
	return nil
}

// Address returns the LCD address of slot
func (s *PaletteSlots) Address(slot int) uint32 {
	return s.bank.Address() + uint32(slot)<<9
}

// Len returns the number of slots
func (s *PaletteSlots) Len() int {
	return len(s.slots)
}

func (s *PaletteSlots) upload(slot int) error {
	palette, err := s.engine.spritePalette(s.slots[slot].ram)
	if err != nil {
		return err
	}

	return s.engine.copyToVRAM(s.Address(slot), palette)
}

// Upload copies palette RAM slot ram into slot and records the pairing
func (s *PaletteSlots) Upload(ram, slot int) error {
	s.engine.mutex.Lock()
	defer s.engine.mutex.Unlock()

	s.engine.logger.Debug("PaletteSlots::Upload", slog.String("Pool", s.name), slog.Int("RAMSlot", ram), slog.Int("Slot", slot))
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if _, err := s.engine.spritePalette(ram); err != nil {
		return err
	}

	previous := s.slots[slot]
	s.slots[slot] = paletteSlot{inUse: true, ram: ram}
	err := s.upload(slot)
	if err != nil {
		s.slots[slot] = previous
		return err
	}
	return nil
}

// Refresh copies the slot's RAM palette again, after its colors were changed
func (s *PaletteSlots) Refresh(slot int) error {
	s.engine.mutex.Lock()
	defer s.engine.mutex.Unlock()

	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if !s.slots[slot].inUse {
		return errors.Wrapf(memutils.ErrInvalidHandle, "%s palette slot %d is not in use", s.name, slot)
	}

	return s.upload(slot)
}

// Release clears slot. It fails with ErrWrongState while a sprite uses the slot.
func (s *PaletteSlots) Release(slot int) error {
	s.engine.mutex.Lock()
	defer s.engine.mutex.Unlock()

	s.engine.logger.Debug("PaletteSlots::Release", slog.String("Pool", s.name), slog.Int("Slot", slot))
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if !s.slots[slot].inUse {
		return errors.Wrapf(memutils.ErrInvalidHandle, "%s palette slot %d is not in use", s.name, slot)
	}
	if s.referenced != nil && s.referenced(slot) {
		return errors.Wrapf(memutils.ErrWrongState, "%s palette slot %d is used by a sprite", s.name, slot)
	}

	err := s.engine.fillVRAM(s.Address(slot), paletteSlotBytes, 0)
	if err != nil {
		return err
	}

	s.slots[slot] = paletteSlot{}
	return nil
}

func (s *PaletteSlots) inUse(slot int) bool {
	return slot >= 0 && slot < len(s.slots) && s.slots[slot].inUse
}

// InUse reports whether slot holds a palette
func (s *PaletteSlots) InUse(slot int) bool {
	s.engine.mutex.Lock()
	defer s.engine.mutex.Unlock()

	return s.inUse(slot)
}

// RAMSlot returns the palette RAM slot backing slot
func (s *PaletteSlots) RAMSlot(slot int) (int, error) {
	s.engine.mutex.Lock()
	defer s.engine.mutex.Unlock()

	if err := s.checkSlot(slot); err != nil {
		return 0, err
	}
	if !s.slots[slot].inUse {
		return 0, errors.Wrapf(memutils.ErrInvalidHandle, "%s palette slot %d is not in use", s.name, slot)
	}
	return s.slots[slot].ram, nil
}
