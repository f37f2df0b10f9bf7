// Package counter implements the redundant, wear-aware programming-cycle
// counter: a monotone-floor read over R duplicated (value, ~value)
// slots in byte-addressable NVM, as specified in spec.md §4.4. This is
// deliberately not a majority vote — see SPEC_FULL.md.
package counter

import "github.com/tfischl/ispnub/internal/hal"

// Redundancy is the number of duplicated slots, R=3 per spec.md.
const Redundancy = 3

// slotStride is the byte distance between successive slots: two 16-bit
// words (value, complement) per slot.
const slotStride = 4

// Virgin is the sentinel meaning "uninitialized NVM".
const Virgin uint16 = 0xFFFF

// Store is the redundant counter over a hal.Facade's NVM primitives.
type Store struct {
	hw hal.Facade
}

// New constructs a Store bound to hw.
func New(hw hal.Facade) *Store {
	return &Store{hw: hw}
}

// Read returns the canonical counter value: the minimum of the valid
// slots' value fields, or Virgin if no slot is valid.
func (s *Store) Read() (uint16, error) {
	best := Virgin
	for i := 0; i < Redundancy; i++ {
		offset := uint16(i * slotStride)
		value, err := s.hw.NVMReadWord(offset)
		if err != nil {
			return 0, err
		}
		complement, err := s.hw.NVMReadWord(offset + 2)
		if err != nil {
			return 0, err
		}
		if value != ^complement {
			continue
		}
		if value < best {
			best = value
		}
	}
	return best, nil
}

// Write stores v into every slot as (v, ~v). Writes are not transactional
// across slots; a crash mid-write is tolerated by Read's minimum-of-valid
// rule.
func (s *Store) Write(v uint16) error {
	for i := 0; i < Redundancy; i++ {
		offset := uint16(i * slotStride)
		if err := s.hw.NVMWriteWord(offset, v); err != nil {
			return err
		}
		if err := s.hw.NVMWriteWord(offset+2, ^v); err != nil {
			return err
		}
	}
	return nil
}

// Decrement reads the current value, treats the virgin sentinel as
// startvalue, saturates at zero (no underflow), and otherwise writes
// back one less than the current value.
func (s *Store) Decrement(startvalue uint16) error {
	c, err := s.Read()
	if err != nil {
		return err
	}
	if c == Virgin {
		c = startvalue
	}
	if c == 0 {
		return nil
	}
	return s.Write(c - 1)
}
