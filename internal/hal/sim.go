package hal

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Sim is a pure-Go Facade implementation that drives a SimTarget instead
// of a real AVR part, in the same spirit as the teacher's OpenPTY: a
// paired pair of endpoints, one for the code under test and one for the
// test to inspect/drive from the other side.
type Sim struct {
	mu sync.Mutex

	target *SimTarget

	ledGreen bool
	ledRed   bool
	pressed  bool

	spiEnabled bool
	sckOption  byte

	nvm    []byte
	script []byte

	closed atomic.Bool
}

// FrameEvent records one SPI frame the target processed, for tests that
// assert on the exact command sequence a driver call issued rather than
// just its final effect on flash/eeprom state.
type FrameEvent struct {
	Cmd  byte
	Addr uint32
}

// SimTarget models the minimum AVR-side behavior the ISP driver and
// script interpreter exercise: sync echo on connect, a page buffer for
// flash writes, and a flat EEPROM image.
type SimTarget struct {
	mu sync.Mutex

	SyncOK   bool // if false, every connect attempt fails
	flash    map[uint32]byte
	eeprom   map[uint32]byte
	extHigh  byte
	pageAddr map[uint32]byte // pending page-load bytes since last flush, keyed by address
	connected bool

	// SyncAttempts counts every 0xAC frame the target has seen,
	// independent of whether it echoed 0x53 — used to check the fixed
	// 32-attempt connect retry budget (spec.md §8 scenario 3).
	SyncAttempts int

	// Log records every frame the target processed, in order, so tests
	// can assert the exact extended-address-load and page-flush
	// sequence a multi-page write issues (spec.md §8 properties 7, 8).
	Log []FrameEvent

	// FlashReadOverride lets tests inject corruption into flash reads to
	// exercise the verify-mismatch path without tampering with the driver.
	FlashReadOverride func(addr uint32, want byte) (byte, bool)
}

// NewSim returns a ready Facade and the target test double behind it.
// NVM is a fixed 64-byte slice, enough for the R=3 redundant counter
// slots (see internal/counter); offsets past its end return an error.
// The target's extended-address byte starts at 0, as on a freshly reset
// AVR.
func NewSim(script []byte) (*Sim, *SimTarget) {
	target := &SimTarget{
		SyncOK:   true,
		flash:    map[uint32]byte{},
		eeprom:   map[uint32]byte{},
		pageAddr: map[uint32]byte{},
		extHigh:  0x00,
	}
	sim := &Sim{
		target: target,
		nvm:    make([]byte, 64),
		script: script,
	}
	return sim, target
}

func (s *Sim) Init() error { return nil }

func (s *Sim) LEDGreen(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledGreen = on
}

func (s *Sim) LEDRed(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledRed = on
}

// LEDState reports the last-set LED values, for test assertions.
func (s *Sim) LEDState() (green, red bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledGreen, s.ledRed
}

func (s *Sim) SwitchPressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressed
}

// PressSwitch and ReleaseSwitch drive the simulated button from a test.
func (s *Sim) PressSwitch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed = true
}

func (s *Sim) ReleaseSwitch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed = false
}

func (s *Sim) SetISPOutputs() error {
	return nil
}

func (s *Sim) ReleaseISPPins() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spiEnabled = false
	s.target.mu.Lock()
	s.target.connected = false
	s.target.mu.Unlock()
	return nil
}

func (s *Sim) SetRST(high bool) {
	s.target.mu.Lock()
	defer s.target.mu.Unlock()
	if !high {
		// a low pulse followed by reset is how the real target resyncs;
		// the sim just tracks connectedness, nothing to reset here.
		return
	}
}

func (s *Sim) ConfigureSPI(sckOption byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sckOption = sckOption
	s.spiEnabled = true
	return nil
}

func (s *Sim) DisableSPI() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spiEnabled = false
}

func (s *Sim) SPITransfer(frame []byte) ([]byte, error) {
	s.mu.Lock()
	enabled := s.spiEnabled
	s.mu.Unlock()
	if !enabled {
		return nil, wrapErr("hal: spi transfer", fmt.Errorf("spi disabled"))
	}
	if len(frame) != 4 {
		return nil, wrapErr("hal: spi transfer", fmt.Errorf("expected 4-byte frame, got %d", len(frame)))
	}
	return s.target.exchange(frame), nil
}

func (s *Sim) NVMReadWord(offset uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(offset)+2 > len(s.nvm) {
		return 0, wrapErr("hal: nvm read", fmt.Errorf("offset %d out of range", offset))
	}
	return uint16(s.nvm[offset]) | uint16(s.nvm[offset+1])<<8, nil
}

func (s *Sim) NVMWriteWord(offset uint16, word uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(offset)+2 > len(s.nvm) {
		return wrapErr("hal: nvm write", fmt.Errorf("offset %d out of range", offset))
	}
	s.nvm[offset] = byte(word)
	s.nvm[offset+1] = byte(word >> 8)
	return nil
}

func (s *Sim) ScriptReadByte(cursor uint32) (byte, error) {
	if int(cursor) >= len(s.script) {
		return 0, wrapErr("hal: script read", fmt.Errorf("cursor %d out of range", cursor))
	}
	return s.script[cursor], nil
}

func (s *Sim) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	return nil
}

// --- SimTarget: models the AVR side of the wire ---

// flashAddr reconstructs the full byte address a flash-memory frame
// refers to: the 16 bits carried in frame[1]:frame[2] (word address,
// low bit from the opcode for paged loads/reads) plus the extended
// high byte latched by the last 0x4D, per spec.md §4.3's 128KiB
// windowing scheme. Must incorporate extHigh — a write that crosses a
// window boundary addresses memory the frame's 16 bits alone cannot
// reach.
func (t *SimTarget) flashAddr(frame []byte, lowBitFromOpcode bool) uint32 {
	addr := uint32(t.extHigh)<<17 | (uint32(frame[1])<<8|uint32(frame[2]))<<1
	if lowBitFromOpcode && frame[0]&0x08 != 0 {
		addr |= 1
	}
	return addr
}

func (t *SimTarget) exchange(frame []byte) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]byte, 4)
	copy(out, frame)

	cmd := frame[0]
	logAddr := uint32(0)

	switch cmd {
	case 0xAC: // enter programming mode
		t.SyncAttempts++
		if t.SyncOK {
			out[2] = 0x53
			t.connected = true
		} else {
			out[2] = 0x00
		}
	case 0x4D: // load extended address byte
		t.extHigh = frame[2]
		logAddr = uint32(frame[2])
	case 0x40, 0x48: // load program-memory page, low or high byte
		addr := t.flashAddr(frame, true)
		t.pageAddr[addr] = frame[3]
		logAddr = addr
	case 0x4C: // write program-memory page
		addr := t.flashAddr(frame, false)
		for a, b := range t.pageAddr {
			t.flash[a] = b
		}
		t.pageAddr = map[uint32]byte{}
		logAddr = addr
	case 0x20, 0x28: // read program-memory, low or high byte
		addr := t.flashAddr(frame, true)
		want := t.flash[addr]
		if t.FlashReadOverride != nil {
			if override, ok := t.FlashReadOverride(addr, want); ok {
				want = override
			}
		}
		out[3] = want
		logAddr = addr
	case 0xC1: // load EEPROM page
		addr := uint32(frame[1])<<8 | uint32(frame[2])
		t.pageAddr[addr] = frame[3]
		logAddr = addr
	case 0xC2: // write EEPROM page
		addr := uint32(frame[1])<<8 | uint32(frame[2])
		for a, b := range t.pageAddr {
			t.eeprom[a] = b
		}
		t.pageAddr = map[uint32]byte{}
		logAddr = addr
	case 0xC0: // write EEPROM byte
		addr := uint32(frame[1])<<8 | uint32(frame[2])
		t.eeprom[addr] = frame[3]
		logAddr = addr
	case 0xA0: // read EEPROM
		addr := uint32(frame[1])<<8 | uint32(frame[2])
		out[3] = t.eeprom[addr]
		logAddr = addr
	}
	t.Log = append(t.Log, FrameEvent{Cmd: cmd, Addr: logAddr})
	return out
}

// FlashByte and EEPROMByte let tests assert on committed target state.
func (t *SimTarget) FlashByte(addr uint32) byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flash[addr]
}

func (t *SimTarget) EEPROMByte(addr uint32) byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eeprom[addr]
}
