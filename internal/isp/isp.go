// Package isp implements the AVR serial-programming wire protocol: the
// target reset handshake, 4-byte SPI command framing, and paged flash
// and EEPROM write/verify cycles.
package isp

import (
	"fmt"

	"github.com/tfischl/ispnub/internal/hal"
	"github.com/tfischl/ispnub/internal/tick"
)

// State is the driver's connection state machine (spec.md §3).
type State int

const (
	Disconnected State = iota
	Connected
)

const (
	cmdEnterProgMode    = 0xAC
	cmdLoadExtAddr      = 0x4D
	cmdLoadFlashPageLo  = 0x40
	cmdWriteFlashPage   = 0x4C
	cmdReadFlashPageLo  = 0x20
	cmdLoadEEPROMPage   = 0xC1
	cmdWriteEEPROMPage  = 0xC2
	cmdWriteEEPROMByte  = 0xC0
	cmdReadEEPROM       = 0xA0

	syncByte = 0x53

	// extAddrUnknown is the sentinel meaning "resend on next command".
	extAddrUnknown = 0xFF

	connectRetries = 32

	delayResetPulse  uint8 = 5  // ~5ms, scaled in fast ticks by the caller
	delayResetSettle uint8 = 25 // ~25ms
	delayFlashWrite  uint8 = 5  // ~5ms
	delayEEPROMWrite uint8 = 10 // ~10ms
)

// ByteSource is a byte-iterable view over program data, satisfied both
// by an embedded script image and, in tests, by a plain []byte. This is
// the "byte-iterable view, not a raw pointer" design note from spec.md §9.
type ByteSource interface {
	ReadByte(i uint32) (byte, error)
}

// sliceSource adapts a []byte to ByteSource.
type sliceSource []byte

func (s sliceSource) ReadByte(i uint32) (byte, error) {
	if int(i) >= len(s) {
		return 0, Error{msg: fmt.Sprintf("isp: source index %d out of range (len %d)", i, len(s))}
	}
	return s[i], nil
}

// FromBytes wraps a plain byte slice as a ByteSource.
func FromBytes(b []byte) ByteSource { return sliceSource(b) }

// Driver drives the ISP wire protocol over a hal.Facade.
type Driver struct {
	hw   hal.Facade
	tick *tick.Source

	state               State
	extendedAddressHigh byte
	pageDirty           bool
}

// New constructs a Driver in the Disconnected state.
func New(hw hal.Facade, t *tick.Source) *Driver {
	return &Driver{hw: hw, tick: t, state: Disconnected, extendedAddressHigh: extAddrUnknown}
}

// State reports the current connection state.
func (d *Driver) State() State { return d.state }

// Connect performs the reset-and-sync handshake, retrying up to 32
// times, per spec.md §4.3.
func (d *Driver) Connect(sckOption byte) bool {
	if err := d.hw.SetISPOutputs(); err != nil {
		return false
	}
	d.hw.SetRST(false)

	for attempt := 0; attempt < connectRetries; attempt++ {
		d.tick.DelayFast(delayResetPulse)
		d.hw.SetRST(true)
		d.tick.DelayFast(delayResetPulse)
		d.hw.SetRST(false)
		d.tick.DelayFast(delayResetSettle)

		if err := d.hw.ConfigureSPI(sckOption); err != nil {
			continue
		}

		frame := []byte{cmdEnterProgMode, syncByte, 0x00, 0x00}
		rx, err := d.hw.SPITransfer(frame)
		if err == nil && len(rx) == 4 && rx[2] == syncByte {
			d.state = Connected
			d.extendedAddressHigh = extAddrUnknown
			d.pageDirty = false
			return true
		}

		d.hw.DisableSPI()
	}

	return false
}

// Disconnect releases the ISP pins and disables the SPI peripheral.
// Idempotent: always returns true, and is safe to call from the
// Disconnected state (the interpreter's fail-stop path does this).
func (d *Driver) Disconnect() bool {
	_ = d.hw.ReleaseISPPins()
	d.state = Disconnected
	return true
}

// Transmit exchanges a frame (any length, but the protocol only ever
// uses 4 bytes) over SPI and returns the bytes clocked in.
func (d *Driver) Transmit(frame []byte) ([]byte, error) {
	return d.hw.SPITransfer(frame)
}

func (d *Driver) loadExtendedAddress(address uint32) error {
	hi := byte(address >> 17)
	if hi == d.extendedAddressHigh {
		return nil
	}
	if _, err := d.hw.SPITransfer([]byte{cmdLoadExtAddr, 0x00, hi, 0x00}); err != nil {
		return wrapErr("isp: load extended address", err)
	}
	d.extendedAddressHigh = hi
	return nil
}
