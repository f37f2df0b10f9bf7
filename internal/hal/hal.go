// Package hal is the hardware abstraction layer: the narrow capability
// set the rest of the appliance needs from the board it runs on — LED
// drive, switch read, SPI byte exchange, byte-addressable non-volatile
// storage and script-image reads. Two implementations satisfy Facade:
// Linux (periph.io-backed, real hardware) and Sim (a paired in-process
// test double).
package hal

// Facade is the capability set consumed by internal/isp, internal/counter
// and internal/operator. Nothing outside this package touches GPIO, SPI
// or NVM registers directly.
type Facade interface {
	// Init performs one-shot board initialization: registers host
	// drivers, resolves pins, opens the SPI port and NVM backing store.
	Init() error

	// LEDGreen and LEDRed set the two indicator LEDs. The boolean is
	// always logical "on"; inverted wiring is hidden by the
	// implementation.
	LEDGreen(on bool)
	LEDRed(on bool)

	// SwitchPressed reports the instantaneous (undebounced) state of
	// the operator button.
	SwitchPressed() bool

	// SetISPOutputs configures RST, SCK and MOSI as outputs, the first
	// step of an ISP connect attempt.
	SetISPOutputs() error

	// ReleaseISPPins configures RST, SCK and MOSI as inputs without
	// pull-ups and disables the SPI peripheral, undoing SetISPOutputs.
	ReleaseISPPins() error

	// SetRST drives the RST line directly (used for the reset pulse
	// sequence in isp.Connect, outside of any SPI frame).
	SetRST(high bool)

	// ConfigureSPI programs the SPI clock rate and double-speed flag
	// from the 3-bit sckOption carried in the script, and enables the
	// peripheral. Passing it again mid-session is a no-op error-free
	// reconfiguration, matching the original's SPCR/SPSR reprogramming
	// on every connect attempt.
	ConfigureSPI(sckOption byte) error

	// DisableSPI disables the SPI peripheral without touching pin
	// direction.
	DisableSPI()

	// SPITransfer exchanges len(frame) bytes full-duplex, byte by byte,
	// and returns what was clocked in. The input slice is not mutated.
	SPITransfer(frame []byte) ([]byte, error)

	// NVMReadWord and NVMWriteWord access the byte-addressable
	// non-volatile store backing internal/counter. offset is a byte
	// offset; both words are 16 bits.
	NVMReadWord(offset uint16) (uint16, error)
	NVMWriteWord(offset uint16, word uint16) error

	// ScriptReadByte reads one byte from the read-only script image at
	// the given cursor.
	ScriptReadByte(cursor uint32) (byte, error)

	// Close releases any held OS resources (SPI port, NVM file handle).
	// Safe to call once.
	Close() error
}
