package hal

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// LinuxConfig names the board wiring: which GPIO lines and SPI device
// this appliance binds to, plus where the script image and counter NVM
// live on disk. Loaded from config.yaml by cmd/ispnubd.
type LinuxConfig struct {
	SPIPort    string `yaml:"spi_port"`     // e.g. "/dev/spidev0.0"
	RSTPin     string `yaml:"rst_pin"`      // e.g. "GPIO17"
	LEDGreen   string `yaml:"led_green_pin"`
	LEDRed     string `yaml:"led_red_pin"`
	SwitchPin  string `yaml:"switch_pin"`
	NVMPath    string `yaml:"nvm_path"`     // byte-addressable NVM backing file
	ScriptPath string `yaml:"script_path"`  // optional: override the embedded default image
}

// Linux is a periph.io-backed Facade for a Linux SBC wired directly to
// an AVR target's ISP header.
type Linux struct {
	cfg LinuxConfig

	spiPort spi.PortCloser
	spiConn spi.Conn

	rst    gpio.PinIO
	green  gpio.PinIO
	red    gpio.PinIO
	button gpio.PinIO

	nvm *os.File

	script []byte // default embedded image, used unless cfg.ScriptPath overrides

	closed atomic.Bool
}

// NewLinux constructs a Linux façade bound to cfg. Init must be called
// before use.
func NewLinux(cfg LinuxConfig, defaultScript []byte) *Linux {
	return &Linux{cfg: cfg, script: defaultScript}
}

func (l *Linux) Init() error {
	if _, err := host.Init(); err != nil {
		return wrapErr("hal: host init", err)
	}

	rst := gpioreg.ByName(l.cfg.RSTPin)
	if rst == nil {
		return wrapErr("hal: resolve rst pin", fmt.Errorf("unknown pin %q", l.cfg.RSTPin))
	}
	green := gpioreg.ByName(l.cfg.LEDGreen)
	if green == nil {
		return wrapErr("hal: resolve green led pin", fmt.Errorf("unknown pin %q", l.cfg.LEDGreen))
	}
	red := gpioreg.ByName(l.cfg.LEDRed)
	if red == nil {
		return wrapErr("hal: resolve red led pin", fmt.Errorf("unknown pin %q", l.cfg.LEDRed))
	}
	button := gpioreg.ByName(l.cfg.SwitchPin)
	if button == nil {
		return wrapErr("hal: resolve switch pin", fmt.Errorf("unknown pin %q", l.cfg.SwitchPin))
	}
	if err := button.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return wrapErr("hal: configure switch pin", err)
	}
	// LEDs are wired active-low; Out(Low) means "lit".
	if err := green.Out(gpio.High); err != nil {
		return wrapErr("hal: configure green led", err)
	}
	if err := red.Out(gpio.High); err != nil {
		return wrapErr("hal: configure red led", err)
	}

	port, err := spireg.Open(l.cfg.SPIPort)
	if err != nil {
		return wrapErr("hal: open spi port", err)
	}

	nvm, err := os.OpenFile(l.cfg.NVMPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		port.Close()
		return wrapErr("hal: open nvm store", err)
	}

	if path := l.cfg.ScriptPath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			port.Close()
			nvm.Close()
			return wrapErr("hal: read script image", err)
		}
		l.script = data
	}

	l.spiPort = port
	l.rst = rst
	l.green = green
	l.red = red
	l.button = button
	l.nvm = nvm
	return nil
}

func (l *Linux) checkOpen() error {
	if l.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (l *Linux) LEDGreen(on bool) {
	if l.green == nil {
		return
	}
	// active-low: "on" drives the pin low.
	_ = l.green.Out(gpio.Level(!on))
}

func (l *Linux) LEDRed(on bool) {
	if l.red == nil {
		return
	}
	_ = l.red.Out(gpio.Level(!on))
}

func (l *Linux) SwitchPressed() bool {
	if l.button == nil {
		return false
	}
	return l.button.Read() == gpio.Low
}

// SetISPOutputs drives RST low as an output. SCK and MOSI are not
// switched here: on this host they belong to the kernel SPI driver
// behind spiPort.
func (l *Linux) SetISPOutputs() error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	if err := l.rst.Out(gpio.Low); err != nil {
		return wrapErr("hal: set rst output", err)
	}
	return nil
}

// ReleaseISPPins drops the SPI connection and makes RST a floating
// input. SCK and MOSI are left to the kernel SPI driver.
func (l *Linux) ReleaseISPPins() error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	l.DisableSPI()
	if err := l.rst.In(gpio.Float, gpio.NoEdge); err != nil {
		return wrapErr("hal: release rst pin", err)
	}
	return nil
}

func (l *Linux) SetRST(high bool) {
	if l.rst == nil {
		return
	}
	_ = l.rst.Out(gpio.Level(high))
}

// sckDivisors mirrors the AVR SPCR clock-rate encodings the original
// firmware passes straight through from the script: index is the low
// two bits of sckOption, value is the resulting SPI clock.
var sckDivisors = [4]physic.Frequency{
	4 * physic.MegaHertz,
	1 * physic.MegaHertz,
	250 * physic.KiloHertz,
	125 * physic.KiloHertz,
}

func (l *Linux) ConfigureSPI(sckOption byte) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	freq := sckDivisors[sckOption&0x03]
	if sckOption&0x04 != 0 {
		// double-speed flag: halve the divisor's effective period.
		freq *= 2
	}
	conn, err := l.spiPort.Connect(freq, spi.Mode0, 8)
	if err != nil {
		return wrapErr("hal: configure spi", err)
	}
	l.spiConn = conn
	return nil
}

func (l *Linux) DisableSPI() {
	l.spiConn = nil
}

func (l *Linux) SPITransfer(frame []byte) ([]byte, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	if l.spiConn == nil {
		return nil, wrapErr("hal: spi transfer", fmt.Errorf("spi not configured"))
	}
	rx := make([]byte, len(frame))
	if err := l.spiConn.Tx(frame, rx); err != nil {
		return nil, wrapErr("hal: spi transfer", err)
	}
	return rx, nil
}

func (l *Linux) NVMReadWord(offset uint16) (uint16, error) {
	if err := l.checkOpen(); err != nil {
		return 0, err
	}
	var buf [2]byte
	if _, err := l.nvm.ReadAt(buf[:], int64(offset)); err != nil {
		return 0, wrapErr("hal: nvm read", err)
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (l *Linux) NVMWriteWord(offset uint16, word uint16) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], word)
	if _, err := l.nvm.WriteAt(buf[:], int64(offset)); err != nil {
		return wrapErr("hal: nvm write", err)
	}
	return nil
}

func (l *Linux) ScriptReadByte(cursor uint32) (byte, error) {
	if int(cursor) >= len(l.script) {
		return 0, wrapErr("hal: script read", fmt.Errorf("cursor %d out of range (len %d)", cursor, len(l.script)))
	}
	return l.script[cursor], nil
}

func (l *Linux) Close() error {
	if l.closed.Swap(true) {
		return ErrClosed
	}
	var firstErr error
	if l.spiPort != nil {
		if err := l.spiPort.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.nvm != nil {
		if err := l.nvm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
