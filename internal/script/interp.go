package script

import (
	"fmt"

	"github.com/tfischl/ispnub/internal/counter"
	"github.com/tfischl/ispnub/internal/isp"
	"github.com/tfischl/ispnub/internal/tick"
)

// scriptByteSource adapts a ByteReader to isp.ByteSource so the driver
// can stream FLASH/EEPROM payload bytes straight out of the script
// image without a copy.
type scriptByteSource struct {
	r ByteReader
}

func (s scriptByteSource) ReadByte(i uint32) (byte, error) {
	return s.r.ScriptReadByte(i)
}

// Interpreter sequentially executes one script image, dispatching to an
// isp.Driver and a counter.Store, per spec.md §4.5.
type Interpreter struct {
	image   ByteReader
	driver  *isp.Driver
	counter *counter.Store
	tick    *tick.Source

	cursor  uint32
	success bool
}

// New constructs an Interpreter over image, starting at cursor 0.
func New(image ByteReader, driver *isp.Driver, counterStore *counter.Store, t *tick.Source) *Interpreter {
	return &Interpreter{image: image, driver: driver, counter: counterStore, tick: t}
}

// Run executes the script from its current cursor (0 on a fresh
// Interpreter) until OpEnd, an unsuccessful opcode, or a read error.
// Per spec.md §4.5/§8 property 6: the first unsuccessful opcode stops
// dispatch immediately and triggers exactly one Disconnect.
func (in *Interpreter) Run() (bool, error) {
	for {
		instr, next, err := Decode(in.image, in.cursor)
		if err != nil {
			in.cursor = next
			in.driver.Disconnect()
			return false, wrapErr(fmt.Sprintf("script: decode at cursor %d", in.cursor), err)
		}
		in.cursor = next

		ok, err := in.dispatch(instr)
		if err != nil {
			in.driver.Disconnect()
			return false, wrapErr(fmt.Sprintf("script: dispatch %s", instr.Op), err)
		}
		if !ok {
			in.driver.Disconnect()
			return false, nil
		}
		if instr.Op == OpEnd {
			return true, nil
		}
	}
}

func (in *Interpreter) dispatch(instr Instruction) (bool, error) {
	switch instr.Op {
	case OpConnect:
		return in.driver.Connect(instr.SCKOption), nil

	case OpDisconnect:
		return in.driver.Disconnect(), nil

	case OpSPISend:
		frame := instr.Frame
		if _, err := in.driver.Transmit(frame[:]); err != nil {
			return false, err
		}
		return true, nil

	case OpSPIVerify:
		frame := instr.Frame
		rx, err := in.driver.Transmit(frame[:])
		if err != nil {
			return false, err
		}
		return rx[3] == instr.Expected, nil

	case OpFlash:
		src := scriptByteSource{in.image}
		if err := in.driver.WriteFlash(src, instr.DataStart, instr.Address, instr.Length, instr.PageSize); err != nil {
			in.cursor = instr.DataStart + instr.Length
			return false, err
		}
		ok, err := in.driver.VerifyFlash(src, instr.DataStart, instr.Address, instr.Length)
		in.cursor = instr.DataStart + instr.Length
		return ok, err

	case OpEEPROM:
		src := scriptByteSource{in.image}
		if err := in.driver.WriteEEPROM(src, instr.DataStart, instr.Address, instr.Length, instr.PageSize); err != nil {
			in.cursor = instr.DataStart + instr.Length
			return false, err
		}
		ok, err := in.driver.VerifyEEPROM(src, instr.DataStart, instr.Address, instr.Length)
		in.cursor = instr.DataStart + instr.Length
		return ok, err

	case OpWait:
		units := instr.WaitUnits
		for ; units > 0; units-- {
			in.tick.DelayFast(waitUnitFastTicks)
		}
		return true, nil

	case OpDecCounter:
		if err := in.counter.Decrement(instr.Startvalue); err != nil {
			return false, err
		}
		return true, nil

	case OpEnd:
		return true, nil

	default:
		return false, nil
	}
}

// waitUnitFastTicks is one WAIT unit (10ms), expressed in fast ticks —
// CLOCK_TICKER_FAST_10MS in the original firmware.
const waitUnitFastTicks uint8 = 10
