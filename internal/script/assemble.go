package script

// Assembler builds a script image from Go literals instead of
// hand-encoded byte slices. It is the one piece of the original
// project's offline ISPnubCreator tool this repo reimplements — in
// miniature, and only for test fixtures, since compiling user-authored
// recipes into bytecode stays out of scope (spec.md Non-goals).
type Assembler struct {
	buf []byte
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Bytes returns the assembled image so far.
func (a *Assembler) Bytes() []byte {
	return a.buf
}

func (a *Assembler) putU32(v uint32) {
	a.buf = append(a.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (a *Assembler) putU16(v uint16) {
	a.buf = append(a.buf, byte(v>>8), byte(v))
}

// Connect appends a CONNECT instruction.
func (a *Assembler) Connect(sckOption byte) *Assembler {
	a.buf = append(a.buf, byte(OpConnect), sckOption)
	return a
}

// Disconnect appends a DISCONNECT instruction.
func (a *Assembler) Disconnect() *Assembler {
	a.buf = append(a.buf, byte(OpDisconnect))
	return a
}

// SPISend appends an SPI_SEND instruction.
func (a *Assembler) SPISend(frame [4]byte) *Assembler {
	a.buf = append(a.buf, byte(OpSPISend))
	a.buf = append(a.buf, frame[:]...)
	return a
}

// SPIVerify appends an SPI_VERIFY instruction.
func (a *Assembler) SPIVerify(frame [4]byte, expected byte) *Assembler {
	a.buf = append(a.buf, byte(OpSPIVerify))
	a.buf = append(a.buf, frame[:]...)
	a.buf = append(a.buf, expected)
	return a
}

// Flash appends a FLASH instruction with the given payload.
func (a *Assembler) Flash(address uint32, pageSize uint16, data []byte) *Assembler {
	a.buf = append(a.buf, byte(OpFlash))
	a.putU32(address)
	a.putU32(uint32(len(data)))
	a.putU16(pageSize)
	a.buf = append(a.buf, data...)
	return a
}

// EEPROM appends an EEPROM instruction with the given payload.
func (a *Assembler) EEPROM(address uint32, pageSize uint16, data []byte) *Assembler {
	a.buf = append(a.buf, byte(OpEEPROM))
	a.putU32(address)
	a.putU32(uint32(len(data)))
	a.putU16(pageSize)
	a.buf = append(a.buf, data...)
	return a
}

// Wait appends a WAIT instruction, units of 10ms.
func (a *Assembler) Wait(units byte) *Assembler {
	a.buf = append(a.buf, byte(OpWait), units)
	return a
}

// DecCounter appends a DECCOUNTER instruction.
func (a *Assembler) DecCounter(startvalue uint16) *Assembler {
	a.buf = append(a.buf, byte(OpDecCounter))
	a.putU16(startvalue)
	return a
}

// End appends an END instruction.
func (a *Assembler) End() *Assembler {
	a.buf = append(a.buf, byte(OpEnd))
	return a
}
