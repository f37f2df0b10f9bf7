package script

import "fmt"

// ByteReader reads a single byte from the script image at an absolute
// cursor. Satisfied by hal.Facade.ScriptReadByte and, in tests, by a
// plain []byte via Bytes.
type ByteReader interface {
	ScriptReadByte(cursor uint32) (byte, error)
}

// Bytes adapts a plain []byte to ByteReader, for tests.
type Bytes []byte

func (b Bytes) ScriptReadByte(cursor uint32) (byte, error) {
	if int(cursor) >= len(b) {
		return 0, Error{msg: fmt.Sprintf("script: cursor %d out of range (len %d)", cursor, len(b))}
	}
	return b[cursor], nil
}

// ErrMalformed is returned by Decode when it encounters a byte that
// isn't one of the opcodes spec.md §6 defines. Per spec.md §4.5, the
// interpreter treats this as an unsuccessful, non-dispatching opcode —
// fail-stop, not a panic.
var ErrMalformed = Error{msg: "script: malformed opcode"}

func readU32(r ByteReader, cursor uint32) (uint32, uint32, error) {
	var v uint32
	for i := 0; i < 4; i++ {
		b, err := r.ScriptReadByte(cursor)
		if err != nil {
			return 0, cursor, err
		}
		v = v<<8 | uint32(b)
		cursor++
	}
	return v, cursor, nil
}

func readU16(r ByteReader, cursor uint32) (uint16, uint32, error) {
	var v uint16
	for i := 0; i < 2; i++ {
		b, err := r.ScriptReadByte(cursor)
		if err != nil {
			return 0, cursor, err
		}
		v = v<<8 | uint16(b)
		cursor++
	}
	return v, cursor, nil
}

// Decode parses exactly one instruction starting at cursor and returns
// it along with the cursor immediately following the opcode and its
// fixed-size fields. For OpFlash/OpEEPROM this does NOT include the
// length-many data bytes — DataStart marks where they begin, and the
// caller (Interpreter.Run) advances the cursor past them after dispatch,
// per spec.md §4.5's "cursor advances by exactly length bytes regardless
// of verify outcome".
func Decode(r ByteReader, cursor uint32) (Instruction, uint32, error) {
	opByte, err := r.ScriptReadByte(cursor)
	if err != nil {
		return Instruction{}, cursor, err
	}
	cursor++
	op := Opcode(opByte)

	switch op {
	case OpConnect:
		b, err := r.ScriptReadByte(cursor)
		if err != nil {
			return Instruction{}, cursor, err
		}
		cursor++
		return Instruction{Op: op, SCKOption: b}, cursor, nil

	case OpDisconnect, OpEnd:
		return Instruction{Op: op}, cursor, nil

	case OpSPISend, OpSPIVerify:
		var frame [4]byte
		for i := 0; i < 4; i++ {
			b, err := r.ScriptReadByte(cursor)
			if err != nil {
				return Instruction{}, cursor, err
			}
			frame[i] = b
			cursor++
		}
		instr := Instruction{Op: op, Frame: frame}
		if op == OpSPIVerify {
			b, err := r.ScriptReadByte(cursor)
			if err != nil {
				return Instruction{}, cursor, err
			}
			cursor++
			instr.Expected = b
		}
		return instr, cursor, nil

	case OpFlash, OpEEPROM:
		address, cursor2, err := readU32(r, cursor)
		if err != nil {
			return Instruction{}, cursor, err
		}
		cursor = cursor2
		length, cursor2, err := readU32(r, cursor)
		if err != nil {
			return Instruction{}, cursor, err
		}
		cursor = cursor2
		pageSize, cursor2, err := readU16(r, cursor)
		if err != nil {
			return Instruction{}, cursor, err
		}
		cursor = cursor2
		return Instruction{
			Op:        op,
			Address:   address,
			Length:    length,
			PageSize:  pageSize,
			DataStart: cursor,
		}, cursor, nil

	case OpWait:
		b, err := r.ScriptReadByte(cursor)
		if err != nil {
			return Instruction{}, cursor, err
		}
		cursor++
		return Instruction{Op: op, WaitUnits: b}, cursor, nil

	case OpDecCounter:
		v, cursor2, err := readU16(r, cursor)
		if err != nil {
			return Instruction{}, cursor, err
		}
		cursor = cursor2
		return Instruction{Op: op, Startvalue: v}, cursor, nil

	default:
		return Instruction{}, cursor, ErrMalformed
	}
}
