package isp

// WriteEEPROM streams length bytes from src into the target's EEPROM at
// address. pageSize <= 1 selects byte-mode programming (0xC0 per byte);
// pageSize > 1 selects page-mode programming (0xC1 loads, 0xC2 flushes
// at a 4-byte-aligned boundary), per spec.md §4.3 "Write EEPROM".
func (d *Driver) WriteEEPROM(src ByteSource, srcStart uint32, address, length uint32, pageSize uint16) error {
	d.pageDirty = false
	for i := uint32(0); length > 0; i++ {
		b, err := src.ReadByte(srcStart + i)
		if err != nil {
			return err
		}

		addrHi := byte((address >> 8) & 0xFF)
		addrLo := byte(address & 0xFF)

		if pageSize <= 1 {
			frame := []byte{cmdWriteEEPROMByte, addrHi, addrLo, b}
			if _, err := d.hw.SPITransfer(frame); err != nil {
				return wrapErr("isp: write eeprom byte", err)
			}
			d.tick.DelayFast(delayEEPROMWrite)
		} else {
			frame := []byte{cmdLoadEEPROMPage, addrHi, addrLo, b}
			if _, err := d.hw.SPITransfer(frame); err != nil {
				return wrapErr("isp: load eeprom page byte", err)
			}
			d.pageDirty = true

			flushAtBoundary := (address+1)%uint32(pageSize) == 0
			flushAtFinal := length == 1 && d.pageDirty
			if flushAtBoundary || flushAtFinal {
				flush := []byte{cmdWriteEEPROMPage, addrHi, addrLo & 0xFC, 0x00}
				if _, err := d.hw.SPITransfer(flush); err != nil {
					return wrapErr("isp: write eeprom page", err)
				}
				d.tick.DelayFast(delayEEPROMWrite)
				d.pageDirty = false
			}
		}

		address++
		length--
	}
	return nil
}

// VerifyEEPROM reads back length bytes from the target's EEPROM starting
// at address and compares them against src, byte-wise. The same 0xA0
// read is used whether the preceding write was byte- or page-mode. This
// relies on the target making page-loaded bytes readable through 0xA0
// once the 0xC2 page write has been issued; see DESIGN.md's Open
// Question resolution.
func (d *Driver) VerifyEEPROM(src ByteSource, srcStart uint32, address, length uint32) (bool, error) {
	for i := uint32(0); length > 0; i++ {
		want, err := src.ReadByte(srcStart + i)
		if err != nil {
			return false, err
		}

		frame := []byte{cmdReadEEPROM, byte((address >> 8) & 0xFF), byte(address & 0xFF), 0x00}
		rx, err := d.hw.SPITransfer(frame)
		if err != nil {
			return false, wrapErr("isp: read eeprom", err)
		}
		if rx[3] != want {
			return false, nil
		}

		address++
		length--
	}
	return true, nil
}
