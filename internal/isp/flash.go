package isp

// WriteFlash streams length bytes from src starting at the source
// cursor into the target's program memory at address, paging per
// pageSize, exactly per spec.md §4.3 "Write flash".
func (d *Driver) WriteFlash(src ByteSource, srcStart uint32, address, length uint32, pageSize uint16) error {
	d.pageDirty = false
	for i := uint32(0); length > 0; i++ {
		b, err := src.ReadByte(srcStart + i)
		if err != nil {
			return err
		}

		if err := d.loadExtendedAddress(address); err != nil {
			return err
		}

		lowBit := byte(address & 1)
		frame := []byte{
			cmdLoadFlashPageLo | (lowBit << 3),
			byte((address >> 9) & 0xFF),
			byte((address >> 1) & 0xFF),
			b,
		}
		if _, err := d.hw.SPITransfer(frame); err != nil {
			return wrapErr("isp: load flash page byte", err)
		}
		d.pageDirty = true

		flushAtBoundary := (address+1)%uint32(pageSize) == 0
		flushAtFinal := length == 1 && d.pageDirty
		if flushAtBoundary || flushAtFinal {
			flush := []byte{
				cmdWriteFlashPage,
				byte((address >> 9) & 0xFF),
				byte((address >> 1) & 0xFF),
				0x00,
			}
			if _, err := d.hw.SPITransfer(flush); err != nil {
				return wrapErr("isp: write flash page", err)
			}
			d.tick.DelayFast(delayFlashWrite)
			d.pageDirty = false
		}

		address++
		length--
	}
	return nil
}

// VerifyFlash reads back length bytes from the target starting at
// address and compares them against src, returning false at the first
// mismatch. The extended-address mirror carries over from a preceding
// WriteFlash call on the same Driver, or starts unknown on a standalone
// verify.
func (d *Driver) VerifyFlash(src ByteSource, srcStart uint32, address, length uint32) (bool, error) {
	for i := uint32(0); length > 0; i++ {
		want, err := src.ReadByte(srcStart + i)
		if err != nil {
			return false, err
		}

		if err := d.loadExtendedAddress(address); err != nil {
			return false, err
		}

		lowBit := byte(address & 1)
		frame := []byte{
			cmdReadFlashPageLo | (lowBit << 3),
			byte((address >> 9) & 0xFF),
			byte((address >> 1) & 0xFF),
			0x00,
		}
		rx, err := d.hw.SPITransfer(frame)
		if err != nil {
			return false, wrapErr("isp: read flash page byte", err)
		}
		if rx[3] != want {
			return false, nil
		}

		address++
		length--
	}
	return true, nil
}
