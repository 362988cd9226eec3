package cpu

import "github.com/rook-valley/gbcore/jeebie/events"

// executePrefetched runs the opcode fetched at the end of the previous
// step. PC is advanced past that opcode first, so instructions reading
// immediates via popByteAtPC see the right address, and the HALT bug's
// "PC does not advance once" behavior reduces to a single decrement.
// Every path that doesn't take over the prefetch itself (HALT,
// STOP) ends by reading the next opcode at the final PC, costing the
// instruction's last machine cycle.
func (c *CPU) executePrefetched() {
	opcode := c.prefetchedOpcode
	c.pc++

	switch {
	case opcode == 0x76:
		c.halt()
		return

	case opcode == 0x10:
		c.stop()
		return

	case opcode == 0xCB:
		c.executeCB()

	case opcode&0xC0 == 0x40:
		// LD r,r' block. 0x40 (LD B,B) is a no-op the test ROMs use as a
		// completion marker, so it only raises the flag.
		if opcode == 0x40 {
			c.ldBB = true
		} else {
			c.setReg8((opcode>>3)&7, c.reg8(opcode&7))
		}

	case opcode&0xC0 == 0x80:
		// The register-operand ALU block: ADD/ADC/SUB/SBC/AND/XOR/OR/CP.
		c.aluOp((opcode>>3)&7, c.reg8(opcode&7))

	default:
		c.executeMisc(opcode)
	}

	// A freeze rolled PC back onto the invalid opcode, so this re-reads
	// that same byte; the facade stops calling Emulate once Frozen.
	c.prefetchedOpcode = c.tickReadByte(c.pc)
}

// halt implements the HALT opcode: prefetch the following
// opcode, refresh IF via an event drain, and either enter the HALT state
// or fall through immediately when an interrupt is already pending. In
// the fall-through case PC is rolled back one byte: with IME set the
// dispatched handler returns to the HALT instruction itself, without IME
// the prefetched opcode ends up executed twice (the HALT bug).
func (c *CPU) halt() {
	c.prefetchedOpcode = c.tickReadByte(c.pc)

	c.bus.DrainEvents()
	if c.tryHalt() {
		if !c.profile.IsCGB() {
			// DMG: two extra machine cycles during which a freshly
			// scheduled timer interrupt can still terminate the HALT.
			c.clk.TickMachineCycle()
			c.clk.TickMachineCycle()
			c.bus.DrainEvents()
		}
		return
	}

	c.pc--
}

// stop implements the STOP opcode: the following byte is
// prefetched (and thereby skipped), DIV is reset, and an armed CGB speed
// switch is performed; the CPU then halts until the Unhalt event fires
// 0x20000 clocks (single speed) or 0x10000 clocks (double speed) later.
func (c *CPU) stop() {
	c.prefetchedOpcode = c.tickReadByte(c.pc)
	c.clk.TickMachineCycle()

	c.bus.ExecuteStop()

	if c.tryHalt() {
		c.queue.Schedule(events.Unhalt, c.clk.Cycle()+c.clk.SpeedSwitchDelay())
	}
}

// addToBytes adds delta (+1 or -1) to the 16-bit pair stored in two
// 8-bit registers, costing the 16-bit INC/DEC family's extra internal
// machine cycle.
func (c *CPU) addToBytes(high, low *byte, delta int32) {
	tmp := int32(*low) + delta
	*low = byte(tmp & 0xFF)
	*high = byte((int32(*high) + (tmp >> 8)) & 0xFF)
	c.clk.TickMachineCycle()
}

// executeMisc covers every opcode outside the three regular blocks
// (LD r,r', register ALU, CB prefix).
func (c *CPU) executeMisc(opcode byte) {
	switch opcode {

	// increment & decrement

	case 0x04:
		c.incAt(0)
	case 0x0C:
		c.incAt(1)
	case 0x14:
		c.incAt(2)
	case 0x1C:
		c.incAt(3)
	case 0x24:
		c.incAt(4)
	case 0x2C:
		c.incAt(5)
	case 0x34:
		c.incAt(6)
	case 0x3C:
		c.incAt(7)

	case 0x05:
		c.decAt(0)
	case 0x0D:
		c.decAt(1)
	case 0x15:
		c.decAt(2)
	case 0x1D:
		c.decAt(3)
	case 0x25:
		c.decAt(4)
	case 0x2D:
		c.decAt(5)
	case 0x35:
		c.decAt(6)
	case 0x3D:
		c.decAt(7)

	case 0x03:
		c.addToBytes(&c.b, &c.c, 1) // INC BC
	case 0x13:
		c.addToBytes(&c.d, &c.e, 1) // INC DE
	case 0x23:
		c.addToBytes(&c.h, &c.l, 1) // INC HL
	case 0x33:
		c.sp++
		c.clk.TickMachineCycle() // INC SP

	case 0x0B:
		c.addToBytes(&c.b, &c.c, -1) // DEC BC
	case 0x1B:
		c.addToBytes(&c.d, &c.e, -1) // DEC DE
	case 0x2B:
		c.addToBytes(&c.h, &c.l, -1) // DEC HL
	case 0x3B:
		c.sp--
		c.clk.TickMachineCycle() // DEC SP

	// 8-bit loads

	case 0x06:
		c.b = c.popByteAtPC() // LD B, x
	case 0x0E:
		c.c = c.popByteAtPC() // LD C, x
	case 0x16:
		c.d = c.popByteAtPC() // LD D, x
	case 0x1E:
		c.e = c.popByteAtPC() // LD E, x
	case 0x26:
		c.h = c.popByteAtPC() // LD H, x
	case 0x2E:
		c.l = c.popByteAtPC() // LD L, x
	case 0x36:
		v := c.popByteAtPC()
		c.tickWriteByte(c.hl(), v) // LD [HL], x
	case 0x3E:
		c.a = c.popByteAtPC() // LD A, x

	case 0x02:
		c.tickWriteByte(c.bc(), c.a) // LD [BC], A
	case 0x0A:
		c.a = c.tickReadByte(c.bc()) // LD A, [BC]
	case 0x12:
		c.tickWriteByte(c.de(), c.a) // LD [DE], A
	case 0x1A:
		c.a = c.tickReadByte(c.de()) // LD A, [DE]

	case 0x22:
		hl := c.hl()
		c.tickWriteByte(hl, c.a)
		c.setHL(hl + 1) // LDI [HL], A
	case 0x32:
		hl := c.hl()
		c.tickWriteByte(hl, c.a)
		c.setHL(hl - 1) // LDD [HL], A
	case 0x2A:
		hl := c.hl()
		c.a = c.tickReadByte(hl)
		c.setHL(hl + 1) // LDI A, [HL]
	case 0x3A:
		hl := c.hl()
		c.a = c.tickReadByte(hl)
		c.setHL(hl - 1) // LDD A, [HL]

	case 0xE0:
		offset := c.popByteAtPC()
		c.tickWriteByte(0xFF00+uint16(offset), c.a) // LDH [x], A
	case 0xF0:
		offset := c.popByteAtPC()
		c.a = c.tickReadByte(0xFF00 + uint16(offset)) // LDH A, [x]
	case 0xE2:
		c.tickWriteByte(0xFF00+uint16(c.c), c.a) // LDH [C], A
	case 0xF2:
		c.a = c.tickReadByte(0xFF00 + uint16(c.c)) // LDH A, [C]
	case 0xEA:
		c.tickWriteByte(c.popWordAtPC(), c.a) // LD [xx], A
	case 0xFA:
		c.a = c.tickReadByte(c.popWordAtPC()) // LD A, [xx]

	// 16-bit loads

	case 0x01:
		c.c = c.popByteAtPC()
		c.b = c.popByteAtPC() // LD BC, xx
	case 0x11:
		c.e = c.popByteAtPC()
		c.d = c.popByteAtPC() // LD DE, xx
	case 0x21:
		c.l = c.popByteAtPC()
		c.h = c.popByteAtPC() // LD HL, xx
	case 0x31:
		c.sp = c.popWordAtPC() // LD SP, xx

	case 0x08:
		address := c.popWordAtPC()
		c.tickWriteByte(address, byte(c.sp))
		c.tickWriteByte(address+1, byte(c.sp>>8)) // LD [xx], SP

	case 0xF8:
		// LD HL, SP + x: flags as for ADD SP, but SP itself is untouched.
		spBak := c.sp
		c.addSP()
		c.setHL(c.sp)
		c.sp = spBak
		c.clk.TickMachineCycle()
	case 0xF9:
		c.sp = c.hl()
		c.clk.TickMachineCycle() // LD SP, HL

	// arithmetic

	case 0xC6:
		c.add(c.popByteAtPC())
	case 0xCE:
		c.adc(c.popByteAtPC())
	case 0xD6:
		c.sub(c.popByteAtPC())
	case 0xDE:
		c.sbc(c.popByteAtPC())
	case 0xE6:
		c.and(c.popByteAtPC())
	case 0xEE:
		c.xor(c.popByteAtPC())
	case 0xF6:
		c.or(c.popByteAtPC())
	case 0xFE:
		c.cp(c.popByteAtPC())

	case 0x09:
		c.addToHL(c.b, c.c)
	case 0x19:
		c.addToHL(c.d, c.e)
	case 0x29:
		c.addToHL(c.h, c.l)
	case 0x39:
		c.addToHL(byte(c.sp>>8), byte(c.sp))

	case 0xE8:
		c.addSP()
		c.clk.TickMachineCycle()
		c.clk.TickMachineCycle() // ADD SP, x

	// accumulator rotates: like their CB counterparts but Z always clear

	case 0x07:
		c.a = c.rlc(c.a)
		c.zero = 1 // RLCA
	case 0x0F:
		c.a = c.rrc(c.a)
		c.zero = 1 // RRCA
	case 0x17:
		c.a = c.rl(c.a)
		c.zero = 1 // RLA
	case 0x1F:
		c.a = c.rr(c.a)
		c.zero = 1 // RRA

	// misc

	case 0x00: // NOP

	case 0x27:
		c.daa()
	case 0x2F:
		c.cpl()
	case 0x37:
		c.scf()
	case 0x3F:
		c.ccf()

	case 0xF3: // DI
		c.irq.SetIME(false)
		c.eiPending = false
	case 0xFB: // EI
		if !c.irq.IME() {
			c.eiPending = true
		}

	// jumps

	case 0xC3:
		c.jp()
	case 0xE9:
		c.pc = c.hl() // JP HL
	case 0xC2:
		c.jpIf(!c.zeroFlagged())
	case 0xCA:
		c.jpIf(c.zeroFlagged())
	case 0xD2:
		c.jpIf(!c.carryFlagged())
	case 0xDA:
		c.jpIf(c.carryFlagged())

	case 0x18:
		c.jr()
	case 0x20:
		c.jrIf(!c.zeroFlagged())
	case 0x28:
		c.jrIf(c.zeroFlagged())
	case 0x30:
		c.jrIf(!c.carryFlagged())
	case 0x38:
		c.jrIf(c.carryFlagged())

	case 0xCD:
		c.call()
	case 0xC4:
		c.callIf(!c.zeroFlagged())
	case 0xCC:
		c.callIf(c.zeroFlagged())
	case 0xD4:
		c.callIf(!c.carryFlagged())
	case 0xDC:
		c.callIf(c.carryFlagged())

	case 0xC9:
		c.ret()
	case 0xD9: // RETI
		c.ret()
		c.irq.SetIME(true)
	case 0xC0:
		c.retIf(!c.zeroFlagged())
	case 0xC8:
		c.retIf(c.zeroFlagged())
	case 0xD0:
		c.retIf(!c.carryFlagged())
	case 0xD8:
		c.retIf(c.carryFlagged())

	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF:
		c.rst(uint16(opcode) & 0x38)

	// stack

	case 0xC5:
		c.clk.TickMachineCycle()
		c.pushByte(c.b)
		c.pushByte(c.c) // PUSH BC
	case 0xD5:
		c.clk.TickMachineCycle()
		c.pushByte(c.d)
		c.pushByte(c.e) // PUSH DE
	case 0xE5:
		c.clk.TickMachineCycle()
		c.pushByte(c.h)
		c.pushByte(c.l) // PUSH HL
	case 0xF5:
		c.clk.TickMachineCycle()
		c.pushByte(c.a)
		c.pushByte(c.storeFlags()) // PUSH AF

	case 0xC1:
		c.c = c.popByte()
		c.b = c.popByte() // POP BC
	case 0xD1:
		c.e = c.popByte()
		c.d = c.popByte() // POP DE
	case 0xE1:
		c.l = c.popByte()
		c.h = c.popByte() // POP HL
	case 0xF1:
		c.loadFlags(c.popByte())
		c.a = c.popByte() // POP AF

	default:
		// Invalid opcode: roll PC back onto it and freeze the CPU.
		c.pc--
		c.frozen = true
		c.invalidOpcode = opcode
	}
}

// executeCB runs one CB-prefixed opcode: the 3-bit operation selector and
// the 3-bit register index tile the whole 256-entry block.
func (c *CPU) executeCB() {
	op := c.popByteAtPC()
	index := op & 7
	cbBit := byte(1) << ((op >> 3) & 7)

	switch op >> 6 {
	case 0: // rotates & shifts
		v := c.reg8(index)
		var result byte
		switch (op >> 3) & 7 {
		case 0:
			result = c.rlc(v)
		case 1:
			result = c.rrc(v)
		case 2:
			result = c.rl(v)
		case 3:
			result = c.rr(v)
		case 4:
			result = c.sla(v)
		case 5:
			result = c.sra(v)
		case 6:
			result = c.swap(v)
		default:
			result = c.srl(v)
		}
		c.setReg8(index, result)

	case 1: // BIT b,r
		c.bitTest(c.reg8(index), (op>>3)&7)

	case 2: // RES b,r
		c.setReg8(index, c.reg8(index)&^cbBit)

	default: // SET b,r
		c.setReg8(index, c.reg8(index)|cbBit)
	}
}
