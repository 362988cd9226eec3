package cpu

import "github.com/rook-valley/gbcore/jeebie/bit"

// tickReadByte and tickWriteByte are the CPU's only path to the bus: every
// byte access costs one machine cycle, ticked here rather than folded into
// a per-opcode cycle count, so cycle-accurate behavior (including the
// bus's mid-instruction event draining and OAM DMA servicing on accesses
// at 0xFE00 and above) falls out naturally.
func (c *CPU) tickReadByte(address uint16) byte {
	c.clk.TickMachineCycle()
	return c.bus.Read(address)
}

func (c *CPU) tickWriteByte(address uint16, value byte) {
	c.clk.TickMachineCycle()
	c.bus.Write(address, value)
}

func (c *CPU) popByteAtPC() byte {
	v := c.tickReadByte(c.pc)
	c.pc++
	return v
}

func (c *CPU) popSignedByteAtPC() int8 {
	return int8(c.popByteAtPC())
}

func (c *CPU) popWordAtPC() uint16 {
	low := c.popByteAtPC()
	high := c.popByteAtPC()
	return bit.Combine(high, low)
}

func (c *CPU) pushByte(value byte) {
	c.sp--
	c.tickWriteByte(c.sp, value)
}

func (c *CPU) popByte() byte {
	v := c.tickReadByte(c.sp)
	c.sp++
	return v
}

func (c *CPU) pushPC() {
	c.pushByte(byte(c.pc >> 8))
	c.pushByte(byte(c.pc))
}

// jp, jpIf, call, callIf, ret, retIf, jr and jrIf implement the control
// flow opcodes' exact timing: a taken JP or JR costs one machine cycle
// more than a not-taken one, a taken CALL or RET cc three more.

func (c *CPU) jp() {
	low := c.popByteAtPC()
	high := c.popByteAtPC()
	c.pc = bit.Combine(high, low)
	c.clk.TickMachineCycle()
}

func (c *CPU) jpIf(condition bool) {
	if condition {
		c.jp()
		return
	}
	c.pc += 2
	c.clk.TickMachineCycle()
	c.clk.TickMachineCycle()
}

func (c *CPU) call() {
	retPC := c.pc + 2
	c.jp()
	c.pushByte(byte(retPC >> 8))
	c.pushByte(byte(retPC))
}

func (c *CPU) callIf(condition bool) {
	if condition {
		c.call()
		return
	}
	c.pc += 2
	c.clk.TickMachineCycle()
	c.clk.TickMachineCycle()
}

func (c *CPU) ret() {
	low := c.popByte()
	high := c.popByte()
	c.pc = bit.Combine(high, low)
	c.clk.TickMachineCycle()
}

func (c *CPU) retIf(condition bool) {
	c.clk.TickMachineCycle()
	if condition {
		c.ret()
	}
}

func (c *CPU) jr() {
	offset := int32(c.popSignedByteAtPC())
	c.pc = uint16((offset + int32(c.pc)) & 0xFFFF)
	c.clk.TickMachineCycle()
}

func (c *CPU) jrIf(condition bool) {
	if condition {
		c.jr()
		return
	}
	c.pc++
	c.clk.TickMachineCycle()
}

func (c *CPU) rst(vector uint16) {
	c.clk.TickMachineCycle()
	c.pushPC()
	c.pc = vector
}
