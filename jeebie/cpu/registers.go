package cpu

import "github.com/rook-valley/gbcore/jeebie/bit"

// bc, de and hl read the three general-purpose register pairs.
func (c *CPU) bc() uint16 { return bit.Combine(c.b, c.c) }
func (c *CPU) de() uint16 { return bit.Combine(c.d, c.e) }
func (c *CPU) hl() uint16 { return bit.Combine(c.h, c.l) }

func (c *CPU) setBC(v uint16) { c.b, c.c = bit.High(v), bit.Low(v) }
func (c *CPU) setDE(v uint16) { c.d, c.e = bit.High(v), bit.Low(v) }
func (c *CPU) setHL(v uint16) { c.h, c.l = bit.High(v), bit.Low(v) }

// af reconstructs the AF pair from A and the synthesized flag byte, since
// F is never stored directly (see flags.go). PUSH AF and the debug
// snapshot call storeFlags themselves rather than going through af.
func (c *CPU) af() uint16 { return bit.Combine(c.a, c.storeFlags()) }

// reg8 and setReg8 index the eight-entry register-or-memory group used by
// the register-to-register LD block (0x40-0x7F, excluding HALT) and every
// ALU-over-register opcode (0x80-0xBF, 0x04/0x05 family, the CB block):
// B, C, D, E, H, L, (HL), A, in that encoding order.
func (c *CPU) reg8(index uint8) byte {
	switch index {
	case 0:
		return c.b
	case 1:
		return c.c
	case 2:
		return c.d
	case 3:
		return c.e
	case 4:
		return c.h
	case 5:
		return c.l
	case 6:
		return c.tickReadByte(c.hl())
	default:
		return c.a
	}
}

func (c *CPU) setReg8(index uint8, value byte) {
	switch index {
	case 0:
		c.b = value
	case 1:
		c.c = value
	case 2:
		c.d = value
	case 3:
		c.e = value
	case 4:
		c.h = value
	case 5:
		c.l = value
	case 6:
		c.tickWriteByte(c.hl(), value)
	default:
		c.a = value
	}
}
