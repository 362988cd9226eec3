// Package interrupt implements the IF/IE/IME register trio and the
// dispatch protocol and HALT wake-up rules. It plays three roles:
// peripherals call Trigger, the bus calls ReadIF/WriteIF/WriteIE, and the
// CPU drives the actual dispatch sequence using NextInterruptBit,
// BeginDispatch and EndDispatch.
package interrupt

import (
	"github.com/rook-valley/gbcore/jeebie/addr"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/device"
)

// Controller owns IF, IE, IME, HALTED and the mid-dispatch bookkeeping
// that lets CGB hardware deny a same-cycle re-request of the interrupt
// currently being acknowledged.
type Controller struct {
	profile device.Profile
	clk     *clock.Clock

	ifReg byte
	ieReg byte
	ime   bool

	halted bool

	// duringDispatch is the bitmask (single bit, or 0) of the IF bit
	// currently being acknowledged by an in-flight dispatch sequence.
	duringDispatch byte
}

// New creates a Controller wired to the given device profile and clock.
// clk is a non-owning reference: the facade owns the real Clock instance.
func New(profile device.Profile, clk *clock.Clock) *Controller {
	return &Controller{profile: profile, clk: clk}
}

// serialOrTimerMask is the {SERIAL, TIMER} mask used by the CGB same-cycle
// re-request denial rule in Trigger.
const serialOrTimerMask = addr.SerialInterrupt | addr.TimerInterrupt

// Trigger sets the IF bit for kind, subject to the CGB same-cycle denial
// rule, and handles HALT wake-up timing.
func (c *Controller) Trigger(kind addr.Interrupt, irqCycle int32) {
	bitMask := byte(kind)

	if c.profile.IsCGB() && c.duringDispatch&byte(serialOrTimerMask) != 0 && bitMask&byte(serialOrTimerMask) != 0 {
		return
	}

	c.ifReg |= bitMask

	if c.halted && (c.ifReg&c.ieReg&0x1F) != 0 {
		c.halted = false
		if c.clk != nil {
			if c.profile.IsCGB() {
				c.clk.TickMachineCycle()
			} else {
				half := c.clk.SpeedFactor() / 2
				if c.clk.Cycle()-irqCycle < half {
					c.clk.TickMachineCycle()
				}
			}
		}
	}
}

// ReadIF returns IF with the unused upper 3 bits hard-wired to 1.
func (c *Controller) ReadIF() byte {
	return c.ifReg | 0xE0
}

// WriteIF keeps the low 5 bits of the argument; the upper 3 bits always
// read back as 1.
func (c *Controller) WriteIF(value byte) {
	c.ifReg = value & 0x1F
}

// ReadIE returns the interrupt-enable register as stored.
func (c *Controller) ReadIE() byte {
	return c.ieReg
}

// WriteIE stores the argument as given.
func (c *Controller) WriteIE(value byte) {
	c.ieReg = value
}

// IME reports the master interrupt enable flag.
func (c *Controller) IME() bool { return c.ime }

// SetIME sets the master interrupt enable flag.
func (c *Controller) SetIME(v bool) { c.ime = v }

// Halted reports whether the CPU is in the HALT state.
func (c *Controller) Halted() bool { return c.halted }

// SetHalted enters or exits the HALT state directly (used by the CPU when
// HALT executes with no interrupt pending).
func (c *Controller) SetHalted(v bool) { c.halted = v }

// PendingMask returns IF & IE & 0x1F, the raw pending-and-enabled mask
// used for the HALT entry check regardless of IME.
func (c *Controller) PendingMask() byte {
	return c.ifReg & c.ieReg & 0x1F
}

// NextInterruptBit returns the bit position (0-4) of the lowest set bit in
// IE & IF & 0x1F, but only if IME is set; ok is false if IME is clear or
// nothing is pending; the CPU should not dispatch in that case.
func (c *Controller) NextInterruptBit() (bit uint8, ok bool) {
	if !c.ime {
		return 0, false
	}
	mask := c.PendingMask()
	if mask == 0 {
		return 0, false
	}
	for i := uint8(0); i < 5; i++ {
		if mask&(1<<i) != 0 {
			return i, true
		}
	}
	return 0, false
}

// BeginDispatch clears the IF bit being acknowledged and records it in
// duringDispatch, per the dispatch protocol's "clear the selected IF bit"
// step.
func (c *Controller) BeginDispatch(bit uint8) {
	c.ifReg &^= 1 << bit
	c.duringDispatch = 1 << bit
}

// EndDispatch clears IME and the duringDispatch marker, the final step of
// the dispatch protocol.
func (c *Controller) EndDispatch() {
	c.ime = false
	c.duringDispatch = 0
}

// SelectedBit re-reads IF & IE & 0x1F mid-dispatch and returns the lowest
// set bit (the push to the stack may have landed on IE/IF if SP pointed
// there, changing which interrupt actually fires). ok is false if nothing
// remains pending, in which case dispatch vectors to 0x0000.
func (c *Controller) SelectedBit() (bit uint8, ok bool) {
	mask := c.PendingMask()
	if mask == 0 {
		return 0, false
	}
	for i := uint8(0); i < 5; i++ {
		if mask&(1<<i) != 0 {
			return i, true
		}
	}
	return 0, false
}
