// Package cpu implements the Sharp SM83 instruction set and the
// fetch/dispatch/interrupt protocol of the real chip: a
// prefetched-opcode execution loop, deferred flag synthesis instead of a
// stored F register, and the five-machine-cycle interrupt dispatch
// sequence.
package cpu

import (
	"github.com/rook-valley/gbcore/jeebie/addr"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/device"
	"github.com/rook-valley/gbcore/jeebie/events"
	"github.com/rook-valley/gbcore/jeebie/interrupt"
)

// Bus is the address-space view the CPU needs: plain byte access plus the
// two bus-side hooks a few opcodes drive directly (the event drain HALT
// performs to see a fresh IF, and STOP's DIV-reset/speed-switch sequence).
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	DrainEvents()
	ExecuteStop()
}

// CPU holds the SM83 register file, the four flag indicators described in
// flags.go, and the prefetch/freeze/EI-pending state machine that drives
// Emulate.
type CPU struct {
	profile device.Profile
	bus     Bus
	clk     *clock.Clock
	irq     *interrupt.Controller
	queue   *events.Queue

	a, b, c, d, e, h, l byte
	sp, pc              uint16

	// The deferred flag indicators (flags.go).
	zero, carry, hcsFlags, hcsOperand int32

	prefetchedOpcode byte

	eiPending bool
	frozen    bool
	ldBB      bool // set by opcode 0x40 (LD B,B), a common test-ROM marker

	invalidOpcode byte
}

// New creates a CPU with its prefetch already primed at the profile's
// reset vector (0x0100) and its registers seeded to the documented
// DMG/CGB post-boot-ROM values.
func New(profile device.Profile, bus Bus, clk *clock.Clock, irq *interrupt.Controller, queue *events.Queue) *CPU {
	c := &CPU{
		profile: profile,
		bus:     bus,
		clk:     clk,
		irq:     irq,
		queue:   queue,
		pc:      0x0100,
		sp:      0xFFFE,
	}

	if profile.IsCGB() {
		c.a = 0x11
		c.loadFlags(0x80)
		c.b, c.c, c.d, c.e, c.h, c.l = 0x00, 0x00, 0x00, 0x08, 0x00, 0x7C
	} else {
		c.a = 0x01
		c.loadFlags(0xB0)
		c.b, c.c, c.d, c.e, c.h, c.l = 0x00, 0x13, 0x00, 0xD8, 0x01, 0x4D
	}

	c.prefetchedOpcode = bus.Read(c.pc)
	return c
}

// Frozen reports whether the CPU hit an invalid opcode and stopped
// executing entirely.
func (c *CPU) Frozen() bool { return c.frozen }

// InvalidOpcode returns the opcode byte that froze the CPU; only
// meaningful once Frozen reports true.
func (c *CPU) InvalidOpcode() byte { return c.invalidOpcode }

// LDBBExecuted reports whether the test-completion marker opcode (LD B,B)
// has run, the convention a number of accuracy test ROMs use to signal
// "done" to a harness polling the CPU state instead of the LCD.
func (c *CPU) LDBBExecuted() bool { return c.ldBB }

// Registers snapshots the general-purpose register file and synthesized F,
// for debugging/disassembly and test-ROM result harnesses.
type Registers struct {
	A, B, C, D, E, H, L, F byte
	SP, PC                 uint16
}

func (c *CPU) Registers() Registers {
	return Registers{
		A: c.a, B: c.b, C: c.c, D: c.d, E: c.e, H: c.h, L: c.l,
		F:  c.storeFlags(),
		SP: c.sp, PC: c.pc,
	}
}

// Emulate runs exactly one step: the delayed-EI instruction, an interrupt
// dispatch, or the next prefetched instruction, in that priority order.
// Callers must not invoke this while Frozen is true.
func (c *CPU) Emulate() {
	if c.eiPending {
		c.executePrefetched()

		// Enable interrupts only if that instruction wasn't itself DI.
		if c.eiPending {
			c.irq.SetIME(true)
			c.eiPending = false
		}
		return
	}

	c.bus.DrainEvents()
	if _, ok := c.irq.NextInterruptBit(); ok {
		c.dispatchInterrupt()
		return
	}

	c.executePrefetched()
}

// dispatchInterrupt runs the five-machine-cycle dispatch sequence: two
// idle cycles, then PC pushed high-then-low with a fresh event drain
// between the two pushes (a push landing on IE/IF at 0xFFFF/0xFF0F can
// change which interrupt actually fires), then the selected IF bit is
// cleared and PC vectors to the matching handler.
func (c *CPU) dispatchInterrupt() {
	c.clk.TickMachineCycle()
	c.clk.TickMachineCycle()

	c.pushByte(byte(c.pc >> 8))

	c.bus.DrainEvents()
	bitPos, ok := c.irq.SelectedBit()

	c.pushByte(byte(c.pc))

	if ok {
		c.irq.BeginDispatch(bitPos)
		c.pc = addr.InterruptVector(bitPos)
	} else {
		// Nothing left pending after the pushes: vectors to 0x0000, the
		// same fallback AGE's raw-bitmask lookup table gives any index
		// that isn't one of the five valid interrupt bits.
		c.pc = 0x0000
	}

	c.prefetchedOpcode = c.tickReadByte(c.pc)
	c.irq.EndDispatch()
}

// tryHalt enters HALT if nothing is currently pending-and-enabled,
// returning whether it did; shared by the HALT and STOP opcodes.
func (c *CPU) tryHalt() bool {
	if c.irq.PendingMask() != 0 {
		return false
	}
	c.irq.SetHalted(true)
	return true
}
