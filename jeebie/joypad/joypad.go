// Package joypad implements the P1 register: two 4-bit
// button groups multiplexed onto one nibble, with an edge-triggered
// JOYPAD interrupt fired whenever the currently-selected group's exposed
// bits fall high-to-low.
package joypad

import (
	"github.com/rook-valley/gbcore/jeebie/addr"
	"github.com/rook-valley/gbcore/jeebie/bit"
	"github.com/rook-valley/gbcore/jeebie/interrupt"
)

// Button identifies one of the eight physical inputs.
type Button uint8

const (
	Right Button = iota
	Left
	Up
	Down
	A
	B
	Select
	Start
)

// Joypad owns the direction (P14) and action (P15) 4-bit registers and
// the P1 group-select line. Both registers hold 1 = released, matching
// the active-low wiring of the real hardware.
type Joypad struct {
	irq *interrupt.Controller

	direction uint8 // bits 0-3: right, left, up, down
	action    uint8 // bits 0-3: a, b, select, start

	selectDirection bool
	selectAction    bool
}

// New creates a Joypad with every button released, wired to irq for the
// edge-triggered JOYPAD interrupt.
func New(irq *interrupt.Controller) *Joypad {
	return &Joypad{irq: irq, direction: 0x0F, action: 0x0F}
}

// ReadP1 returns P1: bits 6-7 always read 1, the selected group(s) occupy
// bits 4-5, and the low nibble is the AND of every selected group (both
// groups wired low when both select lines are asserted, as on hardware).
func (j *Joypad) ReadP1() uint8 {
	nibble := uint8(0x0F)
	if j.selectDirection {
		nibble &= j.direction
	}
	if j.selectAction {
		nibble &= j.action
	}

	p1 := uint8(0xC0) | nibble
	p1 = bit.SetIf(4, p1, !j.selectDirection)
	p1 = bit.SetIf(5, p1, !j.selectAction)
	return p1
}

// WriteP1 updates which group(s) are exposed in the low nibble.
func (j *Joypad) WriteP1(value uint8) {
	j.selectDirection = !bit.IsSet(4, value)
	j.selectAction = !bit.IsSet(5, value)
}

func (j *Joypad) exposedNibble() uint8 {
	nibble := uint8(0x0F)
	if j.selectDirection {
		nibble &= j.direction
	}
	if j.selectAction {
		nibble &= j.action
	}
	return nibble
}

// SetDown presses button, triggering JOYPAD if the currently-exposed
// nibble falls high-to-low as a result.
func (j *Joypad) SetDown(button Button, now int32) {
	before := j.exposedNibble()
	j.setRegisterBit(button, false)
	j.raiseOnFallingEdge(before, now)
}

// SetUp releases button.
func (j *Joypad) SetUp(button Button) {
	j.setRegisterBit(button, true)
}

func (j *Joypad) setRegisterBit(button Button, released bool) {
	switch button {
	case Right:
		j.direction = bit.SetIf(0, j.direction, released)
	case Left:
		j.direction = bit.SetIf(1, j.direction, released)
	case Up:
		j.direction = bit.SetIf(2, j.direction, released)
	case Down:
		j.direction = bit.SetIf(3, j.direction, released)
	case A:
		j.action = bit.SetIf(0, j.action, released)
	case B:
		j.action = bit.SetIf(1, j.action, released)
	case Select:
		j.action = bit.SetIf(2, j.action, released)
	case Start:
		j.action = bit.SetIf(3, j.action, released)
	}
}

func (j *Joypad) raiseOnFallingEdge(before uint8, now int32) {
	after := j.exposedNibble()
	if before&^after != 0 {
		j.irq.Trigger(addr.JoypadInterrupt, now)
	}
}
