// Package serial implements SB/SC and the internal-clock transfer timing
// of the link port: an 8-step, DIV-aligned shift register rather
// than a byte-at-a-time timer. SB is read lazily, like TIMA, by computing
// how many of the 8 steps have elapsed since the transfer's first tick.
package serial

import (
	"github.com/rook-valley/gbcore/jeebie/addr"
	"github.com/rook-valley/gbcore/jeebie/bit"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/device"
	"github.com/rook-valley/gbcore/jeebie/events"
	"github.com/rook-valley/gbcore/jeebie/interrupt"
)

// Peer stands in for a real Game Boy on the other end of the link cable.
// Hardware with nothing attached never completes an EXTERNAL_CLOCK
// transfer; a Peer lets the core finish it anyway (and the
// supplemented "fallback peer" feature - a real link partner is never
// modeled, only a logging stand-in).
type Peer interface {
	// Exchange is offered the outgoing byte when an external-clock
	// transfer starts. It returns the byte to receive and whether the
	// transfer should be considered complete.
	Exchange(outgoing byte) (incoming byte, complete bool)
}

// Serial owns SB/SC and the internal-clock transfer state machine.
type Serial struct {
	clk     *clock.Clock
	queue   *events.Queue
	irq     *interrupt.Controller
	profile device.Profile
	peer    Peer

	sb byte
	sc byte // raw bits: 7=start, 1=CGB fast clock, 0=clock source (1=internal)

	transferActive bool
	firstStepCycle int32
	period         int32
}

// New creates a Serial port wired to the shared clock, event queue and
// interrupt controller, with peer as the default stand-in for external
// transfers (nil is valid: external transfers then never complete, as on
// real hardware with nothing attached).
func New(clk *clock.Clock, queue *events.Queue, irq *interrupt.Controller, profile device.Profile, peer Peer) *Serial {
	return &Serial{clk: clk, queue: queue, irq: irq, profile: profile, peer: peer}
}

// SetPeer replaces the external-transfer stand-in.
func (s *Serial) SetPeer(peer Peer) { s.peer = peer }

func (s *Serial) stepPeriod() int32 {
	shift := uint(9)
	if s.profile.IsCGB() && bit.IsSet(1, s.sc) {
		shift = 4
	}
	if s.clk.IsDoubleSpeed() {
		shift--
	}
	return int32(1) << shift
}

// stepsElapsed reports how many of the 8 transfer steps have completed by
// the current clock, clamped to 8.
func (s *Serial) stepsElapsed() int32 {
	if !s.transferActive {
		return 0
	}
	now := s.clk.Cycle()
	if now < s.firstStepCycle {
		return 0
	}
	n := int32(1) + (now-s.firstStepCycle)/s.period
	if n > 8 {
		n = 8
	}
	return n
}

// ReadSB returns SB progressively shifted as the transfer advances: bits
// already sent fall off the top, and vacated low bits read 1 (no peer
// supplies received bits mid-transfer).
func (s *Serial) ReadSB() byte {
	n := s.stepsElapsed()
	if n == 0 {
		return s.sb
	}
	shifted := s.sb << uint(n)
	mask := byte((1 << uint(n)) - 1)
	return shifted | mask
}

// WriteSB stores the outgoing byte directly.
func (s *Serial) WriteSB(value byte) { s.sb = value }

// ReadSC returns SC with its unused bits hard-wired: bit 1 (CGB fast clock
// select) only reads back meaningfully on CGB hardware.
func (s *Serial) ReadSC() byte {
	if s.profile.IsCGB() {
		return s.sc | 0x7C
	}
	return s.sc | 0x7E
}

// WriteSC stores SC and, if the start and internal-clock bits are both
// set, begins a transfer. A start request with the clock source bit clear
// halts any in-flight transfer into the unfinished EXTERNAL_CLOCK state,
// unless a Peer is attached to finish it anyway.
func (s *Serial) WriteSC(value byte) {
	s.sc = value & 0x83

	if !bit.IsSet(7, s.sc) {
		s.queue.Remove(events.SerialDone)
		s.transferActive = false
		return
	}

	if bit.IsSet(0, s.sc) {
		s.beginInternalTransfer()
		return
	}

	s.queue.Remove(events.SerialDone)
	s.transferActive = false
	if s.peer != nil {
		incoming, complete := s.peer.Exchange(s.sb)
		if complete {
			s.sb = incoming
			s.sc = bit.Clear(7, s.sc)
			s.irq.Trigger(addr.SerialInterrupt, s.clk.Cycle())
		}
	}
}

func (s *Serial) beginInternalTransfer() {
	s.period = s.stepPeriod()

	now := s.clk.Cycle()
	aligned := int32(s.clk.DivAlignedCounter())
	delay := s.period - (aligned % s.period)
	if delay == 0 {
		delay = s.period
	}

	s.transferActive = true
	s.firstStepCycle = now + delay
	completion := s.firstStepCycle + 7*s.period
	s.queue.Schedule(events.SerialDone, completion)
}

// UpdateState finishes an internal-clock transfer when its scheduled
// events.SerialDone entry comes due. With no peer attached SB
// settles to all 1s, matching an open line; a peer may supply a real
// received byte instead (used by LogSink purely to observe/log outgoing
// bytes, since it always reports back 0xFF).
func (s *Serial) UpdateState(now int32) {
	if !s.transferActive {
		return
	}
	outgoing := s.sb
	s.sb = 0xFF
	if s.peer != nil {
		if incoming, complete := s.peer.Exchange(outgoing); complete {
			s.sb = incoming
		}
	}
	s.sc = bit.Clear(7, s.sc)
	s.transferActive = false
	s.irq.Trigger(addr.SerialInterrupt, now)
}

// AfterDivReset recomputes the remaining transfer cycles after a DIV
// write, analogous to the timer.
func (s *Serial) AfterDivReset() {
	if !s.transferActive {
		return
	}
	stepBit := uint8(0)
	switch s.period {
	case 512:
		stepBit = 8
	case 256:
		stepBit = 7
	case 16:
		stepBit = 3
	case 8:
		stepBit = 2
	default:
		stepBit = 8
	}
	details := s.clk.GetDivResetDetails(stepBit)
	s.firstStepCycle += details.ClksAdjust
	completion := s.firstStepCycle + 7*s.period
	s.queue.Schedule(events.SerialDone, completion)
}

// SetBackClock rebases the stored absolute cycle by offset.
func (s *Serial) SetBackClock(offset int32) {
	if s.transferActive {
		s.firstStepCycle -= offset
	}
}
