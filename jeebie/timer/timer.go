// Package timer implements TIMA/TMA/TAC: a DIV-driven,
// lazily-derived counter rather than a per-cycle increment loop. TIMA's
// value is always recomputed from the master clock on demand; the only
// thing scheduled ahead of time is the single future cycle at which the
// counter will next overflow, via one events.TimerIRQ entry that alternates
// between "overflow reached" and "interrupt asserted" phases.
package timer

import (
	"github.com/rook-valley/gbcore/jeebie/addr"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/events"
	"github.com/rook-valley/gbcore/jeebie/interrupt"
)

// Timer owns TIMA/TMA/TAC and the virtual clk_timer_zero cycle at which
// TIMA logically equals zero.
type Timer struct {
	clk   *clock.Clock
	queue *events.Queue
	irq   *interrupt.Controller

	tma byte
	tac byte

	running bool
	shift   uint8 // derived from tac & 3

	// clkTimerZero is only meaningful while running; tima holds the frozen
	// value while stopped.
	clkTimerZero int32
	tima         byte

	clkLastOverflow int32
	// awaitingAssert distinguishes the two phases a single scheduled
	// events.TimerIRQ entry can represent: false means "fires at the
	// overflow instant", true means "fires one machine cycle later, to
	// actually raise the interrupt".
	awaitingAssert bool
}

// New creates a Timer wired to the shared clock, event queue and interrupt
// controller. All registers start at zero, matching power-on state.
func New(clk *clock.Clock, queue *events.Queue, irq *interrupt.Controller) *Timer {
	return &Timer{
		clk:             clk,
		queue:           queue,
		irq:             irq,
		shift:           shiftForFreq(0, false),
		clkLastOverflow: clock.NoCycle,
	}
}

// shiftForFreq maps TAC's frequency bits to the increment period's shift:
// {00: 10, 01: 4, 10: 6, 11: 8}, one less at CGB double speed since the
// timer then increments twice as often per T-cycle.
func shiftForFreq(freq byte, doubleSpeed bool) uint8 {
	var shift uint8
	switch freq & 0x03 {
	case 1:
		shift = 4
	case 2:
		shift = 6
	case 3:
		shift = 8
	default:
		shift = 10
	}
	if doubleSpeed {
		shift--
	}
	return shift
}

// triggerBitForFreq returns the DIV-aligned counter bit watched for
// high-to-low edges when TAC's enable or frequency bits change, at
// position 2*((freq-1)&3)+2, adjusted down by one at double speed to
// track ReadDiv's shifted window.
func triggerBitForFreq(freq byte, doubleSpeed bool) uint8 {
	f := int32(freq & 0x03)
	bit := uint8(2*(((f-1)%4+4)%4) + 2)
	if doubleSpeed {
		bit--
	}
	return bit
}

func (t *Timer) triggerBitHigh(bit uint8) bool {
	return (t.clk.DivAlignedCounter()>>bit)&1 == 1
}

// currentTIMA recomputes TIMA from the master clock while running, or
// returns the frozen value while stopped.
func (t *Timer) currentTIMA() byte {
	if !t.running {
		return t.tima
	}
	elapsed := t.clk.Cycle() - t.clkTimerZero
	return byte((elapsed >> t.shift) & 0xFF)
}

// setTIMA establishes value as TIMA's current reading, from this instant
// on, under whichever shift/running state is presently active.
func (t *Timer) setTIMA(value byte) {
	if t.running {
		t.clkTimerZero = t.clk.Cycle() - (int32(value) << t.shift)
	} else {
		t.tima = value
	}
}

// ReadTIMA returns 0 during the one-cycle reload window at clk_last_overflow,
// otherwise the recomputed counter value.
func (t *Timer) ReadTIMA() byte {
	if t.running && t.clkLastOverflow != clock.NoCycle && t.clk.Cycle() == t.clkLastOverflow {
		return 0
	}
	return t.currentTIMA()
}

// WriteTIMA applies the reload-window write rules: a write exactly one
// machine cycle after an overflow is discarded outright; a write on the
// same cycle as the overflow is allowed and cancels the pending interrupt.
func (t *Timer) WriteTIMA(value byte) {
	now := t.clk.Cycle()
	if t.clkLastOverflow != clock.NoCycle {
		elapsed := now - t.clkLastOverflow
		if elapsed == t.clk.SpeedFactor() {
			return
		}
		if elapsed == 0 {
			t.queue.Remove(events.TimerIRQ)
			t.awaitingAssert = false
			t.clkLastOverflow = clock.NoCycle
		}
	}
	t.setTIMA(value)
	t.restart()
}

// ReadTMA returns the stored reload value.
func (t *Timer) ReadTMA() byte { return t.tma }

// WriteTMA stores the new reload value; if written within one machine
// cycle of the last overflow it also becomes TIMA's value immediately.
func (t *Timer) WriteTMA(value byte) {
	t.tma = value
	now := t.clk.Cycle()
	if t.clkLastOverflow != clock.NoCycle && now-t.clkLastOverflow <= t.clk.SpeedFactor() {
		t.setTIMA(value)
		t.clkLastOverflow = clock.NoCycle
	}
	t.restart()
}

// ReadTAC returns TAC with its unused upper bits hard-wired to 1.
func (t *Timer) ReadTAC() byte { return t.tac | 0xF8 }

// WriteTAC starts/stops the timer on an enable-bit change, and applies the
// immediate-increment glitch when the frequency changes while running and
// the watched trigger bit falls from high to low.
func (t *Timer) WriteTAC(value byte) {
	newTAC := value & 0x07
	newRunning := newTAC&0x04 != 0
	newFreq := newTAC & 0x03
	oldFreq := t.tac & 0x03
	wasRunning := t.running

	wasHigh := wasRunning && t.triggerBitHigh(triggerBitForFreq(oldFreq, t.clk.IsDoubleSpeed()))

	if wasRunning != newRunning {
		if wasRunning {
			t.tima = t.currentTIMA()
		}
		t.tac = newTAC
		t.running = newRunning
		t.shift = shiftForFreq(newFreq, t.clk.IsDoubleSpeed())
		if t.running {
			t.setTIMA(t.tima)
		}
		t.restart()
		return
	}

	current := t.currentTIMA()
	t.tac = newTAC
	t.shift = shiftForFreq(newFreq, t.clk.IsDoubleSpeed())

	willBeHigh := t.running && t.triggerBitHigh(triggerBitForFreq(newFreq, t.clk.IsDoubleSpeed()))

	if wasHigh && !willBeHigh && t.running {
		if current == 0xFF {
			t.setTIMA(current)
			t.reloadOnOverflow(t.clk.Cycle())
			return
		}
		current++
	}

	t.setTIMA(current)
	t.restart()
}

// reloadOnOverflow performs the "TIMA wraps to 0, reload scheduled one
// machine cycle out" half of the overflow sequence.
func (t *Timer) reloadOnOverflow(now int32) {
	t.clkLastOverflow = now
	if t.running {
		t.clkTimerZero = now - (int32(t.tma) << t.shift)
	} else {
		t.tima = t.tma
	}
	t.awaitingAssert = true
	t.queue.Schedule(events.TimerIRQ, now+t.clk.SpeedFactor())
}

// TriggerInterrupt is called by the bus when a scheduled events.TimerIRQ
// entry comes due. The first time, it is the overflow instant itself and
// triggers a reload; the second time (one machine cycle later) it actually
// raises the CPU interrupt and schedules the next overflow.
func (t *Timer) TriggerInterrupt(now int32) {
	if t.awaitingAssert {
		t.awaitingAssert = false
		t.irq.Trigger(addr.TimerInterrupt, now)
		if t.running {
			period := int32(256) << t.shift
			t.queue.Schedule(events.TimerIRQ, t.clkTimerZero+period)
		}
		return
	}
	t.reloadOnOverflow(now)
}

// restart clears any pending scheduling and, if running, schedules the
// next overflow instant.
func (t *Timer) restart() {
	t.queue.Remove(events.TimerIRQ)
	t.awaitingAssert = false
	if !t.running {
		return
	}
	period := int32(256) << t.shift
	t.queue.Schedule(events.TimerIRQ, t.clkTimerZero+period)
}

// AfterDivReset adjusts clk_timer_zero by the delta clock.GetDivResetDetails
// reports for the timer's own increment period, then reschedules.
func (t *Timer) AfterDivReset() {
	t.applyDivResetAdjustment()
}

// AfterSpeedChange rescales the distance to the next overflow: the same
// number of machine cycles remain, but each one is now worth a different
// number of T-cycles, and the increment period's shift moves by one.
func (t *Timer) AfterSpeedChange() {
	if !t.running {
		return
	}

	oldOverflow := t.clkTimerZero + int32(0x100)<<t.shift
	now := t.clk.Cycle()
	clksUntilOverflow := oldOverflow - now
	if t.clk.IsDoubleSpeed() {
		clksUntilOverflow >>= 1
	} else {
		clksUntilOverflow <<= 1
	}

	t.shift = shiftForFreq(t.tac, t.clk.IsDoubleSpeed())
	t.clkTimerZero = now + clksUntilOverflow - int32(0x100)<<t.shift
	t.restart()
}

func (t *Timer) applyDivResetAdjustment() {
	if !t.running {
		return
	}
	details := t.clk.GetDivResetDetails(t.shift - 1)
	t.clkTimerZero += details.ClksAdjust
	t.restart()
}

// SetBackClock rebases the stored absolute cycles by offset, mirroring
// clock.Clock.SetBackClock.
func (t *Timer) SetBackClock(offset int32) {
	if t.running {
		t.clkTimerZero -= offset
	}
	if t.clkLastOverflow != clock.NoCycle {
		t.clkLastOverflow -= offset
	}
}
