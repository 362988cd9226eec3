package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/device"
	"github.com/rook-valley/gbcore/jeebie/events"
	"github.com/rook-valley/gbcore/jeebie/interrupt"
)

func newTimer(initialCycle int32) (*Timer, *clock.Clock, *events.Queue, *interrupt.Controller) {
	clk := clock.New(initialCycle)
	queue := events.New()
	irq := interrupt.New(device.Resolve(device.ForceDMG, false), clk)
	return New(clk, queue, irq), clk, queue, irq
}

func TestTimerStoppedReadsFrozenValue(t *testing.T) {
	tm, _, _, _ := newTimer(0)
	assert.Equal(t, byte(0), tm.ReadTIMA())
	tm.WriteTIMA(0x42)
	assert.Equal(t, byte(0x42), tm.ReadTIMA())
}

func TestTimerCountsAfterEnabled(t *testing.T) {
	tm, clk, _, _ := newTimer(0)
	tm.WriteTAC(0x05) // enabled, freq 01 -> shift 4 (every 16 cycles)

	clk.TickCycles(16)
	assert.Equal(t, byte(1), tm.ReadTIMA())

	clk.TickCycles(16 * 9)
	assert.Equal(t, byte(10), tm.ReadTIMA())
}

func TestTimerOverflowSchedulesReloadThenInterrupt(t *testing.T) {
	tm, clk, queue, irq := newTimer(0)
	irq.SetIME(true)
	irq.WriteIE(0xFF)

	tm.WriteTAC(0x05) // freq 01, shift 4
	tm.WriteTIMA(0xFF)

	// One increment period (16 cycles) away, TIMA overflows to 0.
	clk.TickCycles(16)
	kind := queue.Poll(clk.Cycle())
	assert.Equal(t, events.TimerIRQ, kind)
	tm.TriggerInterrupt(clk.Cycle())

	assert.Equal(t, byte(0), tm.ReadTIMA())
	assert.False(t, irq.ReadIF()&0x04 != 0, "interrupt must not fire yet")

	clk.TickCycles(clk.SpeedFactor())
	kind = queue.Poll(clk.Cycle())
	assert.Equal(t, events.TimerIRQ, kind)
	tm.TriggerInterrupt(clk.Cycle())

	assert.True(t, irq.ReadIF()&0x04 != 0, "TIMER interrupt should now be pending")
	assert.Equal(t, byte(0), tm.ReadTIMA(), "TIMA should have reloaded to TMA (0)")
}

func TestWriteTIMADuringReloadWindowIsDiscardedOneCycleLater(t *testing.T) {
	tm, clk, queue, _ := newTimer(0)
	tm.WriteTAC(0x05)
	tm.WriteTIMA(0xFF)

	clk.TickCycles(16)
	queue.Poll(clk.Cycle())
	tm.TriggerInterrupt(clk.Cycle())

	clk.TickCycles(clk.SpeedFactor())
	tm.WriteTIMA(0x99)
	assert.Equal(t, byte(0), tm.ReadTIMA(), "write exactly one M-cycle after overflow is discarded")
}

func TestWriteTMAWithinOverflowWindowUpdatesTIMA(t *testing.T) {
	tm, clk, queue, _ := newTimer(0)
	tm.WriteTAC(0x05)
	tm.WriteTMA(0x10)
	tm.WriteTIMA(0xFF)

	clk.TickCycles(16)
	queue.Poll(clk.Cycle())
	tm.TriggerInterrupt(clk.Cycle())

	tm.WriteTMA(0x55)
	assert.Equal(t, byte(0x55), tm.ReadTIMA())
}

func TestWriteTACStopDisablesCounting(t *testing.T) {
	tm, clk, _, _ := newTimer(0)
	tm.WriteTAC(0x05)
	clk.TickCycles(32)
	assert.Equal(t, byte(2), tm.ReadTIMA())

	tm.WriteTAC(0x01) // disable, same freq
	frozen := tm.ReadTIMA()
	clk.TickCycles(100)
	assert.Equal(t, frozen, tm.ReadTIMA(), "stopped timer must not advance")
}
