package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickMachineCycleFollowsSpeed(t *testing.T) {
	c := New(0)
	c.TickMachineCycle()
	assert.Equal(t, int32(4), c.Cycle())

	c.ArmSpeedSwitch(true)
	assert.True(t, c.ChangeSpeed())
	c.TickMachineCycle()
	assert.Equal(t, int32(6), c.Cycle())
	assert.Equal(t, int32(2), c.SpeedFactor())
}

func TestChangeSpeedRequiresArming(t *testing.T) {
	c := New(0)
	assert.False(t, c.ChangeSpeed())
	assert.False(t, c.IsDoubleSpeed())

	c.WriteKey1(0x01)
	assert.True(t, c.ChangeSpeed())
	assert.True(t, c.IsDoubleSpeed())
	assert.False(t, c.SpeedSwitchArmed(), "arm bit clears after a switch")

	// Switching back requires re-arming.
	assert.False(t, c.ChangeSpeed())
	c.WriteKey1(0x01)
	assert.True(t, c.ChangeSpeed())
	assert.False(t, c.IsDoubleSpeed())
}

func TestReadKey1(t *testing.T) {
	c := New(0)
	assert.Equal(t, byte(0x7E), c.ReadKey1())

	c.WriteKey1(0x01)
	assert.Equal(t, byte(0x7F), c.ReadKey1())

	c.ChangeSpeed()
	assert.Equal(t, byte(0xFE), c.ReadKey1())
}

func TestDivDerivation(t *testing.T) {
	c := New(0)
	assert.Equal(t, byte(0), c.ReadDiv())

	c.TickCycles(0x100)
	assert.Equal(t, byte(1), c.ReadDiv())

	c.TickCycles(0xFF00 - 0x100)
	assert.Equal(t, byte(0xFF), c.ReadDiv())
}

func TestWriteDivResetsVisibleCounter(t *testing.T) {
	c := New(0x1234)
	c.WriteDiv()
	assert.Equal(t, byte(0), c.ReadDiv())
	assert.Equal(t, uint16(0), c.DivAlignedCounter())

	c.TickCycles(0x100)
	assert.Equal(t, byte(1), c.ReadDiv())
}

func TestDivDoubleSpeedWindow(t *testing.T) {
	c := New(0)
	c.ArmSpeedSwitch(true)
	c.ChangeSpeed()
	c.WriteDiv()

	// At double speed the visible byte is bits 14-7 of the counter.
	c.TickCycles(0x80)
	assert.Equal(t, byte(1), c.ReadDiv())
}

func TestDivResetDetails(t *testing.T) {
	testCases := []struct {
		name       string
		counter    int32
		triggerBit uint8
		wantOld    int32
		wantNew    int32
		wantAdjust int32
	}{
		// Bit 3 (period 16): counter 0x04, bit low; the watched counter
		// ticks on the bit's falling edge, 12 clocks away at the wrap.
		{"bit low", 0x04, 3, 12, 16, 4},
		// Counter 0x0C: bit 3 high, falls across the reset: negative adjust.
		{"bit high falls", 0x0C, 3, 4, 16, -4},
		// Counter exactly 0: a full period to the next edge either way.
		{"aligned", 0x00, 3, 16, 16, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(tc.counter)
			c.WriteDiv()
			details := c.GetDivResetDetails(tc.triggerBit)
			assert.Equal(t, tc.wantOld, details.ClksToOldInc)
			assert.Equal(t, tc.wantNew, details.ClksToNewInc)
			assert.Equal(t, tc.wantAdjust, details.ClksAdjust)
		})
	}
}

func TestSpeedSwitchDelay(t *testing.T) {
	c := New(0)
	assert.Equal(t, int32(0x20000), c.SpeedSwitchDelay())

	c.ArmSpeedSwitch(true)
	c.ChangeSpeed()
	assert.Equal(t, int32(0x10000), c.SpeedSwitchDelay())
}

func TestRebase(t *testing.T) {
	c := New(0)
	assert.Zero(t, c.RebaseOffset(), "no rebase due below the limit")

	c.TickCycles(2*CyclesPerSecond + 123)
	offset := c.RebaseOffset()
	assert.Equal(t, 2*CyclesPerSecond, offset)
	assert.Zero(t, offset%CyclesPerSecond, "offset is a whole-second multiple")

	before := c.ReadDiv()
	c.SetBackClock(offset)
	assert.Equal(t, int32(123), c.Cycle())
	// A whole-second offset is a multiple of 0x10000, so DIV is unchanged.
	assert.Equal(t, before, c.ReadDiv())
}
