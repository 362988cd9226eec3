package jeebie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rook-valley/gbcore/jeebie/addr"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/device"
	"github.com/rook-valley/gbcore/jeebie/events"
)

func newCGBEmulator(t *testing.T) *Emulator {
	t.Helper()
	rom := buildROM(t, func(rom []byte) {
		rom[0x0143] = 0x80 // CGB-capable cartridge
	})
	e, err := New(rom, Config{Hardware: device.ForceCGB})
	require.NoError(t, err)
	return e
}

// Property 6 plus the sources-dmgABCmgbS masking rule: a DMA source above
// 0xDFFF wraps into WRAM, OAM reads 0xFF while the copy is running, and
// the copied bytes land once it finishes.
func TestOAMDMASourceMaskingAndProtection(t *testing.T) {
	e := newTestEmulator(t, Config{Hardware: device.ForceDMG})

	for i := 0; i < 160; i++ {
		e.bus.Write(0xC000+uint16(i), byte(i)^0x5A)
	}

	// Writing 0xE0 requests a copy from 0xE000, which hardware aliases to
	// 0xC000. The transfer starts four machine cycles later on DMG.
	e.bus.Write(addr.DMA, 0xE0)
	assert.Equal(t, byte(0xE0), e.bus.Read(addr.DMA), "DMA register always reads back")
	assert.False(t, e.bus.oamDMAActive)

	e.clk.TickCycles(4 * 4)
	e.bus.DrainEvents()
	require.True(t, e.bus.oamDMAActive)
	assert.Equal(t, uint16(0xC000), e.bus.oamDMAAddress)

	// Mid-transfer: OAM reads 0xFF and writes are dropped.
	e.clk.TickCycles(4 * 4)
	assert.Equal(t, byte(0xFF), e.bus.Read(addr.OAMStart))
	e.bus.Write(addr.OAMStart, 0x12)

	// Run the copy to completion.
	e.clk.TickCycles(160 * 4)
	e.bus.AdvanceOAMDMA()
	require.False(t, e.bus.oamDMAActive)

	for i := 0; i < 160; i++ {
		assert.Equal(t, byte(i)^0x5A, e.bus.Read(addr.OAMStart+uint16(i)), "OAM[%d]", i)
	}
}

func TestOAMDMAStartsFasterOnCGB(t *testing.T) {
	e := newCGBEmulator(t)
	e.bus.Write(addr.DMA, 0xC0)

	startCycle := e.queue.CycleOf(events.OAMDMAStart)
	require.NotEqual(t, clock.NoCycle, startCycle)
	assert.Equal(t, e.clk.Cycle()+e.clk.SpeedFactor(), startCycle, "one machine cycle on CGB")
}

func TestUnusableRegionPattern(t *testing.T) {
	dmg := newTestEmulator(t, Config{Hardware: device.ForceDMG})
	for a := uint16(0xFEA0); a <= 0xFEFF; a++ {
		require.Equal(t, byte(0x00), dmg.bus.Read(a), "DMG reads zero at %#04x", a)
	}

	cgb := newCGBEmulator(t)
	// Each 8-byte group of the seed appears four times per 32-byte row.
	assert.Equal(t, byte(0x08), cgb.bus.Read(0xFEA0))
	assert.Equal(t, cgb.bus.Read(0xFEA0), cgb.bus.Read(0xFEA8))
	assert.Equal(t, cgb.bus.Read(0xFEA0), cgb.bus.Read(0xFEB0))
	assert.Equal(t, cgb.bus.Read(0xFEA3), cgb.bus.Read(0xFEBB))
	assert.Equal(t, byte(0x24), cgb.bus.Read(0xFEE0))

	// Writes are dropped.
	cgb.bus.Write(0xFEA0, 0x99)
	assert.Equal(t, byte(0x08), cgb.bus.Read(0xFEA0))
}

// Gambatte dma/hdma_late_disable_1: cancelling an HDMA in the same cycle
// its next chunk is scheduled to start does not cancel that chunk.
func TestHDMALateDisable(t *testing.T) {
	e := newCGBEmulator(t)

	e.bus.hdmaActive = true
	e.bus.hdma5 = hdmaStartBit | 0x05
	e.queue.Schedule(events.HDMAStart, e.clk.Cycle())

	e.bus.writeHDMA5(0x00)
	assert.False(t, e.bus.hdmaActive)
	assert.NotEqual(t, clock.NoCycle, e.queue.CycleOf(events.HDMAStart),
		"the already-due chunk still runs")

	// A chunk scheduled in the future is removed by the same write.
	e.bus.hdmaActive = true
	e.queue.Schedule(events.HDMAStart, e.clk.Cycle()+100)
	e.bus.writeHDMA5(0x00)
	assert.Equal(t, clock.NoCycle, e.queue.CycleOf(events.HDMAStart))
}

func TestGDMACopiesToVRAM(t *testing.T) {
	e := newCGBEmulator(t)

	for i := 0; i < 0x20; i++ {
		e.bus.Write(0xC100+uint16(i), byte(0xA0+i))
	}

	// Source 0xC100, destination 0x8000 + 0x0200, two 0x10-byte blocks.
	e.bus.Write(addr.HDMA1, 0xC1)
	e.bus.Write(addr.HDMA2, 0x00)
	e.bus.Write(addr.HDMA3, 0x02)
	e.bus.Write(addr.HDMA4, 0x00)
	e.bus.Write(addr.HDMA5, 0x01) // top bit clear: general-purpose DMA

	require.True(t, e.bus.DuringDMA())
	e.bus.RunHDMABlock()
	assert.False(t, e.bus.DuringDMA())

	for i := 0; i < 0x20; i++ {
		assert.Equal(t, byte(0xA0+i), e.gpu.ReadVRAM(0x8200+uint16(i)), "VRAM[%#04x]", 0x8200+i)
	}
	assert.Equal(t, byte(0x7F), e.bus.Read(addr.HDMA5), "length exhausted, no HDMA pending")
}

func TestIORegisterGatingByProfile(t *testing.T) {
	dmg := newTestEmulator(t, Config{Hardware: device.ForceDMG})
	assert.Equal(t, byte(0xFF), dmg.bus.Read(addr.KEY1), "KEY1 absent on DMG")
	assert.Equal(t, byte(0xFF), dmg.bus.Read(addr.HDMA5), "HDMA5 absent on DMG")

	cgb := newCGBEmulator(t)
	assert.Equal(t, byte(0x7E), cgb.bus.Read(addr.KEY1))
}

func TestEchoRAM(t *testing.T) {
	e := newTestEmulator(t, Config{Hardware: device.ForceDMG})
	e.bus.Write(0xC123, 0x77)
	assert.Equal(t, byte(0x77), e.bus.Read(0xE123), "0xE000 echoes WRAM")

	e.bus.Write(0xE456, 0x88)
	assert.Equal(t, byte(0x88), e.bus.Read(0xC456))
}
