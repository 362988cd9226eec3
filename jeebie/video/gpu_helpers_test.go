package video

import (
	"github.com/rook-valley/gbcore/jeebie/addr"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/device"
	"github.com/rook-valley/gbcore/jeebie/interrupt"
)

// newTestGPU builds a GPU wired to a fresh DMG clock/interrupt pair, for
// tests that only care about rendering and register behavior.
func newTestGPU() *GPU {
	clk := clock.New(0)
	profile := device.Resolve(device.ForceDMG, false)
	irq := interrupt.New(profile, clk)
	return NewGpu(profile, clk, irq)
}

// testWrite dispatches a flat address write the way the bus's address
// decode does: VRAM, OAM and every other address route to the matching
// GPU-owned store.
func (g *GPU) testWrite(address uint16, value byte) {
	switch {
	case address >= addr.TileData0 && address < addr.OAMStart:
		g.WriteVRAM(address, value)
	case address >= addr.OAMStart && address <= addr.OAMEnd:
		g.WriteOAM(address, value)
	default:
		g.WriteRegister(address, value)
	}
}

func (g *GPU) testRead(address uint16) byte {
	switch {
	case address >= addr.TileData0 && address < addr.OAMStart:
		return g.ReadVRAM(address)
	case address >= addr.OAMStart && address <= addr.OAMEnd:
		return g.ReadOAM(address)
	default:
		return g.ReadRegister(address)
	}
}
