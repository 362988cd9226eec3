package jeebie

import (
	"github.com/rook-valley/gbcore/jeebie/addr"
	"github.com/rook-valley/gbcore/jeebie/audio"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/device"
	"github.com/rook-valley/gbcore/jeebie/events"
	"github.com/rook-valley/gbcore/jeebie/interrupt"
	"github.com/rook-valley/gbcore/jeebie/joypad"
	"github.com/rook-valley/gbcore/jeebie/memory"
	"github.com/rook-valley/gbcore/jeebie/serial"
	"github.com/rook-valley/gbcore/jeebie/timer"
	"github.com/rook-valley/gbcore/jeebie/video"
)

// unusableDumpSource is the 24-byte seed the 0xFEA0-0xFEFF CGB read
// pattern is derived from (itself lifted from gambatte's initstate
// dumps). DMG has no equivalent: the region simply reads zero there.
var unusableDumpSource = [0x18]byte{
	0x08, 0x01, 0xEF, 0xDE, 0x06, 0x4A, 0xCD, 0xBD,
	0x00, 0x90, 0xF7, 0x7F, 0xC0, 0xB1, 0xBC, 0xFB,
	0x24, 0x13, 0xFD, 0x3A, 0x10, 0x10, 0xAD, 0x45,
}

// buildUnusablePattern expands the 24-byte seed into the 96-byte
// 0xFEA0-0xFEFF fill: each of the three 8-byte groups is quadrupled into
// a 32-byte row (8 bytes copied twice back to back, then that 16-byte
// half duplicated once more).
func buildUnusablePattern() [0x60]byte {
	var out [0x60]byte
	for i := 0; i < 3; i++ {
		srcOfs := i * 8
		dstOfs := i * 0x20
		copy(out[dstOfs:dstOfs+8], unusableDumpSource[srcOfs:srcOfs+8])
		copy(out[dstOfs+8:dstOfs+16], unusableDumpSource[srcOfs:srcOfs+8])
		copy(out[dstOfs+16:dstOfs+32], out[dstOfs:dstOfs+16])
	}
	return out
}

var cgbUnusablePattern = buildUnusablePattern()

const hdmaStartBit = 0x80

// Bus is the memory-mapped address-decode switchboard: it owns no
// cartridge or video state itself, only non-owning references to every
// collaborator plus HRAM and the OAM-DMA/HDMA state machines, which have
// no other natural owner.
type Bus struct {
	profile device.Profile
	clk     *clock.Clock
	queue   *events.Queue
	irq     *interrupt.Controller

	mem *memory.Memory
	gpu *video.GPU
	apu *audio.APU
	tim *timer.Timer
	ser *serial.Serial
	joy *joypad.Joypad

	hram [0x80]byte // 0xFF80-0xFFFE (IE at 0xFFFF lives in interrupt.Controller)

	// OAM DMA state.
	oamDMAByte      byte
	oamDMAActive    bool
	oamDMAAddress   uint16
	oamDMAOffset    int
	oamDMALastCycle int32

	// HDMA/GDMA state (CGB only).
	hdmaSource      uint16
	hdmaDestination uint16
	hdma5           byte
	hdmaActive      bool // an HBlank-mode HDMA is armed/running
	duringDMA       bool // a GDMA/HDMA block is due to run before the next CPU step

	rp                     byte
	un6c, un72, un73, un75 byte
}

// NewBus wires a Bus to every collaborator it dispatches to. All arguments
// are non-owning references shared with the rest of the facade.
func NewBus(profile device.Profile, clk *clock.Clock, queue *events.Queue, irq *interrupt.Controller, mem *memory.Memory, gpu *video.GPU, apu *audio.APU, tim *timer.Timer, ser *serial.Serial, joy *joypad.Joypad) *Bus {
	b := &Bus{
		profile:         profile,
		clk:             clk,
		queue:           queue,
		irq:             irq,
		mem:             mem,
		gpu:             gpu,
		apu:             apu,
		tim:             tim,
		ser:             ser,
		joy:             joy,
		oamDMALastCycle: clock.NoCycle,
	}
	if profile.IsCGB() {
		copy(b.hram[:], cgbHighRAMDump[:])
	} else {
		copy(b.hram[:], dmgHighRAMDump[:])
	}
	return b
}

// DrainEvents pops every event due at or before the current clock cycle
// and applies its effect. The CPU calls this before each instruction and
// interrupt dispatch and while halted, the facade calls it while the CPU
// is halted, and Read/Write call it before touching 0xFE00-0xFFFF.
func (b *Bus) DrainEvents() {
	for {
		kind := b.queue.Poll(b.clk.Cycle())
		if kind == events.None {
			return
		}
		switch kind {
		case events.SerialDone:
			b.ser.UpdateState(b.clk.Cycle())
		case events.TimerIRQ:
			b.tim.TriggerInterrupt(b.clk.Cycle())
		case events.HDMAStart:
			b.duringDMA = true
		case events.OAMDMAStart:
			b.oamDMALastCycle = b.clk.Cycle()
			b.oamDMAActive = true
			// Mooneye acceptance/oam_dma/sources-dmgABCmgbS: a DMA source
			// above 0xDFFF wraps into the 0xC000-0xDFFF WRAM range.
			if b.oamDMAByte > 0xDF {
				b.oamDMAAddress = uint16(b.oamDMAByte)<<8 & 0xDF00
			} else {
				b.oamDMAAddress = uint16(b.oamDMAByte) << 8
			}
			b.oamDMAOffset = 0
		case events.Unhalt:
			// Scheduled by STOP to end the post-STOP halt period.
			b.irq.SetHalted(false)
		case events.VBlankIRQ, events.LYCIRQ, events.Mode2IRQ, events.Mode0IRQ:
			// Never scheduled: the GPU dispatches these itself via a
			// direct interrupt.Controller reference (see jeebie/video).
		}
	}
}

// AdvanceOAMDMA copies one byte per elapsed machine cycle since the DMA
// was last serviced, matching the real hardware's one-byte-per-cycle
// transfer rate regardless of CGB double speed. Read and Write call
// this right after DrainEvents for addresses 0xFE00 and above.
func (b *Bus) AdvanceOAMDMA() {
	if !b.oamDMAActive {
		return
	}

	factor := b.clk.SpeedFactor()
	elapsed := b.clk.Cycle() - b.oamDMALastCycle
	elapsed -= elapsed % factor
	b.oamDMALastCycle += elapsed

	bytes := int(elapsed / factor)
	if remaining := 160 - b.oamDMAOffset; bytes > remaining {
		bytes = remaining
	}

	for i := 0; i < bytes; i++ {
		src := (b.oamDMAAddress + uint16(b.oamDMAOffset)) & 0xFFFF
		value := b.readRaw(src)
		b.gpu.WriteOAM(addr.OAMStart+uint16(b.oamDMAOffset), value)
		b.oamDMAOffset++
	}

	if b.oamDMAOffset >= 160 {
		b.oamDMAActive = false
		b.oamDMALastCycle = clock.NoCycle
	}
}

// RunHDMABlock performs one HDMA/GDMA transfer block synchronously: a
// single 0x10-byte chunk for HBlank-mode HDMA, or the entire remaining
// length in one shot for general-purpose DMA. The facade calls this
// whenever DuringDMA is true, in place of a CPU step: on
// real hardware the CPU is halted for the whole GDMA transfer, and an
// HDMA chunk similarly runs as an atomic block once Mode 0 is reached.
func (b *Bus) RunHDMABlock() {
	dmaLength := (b.hdma5 &^ hdmaStartBit) + 1
	bytes := 0x10
	if !b.hdmaActive {
		bytes = int(dmaLength) * 0x10
	}

	if int(b.hdmaDestination)+bytes > 0x10000 {
		bytes = 0x10000 - int(b.hdmaDestination)
	}

	for i := 0; i < bytes; i++ {
		src := b.hdmaSource & 0xFFFF
		value := byte(0xFF)
		if (src&0xE000) != 0x8000 && src < 0xFE00 {
			value = b.readRaw(src)
		}

		dest := 0x8000 + (b.hdmaDestination & 0x1FFF)
		b.DrainEvents()
		b.writeRaw(dest, value)
		b.clk.Tick2Cycles()

		b.hdmaSource++
		b.hdmaDestination++
	}
	b.clk.TickMachineCycle()

	remaining := (dmaLength - 1 - byte(bytes>>4)) & 0x7F
	if remaining == 0x7F {
		b.hdmaActive = false
	}
	b.hdma5 = (b.hdma5 & hdmaStartBit) + remaining

	b.duringDMA = false
}

// DuringDMA reports whether a GDMA/HDMA block is due to run before the
// next CPU step.
func (b *Bus) DuringDMA() bool { return b.duringDMA }

// SetBackClock rebases the OAM DMA's stored service cycle, the only
// absolute cycle stamp the bus itself holds.
func (b *Bus) SetBackClock(offset int32) {
	if b.oamDMALastCycle != clock.NoCycle {
		b.oamDMALastCycle -= offset
	}
}

// Read performs one bus read, draining pending events and servicing the
// OAM DMA copy first when the access falls in the OAM/register window.
func (b *Bus) Read(address uint16) byte {
	if address >= addr.OAMStart {
		b.DrainEvents()
		b.AdvanceOAMDMA()
	}
	return b.readRaw(address)
}

// Write performs one bus write, under the same drain rule as Read.
func (b *Bus) Write(address uint16, value byte) {
	if address >= addr.OAMStart {
		b.DrainEvents()
		b.AdvanceOAMDMA()
	}
	b.writeRaw(address, value)
}

// readRaw decodes an address with no event draining, used both by the
// public Read and by the DMA/HDMA copy loops (which have already drained
// for this step and must not recurse into it).
func (b *Bus) readRaw(address uint16) byte {
	switch {
	case address >= addr.TileData0 && address < addr.OAMStart:
		if !b.gpu.VRAMAccessible() {
			return 0xFF
		}
		return b.gpu.ReadVRAM(address)

	case address < addr.OAMStart:
		return b.mem.Read(address)

	case address <= addr.OAMEnd:
		if b.oamDMAActive {
			return 0xFF
		}
		return b.gpu.ReadOAM(address)

	case address < 0xFF00:
		return b.readUnusable(address)

	default:
		return b.readIO(address)
	}
}

func (b *Bus) writeRaw(address uint16, value byte) {
	switch {
	case address >= addr.TileData0 && address < addr.OAMStart:
		if !b.gpu.VRAMAccessible() {
			return
		}
		b.gpu.WriteVRAM(address, value)

	case address < addr.OAMStart:
		b.mem.Write(address, value)

	case address <= addr.OAMEnd:
		if b.oamDMAActive {
			return
		}
		b.gpu.WriteOAM(address, value)

	case address < 0xFF00:
		// Unusable region: writes are dropped.

	default:
		b.writeIO(address, value)
	}
}

// readUnusable serves the fixed 0xFEA0-0xFEFF fill pattern.
func (b *Bus) readUnusable(address uint16) byte {
	if !b.profile.IsCGB() {
		return 0x00
	}
	return cgbUnusablePattern[address-0xFEA0]
}

func (b *Bus) readIO(address uint16) byte {
	if address == addr.IE {
		return b.irq.ReadIE()
	}
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		return b.apu.ReadRegister(address)
	}

	switch address {
	case addr.P1:
		return b.joy.ReadP1()
	case addr.SB:
		return b.ser.ReadSB()
	case addr.SC:
		return b.ser.ReadSC()
	case addr.DIV:
		return b.clk.ReadDiv()
	case addr.TIMA:
		return b.tim.ReadTIMA()
	case addr.TMA:
		return b.tim.ReadTMA()
	case addr.TAC:
		return b.tim.ReadTAC()
	case addr.IF:
		return b.irq.ReadIF()
	case addr.DMA:
		return b.oamDMAByte
	case addr.LCDC, addr.STAT, addr.SCY, addr.SCX, addr.LY, addr.LYC,
		addr.BGP, addr.OBP0, addr.OBP1, addr.WY, addr.WX:
		return b.gpu.ReadRegister(address)
	case addr.NR10, addr.NR11, addr.NR12, addr.NR13, addr.NR14,
		addr.NR21, addr.NR22, addr.NR23, addr.NR24,
		addr.NR30, addr.NR31, addr.NR32, addr.NR33, addr.NR34,
		addr.NR41, addr.NR42, addr.NR43, addr.NR44,
		addr.NR50, addr.NR51, addr.NR52:
		return b.apu.ReadRegister(address)
	}

	if b.profile.IsCGB() && !b.profile.CGBInDMGMode() {
		switch address {
		case addr.KEY1:
			return b.clk.ReadKey1()
		case addr.VBK, addr.BCPS, addr.BCPD, addr.OCPS, addr.OCPD:
			return b.gpu.ReadRegister(address)
		case addr.HDMA5:
			return b.hdma5
		case addr.RP:
			return b.rp
		case addr.SVBK:
			return b.mem.ReadSVBK()
		case 0xFF6C:
			return b.un6c
		case 0xFF72:
			return b.un72
		case 0xFF73:
			return b.un73
		case 0xFF75:
			return b.un75
		case addr.PCM12:
			return b.apu.ReadPCM12()
		case addr.PCM34:
			return b.apu.ReadPCM34()
		}
	} else if b.profile.CGBInDMGMode() {
		switch address {
		case addr.VBK:
			return 0xFE
		case addr.BCPS:
			return 0xC8
		case addr.OCPS:
			return 0xD0
		case 0xFF72:
			return b.un72
		case 0xFF73:
			return b.un73
		case 0xFF75:
			return b.un75
		case addr.PCM12:
			return b.apu.ReadPCM12()
		case addr.PCM34:
			return b.apu.ReadPCM34()
		}
	}

	if address >= 0xFF80 && address <= 0xFFFE {
		return b.hram[address-0xFF80]
	}
	return 0xFF
}

func (b *Bus) writeIO(address uint16, value byte) {
	if address == addr.IE {
		b.irq.WriteIE(value)
		return
	}
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		b.apu.WriteRegister(address, value)
		return
	}

	switch address {
	case addr.P1:
		b.joy.WriteP1(value)
		return
	case addr.SB:
		b.ser.WriteSB(value)
		return
	case addr.SC:
		b.ser.WriteSC(value)
		return
	case addr.DIV:
		b.resetDiv(false)
		return
	case addr.TIMA:
		b.tim.WriteTIMA(value)
		return
	case addr.TMA:
		b.tim.WriteTMA(value)
		return
	case addr.TAC:
		b.tim.WriteTAC(value)
		return
	case addr.IF:
		b.irq.WriteIF(value)
		return
	case addr.DMA:
		b.scheduleOAMDMA(value)
		return
	case addr.LCDC, addr.STAT, addr.SCY, addr.SCX, addr.LY, addr.LYC,
		addr.BGP, addr.OBP0, addr.OBP1, addr.WY, addr.WX:
		b.gpu.WriteRegister(address, value)
		return
	case addr.NR10, addr.NR11, addr.NR12, addr.NR13, addr.NR14,
		addr.NR21, addr.NR22, addr.NR23, addr.NR24,
		addr.NR30, addr.NR31, addr.NR32, addr.NR33, addr.NR34,
		addr.NR41, addr.NR42, addr.NR43, addr.NR44,
		addr.NR50, addr.NR51, addr.NR52:
		b.apu.WriteRegister(address, value)
		return
	}

	if b.profile.IsCGB() && !b.profile.CGBInDMGMode() {
		switch address {
		case addr.KEY1:
			b.clk.WriteKey1(value)
			return
		case addr.VBK, addr.BCPS, addr.BCPD, addr.OCPS, addr.OCPD:
			b.gpu.WriteRegister(address, value)
			return
		case addr.HDMA1:
			b.hdmaSource = (b.hdmaSource & 0x00FF) | (uint16(value) << 8)
			return
		case addr.HDMA2:
			b.hdmaSource = (b.hdmaSource & 0xFF00) | uint16(value&0xF0)
			return
		case addr.HDMA3:
			b.hdmaDestination = (b.hdmaDestination & 0x00FF) | (uint16(value&0x1F) << 8)
			return
		case addr.HDMA4:
			b.hdmaDestination = (b.hdmaDestination & 0xFF00) | uint16(value&0xF0)
			return
		case addr.HDMA5:
			b.writeHDMA5(value)
			return
		case addr.RP:
			b.rp = value | 0x3E
			return
		case addr.SVBK:
			b.mem.WriteSVBK(value)
			return
		case 0xFF6C:
			b.un6c = value | 0xFE
			return
		case 0xFF72:
			b.un72 = value
			return
		case 0xFF73:
			b.un73 = value
			return
		case 0xFF75:
			b.un75 = value | 0x8F
			return
		}
	} else if b.profile.CGBInDMGMode() {
		switch address {
		case 0xFF72:
			b.un72 = value
			return
		case 0xFF73:
			b.un73 = value
			return
		case 0xFF75:
			b.un75 = value | 0x8F
			return
		}
	}

	if address >= 0xFF80 && address <= 0xFFFE {
		b.hram[address-0xFF80] = value
	}
}

// scheduleOAMDMA stores the DMA source page (always readable back from
// DMA regardless of whether it triggers a transfer) and schedules the
// actual start a fixed delay out: 4 machine cycles on DMG, 1 on CGB.
func (b *Bus) scheduleOAMDMA(value byte) {
	b.oamDMAByte = value

	factor := int32(4)
	if b.profile.IsCGB() {
		factor = 1
	}
	b.queue.Schedule(events.OAMDMAStart, b.clk.Cycle()+factor*b.clk.SpeedFactor())
}

// writeHDMA5 starts or cancels an HDMA/GDMA transfer.
func (b *Bus) writeHDMA5(value byte) {
	b.hdma5 = value & 0x7F

	if value&hdmaStartBit != 0 {
		b.hdmaActive = true
		b.hdma5 |= hdmaStartBit
		return
	}

	if !b.hdmaActive {
		// No HDMA running: this starts a general-purpose transfer.
		b.duringDMA = true
		return
	}

	// An HDMA is running: cancel it, unless its next chunk is already
	// scheduled to start this very cycle (gambatte hdma_late_disable_*).
	b.hdmaActive = false
	if b.queue.CycleOf(events.HDMAStart) > b.clk.Cycle() {
		b.queue.Remove(events.HDMAStart)
	}
}

// resetDiv is the shared DIV-write/STOP path: every component with
// DIV-relative state gets a chance to settle before the divider itself
// resets.
func (b *Bus) resetDiv(duringStop bool) {
	b.apu.UpdateState()
	b.clk.WriteDiv()

	b.ser.AfterDivReset()
	b.apu.AfterDivReset(duringStop)
	b.tim.AfterDivReset()
}

// ExecuteStop runs the STOP instruction's bus-side effects: DIV reset,
// and a speed switch when KEY1 was armed.
func (b *Bus) ExecuteStop() {
	b.resetDiv(true)

	if !b.clk.ChangeSpeed() {
		return
	}

	b.gpu.AfterSpeedChange()
	b.tim.AfterSpeedChange()
	b.clk.TickCycles(b.clk.SpeedSwitchDelay())
}
