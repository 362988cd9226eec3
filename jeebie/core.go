// Package jeebie is a cycle-accurate DMG/CGB emulator core. The Emulator
// facade owns every component (clock, event queue, interrupt controller,
// memory/MBC, timer, serial, joypad, bus, CPU) plus the LCD and sound
// collaborators, and advances them to caller-supplied cycle budgets.
package jeebie

import (
	"errors"
	"log/slog"
	"os"

	"github.com/rook-valley/gbcore/jeebie/audio"
	"github.com/rook-valley/gbcore/jeebie/clock"
	"github.com/rook-valley/gbcore/jeebie/cpu"
	"github.com/rook-valley/gbcore/jeebie/device"
	"github.com/rook-valley/gbcore/jeebie/events"
	"github.com/rook-valley/gbcore/jeebie/interrupt"
	"github.com/rook-valley/gbcore/jeebie/joypad"
	"github.com/rook-valley/gbcore/jeebie/logbuf"
	"github.com/rook-valley/gbcore/jeebie/memory"
	"github.com/rook-valley/gbcore/jeebie/serial"
	"github.com/rook-valley/gbcore/jeebie/timer"
	"github.com/rook-valley/gbcore/jeebie/video"
)

// Construction errors. Everything past construction recovers locally
// to match hardware and is at most logged into the in-memory buffer.
var (
	// ErrInvalidROM means the ROM is too short to contain a cartridge header.
	ErrInvalidROM = errors.New("ROM too short to read the cartridge header")
	// ErrROMTooLarge means the ROM exceeds 512 banks of 16 KiB.
	ErrROMTooLarge = errors.New("ROM larger than 512 x 16 KiB banks")
)

const (
	headerLength = 0x150
	maxROMSize   = 512 * 0x4000

	// cycleSetbackLimit is the clock value past which the facade rebases
	// every stored cycle.
	cycleSetbackLimit = 2 * clock.CyclesPerSecond

	// cyclesPerFrame is one LCD frame at single speed.
	cyclesPerFrame = 70224
)

// Config carries the caller-facing construction options. The zero
// value means: hardware resolved from the cartridge header, no log
// categories recorded.
type Config struct {
	Hardware device.HardwareChoice

	// LogCategories selects which components' suppressed-oddity messages
	// are recorded into the drainable log buffer.
	LogCategories []logbuf.Category

	// SerialPeer overrides the device on the other end of the link cable.
	// Defaults to a LogSink, which behaves like an open line (reads 0xFF)
	// but logs text the ROM prints over serial.
	SerialPeer serial.Peer
}

// Emulator is the facade: it owns all component state and is the only
// entry point for advancing the emulation. Strictly single-threaded; a
// host wanting concurrent emulators creates one Emulator each.
type Emulator struct {
	profile device.Profile

	clk   *clock.Clock
	queue *events.Queue
	irq   *interrupt.Controller
	mem   *memory.Memory
	gpu   *video.GPU
	apu   *audio.APU
	tim   *timer.Timer
	ser   *serial.Serial
	joy   *joypad.Joypad
	bus   *Bus
	cpu   *cpu.CPU

	logs   *logbuf.Buffer
	logger *slog.Logger

	// emulatedCycles counts emulated T-cycles monotonically across
	// rebases.
	emulatedCycles uint64

	// collabSyncCycle is the clock cycle up to which the LCD/sound
	// collaborators have been advanced.
	collabSyncCycle int32
}

// New constructs an Emulator from a ROM image. It fails only on a
// header-less or oversized ROM; unsupported MBC/size values degrade
// gracefully inside ParseHeader.
func New(rom []byte, cfg Config) (*Emulator, error) {
	if len(rom) < headerLength {
		return nil, ErrInvalidROM
	}
	if len(rom) > maxROMSize {
		return nil, ErrROMTooLarge
	}

	header := memory.ParseHeader(rom)
	profile := device.Resolve(cfg.Hardware, header.SupportsCGB)

	logs := logbuf.New(0, cfg.LogCategories...)

	e := &Emulator{
		profile: profile,
		clk:     clock.New(profile.InitialClock()),
		queue:   events.New(),
		logs:    logs,
		logger:  logs.Logger(logbuf.CategoryBus),
	}
	e.irq = interrupt.New(profile, e.clk)
	e.mem = memory.New(rom, header, profile)
	e.gpu = video.NewGpu(profile, e.clk, e.irq)
	e.apu = audio.New()
	e.tim = timer.New(e.clk, e.queue, e.irq)

	peer := cfg.SerialPeer
	if peer == nil {
		peer = serial.NewLogSink(serial.WithLogger(logs.Logger(logbuf.CategorySerial)))
	}
	e.ser = serial.New(e.clk, e.queue, e.irq, profile, peer)

	e.joy = joypad.New(e.irq)
	e.joy.WriteP1(profile.InitialP1())

	e.bus = NewBus(profile, e.clk, e.queue, e.irq, e.mem, e.gpu, e.apu, e.tim, e.ser, e.joy)
	e.cpu = cpu.New(profile, e.bus, e.clk, e.irq, e.queue)

	e.collabSyncCycle = e.clk.Cycle()
	return e, nil
}

// NewWithFile loads a ROM from disk and constructs an Emulator from it.
func NewWithFile(path string, cfg Config) (*Emulator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(data, cfg)
}

// Emulate advances the emulation by at least cyclesToEmulate T-cycles
// (instruction and DMA-block granularity usually overshoots a little) and
// reports whether a new frame was completed.
func (e *Emulator) Emulate(cyclesToEmulate int32) bool {
	if cyclesToEmulate <= 0 {
		return false
	}

	frameID := e.gpu.FrameID()
	start := e.clk.Cycle()
	target := start + cyclesToEmulate

	for e.clk.Cycle() < target {
		switch {
		case e.bus.DuringDMA():
			e.bus.RunHDMABlock()

		case e.irq.Halted() || e.cpu.Frozen():
			e.fastForward(target)
			// HALT may be terminated by an interrupt raised here; for a
			// frozen CPU the drain just keeps component state consistent.
			e.bus.DrainEvents()

		default:
			e.cpu.Emulate()
		}

		e.syncCollaborators()
	}

	e.apu.UpdateState()

	e.emulatedCycles += uint64(e.clk.Cycle() - start)

	if e.cpu.Frozen() {
		e.logger.Warn("cpu frozen on invalid opcode",
			"opcode", e.cpu.InvalidOpcode(), "pc", e.cpu.Registers().PC)
	}

	e.rebaseIfDue()

	return e.gpu.FrameID() != frameID
}

// fastForward skips the clock ahead to the next scheduled event (or the
// emulation target, whichever comes first) in whole machine cycles,
// instead of spinning the CPU while it is halted or frozen.
func (e *Emulator) fastForward(target int32) {
	ffCycle := target
	if next := e.queue.Peek(); next != clock.NoCycle && next < target {
		ffCycle = next
	}

	diff := ffCycle - e.clk.Cycle()
	if diff <= 0 {
		return
	}
	// Round up to a full machine cycle; absolute cycles are deliberately
	// not re-aligned, which would go wrong after repeated speed switches.
	factor := e.clk.SpeedFactor()
	if fraction := diff % factor; fraction != 0 {
		diff += factor - fraction
	}
	e.clk.TickCycles(diff)
}

// syncCollaborators advances the LCD and sound collaborators to the
// current clock. They step in single-speed T-cycles: at double speed the
// elapsed CPU cycles are halved so the LCD/APU keep real-time pace.
func (e *Emulator) syncCollaborators() {
	elapsed := e.clk.Cycle() - e.collabSyncCycle
	if elapsed <= 0 {
		return
	}
	e.collabSyncCycle = e.clk.Cycle()

	steps := int(elapsed)
	if e.clk.IsDoubleSpeed() {
		steps /= 2
	}
	e.gpu.Tick(steps)
	e.apu.Tick(steps)
}

// rebaseIfDue subtracts a whole-second multiple from the clock and from
// every stored cycle once the counter has grown past two seconds of
// emulated time, preventing int32 overflow on long runs. The
// externally visible cycle counter is unaffected.
func (e *Emulator) rebaseIfDue() {
	current := e.clk.Cycle()
	if current < cycleSetbackLimit {
		return
	}

	keep := clock.CyclesPerSecond + current%clock.CyclesPerSecond
	offset := current - keep

	e.clk.SetBackClock(offset)
	e.queue.SetBackClock(offset)
	e.mem.SetBackClock(offset)
	e.tim.SetBackClock(offset)
	e.ser.SetBackClock(offset)
	e.gpu.SetBackClock(offset)
	e.apu.SetBackClock(offset)
	e.bus.SetBackClock(offset)

	e.collabSyncCycle -= offset
}

// RunUntilFrame emulates until the next completed frame, for hosts that
// pace by frames rather than cycle budgets. A frozen CPU returns early so
// callers don't spin forever on a dead core.
func (e *Emulator) RunUntilFrame() {
	for {
		if e.Emulate(cyclesPerFrame / 4) {
			return
		}
		if e.cpu.Frozen() {
			return
		}
	}
}

// SetButtonsDown presses every button whose bit is set in mask: 0 right,
// 1 left, 2 up, 3 down, 4 A, 5 B, 6 select, 7 start.
func (e *Emulator) SetButtonsDown(mask byte) {
	for b := joypad.Right; b <= joypad.Start; b++ {
		if mask&(1<<b) != 0 {
			e.joy.SetDown(b, e.clk.Cycle())
		}
	}
}

// SetButtonsUp releases every button whose bit is set in mask.
func (e *Emulator) SetButtonsUp(mask byte) {
	for b := joypad.Right; b <= joypad.Start; b++ {
		if mask&(1<<b) != 0 {
			e.joy.SetUp(b)
		}
	}
}

// GetCurrentFrame returns the LCD collaborator's front buffer.
func (e *Emulator) GetCurrentFrame() *video.FrameBuffer {
	return e.gpu.GetFrameBuffer()
}

// GetAudioSamples drains up to count interleaved stereo PCM samples from
// the sound collaborator.
func (e *Emulator) GetAudioSamples(count int) []int16 {
	return e.apu.GetSamples(count)
}

// GetPersistentRAM returns a copy of the battery-backed cartridge RAM, or
// an empty slice when the cartridge has no battery.
func (e *Emulator) GetPersistentRAM() []byte {
	return e.mem.RAMSnapshot()
}

// SetPersistentRAM restores a battery-backed RAM image; missing bytes
// stay zero-filled.
func (e *Emulator) SetPersistentRAM(data []byte) {
	e.mem.LoadRAM(data)
}

// GetCyclesPerSecond returns the master clock rate, 4194304.
func (e *Emulator) GetCyclesPerSecond() int32 {
	return clock.CyclesPerSecond
}

// GetEmulatedCycles returns the total number of emulated T-cycles,
// monotonic across clock rebases.
func (e *Emulator) GetEmulatedCycles() uint64 {
	return e.emulatedCycles
}

// GetEmulatorTitle returns the cartridge title, ASCII filtered.
func (e *Emulator) GetEmulatorTitle() string {
	return e.mem.Header().Title
}

// IsFrozen reports whether the CPU hit an invalid opcode and stopped.
func (e *Emulator) IsFrozen() bool {
	return e.cpu.Frozen()
}

// LDBBExecuted reports whether the LD B,B test-completion marker has run,
// for harnesses driving accuracy test ROMs.
func (e *Emulator) LDBBExecuted() bool {
	return e.cpu.LDBBExecuted()
}

// CPURegisters snapshots the CPU register file, for test harnesses and
// debugging front-ends.
func (e *Emulator) CPURegisters() cpu.Registers {
	return e.cpu.Registers()
}

// ReadBus performs one observing bus read at the current cycle, for hosts
// and tests inspecting memory between Emulate calls.
func (e *Emulator) ReadBus(address uint16) byte {
	return e.bus.Read(address)
}

// DrainLog returns and clears the buffered log entries.
func (e *Emulator) DrainLog() []logbuf.Entry {
	return e.logs.Drain()
}
