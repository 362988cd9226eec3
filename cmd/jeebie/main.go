// Command jeebie is the terminal front-end for the emulator core: it
// loads a ROM, drives Emulator.RunUntilFrame at ~60 FPS, renders the
// front buffer as shaded characters via tcell, and forwards key events
// as button masks. Everything here is host plumbing; the core itself
// never touches a terminal.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/urfave/cli"

	"github.com/rook-valley/gbcore/jeebie"
	"github.com/rook-valley/gbcore/jeebie/device"
	"github.com/rook-valley/gbcore/jeebie/logbuf"
	"github.com/rook-valley/gbcore/jeebie/timing"
	"github.com/rook-valley/gbcore/jeebie/video"
)

// Terminal characters are taller than wide; double the width to keep the
// aspect ratio roughly square.
const scaleX = 2

// shadeChars maps the four DMG shades, lightest first: on a light-on-dark
// terminal the full block is the brightest cell.
var shadeChars = []rune{'█', '▓', '▒', '░'}

func main() {
	app := cli.NewApp()
	app.Name = "jeebie"
	app.Description = "A cycle-accurate Game Boy (DMG/CGB) emulator"
	app.Usage = "jeebie [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "hardware",
			Usage: "Hardware to emulate: auto, dmg or cgb",
			Value: "auto",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run without a terminal interface",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "log",
			Usage: "Print the core's buffered log entries to stderr",
		},
		cli.StringFlag{
			Name:  "save",
			Usage: "Path to the battery-backed RAM image to load and store",
		},
	}
	app.Action = runEmulator

	if err := app.Run(os.Args); err != nil {
		slog.Error("error running emulator", "error", err)
		os.Exit(1)
	}
}

func hardwareChoice(name string) (device.HardwareChoice, error) {
	switch name {
	case "auto", "":
		return device.Auto, nil
	case "dmg":
		return device.ForceDMG, nil
	case "cgb":
		return device.ForceCGB, nil
	default:
		return device.Auto, fmt.Errorf("unknown hardware %q (want auto, dmg or cgb)", name)
	}
}

func runEmulator(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() == 0 {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
		romPath = c.Args().Get(0)
	}

	hardware, err := hardwareChoice(c.String("hardware"))
	if err != nil {
		return err
	}

	cfg := jeebie.Config{Hardware: hardware}
	if c.Bool("log") {
		cfg.LogCategories = logbuf.AllCategories
	}

	emu, err := jeebie.NewWithFile(romPath, cfg)
	if err != nil {
		return err
	}
	slog.Info("loaded ROM", "path", romPath, "title", emu.GetEmulatorTitle())

	savePath := c.String("save")
	if savePath != "" {
		if data, err := os.ReadFile(savePath); err == nil {
			emu.SetPersistentRAM(data)
			slog.Info("loaded battery RAM", "path", savePath)
		}
	}
	defer func() {
		if savePath == "" {
			return
		}
		ram := emu.GetPersistentRAM()
		if len(ram) == 0 {
			return
		}
		if err := os.WriteFile(savePath, ram, 0o644); err != nil {
			slog.Error("failed to store battery RAM", "path", savePath, "error", err)
		}
	}()

	if c.Bool("headless") {
		frames := c.Int("frames")
		if frames <= 0 {
			return errors.New("headless mode requires --frames with a positive value")
		}
		return runHeadless(emu, frames, c.Bool("log"))
	}

	renderer, err := newTerminalRenderer(emu)
	if err != nil {
		return err
	}
	return renderer.run()
}

func runHeadless(emu *jeebie.Emulator, frames int, printLog bool) error {
	limiter := timing.NewNoOpLimiter()
	for i := 0; i < frames; i++ {
		emu.RunUntilFrame()
		limiter.WaitForNextFrame()

		if printLog {
			drainLogTo(os.Stderr, emu)
		}
		if emu.IsFrozen() {
			return fmt.Errorf("CPU frozen after %d frames", i+1)
		}
	}
	slog.Info("headless run finished", "frames", frames, "cycles", emu.GetEmulatedCycles())
	return nil
}

func drainLogTo(w *os.File, emu *jeebie.Emulator) {
	for _, entry := range emu.DrainLog() {
		fmt.Fprintf(w, "[%s] %s %s\n", entry.Category, entry.Level, entry.Message)
	}
}

type terminalRenderer struct {
	screen  tcell.Screen
	emu     *jeebie.Emulator
	limiter timing.Limiter
	running bool
}

func newTerminalRenderer(emu *jeebie.Emulator) (*terminalRenderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	return &terminalRenderer{
		screen:  screen,
		emu:     emu,
		limiter: timing.NewAdaptiveLimiter(),
		running: true,
	}, nil
}

func (t *terminalRenderer) run() error {
	defer t.screen.Fini()

	t.screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite))
	t.screen.Clear()

	go t.handleInput()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for t.running {
		select {
		case <-signals:
			return nil
		default:
		}

		t.emu.RunUntilFrame()
		if t.emu.IsFrozen() {
			return errors.New("CPU frozen on invalid opcode")
		}
		t.render()
		t.screen.Show()
		t.limiter.WaitForNextFrame()
	}

	return nil
}

// keyButtonMask maps terminal keys to the facade's button-mask bits:
// 0 right, 1 left, 2 up, 3 down, 4 A, 5 B, 6 select, 7 start.
func keyButtonMask(ev *tcell.EventKey) byte {
	switch ev.Key() {
	case tcell.KeyRight:
		return 1 << 0
	case tcell.KeyLeft:
		return 1 << 1
	case tcell.KeyUp:
		return 1 << 2
	case tcell.KeyDown:
		return 1 << 3
	case tcell.KeyEnter:
		return 1 << 7 // start
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return 1 << 6 // select
	}
	switch ev.Rune() {
	case 'z', 'Z':
		return 1 << 4 // A
	case 'x', 'X':
		return 1 << 5 // B
	}
	return 0
}

func (t *terminalRenderer) handleInput() {
	for t.running {
		switch ev := t.screen.PollEvent().(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape {
				t.running = false
				return
			}
			if mask := keyButtonMask(ev); mask != 0 {
				// Terminals report no key-up events; press and release in
				// one go so a button reads held for at least one frame.
				t.emu.SetButtonsDown(mask)
				t.emu.SetButtonsUp(mask)
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *terminalRenderer) render() {
	frame := t.emu.GetCurrentFrame().ToSlice()

	t.screen.Clear()
	for y := 0; y < video.FramebufferHeight; y++ {
		for x := 0; x < video.FramebufferWidth; x++ {
			pixel := frame[y*video.FramebufferWidth+x]

			// Higher channel values are lighter; shadeChars runs from the
			// densest glyph (brightest cell) to the sparsest.
			shade := 3 - (pixel>>24)/64
			if shade > 3 {
				shade = 3
			}

			style := tcell.StyleDefault.Foreground(tcell.ColorWhite)
			for sx := 0; sx < scaleX; sx++ {
				t.screen.SetContent(x*scaleX+sx, y, shadeChars[shade], nil, style)
			}
		}
	}
}
