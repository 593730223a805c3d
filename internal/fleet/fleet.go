// Package fleet constructs and holds the LUMP*BUNCH emulator instances
// a worker drives, plus the per-emulator state the observation pipeline
// needs once per episode (minimal action set, grayscale palette).
//
// Mirrors backend/mem.go's shape (many independent, identically
// constructed units addressed by a row/shard pair) and queue/pool.go's
// buffer-pool pattern, repurposed here as ScratchPool in pool.go.
package fleet

import (
	"fmt"

	"github.com/atari-vecgym/vecgym-worker/internal/constants"
	"github.com/atari-vecgym/vecgym-worker/internal/interfaces"
)

// Factory constructs one fresh Emulator instance. The worker never
// implements an Emulator itself; this func is supplied by the
// bootstrap binary (or by a test) and wraps whatever emulation
// library backs it.
type Factory func() interfaces.Emulator

// Slot holds one emulator and the per-episode-independent state cached
// at load time: its minimal action set and a grayscale lookup table
// derived from its current palette.
type Slot struct {
	Emulator  interfaces.Emulator
	Actions   []int
	Grayscale [constants.PaletteSize]uint16
}

// Fleet is the LUMP*BUNCH grid of emulator slots this worker drives,
// indexed [lump][bunch].
type Fleet struct {
	slots [][]*Slot
	lump  int
	bunch int
}

// New constructs lump*bunch emulators via factory, seeds each
// deterministically as cpu*1000+b, disables sticky actions, loads rom
// into every one, and caches each one's minimal action set and
// grayscale palette. cpu is this worker's own CPU index, used only for
// seeding (it never affects tensor addressing, which lives in
// internal/layout).
func New(factory Factory, lump, bunch, cpu int, rom string) (*Fleet, error) {
	f := &Fleet{
		slots: make([][]*Slot, lump),
		lump:  lump,
		bunch: bunch,
	}
	for l := 0; l < lump; l++ {
		f.slots[l] = make([]*Slot, bunch)
		for b := 0; b < bunch; b++ {
			emu := factory()
			emu.SetSeed(int64(cpu*1000 + b))
			emu.SetStickyActionProbability(0)
			if err := emu.LoadROM(rom); err != nil {
				return nil, fmt.Errorf("fleet: load rom for lump %d bunch %d: %w", l, b, err)
			}

			w, h := emu.ScreenDimensions()
			if w != constants.FullWidth || h != constants.FullHeight {
				return nil, fmt.Errorf("fleet: lump %d bunch %d: screen is %dx%d, want %dx%d",
					l, b, w, h, constants.FullWidth, constants.FullHeight)
			}

			slot := &Slot{
				Emulator: emu,
				Actions:  emu.MinimalActionSet(),
			}
			slot.Grayscale = grayscalePalette(emu.Palette())
			f.slots[l][b] = slot
		}
	}
	return f, nil
}

// Slot returns the emulator slot for (lump, bunch).
func (f *Fleet) Slot(l, b int) *Slot { return f.slots[l][b] }

// Lump returns the fleet's LUMP dimension.
func (f *Fleet) Lump() int { return f.lump }

// Bunch returns the fleet's BUNCH dimension.
func (f *Fleet) Bunch() int { return f.bunch }

// grayscalePalette converts a 256-entry RGB palette into a luminance
// lookup table using the standard Rec. 601 coefficients, truncated and
// clamped to [0, 255].
func grayscalePalette(palette [256][3]uint8) [constants.PaletteSize]uint16 {
	var out [constants.PaletteSize]uint16
	for i, rgb := range palette {
		y := 0.299*float64(rgb[0]) + 0.587*float64(rgb[1]) + 0.114*float64(rgb[2])
		if y > 255 {
			y = 255
		}
		if y < 0 {
			y = 0
		}
		out[i] = uint16(y)
	}
	return out
}
