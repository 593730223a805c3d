// Package emu is the seam where a real emulator library gets linked in.
// This worker never implements emulation itself; fleet.Factory only
// needs something that satisfies interfaces.Emulator, and New below is
// the one place a production build swaps the stub out for a real
// backend.
//
// Mirrors the uring package's split between its default stub (returns
// a clear "not built with this backend" error) and its
// `giouring`-tagged real implementation: an optional native dependency
// gets a safe, always-buildable default and a build-tag-selected real
// implementation, never a fabricated in-tree fake pretending to be the
// real thing.
package emu

import (
	"errors"

	"github.com/atari-vecgym/vecgym-worker/internal/interfaces"
)

// ErrNoBackend is returned by every stub.Emulator method that returns an
// error: this binary was built without a real emulator backend linked in.
var ErrNoBackend = errors.New("emu: no emulator backend linked into this binary (build with a backend tag)")

// New constructs one fresh Emulator. The default build has no real
// backend linked in and returns a stub whose methods all fail with
// ErrNoBackend; a production build links a real backend behind a build
// tag and overrides this var from that backend's init.
var New = newStub

func newStub() interfaces.Emulator {
	return &stub{}
}

// stub satisfies interfaces.Emulator so the rest of the worker — fleet
// construction, the observation pipeline, the pipe protocol — builds
// and can be exercised in tests without any native dependency. Every
// method that can fail does, loudly, rather than silently fabricating
// frames.
type stub struct {
	seed   int64
	sticky float64
}

func (s *stub) SetSeed(seed int64)                    { s.seed = seed }
func (s *stub) SetStickyActionProbability(p float64)  { s.sticky = p }
func (s *stub) LoadROM(path string) error             { return ErrNoBackend }
func (s *stub) MinimalActionSet() []int               { return nil }
func (s *stub) Act(action int) (int32, error)         { return 0, ErrNoBackend }
func (s *stub) GameOver() bool                        { return true }
func (s *stub) Lives() int                            { return 0 }
func (s *stub) Reset() error                          { return ErrNoBackend }
func (s *stub) ScreenDimensions() (int, int)          { return 0, 0 }
func (s *stub) Screen(buf []byte) error               { return ErrNoBackend }
func (s *stub) ScreenRGB(buf []byte) error             { return ErrNoBackend }
func (s *stub) Palette() [256][3]uint8                { return [256][3]uint8{} }

var _ interfaces.Emulator = (*stub)(nil)
