// Package engine implements the observation pipeline and episode state
// machine: frame-skip action repeat, max-of-last-two downsampling,
// frame-stack rotation, life-loss shaping, frame-limit resets, ring
// overflow routing, and the optional single-environment RGB
// side-channel.
//
// Mirrors queue/runner.go's ioLoop (a single-threaded, sequential
// per-tag state machine driven entirely by caller-supplied commands, no
// locks) and queue/pool.go's buffer-reuse discipline, here wired
// through fleet.ScratchPool.
package engine

import (
	"fmt"
	"time"

	"github.com/atari-vecgym/vecgym-worker/internal/constants"
	"github.com/atari-vecgym/vecgym-worker/internal/fleet"
	"github.com/atari-vecgym/vecgym-worker/internal/interfaces"
	"github.com/atari-vecgym/vecgym-worker/internal/logging"
	"github.com/atari-vecgym/vecgym-worker/internal/monitor"
)

// Config holds the topology parameters the engine needs once, at
// construction, and never mutates afterward.
type Config struct {
	Lump, CPU, NCPU, Bunch int
	Steps, Skip, Stack     int
}

// rgbEligible reports whether the configuration activates the
// single-environment RGB side-channel.
func (c Config) rgbEligible() bool {
	return c.Lump == 1 && c.NCPU == 1 && c.Bunch == 1 && c.Steps == 1
}

const fullFrameBytes = constants.FullWidth * constants.FullHeight
const rgbFrameBytes = fullFrameBytes * constants.RGBBytesPerPixel
const smallFrameBytes = constants.SmallWidth * constants.SmallHeight

// Engine drives the fleet through the observation pipeline and episode
// state machine for whichever lump the caller is currently acking.
type Engine struct {
	cfg       Config
	fleet     *fleet.Fleet
	tensors   *Tensors
	states    [][]*envState
	observer  interfaces.Observer
	mon       *monitor.Monitor
	rawPool   *fleet.ScratchPool
	rgbPool   *fleet.ScratchPool
	rgbActive bool
	pic1      []byte
	pic2      []byte
	maxBuf    []byte
}

// New constructs the per-environment state grid for a fleet already
// loaded with ROMs, and wires it to the given tensors, observer, and
// monitor. observer and mon may be nil.
func New(cfg Config, fl *fleet.Fleet, tensors *Tensors, observer interfaces.Observer, mon *monitor.Monitor) *Engine {
	e := &Engine{
		cfg:      cfg,
		fleet:    fl,
		tensors:  tensors,
		observer: observer,
		mon:      mon,
		rawPool:  fleet.NewScratchPool(fullFrameBytes),
		maxBuf:   make([]byte, smallFrameBytes),
	}

	e.states = make([][]*envState, cfg.Lump)
	for l := range e.states {
		e.states[l] = make([]*envState, cfg.Bunch)
		for b := range e.states[l] {
			e.states[l][b] = newEnvState(constants.SmallHeight, constants.SmallWidth, cfg.Stack)
		}
	}

	e.rgbActive = cfg.rgbEligible() && tensors.RGB != nil
	if e.rgbActive {
		e.rgbPool = fleet.NewScratchPool(rgbFrameBytes)
		e.pic1 = make([]byte, rgbFrameBytes)
		e.pic2 = make([]byte, rgbFrameBytes)
	}
	return e
}

// PublishInitial seeds slot 0 of every environment in lump l: copies
// its just-constructed stack into the observation tensor, and sets
// vo0=1, news=true, step=0, scor=0.
func (e *Engine) PublishInitial(l int) error {
	for b := 0; b < e.cfg.Bunch; b++ {
		st := e.states[l][b]
		slot := e.fleet.Slot(l, b)

		if err := e.captureFrame(slot, st.small1); err != nil {
			return fmt.Errorf("engine: publish-initial lump %d bunch %d: %w", l, b, err)
		}
		st.fillReplicated(st.small1, e.cfg.Stack)
		st.epStart = time.Now()

		copy(e.tensors.Obs0.Slot(l, b, 0), st.rot)
		e.tensors.Vo0.Set(l, b, 0, 1)
		e.tensors.News.Set(l, b, 0, true)
		e.tensors.Step.Set(l, b, 0, 0)
		e.tensors.Scor.Set(l, b, 0, 0)

		if e.rgbActive {
			if err := e.captureRGB(slot, e.pic1); err == nil {
				copy(e.pic2, e.pic1)
				e.flushRGB()
			}
		}
	}
	return nil
}

// Advance executes one environment-step (SKIP raw frames) for every
// bunch slot in lump l, whose action is read from cursor, and writes
// the results to cursor+1 (or the xlast family, on overflow).
func (e *Engine) Advance(l, cursor int) error {
	for b := 0; b < e.cfg.Bunch; b++ {
		if err := e.advanceOne(l, b, cursor); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) advanceOne(l, b, cursor int) error {
	st := e.states[l][b]
	slot := e.fleet.Slot(l, b)
	emu := slot.Emulator

	rawAction := e.tensors.Acts.Get(l, b, cursor)
	if rawAction == constants.ActionSentinel {
		return fmt.Errorf("engine: lump %d bunch %d cursor %d: action slot unfilled", l, b, cursor)
	}
	if rawAction < 0 || int(rawAction) >= len(slot.Actions) {
		return fmt.Errorf("engine: lump %d bunch %d cursor %d: action index %d out of range [0,%d)",
			l, b, cursor, rawAction, len(slot.Actions))
	}
	action := slot.Actions[rawAction]

	var rewAccum int32
	rawGameOver := false
	for i := 0; i < e.cfg.Skip; i++ {
		r, err := emu.Act(action)
		if err != nil {
			return fmt.Errorf("engine: lump %d bunch %d: act: %w", l, b, err)
		}
		rewAccum += r
		st.frame++
		if emu.GameOver() {
			rawGameOver = true
		}
		if i == e.cfg.Skip-2 {
			if err := e.captureFrame(slot, st.small2); err != nil {
				return err
			}
			if e.rgbActive {
				if err := e.captureRGB(slot, e.pic2); err != nil {
					return err
				}
			}
		}
		if i == e.cfg.Skip-1 {
			if err := e.captureFrame(slot, st.small1); err != nil {
				return err
			}
			if e.rgbActive {
				if err := e.captureRGB(slot, e.pic1); err != nil {
					return err
				}
			}
		}
		if rawGameOver {
			break
		}
	}
	st.score += rewAccum

	lives := int32(emu.Lives())
	lifeLost := lives < st.lives
	lifeLossForced := lifeLost && lives > 0
	st.lives = lives

	resetMe := rawGameOver || st.frame >= constants.FrameLimit
	done := resetMe || lifeLossForced

	rew := float32(rewAccum)
	if lifeLossForced {
		rew = -1
	}

	if e.cfg.CPU == 0 && l == 0 && b == 0 {
		logging.Default().Debugf(" %05d frame %06d/%06d lives %d act %d total rew %d done %t\n",
			cursor, st.frame, constants.FrameLimit, lives, action, st.score, done)
	}

	save := cursor + 1
	e.tensors.Rews.Set(l, b, cursor, rew)

	finishedScore := st.score
	finishedFrame := st.frame
	elapsed := time.Since(st.epStart).Seconds()

	if !resetMe {
		maxInto(e.maxBuf, st.small1, st.small2)
		st.shiftPush(e.maxBuf, e.cfg.Stack)
	} else {
		if err := emu.Reset(); err != nil {
			return fmt.Errorf("engine: lump %d bunch %d: reset: %w", l, b, err)
		}
		if err := e.captureFrame(slot, st.small1); err != nil {
			return err
		}
		st.fillReplicated(st.small1, e.cfg.Stack)
		st.frame = 0
		st.score = 0
		st.lives = 0
		st.epStart = time.Now()
	}

	vo0 := 1 - float32(st.frame)/float32(constants.FrameLimit)

	if save < e.cfg.Steps {
		e.tensors.News.Set(l, b, save, done)
		e.tensors.Scor.Set(l, b, save, float32(st.score))
		e.tensors.Step.Set(l, b, save, st.frame)
		copy(e.tensors.Obs0.Slot(l, b, save), st.rot)
		e.tensors.Vo0.Set(l, b, save, vo0)
	} else {
		e.tensors.XNews.Set(l, b, 0, done)
		e.tensors.XScor.Set(l, b, 0, float32(st.score))
		e.tensors.XStep.Set(l, b, 0, st.frame)
		copy(e.tensors.XObs0.Slot(l, b, 0), st.rot)
		// Preserved from the source this was distilled from: vo0 lands
		// on the main ring's slot 0, never on xlast_vo0.
		e.tensors.Vo0.Set(l, b, 0, vo0)
	}

	if e.rgbActive {
		e.flushRGB()
	}

	if e.observer != nil {
		e.observer.ObserveStep(l, rew, done)
		if lifeLossForced {
			e.observer.ObserveReset()
		}
	}

	if resetMe {
		if e.mon != nil {
			e.mon.Record(float32(finishedScore), finishedFrame)
		}
		if e.observer != nil {
			e.observer.ObserveEpisode(l, float32(finishedScore), finishedFrame, elapsed)
		}
	}

	return nil
}

// captureFrame renders the emulator's current screen and downsamples
// it into out (smallFrameBytes long).
func (e *Engine) captureFrame(slot *fleet.Slot, out []byte) error {
	raw := e.rawPool.Get()
	defer e.rawPool.Put(raw)
	if err := slot.Emulator.Screen(raw[:fullFrameBytes]); err != nil {
		return fmt.Errorf("engine: screen capture: %w", err)
	}
	downsample(raw, constants.FullWidth, constants.SmallWidth, constants.SmallHeight, slot.Grayscale, out)
	return nil
}

// captureRGB renders the emulator's current full-resolution RGB frame
// into out (rgbFrameBytes long).
func (e *Engine) captureRGB(slot *fleet.Slot, out []byte) error {
	buf := e.rgbPool.Get()
	defer e.rgbPool.Put(buf)
	if err := slot.Emulator.ScreenRGB(buf[:rgbFrameBytes]); err != nil {
		return fmt.Errorf("engine: rgb capture: %w", err)
	}
	copy(out, buf[:rgbFrameBytes])
	return nil
}

// flushRGB writes max(pic1[i], pic2[i]) into the mapped RGB tensor.
func (e *Engine) flushRGB() {
	maxInto(e.tensors.RGB.Slot(0, 0, 0), e.pic1, e.pic2)
}
