// Package vecgym wires the layout, pipe protocol, emulator fleet, and
// observation engine into one worker process: construct a fleet from a
// Config, publish the initial observation, then drive a steady-state
// lockstep loop with a parent orchestrator until it quits or the pipe
// closes.
package vecgym

import (
	"fmt"

	"github.com/atari-vecgym/vecgym-worker/internal/constants"
	"github.com/atari-vecgym/vecgym-worker/internal/engine"
	"github.com/atari-vecgym/vecgym-worker/internal/fleet"
	"github.com/atari-vecgym/vecgym-worker/internal/interfaces"
	"github.com/atari-vecgym/vecgym-worker/internal/layout"
	"github.com/atari-vecgym/vecgym-worker/internal/logging"
	"github.com/atari-vecgym/vecgym-worker/internal/monitor"
	"github.com/atari-vecgym/vecgym-worker/internal/pipe"
)

// Config is the complete, immutable topology and bootstrap
// configuration for one worker process, built once from argv and never
// mutated afterward.
type Config struct {
	Prefix     string // path prefix for all shared tensor files
	EnvID      string // opaque string echoed into the monitor header
	ROM        string // path to the ROM file
	MonitorDir string // monitor output directory; empty disables journaling

	Lump, CPU, NCPU, Bunch int
	Steps, Skip, Stack     int

	ReadFD, WriteFD int // inherited pipe file descriptors
}

// rgbEligible reports whether this configuration activates the
// single-environment RGB side-channel.
func (c Config) rgbEligible() bool {
	return c.Lump == 1 && c.NCPU == 1 && c.Bunch == 1 && c.Steps == 1
}

// Worker owns every resource a running process needs: the mapped
// tensors, the emulator fleet, the observation engine, the monitor
// journal, and the pipe protocol it speaks with its parent.
type Worker struct {
	cfg     Config
	proto   *pipe.Protocol
	fleet   *fleet.Fleet
	tensors *engine.Tensors
	engine  *engine.Engine
	mon     *monitor.Monitor
}

// New constructs a Worker: opens and maps every tensor file, builds the
// emulator fleet, and wires the observation engine. observer may be nil.
func New(cfg Config, emulatorFactory fleet.Factory, observer interfaces.Observer) (*Worker, error) {
	fl, err := fleet.New(emulatorFactory, cfg.Lump, cfg.Bunch, cfg.CPU, cfg.ROM)
	if err != nil {
		return nil, WrapError("new-worker", err)
	}

	tensors, err := openTensors(cfg)
	if err != nil {
		return nil, WrapError("new-worker", err)
	}

	mon := monitor.Open(cfg.MonitorDir, cfg.CPU, cfg.EnvID)

	eng := engine.New(engine.Config{
		Lump: cfg.Lump, CPU: cfg.CPU, NCPU: cfg.NCPU, Bunch: cfg.Bunch,
		Steps: cfg.Steps, Skip: cfg.Skip, Stack: cfg.Stack,
	}, fl, tensors, observer, mon)

	proto := pipe.New(cfg.ReadFD, cfg.WriteFD, cfg.Lump)

	return &Worker{
		cfg:     cfg,
		proto:   proto,
		fleet:   fl,
		tensors: tensors,
		engine:  eng,
		mon:     mon,
	}, nil
}

// Run executes the full protocol lifecycle: send ready, wait for the
// initial reset, publish-initial every lump, then serve the steady-state
// loop until 'Q' or a transport failure. It returns nil on every clean
// exit (including 'Q', pipe EOF, and any error from reading the next
// token, which covers an out-of-order lump or unknown token). It returns
// a non-nil error when the ready token cannot be sent, when the first
// command is not '0', or when publish-initial or an environment-step
// fails (for example on the unfilled-action sentinel).
func (w *Worker) Run() error {
	defer w.tensors.Close()
	defer w.mon.Close()
	defer w.proto.Close()

	if err := w.proto.SendReady(); err != nil {
		return WrapError("send-ready", err)
	}

	cmd, _, _, err := w.proto.Next()
	if err != nil {
		logging.Warn("transport lost waiting for initial reset", "cpu", w.cfg.CPU, "err", err)
		return nil
	}
	if cmd != pipe.CmdReset {
		return NewSlotError("startup", -1, w.cfg.CPU, -1, ErrCodeProtocol, "first command was not '0'")
	}

	if err := w.publishInitial(); err != nil {
		return WrapError("publish-initial", err)
	}

	for {
		cmd, lump, cursor, err := w.proto.Next()
		if err != nil {
			logging.Warn("transport lost in steady state", "cpu", w.cfg.CPU, "err", err)
			return nil
		}

		switch cmd {
		case pipe.CmdQuit:
			return nil

		case pipe.CmdReset:
			if err := w.publishInitial(); err != nil {
				return WrapError("publish-initial", err)
			}

		case pipe.CmdAdvance:
			if err := w.engine.Advance(lump, cursor); err != nil {
				return WrapError("advance", err)
			}
			if err := w.proto.SendAck(lump); err != nil {
				logging.Warn("transport lost sending ack", "cpu", w.cfg.CPU, "err", err)
				return nil
			}
		}
	}
}

// publishInitial re-enters the publish-initial phase for every lump in
// order, acking each as it completes, exactly as if this were the first
// reset of the process.
func (w *Worker) publishInitial() error {
	for l := 0; l < w.cfg.Lump; l++ {
		if err := w.engine.PublishInitial(l); err != nil {
			return err
		}
		if err := w.proto.SendAck(l); err != nil {
			return err
		}
	}
	return nil
}

func openTensors(cfg Config) (*engine.Tensors, error) {
	dims := layout.Dims{Lump: cfg.Lump, NCPU: cfg.NCPU, Bunch: cfg.Bunch, CPU: cfg.CPU}
	outer := int64(cfg.Lump) * int64(cfg.NCPU) * int64(cfg.Bunch)

	obsElems := outer * int64(cfg.Steps) * int64(constants.SmallHeight) * int64(constants.SmallWidth) * int64(cfg.Stack)
	scalarElems := outer * int64(cfg.Steps)
	xObsElems := outer * int64(constants.SmallHeight) * int64(constants.SmallWidth) * int64(cfg.Stack)
	xScalarElems := outer

	obs0, err := layout.Open(cfg.Prefix+"_obs0", 1, obsElems, cfg.Steps, dims)
	if err != nil {
		return nil, err
	}
	vo0, err := layout.Open(cfg.Prefix+"_vo0", 4, scalarElems, cfg.Steps, dims)
	if err != nil {
		return nil, err
	}
	acts, err := layout.Open(cfg.Prefix+"_acts", 4, scalarElems, cfg.Steps, dims)
	if err != nil {
		return nil, err
	}
	rews, err := layout.Open(cfg.Prefix+"_rews", 4, scalarElems, cfg.Steps, dims)
	if err != nil {
		return nil, err
	}
	news, err := layout.Open(cfg.Prefix+"_news", 1, scalarElems, cfg.Steps, dims)
	if err != nil {
		return nil, err
	}
	step, err := layout.Open(cfg.Prefix+"_step", 4, scalarElems, cfg.Steps, dims)
	if err != nil {
		return nil, err
	}
	scor, err := layout.Open(cfg.Prefix+"_scor", 4, scalarElems, cfg.Steps, dims)
	if err != nil {
		return nil, err
	}

	xObs0, err := layout.Open(cfg.Prefix+"_xlast_obs0", 1, xObsElems, 1, dims)
	if err != nil {
		return nil, err
	}
	xNews, err := layout.Open(cfg.Prefix+"_xlast_news", 1, xScalarElems, 1, dims)
	if err != nil {
		return nil, err
	}
	xStep, err := layout.Open(cfg.Prefix+"_xlast_step", 4, xScalarElems, 1, dims)
	if err != nil {
		return nil, err
	}
	xScor, err := layout.Open(cfg.Prefix+"_xlast_scor", 4, xScalarElems, 1, dims)
	if err != nil {
		return nil, err
	}

	tensors := &engine.Tensors{
		Obs0: layout.NewU8(obs0), Vo0: layout.NewF32(vo0), Acts: layout.NewI32(acts),
		Rews: layout.NewF32(rews), News: layout.NewBool(news), Step: layout.NewI32(step), Scor: layout.NewF32(scor),
		XObs0: layout.NewU8(xObs0), XNews: layout.NewBool(xNews), XStep: layout.NewI32(xStep), XScor: layout.NewF32(xScor),
	}

	if cfg.rgbEligible() {
		rgbDims := layout.Dims{Lump: 1, NCPU: 1, Bunch: 1, CPU: 0}
		rgbElems := int64(constants.FullHeight) * int64(constants.FullWidth) * int64(constants.RGBBytesPerPixel)
		rgb, err := layout.Open(cfg.Prefix+"_RGB", 1, rgbElems, 1, rgbDims)
		if err != nil {
			return nil, fmt.Errorf("vecgym: open rgb side-channel: %w", err)
		}
		t := layout.NewU8(rgb)
		tensors.RGB = &t
	}

	return tensors, nil
}
