package engine

import "github.com/atari-vecgym/vecgym-worker/internal/layout"

// Tensors gathers the typed mmap'd views the observation pipeline
// reads and writes. Every tensor shares the same Dims (this worker's
// LUMP/NCPU/BUNCH/CPU); only the ring length (steps) and element type
// differ between them.
type Tensors struct {
	Obs0 layout.U8
	Vo0  layout.F32
	Acts layout.I32
	Rews layout.F32
	News layout.Bool
	Step layout.I32
	Scor layout.F32

	// Overflow targets, used when save == STEPS. There is no xlast_rews
	// (reward always commits to cursor, never to save, so it never
	// overflows) and no xlast_acts (the worker never writes actions).
	XObs0 layout.U8
	XNews layout.Bool
	XStep layout.I32
	XScor layout.F32

	// RGB is the optional single-environment side-channel; nil unless
	// LUMP == NCPU == BUNCH == STEPS == 1.
	RGB *layout.U8
}

// Close unmaps every tensor held by t, returning the first error
// encountered (continuing to close the rest).
func (t *Tensors) Close() error {
	var first error
	closers := []func() error{
		t.Obs0.Close, t.Vo0.Close, t.Acts.Close, t.Rews.Close,
		t.News.Close, t.Step.Close, t.Scor.Close,
		t.XObs0.Close, t.XNews.Close, t.XStep.Close, t.XScor.Close,
	}
	if t.RGB != nil {
		closers = append(closers, t.RGB.Close)
	}
	for _, c := range closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
