package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atari-vecgym/vecgym-worker/internal/constants"
	"github.com/atari-vecgym/vecgym-worker/internal/fleet"
	"github.com/atari-vecgym/vecgym-worker/internal/interfaces"
	"github.com/atari-vecgym/vecgym-worker/internal/layout"
)

// scriptStep is one raw-frame outcome a fakeEmulator will report.
type scriptStep struct {
	reward   int32
	gameOver bool
	lives    int
}

// expand repeats each per-environment-step outcome skip times, so a
// test can author scripts in units of environment-steps.
func expand(perStep []scriptStep, skip int) []scriptStep {
	out := make([]scriptStep, 0, len(perStep)*skip)
	for _, s := range perStep {
		for i := 0; i < skip; i++ {
			out = append(out, s)
		}
	}
	return out
}

type fakeEmulator struct {
	script     []scriptStep
	idx        int
	resetCount int
	actions    []int
}

func newFakeEmulator(script []scriptStep) *fakeEmulator {
	return &fakeEmulator{script: script, actions: []int{0, 1}}
}

func (f *fakeEmulator) SetSeed(int64)                   {}
func (f *fakeEmulator) SetStickyActionProbability(float64) {}
func (f *fakeEmulator) LoadROM(string) error            { return nil }
func (f *fakeEmulator) MinimalActionSet() []int         { return f.actions }

func (f *fakeEmulator) Act(action int) (int32, error) {
	s := f.script[f.idx%len(f.script)]
	f.idx++
	return s.reward, nil
}

func (f *fakeEmulator) current() scriptStep {
	i := f.idx - 1
	if i < 0 {
		i = 0
	}
	return f.script[i%len(f.script)]
}

func (f *fakeEmulator) GameOver() bool { return f.current().gameOver }
func (f *fakeEmulator) Lives() int     { return f.current().lives }

func (f *fakeEmulator) Reset() error {
	f.resetCount++
	f.idx = 0
	return nil
}

func (f *fakeEmulator) ScreenDimensions() (int, int) {
	return constants.FullWidth, constants.FullHeight
}

func (f *fakeEmulator) Screen(buf []byte) error {
	for i := range buf {
		buf[i] = 1
	}
	return nil
}

func (f *fakeEmulator) ScreenRGB(buf []byte) error {
	for i := range buf {
		buf[i] = 1
	}
	return nil
}

func (f *fakeEmulator) Palette() [256][3]uint8 {
	var p [256][3]uint8
	p[1] = [3]uint8{10, 20, 30}
	return p
}

var _ interfaces.Emulator = (*fakeEmulator)(nil)

// testHarness wires a single-lump, single-bunch Engine to mmap-backed
// tensors sized for cfg, using a pre-scripted fake emulator.
type testHarness struct {
	cfg     Config
	tensors *Tensors
	engine  *Engine
	emu     *fakeEmulator
}

func newHarness(t *testing.T, cfg Config, script []scriptStep) *testHarness {
	t.Helper()
	dir := t.TempDir()
	dims := layout.Dims{Lump: cfg.Lump, NCPU: cfg.NCPU, Bunch: cfg.Bunch, CPU: 0}
	outer := int64(cfg.Lump * cfg.NCPU * cfg.Bunch)

	openRing := func(name string, elemSize int, inner int64) *layout.Tensor {
		t.Helper()
		total := outer * int64(cfg.Steps) * inner
		path := filepath.Join(dir, name)
		require.NoError(t, makeZeroFile(path, total*int64(elemSize)))
		tn, err := layout.Open(path, elemSize, total, cfg.Steps, dims)
		require.NoError(t, err)
		return tn
	}
	openXlast := func(name string, elemSize int, inner int64) *layout.Tensor {
		t.Helper()
		total := outer * inner
		path := filepath.Join(dir, name)
		require.NoError(t, makeZeroFile(path, total*int64(elemSize)))
		tn, err := layout.Open(path, elemSize, total, 1, dims)
		require.NoError(t, err)
		return tn
	}

	obsInner := int64(constants.SmallHeight * constants.SmallWidth * cfg.Stack)

	tensors := &Tensors{
		Obs0:  layout.NewU8(openRing("obs0", 1, obsInner)),
		Vo0:   layout.NewF32(openRing("vo0", 4, 1)),
		Acts:  layout.NewI32(openRing("acts", 4, 1)),
		Rews:  layout.NewF32(openRing("rews", 4, 1)),
		News:  layout.NewBool(openRing("news", 1, 1)),
		Step:  layout.NewI32(openRing("step", 4, 1)),
		Scor:  layout.NewF32(openRing("scor", 4, 1)),
		XObs0: layout.NewU8(openXlast("xlast_obs0", 1, obsInner)),
		XNews: layout.NewBool(openXlast("xlast_news", 1, 1)),
		XStep: layout.NewI32(openXlast("xlast_step", 4, 1)),
		XScor: layout.NewF32(openXlast("xlast_scor", 4, 1)),
	}

	if cfg.rgbEligible() {
		rgbPath := filepath.Join(dir, "RGB")
		require.NoError(t, makeZeroFile(rgbPath, int64(rgbFrameBytes)))
		rgbDims := layout.Dims{Lump: 1, NCPU: 1, Bunch: 1, CPU: 0}
		rgbTn, err := layout.Open(rgbPath, 1, int64(rgbFrameBytes), 1, rgbDims)
		require.NoError(t, err)
		rgb := layout.NewU8(rgbTn)
		tensors.RGB = &rgb
	}

	emu := newFakeEmulator(script)
	fl, err := fleet.New(func() interfaces.Emulator { return emu }, cfg.Lump, cfg.Bunch, 0, "fake.rom")
	require.NoError(t, err)

	eng := New(cfg, fl, tensors, nil, nil)
	return &testHarness{cfg: cfg, tensors: tensors, engine: eng, emu: emu}
}

func makeZeroFile(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func TestTrivialLockstep(t *testing.T) {
	cfg := Config{Lump: 1, NCPU: 1, Bunch: 1, Steps: 4, Skip: 2, Stack: 4}
	script := expand([]scriptStep{
		{reward: 1, lives: 3},
		{reward: 1, lives: 3},
		{reward: 1, lives: 3},
		{reward: 1, lives: 3},
	}, cfg.Skip)
	h := newHarness(t, cfg, script)

	require.NoError(t, h.engine.PublishInitial(0))
	require.True(t, h.tensors.News.Get(0, 0, 0))

	for cursor := 0; cursor < cfg.Steps-1; cursor++ {
		h.tensors.Acts.Set(0, 0, cursor, 0)
		require.NoError(t, h.engine.Advance(0, cursor))
	}

	var prevScor float32
	for i := 0; i < cfg.Steps; i++ {
		require.Equal(t, int32(2*i), h.tensors.Step.Get(0, 0, i))
		scor := h.tensors.Scor.Get(0, 0, i)
		require.GreaterOrEqual(t, scor, prevScor)
		prevScor = scor
	}
}

func TestResetOnLifeLoss(t *testing.T) {
	cfg := Config{Lump: 1, NCPU: 1, Bunch: 1, Steps: 4, Skip: 2, Stack: 2}
	script := expand([]scriptStep{
		{reward: 1, lives: 3}, // cursor 0 -> save 1
		{reward: 1, lives: 3}, // cursor 1 -> save 2
		{reward: 1, lives: 2}, // cursor 2 -> save 3 : life lost here
		{reward: 1, lives: 2}, // cursor 3 would overflow with Steps=4 (save=4==Steps so unused in this test)
	}, cfg.Skip)
	h := newHarness(t, cfg, script)

	require.NoError(t, h.engine.PublishInitial(0))
	for cursor := 0; cursor < 3; cursor++ {
		h.tensors.Acts.Set(0, 0, cursor, 0)
		require.NoError(t, h.engine.Advance(0, cursor))
	}

	require.Equal(t, float32(-1), h.tensors.Rews.Get(0, 0, 2))
	require.True(t, h.tensors.News.Get(0, 0, 3))
	require.Equal(t, 0, h.emu.resetCount)
	require.Equal(t, h.tensors.Step.Get(0, 0, 2)+int32(cfg.Skip), h.tensors.Step.Get(0, 0, 3))
}

func TestResetOnGameOver(t *testing.T) {
	cfg := Config{Lump: 1, NCPU: 1, Bunch: 1, Steps: 4, Skip: 2, Stack: 2}
	script := expand([]scriptStep{
		{reward: 1, lives: 3},               // cursor 0 -> save 1
		{reward: 1, lives: 3, gameOver: true}, // cursor 1 -> save 2 : game over here
	}, cfg.Skip)
	h := newHarness(t, cfg, script)

	require.NoError(t, h.engine.PublishInitial(0))
	h.tensors.Acts.Set(0, 0, 0, 0)
	require.NoError(t, h.engine.Advance(0, 0))
	h.tensors.Acts.Set(0, 0, 1, 0)
	require.NoError(t, h.engine.Advance(0, 1))

	require.True(t, h.tensors.News.Get(0, 0, 2))
	require.Equal(t, int32(0), h.tensors.Step.Get(0, 0, 2))
	require.Equal(t, float32(0), h.tensors.Scor.Get(0, 0, 2))
	require.Equal(t, 1, h.emu.resetCount)

	obs := h.tensors.Obs0.Slot(0, 0, 2)
	stack := cfg.Stack
	for p := 0; p < constants.SmallHeight*constants.SmallWidth; p++ {
		first := obs[p*stack]
		for s := 1; s < stack; s++ {
			require.Equal(t, first, obs[p*stack+s])
		}
	}
}

func TestFrameLimitForcesReset(t *testing.T) {
	cfg := Config{Lump: 1, NCPU: 1, Bunch: 1, Steps: 2, Skip: 1, Stack: 1}
	script := []scriptStep{{reward: 0, lives: 3}}
	h := newHarness(t, cfg, script)
	require.NoError(t, h.engine.PublishInitial(0))

	cursor := 0
	for step := int32(0); step < constants.FrameLimit; step++ {
		h.tensors.Acts.Set(0, 0, cursor%cfg.Steps, 0)
		require.NoError(t, h.engine.Advance(0, cursor%cfg.Steps))
		cursor++
		if cursor%cfg.Steps == 0 {
			// ring would wrap; reset cursor back to 0 as the parent would
			// via a '0' token once cursor reaches STEPS.
			cursor = 0
		}
	}
	require.Equal(t, 1, h.emu.resetCount)
}
