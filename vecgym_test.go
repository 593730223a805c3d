package vecgym

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/atari-vecgym/vecgym-worker/internal/constants"
	"github.com/atari-vecgym/vecgym-worker/internal/fleet"
	"github.com/atari-vecgym/vecgym-worker/internal/interfaces"
)

// buildTestConfig lays out every tensor file Run needs at the exact
// byte sizes openTensors expects, for a single-lump/single-cpu/
// single-bunch/two-step topology, and wires a pair of OS pipes as the
// two control-channel file descriptors.
func buildTestConfig(t *testing.T) (Config, parentSide) {
	t.Helper()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "shm")

	const lump, ncpu, bunch, steps, stack = 1, 1, 1, 2, 1
	outer := int64(lump * ncpu * bunch)
	obsInner := int64(constants.SmallHeight * constants.SmallWidth * stack)

	mustZero := func(name string, n int64) {
		f, err := os.Create(prefix + name)
		require.NoError(t, err)
		defer f.Close()
		require.NoError(t, f.Truncate(n))
	}

	mustZero("_obs0", outer*int64(steps)*obsInner*1)
	mustZero("_vo0", outer*int64(steps)*4)
	mustZero("_acts", outer*int64(steps)*4)
	mustZero("_rews", outer*int64(steps)*4)
	mustZero("_news", outer*int64(steps)*1)
	mustZero("_step", outer*int64(steps)*4)
	mustZero("_scor", outer*int64(steps)*4)
	mustZero("_xlast_obs0", outer*obsInner*1)
	mustZero("_xlast_news", outer*1)
	mustZero("_xlast_step", outer*4)
	mustZero("_xlast_scor", outer*4)

	p2c, err := unixPipePair(t)
	require.NoError(t, err)
	c2p, err := unixPipePair(t)
	require.NoError(t, err)

	cfg := Config{
		Prefix: prefix, EnvID: "test-env", ROM: "fake.rom",
		Lump: lump, CPU: 0, NCPU: ncpu, Bunch: bunch,
		Steps: steps, Skip: 1, Stack: stack,
		ReadFD: p2c[0], WriteFD: c2p[1],
	}
	return cfg, parentSide{writeFD: p2c[1], readFD: c2p[0]}
}

// parentSide is the test's view of the orchestrator half of the two
// pipes: it writes commands the worker reads, and reads acks the
// worker writes.
type parentSide struct {
	writeFD, readFD int
}

func (p parentSide) send(b byte) error {
	n, err := unix.Write(p.writeFD, []byte{b})
	if err != nil {
		return err
	}
	if n != 1 {
		return os.ErrClosed
	}
	return nil
}

func (p parentSide) recv() (byte, error) {
	var buf [1]byte
	n, err := unix.Read(p.readFD, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, os.ErrClosed
	}
	return buf[0], nil
}

func unixPipePair(t *testing.T) ([2]int, error) {
	t.Helper()
	var fds [2]int
	err := unix.Pipe(fds[:])
	return fds, err
}

type singleActionEmulator struct{}

func (singleActionEmulator) SetSeed(int64)                   {}
func (singleActionEmulator) SetStickyActionProbability(float64) {}
func (singleActionEmulator) LoadROM(string) error            { return nil }
func (singleActionEmulator) MinimalActionSet() []int         { return []int{0} }
func (singleActionEmulator) Act(int) (int32, error)          { return 1, nil }
func (singleActionEmulator) GameOver() bool                  { return false }
func (singleActionEmulator) Lives() int                      { return 3 }
func (singleActionEmulator) Reset() error                    { return nil }
func (singleActionEmulator) ScreenDimensions() (int, int) {
	return constants.FullWidth, constants.FullHeight
}
func (singleActionEmulator) Screen(buf []byte) error { return nil }
func (singleActionEmulator) ScreenRGB(buf []byte) error { return nil }
func (singleActionEmulator) Palette() [256][3]uint8  { return [256][3]uint8{} }

var _ interfaces.Emulator = singleActionEmulator{}

func factory() interfaces.Emulator { return singleActionEmulator{} }

// TestRunHandshakeAndPublishInitial drives the worker through fleet
// construction, the 'R'/'0' handshake, and publish-initial for its
// single lump, then quits it — a trivial lockstep and quit exercised
// through the public Worker.Run entrypoint rather than at the engine
// package's level.
func TestRunHandshakeAndPublishInitial(t *testing.T) {
	cfg, parent := buildTestConfig(t)

	w, err := New(cfg, fleet.Factory(factory), NoOpObserver{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	tok, err := parent.recv()
	require.NoError(t, err)
	require.Equal(t, byte('R'), tok)

	require.NoError(t, parent.send('0'))

	tok, err = parent.recv()
	require.NoError(t, err)
	require.Equal(t, byte('a'), tok, "ack for lump 0's publish-initial")

	require.NoError(t, parent.send('Q'))
	require.NoError(t, <-done)

	_, err = unix.Write(cfg.WriteFD, []byte{0})
	require.Error(t, err, "worker's own pipe fds must be closed once Run returns")
}

// TestRunAdvanceRoundTrip drives one full environment-step through the
// real Worker after publish-initial, then quits.
func TestRunAdvanceRoundTrip(t *testing.T) {
	cfg, parent := buildTestConfig(t)

	w, err := New(cfg, fleet.Factory(factory), NoOpObserver{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	tok, err := parent.recv()
	require.NoError(t, err)
	require.Equal(t, byte('R'), tok)

	require.NoError(t, parent.send('0'))
	tok, err = parent.recv()
	require.NoError(t, err)
	require.Equal(t, byte('a'), tok)

	require.NoError(t, parent.send('a'))
	tok, err = parent.recv()
	require.NoError(t, err)
	require.Equal(t, byte('a'), tok, "ack for the steady-state advance")

	require.NoError(t, parent.send('Q'))
	require.NoError(t, <-done)
}
