package vecgym

import (
	"fmt"
	"sync"

	"github.com/atari-vecgym/vecgym-worker/internal/interfaces"
)

// scriptedFrame is one entry in a MockEmulator's scripted raw-frame
// sequence: the reward and life count reported for that frame, and
// whether GameOver should report true afterward.
type scriptedFrame struct {
	Reward   int32
	Lives    int
	GameOver bool
}

// MockEmulator is a deterministic, scriptable implementation of
// interfaces.Emulator for tests. Its raw-frame sequence is supplied up
// front and replayed in order; once exhausted it repeats the last
// entry, report forever (a fixed ROM that never ends on its own).
type MockEmulator struct {
	mu sync.Mutex

	script []scriptedFrame
	cursor int

	seed     int64
	sticky   float64
	rom      string
	lives    int
	gameOver bool

	loadROMErr error
	actErr     error

	actCalls   int
	resetCalls int

	w, h int
}

// NewMockEmulator builds a MockEmulator that replays script in order,
// holding at the last entry once exhausted. A full-resolution screen of
// w x h is reported.
func NewMockEmulator(script []scriptedFrame, w, h int) *MockEmulator {
	return &MockEmulator{script: script, w: w, h: h}
}

func (m *MockEmulator) SetSeed(seed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seed = seed
}

func (m *MockEmulator) SetStickyActionProbability(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sticky = p
}

func (m *MockEmulator) LoadROM(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadROMErr != nil {
		return m.loadROMErr
	}
	m.rom = path
	return nil
}

func (m *MockEmulator) MinimalActionSet() []int {
	return []int{0, 1, 2, 3}
}

func (m *MockEmulator) Act(action int) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.actCalls++
	if m.actErr != nil {
		return 0, m.actErr
	}

	frame := m.current()
	m.lives = frame.Lives
	m.gameOver = frame.GameOver
	if m.cursor < len(m.script) {
		m.cursor++
	}
	return frame.Reward, nil
}

func (m *MockEmulator) GameOver() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gameOver
}

func (m *MockEmulator) Lives() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lives
}

func (m *MockEmulator) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls++
	m.cursor = 0
	m.gameOver = false
	if len(m.script) > 0 {
		m.lives = m.script[0].Lives
	}
	return nil
}

func (m *MockEmulator) ScreenDimensions() (int, int) {
	return m.w, m.h
}

func (m *MockEmulator) Screen(buf []byte) error {
	for i := range buf {
		buf[i] = 1
	}
	return nil
}

func (m *MockEmulator) ScreenRGB(buf []byte) error {
	for i := range buf {
		buf[i] = 1
	}
	return nil
}

func (m *MockEmulator) Palette() [256][3]uint8 {
	var p [256][3]uint8
	for i := range p {
		p[i] = [3]uint8{10, 20, 30}
	}
	return p
}

// current returns the script entry at the cursor, clamped to the last
// entry once exhausted.
func (m *MockEmulator) current() scriptedFrame {
	if len(m.script) == 0 {
		return scriptedFrame{}
	}
	if m.cursor >= len(m.script) {
		return m.script[len(m.script)-1]
	}
	return m.script[m.cursor]
}

// ActCalls returns how many times Act has been invoked.
func (m *MockEmulator) ActCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actCalls
}

// ResetCalls returns how many times Reset has been invoked.
func (m *MockEmulator) ResetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCalls
}

// Seed returns the seed most recently set via SetSeed.
func (m *MockEmulator) Seed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seed
}

// SetLoadROMError makes the next LoadROM call fail with err.
func (m *MockEmulator) SetLoadROMError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadROMErr = err
}

// MockLogger records every call for assertion in tests instead of
// writing anywhere.
type MockLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *MockLogger) Printf(format string, args ...interface{}) {
	l.record(format, args...)
}

func (l *MockLogger) Debugf(format string, args ...interface{}) {
	l.record(format, args...)
}

func (l *MockLogger) record(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

// Lines returns every message recorded so far.
func (l *MockLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

var _ interfaces.Emulator = (*MockEmulator)(nil)
var _ interfaces.Logger = (*MockLogger)(nil)
