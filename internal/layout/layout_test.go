package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeFile(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tensor")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func TestOpenRejectsWrongSize(t *testing.T) {
	path := makeFile(t, 10)
	_, err := Open(path, 4, 4, 1, Dims{Lump: 1, NCPU: 1, Bunch: 1, CPU: 0})
	require.Error(t, err)
}

func TestOpenRejectsNonDivisibleShape(t *testing.T) {
	// totalElems=5 cannot be divided among LUMP*NCPU*BUNCH*steps=2
	path := makeFile(t, 4*5)
	_, err := Open(path, 4, 5, 1, Dims{Lump: 2, NCPU: 1, Bunch: 1, CPU: 0})
	require.Error(t, err)
}

func TestOffsetFormulaMatchesSpec(t *testing.T) {
	// LUMP=2, NCPU=2, BUNCH=3, STEPS=4, chunk size 5 elements per slot.
	lump, ncpu, bunch, steps, chunk := 2, 2, 3, 4, 5
	total := int64(lump * ncpu * bunch * steps * chunk)
	path := makeFile(t, total*4)

	cpu := 1
	tn, err := Open(path, 4, total, steps, Dims{Lump: lump, NCPU: ncpu, Bunch: bunch, CPU: cpu})
	require.NoError(t, err)
	defer tn.Close()

	require.Equal(t, chunk*4, tn.ChunkBytes())

	l, b, cursor := 1, 2, 3
	want := chunk * (l*ncpu*bunch*steps + cpu*bunch*steps + b*steps + cursor)
	got := tn.offset(l, b, cursor)
	require.Equal(t, want, got)
}

func TestSlotRoundTrip(t *testing.T) {
	lump, ncpu, bunch, steps := 1, 1, 1, 4
	total := int64(lump * ncpu * bunch * steps)
	path := makeFile(t, total*4)

	tn, err := Open(path, 4, total, steps, Dims{Lump: lump, NCPU: ncpu, Bunch: bunch, CPU: 0})
	require.NoError(t, err)
	defer tn.Close()

	i32 := NewI32(tn)
	i32.Set(0, 0, 2, 42)
	require.Equal(t, int32(42), i32.Get(0, 0, 2))
	// Other cursors remain untouched.
	require.Equal(t, int32(0), i32.Get(0, 0, 0))
}

func TestBoolTensor(t *testing.T) {
	path := makeFile(t, 4)
	tn, err := Open(path, 1, 4, 4, Dims{Lump: 1, NCPU: 1, Bunch: 1, CPU: 0})
	require.NoError(t, err)
	defer tn.Close()

	bl := NewBool(tn)
	require.False(t, bl.Get(0, 0, 0))
	bl.Set(0, 0, 0, true)
	require.True(t, bl.Get(0, 0, 0))
	require.False(t, bl.Get(0, 0, 1))
}

func TestF32TensorRoundTrip(t *testing.T) {
	path := makeFile(t, 4*2)
	tn, err := Open(path, 4, 2, 2, Dims{Lump: 1, NCPU: 1, Bunch: 1, CPU: 0})
	require.NoError(t, err)
	defer tn.Close()

	f := NewF32(tn)
	f.Set(0, 0, 1, 0.5)
	require.InDelta(t, float32(0.5), f.Get(0, 0, 1), 1e-6)
}

func TestU8SlotIsChunkSized(t *testing.T) {
	lump, ncpu, bunch, steps, chunk := 1, 1, 1, 2, 6
	total := int64(lump * ncpu * bunch * steps * chunk)
	path := makeFile(t, total)

	tn, err := Open(path, 1, total, steps, Dims{Lump: lump, NCPU: ncpu, Bunch: bunch, CPU: 0})
	require.NoError(t, err)
	defer tn.Close()

	u := NewU8(tn)
	slot := u.Slot(0, 0, 1)
	require.Len(t, slot, chunk)
	for i := range slot {
		slot[i] = byte(i + 1)
	}
	// Re-reading the same slot should see the write (same backing mmap).
	slot2 := u.Slot(0, 0, 1)
	require.Equal(t, slot, slot2)
	// Neighboring slot must be unaffected.
	other := u.Slot(0, 0, 0)
	for _, v := range other {
		require.Zero(t, v)
	}
}
