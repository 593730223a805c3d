// Package layout implements the shared-memory layout and indexing
// scheme: it maps logical coordinates (lump, bunch-slot, cursor) to
// byte offsets inside memory-mapped tensor files, and validates that
// each file's on-disk size exactly matches its declared logical shape.
//
// Mirrors queue/runner.go's mmapQueues/loadDescriptor (raw mmap'd
// region + offset arithmetic into it) and uapi's struct marshal
// helpers (explicit byte-order, no reflection in the hot path).
package layout

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Dims carries the four outer topology dimensions a Tensor is indexed
// over: LUMP, NCPU, BUNCH, and this worker's own CPU index. Dims is
// fixed for the lifetime of the worker process.
type Dims struct {
	Lump  int
	NCPU  int
	Bunch int
	CPU   int
}

// Tensor is one mmap'd shared file, viewed as a 4-D array
// [Lump, NCPU, Bunch, Steps] of fixed-size inner chunks.
type Tensor struct {
	path       string
	data       []byte
	elemSize   int
	chunkElems int
	dims       Dims
	steps      int
}

// Open opens path read-write, maps it MAP_SHARED, and verifies its size
// exactly matches elemSize*totalElems. totalElems is the flat element
// count across the whole file (e.g.
// LUMP*NCPU*BUNCH*STEPS*H*W*STACK for _obs0). steps is the innermost
// replica count: STEPS for ring tensors, 1 for the _xlast_* family.
func Open(path string, elemSize int, totalElems int64, steps int, dims Dims) (*Tensor, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("layout: open %s: steps must be positive, got %d", path, steps)
	}
	outer := int64(dims.Lump) * int64(dims.NCPU) * int64(dims.Bunch) * int64(steps)
	if outer == 0 || totalElems%outer != 0 {
		return nil, fmt.Errorf("layout: open %s: cannot divide totalElems=%d by LUMP*NCPU*BUNCH*steps=%d",
			path, totalElems, outer)
	}
	chunkElems := totalElems / outer

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("layout: open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("layout: stat %s: %w", path, err)
	}

	wantBytes := int64(elemSize) * totalElems
	if st.Size != wantBytes {
		return nil, fmt.Errorf("layout: %s has size %d, expected %d (elemSize=%d * totalElems=%d)",
			path, st.Size, wantBytes, elemSize, totalElems)
	}

	data, err := unix.Mmap(fd, 0, int(wantBytes), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("layout: mmap %s: %w", path, err)
	}

	return &Tensor{
		path:       path,
		data:       data,
		elemSize:   elemSize,
		chunkElems: int(chunkElems),
		dims:       dims,
		steps:      steps,
	}, nil
}

// Close unmaps the tensor. Safe to call once; idempotent on a nil Tensor.
func (t *Tensor) Close() error {
	if t == nil || t.data == nil {
		return nil
	}
	err := unix.Munmap(t.data)
	t.data = nil
	return err
}

// ChunkBytes returns the byte length of one (lump, bunch, cursor) slot.
func (t *Tensor) ChunkBytes() int {
	return t.chunkElems * t.elemSize
}

// offset returns the element offset of the start of slot (l, b, cursor):
// chunk * (l*NCPU*BUNCH*steps + CPU*BUNCH*steps + b*steps + cursor).
func (t *Tensor) offset(l, b, cursor int) int {
	ncpu, bunch, steps := t.dims.NCPU, t.dims.Bunch, t.steps
	idx := l*ncpu*bunch*steps + t.dims.CPU*bunch*steps + b*steps + cursor
	return t.chunkElems * idx
}

// Slot returns a byte slice viewing the inner chunk at (l, b, cursor).
// The worker only ever addresses slots with its own CPU index, which is
// baked into Dims at Open time.
func (t *Tensor) Slot(l, b, cursor int) []byte {
	off := t.offset(l, b, cursor) * t.elemSize
	return t.data[off : off+t.ChunkBytes() : off+t.ChunkBytes()]
}

// Steps returns the configured replica count for this tensor (STEPS for
// ring tensors, 1 for _xlast_*).
func (t *Tensor) Steps() int { return t.steps }
