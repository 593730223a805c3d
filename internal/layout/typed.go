package layout

import (
	"encoding/binary"
	"math"
)

// U8 wraps a Tensor whose element type is a single byte (the observation
// stack and the RGB side-channel planes).
type U8 struct{ t *Tensor }

// NewU8 wraps t as a u8 tensor.
func NewU8(t *Tensor) U8 { return U8{t: t} }

// Slot returns the raw chunk bytes at (l, b, cursor) for in-place copy.
func (u U8) Slot(l, b, cursor int) []byte { return u.t.Slot(l, b, cursor) }

// Close releases the underlying mapping.
func (u U8) Close() error { return u.t.Close() }

// F32 wraps a Tensor whose element type is a single float32 per slot.
type F32 struct{ t *Tensor }

// NewF32 wraps t as an f32 scalar tensor.
func NewF32(t *Tensor) F32 { return F32{t: t} }

// Get reads the scalar float32 at (l, b, cursor).
func (f F32) Get(l, b, cursor int) float32 {
	buf := f.t.Slot(l, b, cursor)
	return math.Float32frombits(binary.NativeEndian.Uint32(buf))
}

// Set writes the scalar float32 at (l, b, cursor).
func (f F32) Set(l, b, cursor int, v float32) {
	buf := f.t.Slot(l, b, cursor)
	binary.NativeEndian.PutUint32(buf, math.Float32bits(v))
}

// Close releases the underlying mapping.
func (f F32) Close() error { return f.t.Close() }

// I32 wraps a Tensor whose element type is a single int32 per slot.
type I32 struct{ t *Tensor }

// NewI32 wraps t as an i32 scalar tensor.
func NewI32(t *Tensor) I32 { return I32{t: t} }

// Get reads the scalar int32 at (l, b, cursor).
func (i I32) Get(l, b, cursor int) int32 {
	buf := i.t.Slot(l, b, cursor)
	return int32(binary.NativeEndian.Uint32(buf))
}

// Set writes the scalar int32 at (l, b, cursor).
func (i I32) Set(l, b, cursor int, v int32) {
	buf := i.t.Slot(l, b, cursor)
	binary.NativeEndian.PutUint32(buf, uint32(v))
}

// Close releases the underlying mapping.
func (i I32) Close() error { return i.t.Close() }

// Bool wraps a Tensor whose element type is a single byte-sized bool per
// slot (matching the C ABI's sizeof(bool) == 1 on the platforms this
// protocol targets).
type Bool struct{ t *Tensor }

// NewBool wraps t as a bool scalar tensor.
func NewBool(t *Tensor) Bool { return Bool{t: t} }

// Get reads the scalar bool at (l, b, cursor).
func (bl Bool) Get(l, b, cursor int) bool {
	return bl.t.Slot(l, b, cursor)[0] != 0
}

// Set writes the scalar bool at (l, b, cursor).
func (bl Bool) Set(l, b, cursor int, v bool) {
	buf := bl.t.Slot(l, b, cursor)
	if v {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
}

// Close releases the underlying mapping.
func (bl Bool) Close() error { return bl.t.Close() }
