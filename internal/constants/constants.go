// Package constants holds the fixed geometry and topology limits shared
// across the worker.
package constants

// Small-frame geometry.
const (
	// SmallWidth is the width of the downsampled grayscale observation.
	SmallWidth = 80
	// SmallHeight is the height of the downsampled grayscale observation.
	SmallHeight = 105
	// FullWidth is the native emulator screen width (2 * SmallWidth).
	FullWidth = 2 * SmallWidth
	// FullHeight is the native emulator screen height (2 * SmallHeight).
	FullHeight = 2 * SmallHeight
)

// FrameLimit is the hard per-episode frame cap before a forced reset.
const FrameLimit = 15000

// MaxLumps is the largest LUMP value the 'a'..'h' token alphabet supports.
const MaxLumps = 8

// ActionSentinel is the "parent did not fill this action slot" marker.
// It is checked against the raw int32 read from the action tensor before
// it is ever used to index into an emulator's minimal action set.
const ActionSentinel int32 = 0xDEAD

// PaletteSize is the number of entries in an emulator's color palette.
const PaletteSize = 256

// RGBBytesPerPixel is the pixel stride of the full-resolution RGB
// side-channel tensor.
const RGBBytesPerPixel = 3
