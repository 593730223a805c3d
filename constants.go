package vecgym

import "github.com/atari-vecgym/vecgym-worker/internal/constants"

// Re-export the fixed geometry constants for external callers (the
// bootstrap binary, and any package that wants to size tensor files
// without importing internal/constants directly).
const (
	SmallWidth       = constants.SmallWidth
	SmallHeight      = constants.SmallHeight
	FullWidth        = constants.FullWidth
	FullHeight       = constants.FullHeight
	FrameLimit       = constants.FrameLimit
	MaxLumps         = constants.MaxLumps
	PaletteSize      = constants.PaletteSize
	RGBBytesPerPixel = constants.RGBBytesPerPixel
)

// ActionSentinel is the "parent did not fill this action slot" marker.
const ActionSentinel int32 = constants.ActionSentinel

