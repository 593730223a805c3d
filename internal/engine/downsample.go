package engine

// downsample reduces a full-resolution indexed frame (fullW x fullH,
// one palette index per byte) to a half-resolution grayscale frame
// (smallW x smallH) by averaging each 2x2 block of palette-looked-up
// luminance values.
func downsample(raw []byte, fullW, smallW, smallH int, palette [256]uint16, out []byte) {
	for y := 0; y < smallH; y++ {
		rowA := (2 * y) * fullW
		rowB := (2*y + 1) * fullW
		for x := 0; x < smallW; x++ {
			c00 := palette[raw[rowA+2*x]]
			c01 := palette[raw[rowA+2*x+1]]
			c10 := palette[raw[rowB+2*x]]
			c11 := palette[raw[rowB+2*x+1]]
			out[y*smallW+x] = byte((c00 + c01 + c10 + c11) / 4)
		}
	}
}
