package ffmpeg

import (
	"fmt"
	"strconv"
)

// SquircleAlpha builds the per-pixel alpha expression that rounds the
// corners of a size×size square with a superellipse (x⁴ + y⁴ = r⁴)
// boundary. Pixels whose corner-region distance lies inside the curve stay
// opaque, pixels outside become transparent, and pixels along the straight
// edges are untouched because their folded distance on that axis is zero.
//
// The geometry is folded around the square's center c = (size-1)/2: for
// each axis, distance beyond the straight-edge span (c - radius) is
//
//	d = max(|X - c| - (c - radius), 0)
//
// which is nonzero only inside the four corner squares. All constants are
// computed here rather than in expression arithmetic, so the encoder
// evaluates a fixed-form test per pixel.
func SquircleAlpha(size, radius int) string {
	c := float64(size-1) / 2
	inner := c - float64(radius)
	r4 := int64(radius) * int64(radius) * int64(radius) * int64(radius)

	dx := fmt.Sprintf("max(abs(X-%s)-%s,0)", ftoa(c), ftoa(inner))
	dy := fmt.Sprintf("max(abs(Y-%s)-%s,0)", ftoa(c), ftoa(inner))
	return fmt.Sprintf("if(lte(pow(%s,4)+pow(%s,4),%d),255,0)", dx, dy, r4)
}

// ftoa renders a float with no trailing zeros, so 159.5 stays "159.5" and
// 160 stays "160".
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
