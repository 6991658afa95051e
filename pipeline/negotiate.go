package pipeline

import (
	"math"
)

// NegotiateVideoSize fits the requested size into what the encoder
// supports and then into the maxWidth x maxHeight box; the encoder's
// minimum wins over a smaller box.
func NegotiateVideoSize(
	caps VideoCapabilities,
	width, height uint32,
	maxWidth, maxHeight uint32,
) (uint32, uint32) {
	w := max(min(caps.Widths.Clamp(width), maxWidth), caps.Widths.Min)
	h := max(min(caps.Heights.Clamp(height), maxHeight), caps.Heights.Min)
	return align(w, caps.Alignment, caps.Widths), align(h, caps.Alignment, caps.Heights)
}

func align(v, alignment uint32, r Range) uint32 {
	if alignment <= 1 {
		return v
	}
	aligned := v - v%alignment
	if aligned < r.Min {
		aligned += alignment
	}
	return aligned
}

// VideoBitrate is multiplier * frameRate * width * height.
func VideoBitrate(
	multiplier float64,
	frameRate uint,
	width, height uint32,
) uint64 {
	return uint64(math.Round(multiplier * float64(frameRate) * float64(width) * float64(height)))
}
