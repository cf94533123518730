package survey

import "math"

// GridPair is a resolved (inline, crossline) label.
type GridPair struct {
	Inline    int32
	Crossline int32
}

// FallbackPolicy assigns a surrogate grid position to a trace whose header
// could not be read or carries a zero inline or crossline.
type FallbackPolicy interface {
	// Resolve returns the pair for the trace at stream position among total traces.
	// It must be deterministic in (position, total).
	Resolve(position, total int) GridPair
}

// SyntheticGrid lays failing traces out row by row on a square grid of side
// floor(sqrt(total)), labelled from 1. It is an approximation for files with
// missing headers, not a geophysical reconstruction.
type SyntheticGrid struct{}

// Resolve implements FallbackPolicy.
func (SyntheticGrid) Resolve(position, total int) GridPair {
	side := int(math.Sqrt(float64(total)))
	if side < 1 {
		side = 1
	}
	return GridPair{
		Inline:    int32(position/side + 1),
		Crossline: int32(position%side + 1),
	}
}

// FallbackFunc adapts a function to FallbackPolicy.
type FallbackFunc func(position, total int) GridPair

// Resolve implements FallbackPolicy.
func (f FallbackFunc) Resolve(position, total int) GridPair { return f(position, total) }
