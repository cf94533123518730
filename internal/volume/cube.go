// Package volume builds dense seismic cubes from trace streams and cuts
// 2D slices out of them.
package volume

import (
	"strings"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/stats"
	"github.com/xtxerr/seiscube/internal/survey"
)

// Axis identifies one of the three cube axes.
type Axis int

const (
	AxisInline Axis = iota
	AxisCrossline
	AxisSample
)

// String returns the wire name of the axis.
func (a Axis) String() string {
	switch a {
	case AxisInline:
		return "inline"
	case AxisCrossline:
		return "xline"
	case AxisSample:
		return "sample"
	default:
		return "unknown"
	}
}

// ParseAxis parses inline, xline (or crossline) and sample.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "inline", "iline":
		return AxisInline, nil
	case "xline", "crossline":
		return AxisCrossline, nil
	case "sample", "time", "depth":
		return AxisSample, nil
	default:
		return 0, errors.NewInvalidAxis(s)
	}
}

// Axes lists the three axes in cube order.
var Axes = [3]Axis{AxisInline, AxisCrossline, AxisSample}

// Cube is a dense float32 volume indexed [inline][crossline][sample] in
// row-major order. It is immutable once built.
type Cube struct {
	data  []float32
	shape [3]int

	Inlines    []int32
	Crosslines []int32
	Samples    []float64

	Stats    stats.AmplitudeStats
	Geometry survey.Geometry
}

// NewCube wraps data laid out as len(inlines) x len(crosslines) x len(samples).
// The slices are retained, not copied.
func NewCube(data []float32, inlines, crosslines []int32, samples []float64) (*Cube, error) {
	shape := [3]int{len(inlines), len(crosslines), len(samples)}
	if len(data) != shape[0]*shape[1]*shape[2] {
		return nil, errors.NewValidation("cube data", "length does not match axes")
	}
	return &Cube{
		data:       data,
		shape:      shape,
		Inlines:    inlines,
		Crosslines: crosslines,
		Samples:    samples,
	}, nil
}

// Shape returns (inlines, crosslines, samples).
func (c *Cube) Shape() [3]int { return c.shape }

// Len returns the length of an axis.
func (c *Cube) Len(a Axis) int {
	if a < AxisInline || a > AxisSample {
		return 0
	}
	return c.shape[a]
}

// At returns the amplitude at (inline row, crossline column, sample).
func (c *Cube) At(i, j, k int) float32 {
	return c.data[(i*c.shape[1]+j)*c.shape[2]+k]
}

// Trace returns the samples at (i, j). The returned slice aliases the cube
// and must not be modified.
func (c *Cube) Trace(i, j int) []float32 {
	off := (i*c.shape[1] + j) * c.shape[2]
	return c.data[off : off+c.shape[2]]
}

// Data returns the backing array. It must not be modified.
func (c *Cube) Data() []float32 { return c.data }

// SizeBytes returns the memory held by the amplitude array.
func (c *Cube) SizeBytes() int64 { return int64(len(c.data)) * 4 }

// SizeMB returns SizeBytes in mebibytes.
func (c *Cube) SizeMB() float64 { return float64(c.SizeBytes()) / (1024 * 1024) }

// AxisValues returns the coordinate values of an axis as float64.
func (c *Cube) AxisValues(a Axis) []float64 {
	switch a {
	case AxisInline:
		return int32sToFloat64(c.Inlines)
	case AxisCrossline:
		return int32sToFloat64(c.Crosslines)
	case AxisSample:
		out := make([]float64, len(c.Samples))
		copy(out, c.Samples)
		return out
	default:
		return nil
	}
}

// CheckIndex validates a slice index along an axis.
func (c *Cube) CheckIndex(a Axis, index int) error {
	n := c.Len(a)
	if index < 0 || index >= n {
		return errors.NewOutOfRange(a.String(), index, n)
	}
	return nil
}

func int32sToFloat64(v []int32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
