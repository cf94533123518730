package volume

import (
	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/stats"
)

// Slice is a 2D cut through a cube, stored row-major as Rows x Cols.
//
//	inline:    rows = samples,  cols = crosslines, X = crosslines, Y = samples
//	crossline: rows = samples,  cols = inlines,    X = inlines,    Y = samples
//	sample:    rows = inlines,  cols = crosslines, X = inlines,    Y = crosslines
type Slice struct {
	Axis  Axis
	Index int

	Rows int
	Cols int
	Data []float32

	X []float64
	Y []float64

	Stats stats.AmplitudeStats
}

// At returns the value at (row, col).
func (s *Slice) At(r, c int) float32 { return s.Data[r*s.Cols+c] }

// Row returns one row. The returned slice aliases Data.
func (s *Slice) Row(r int) []float32 { return s.Data[r*s.Cols : (r+1)*s.Cols] }

// Matrix returns the data as a row slice of rows.
func (s *Slice) Matrix() [][]float32 {
	out := make([][]float32, s.Rows)
	for r := range out {
		out[r] = s.Row(r)
	}
	return out
}

// Slice extracts the 2D slice at index along axis. Values are sanitized and
// summarized (min, max, mean, std).
func (c *Cube) Slice(axis Axis, index int) (*Slice, error) {
	if axis < AxisInline || axis > AxisSample {
		return nil, errors.NewInvalidAxis(axis.String())
	}
	if err := c.CheckIndex(axis, index); err != nil {
		return nil, err
	}

	nIL, nXL, ns := c.shape[0], c.shape[1], c.shape[2]
	s := &Slice{Axis: axis, Index: index}

	switch axis {
	case AxisInline:
		s.Rows, s.Cols = ns, nXL
		s.Data = make([]float32, ns*nXL)
		for j := 0; j < nXL; j++ {
			tr := c.Trace(index, j)
			for k := 0; k < ns; k++ {
				s.Data[k*nXL+j] = tr[k]
			}
		}
		s.X = c.AxisValues(AxisCrossline)
		s.Y = c.AxisValues(AxisSample)

	case AxisCrossline:
		s.Rows, s.Cols = ns, nIL
		s.Data = make([]float32, ns*nIL)
		for i := 0; i < nIL; i++ {
			tr := c.Trace(i, index)
			for k := 0; k < ns; k++ {
				s.Data[k*nIL+i] = tr[k]
			}
		}
		s.X = c.AxisValues(AxisInline)
		s.Y = c.AxisValues(AxisSample)

	case AxisSample:
		s.Rows, s.Cols = nIL, nXL
		s.Data = make([]float32, nIL*nXL)
		for i := 0; i < nIL; i++ {
			for j := 0; j < nXL; j++ {
				s.Data[i*nXL+j] = c.At(i, j, index)
			}
		}
		s.X = c.AxisValues(AxisInline)
		s.Y = c.AxisValues(AxisCrossline)
	}

	stats.Sanitize(s.Data)
	s.Stats = stats.Summary(s.Data)
	return s, nil
}

// SliceFromData rebuilds a slice from a stored raw array, taking the
// coordinates from the cube. The array shape must match the cube.
func (c *Cube) SliceFromData(axis Axis, index, rows, cols int, data []float32) (*Slice, error) {
	if err := c.CheckIndex(axis, index); err != nil {
		return nil, err
	}

	s := &Slice{Axis: axis, Index: index, Rows: rows, Cols: cols, Data: data}
	switch axis {
	case AxisInline:
		s.X, s.Y = c.AxisValues(AxisCrossline), c.AxisValues(AxisSample)
	case AxisCrossline:
		s.X, s.Y = c.AxisValues(AxisInline), c.AxisValues(AxisSample)
	case AxisSample:
		s.X, s.Y = c.AxisValues(AxisInline), c.AxisValues(AxisCrossline)
	}

	wantRows, wantCols := len(s.Y), len(s.X)
	if axis == AxisSample {
		wantRows, wantCols = len(s.X), len(s.Y)
	}
	if rows != wantRows || cols != wantCols || len(data) != rows*cols {
		return nil, errors.NewValidation("stored slice", "shape does not match the cube")
	}

	stats.Sanitize(s.Data)
	s.Stats = stats.Summary(s.Data)
	return s, nil
}
