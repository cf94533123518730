package testutil

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/seiscube/internal/segy"
	"github.com/xtxerr/seiscube/internal/survey"
)

// SurveySpec describes a synthetic survey on a regular grid.
type SurveySpec struct {
	Inlines    int
	Crosslines int
	Samples    int

	// FirstInline and FirstCrossline are the labels of the first row and
	// column. Zero means 1.
	FirstInline    int32
	FirstCrossline int32

	// Origin and Spacing place trace (i, j) at Origin + i*Spacing along the
	// inline direction and j*Spacing along the crossline direction, both
	// rotated counter-clockwise by RotationDeg.
	OriginX, OriginY float64
	Spacing          float64
	RotationDeg      float64
}

// Amplitude is the synthetic value of sample k of trace (i, j).
func Amplitude(i, j, k int) float32 {
	return float32(i*1000+j*10) + float32(k)*0.5
}

// Survey generates headers and traces in inline-major order.
func Survey(spec SurveySpec) ([]survey.TraceHeader, [][]float32) {
	il0, xl0 := spec.FirstInline, spec.FirstCrossline
	if il0 == 0 {
		il0 = 1
	}
	if xl0 == 0 {
		xl0 = 1
	}
	spacing := spec.Spacing
	if spacing == 0 {
		spacing = 25
	}
	theta := spec.RotationDeg * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)

	n := spec.Inlines * spec.Crosslines
	headers := make([]survey.TraceHeader, 0, n)
	traces := make([][]float32, 0, n)
	for i := 0; i < spec.Inlines; i++ {
		for j := 0; j < spec.Crosslines; j++ {
			// Inline i runs along the crossline direction; row i is offset
			// along the inline direction.
			u, v := float64(j)*spacing, float64(i)*spacing
			headers = append(headers, survey.TraceHeader{
				Inline:      il0 + int32(i),
				Crossline:   xl0 + int32(j),
				X:           spec.OriginX + u*cos - v*sin,
				Y:           spec.OriginY + u*sin + v*cos,
				HasPosition: true,
			})
			tr := make([]float32, spec.Samples)
			for k := range tr {
				tr[k] = Amplitude(i, j, k)
			}
			traces = append(traces, tr)
		}
	}
	return headers, traces
}

// SEGY encodes headers and traces as an IEEE float SEG-Y file.
func SEGY(t testing.TB, headers []survey.TraceHeader, traces [][]float32) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := segy.Write(&buf, segy.WriterOptions{}, headers, traces); err != nil {
		t.Fatalf("encode segy: %v", err)
	}
	return buf.Bytes()
}

// WriteSEGY writes a SEG-Y file into dir and returns its path.
func WriteSEGY(t testing.TB, dir, name string, headers []survey.TraceHeader, traces [][]float32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, SEGY(t, headers, traces), 0o644); err != nil {
		t.Fatalf("write segy: %v", err)
	}
	return path
}
