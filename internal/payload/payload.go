// Package payload defines the JSON documents the service returns and stores:
// slice documents, cube info and cube metadata.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/xtxerr/seiscube/internal/survey"
	"github.com/xtxerr/seiscube/internal/volume"
)

// Coordinates holds the axis values of a slice's columns (X) and rows (Y).
type Coordinates struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// SliceStats is the per-slice amplitude summary.
type SliceStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// SliceDoc is the slice payload.
type SliceDoc struct {
	Data           [][]float32 `json:"data"`
	Coordinates    Coordinates `json:"coordinates"`
	AmplitudeStats SliceStats  `json:"amplitude_stats"`
}

// NewSliceDoc converts an extracted slice into its document form.
func NewSliceDoc(s *volume.Slice) *SliceDoc {
	return &SliceDoc{
		Data: s.Matrix(),
		Coordinates: Coordinates{
			X: s.X,
			Y: s.Y,
		},
		AmplitudeStats: SliceStats{
			Min:  s.Stats.Min,
			Max:  s.Stats.Max,
			Mean: s.Stats.Mean,
			Std:  s.Stats.Std,
		},
	}
}

// EncodeSlice serializes a slice document once and compresses it once.
func EncodeSlice(doc *SliceDoc) (raw, gz []byte, err error) {
	raw, err = json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode slice: %w", err)
	}
	gz, err = Gzip(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, gz, nil
}

// DecodeSlice parses a stored slice document.
func DecodeSlice(raw []byte) (*SliceDoc, error) {
	var doc SliceDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode slice: %w", err)
	}
	return &doc, nil
}

// Gzip compresses b at the default level.
func Gzip(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(b) / 4)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// Gunzip decompresses a gzip stream.
func Gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// ============================================================================
// Cube info
// ============================================================================

// Range is a labelled axis extent.
type Range struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// AmplitudeRange is the cube-wide amplitude summary. The display range is the
// 5th to 95th percentile.
type AmplitudeRange struct {
	ActualMin  float64 `json:"actual_min"`
	ActualMax  float64 `json:"actual_max"`
	DisplayMin float64 `json:"display_min"`
	DisplayMax float64 `json:"display_max"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	P1         float64 `json:"p1"`
	P5         float64 `json:"p5"`
	P95        float64 `json:"p95"`
	P99        float64 `json:"p99"`
}

// CubeInfo describes the active cube.
type CubeInfo struct {
	Shape          [3]int          `json:"shape"`
	InlineRange    Range           `json:"inline_range"`
	XlineRange     Range           `json:"xline_range"`
	SampleRange    Range           `json:"sample_range"`
	AmplitudeRange AmplitudeRange  `json:"amplitude_range"`
	MemoryUsageMB  float64         `json:"memory_usage_mb"`
	Geometry       survey.Geometry `json:"geometry"`
}

// NewCubeInfo summarizes a cube.
func NewCubeInfo(c *volume.Cube) CubeInfo {
	st := c.Stats
	return CubeInfo{
		Shape:       c.Shape(),
		InlineRange: rangeOf(c.AxisValues(volume.AxisInline)),
		XlineRange:  rangeOf(c.AxisValues(volume.AxisCrossline)),
		SampleRange: rangeOf(c.Samples),
		AmplitudeRange: AmplitudeRange{
			ActualMin:  st.Min,
			ActualMax:  st.Max,
			DisplayMin: st.P5,
			DisplayMax: st.P95,
			Mean:       st.Mean,
			Std:        st.Std,
			P1:         st.P1,
			P5:         st.P5,
			P95:        st.P95,
			P99:        st.P99,
		},
		MemoryUsageMB: c.SizeMB(),
		Geometry:      c.Geometry,
	}
}

// rangeOf expects sorted values.
func rangeOf(v []float64) Range {
	if len(v) == 0 {
		return Range{}
	}
	return Range{Min: v[0], Max: v[len(v)-1], Count: len(v)}
}

// ============================================================================
// Metadata
// ============================================================================

// Metadata is the durable record of one cube.
type Metadata struct {
	Filename  string    `json:"filename"`
	CubeID    string    `json:"cube_id"`
	CubeInfo  CubeInfo  `json:"cube_info"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EncodeMetadata serializes a metadata document.
func EncodeMetadata(m *Metadata) ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

// DecodeMetadata parses a metadata document.
func DecodeMetadata(b []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}
