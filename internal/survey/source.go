// Package survey maps raw trace headers onto a dense inline/crossline grid
// and estimates the survey's horizontal orientation.
package survey

import (
	"fmt"

	"github.com/xtxerr/seiscube/internal/errors"
)

// TraceHeader holds the header fields of one trace that the grid mapper and
// geometry estimator consume. Stream position is the trace's only identity.
type TraceHeader struct {
	Inline    int32
	Crossline int32

	// X and Y are the trace's horizontal position (CDP, or source position
	// when the CDP fields are empty). HasPosition is false when neither was set.
	X           float64
	Y           float64
	HasPosition bool
}

// TraceSource is a random-access stream of traces, typically a SEG-Y file.
type TraceSource interface {
	// TraceCount returns the number of traces in the stream.
	TraceCount() int

	// SampleCount returns the number of samples per trace.
	SampleCount() int

	// SamplePositions returns the vertical axis values (time or depth), one per sample.
	SamplePositions() []float64

	// Header decodes the header of trace i.
	Header(i int) (TraceHeader, error)

	// Trace decodes the samples of trace i into dst (grown as needed) and returns it.
	Trace(i int, dst []float32) ([]float32, error)
}

// HeaderRecord is a decoded header plus the error, if any, that occurred
// while decoding it.
type HeaderRecord struct {
	TraceHeader
	Err error
}

// ReadHeaders decodes every trace header. A header that fails to decode is
// kept in position with its error recorded.
func ReadHeaders(src TraceSource) []HeaderRecord {
	n := src.TraceCount()
	records := make([]HeaderRecord, n)
	for i := 0; i < n; i++ {
		h, err := src.Header(i)
		records[i] = HeaderRecord{TraceHeader: h, Err: err}
	}
	return records
}

// MemSource is an in-memory TraceSource.
type MemSource struct {
	Headers []TraceHeader
	Traces  [][]float32
	Samples []float64

	// HeaderErrs and TraceErrs inject per-trace decode failures.
	HeaderErrs map[int]error
	TraceErrs  map[int]error
}

// NewMemSource builds a source whose sample axis is 0, dt, 2*dt, ...
func NewMemSource(headers []TraceHeader, traces [][]float32, dt float64) *MemSource {
	ns := 0
	if len(traces) > 0 {
		ns = len(traces[0])
	}
	samples := make([]float64, ns)
	for i := range samples {
		samples[i] = float64(i) * dt
	}
	return &MemSource{Headers: headers, Traces: traces, Samples: samples}
}

// TraceCount implements TraceSource.
func (m *MemSource) TraceCount() int { return len(m.Headers) }

// SampleCount implements TraceSource.
func (m *MemSource) SampleCount() int { return len(m.Samples) }

// SamplePositions implements TraceSource.
func (m *MemSource) SamplePositions() []float64 { return m.Samples }

// Header implements TraceSource.
func (m *MemSource) Header(i int) (TraceHeader, error) {
	if i < 0 || i >= len(m.Headers) {
		return TraceHeader{}, errors.NewOutOfRange("trace", i, len(m.Headers))
	}
	if err, ok := m.HeaderErrs[i]; ok {
		return TraceHeader{}, errors.NewHeaderField(i, "header", err)
	}
	return m.Headers[i], nil
}

// Trace implements TraceSource.
func (m *MemSource) Trace(i int, dst []float32) ([]float32, error) {
	if i < 0 || i >= len(m.Traces) {
		return nil, errors.NewOutOfRange("trace", i, len(m.Traces))
	}
	if err, ok := m.TraceErrs[i]; ok {
		return nil, fmt.Errorf("trace %d: %w", i, err)
	}
	dst = append(dst[:0], m.Traces[i]...)
	return dst, nil
}
