package segy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/xtxerr/seiscube/internal/survey"
)

// WriterOptions configures Write.
type WriterOptions struct {
	// Format is FormatIEEEFloat (default) or FormatIBMFloat.
	Format SampleFormat

	// Order is the byte order, big-endian by default.
	Order binary.ByteOrder

	// IntervalMicros is the sample interval. Defaults to 4000.
	IntervalMicros int

	// DelayMs is the recording delay stored in every trace header.
	DelayMs int

	// CoordinateScalar is stored in every trace header and applied to X and Y.
	CoordinateScalar int16

	// Text is written at the start of the textual header (ASCII).
	Text string
}

// Write encodes headers and traces as a SEG-Y file. Every trace must have
// the same length. Positions are written to the CDP fields.
func Write(w io.Writer, opts WriterOptions, headers []survey.TraceHeader, traces [][]float32) error {
	if len(headers) != len(traces) {
		return fmt.Errorf("segy: %d headers for %d traces", len(headers), len(traces))
	}
	if opts.Format == 0 {
		opts.Format = FormatIEEEFloat
	}
	if opts.Format != FormatIEEEFloat && opts.Format != FormatIBMFloat {
		return fmt.Errorf("segy: writing %s samples is not supported", opts.Format)
	}
	if opts.Order == nil {
		opts.Order = binary.BigEndian
	}
	if opts.IntervalMicros <= 0 {
		opts.IntervalMicros = defaultIntervalMicros
	}

	ns := 0
	if len(traces) > 0 {
		ns = len(traces[0])
	}
	if ns > math.MaxUint16 {
		return fmt.Errorf("segy: %d samples per trace exceeds the header field", ns)
	}

	bw := bufio.NewWriter(w)

	head := make([]byte, fileHeaderSize)
	for i := 0; i < TextHeaderSize; i++ {
		head[i] = ' '
	}
	copy(head, opts.Text)
	putUint16(opts.Order, head, binSampleInterval, uint16(opts.IntervalMicros))
	putUint16(opts.Order, head, binSamplesPerTrace, uint16(ns))
	putInt16(opts.Order, head, binFormatCode, int16(opts.Format))
	if _, err := bw.Write(head); err != nil {
		return fmt.Errorf("segy: write file header: %w", err)
	}

	th := make([]byte, TraceHeaderSize)
	data := make([]byte, ns*4)
	for i, h := range headers {
		if len(traces[i]) != ns {
			return fmt.Errorf("segy: trace %d has %d samples, want %d", i, len(traces[i]), ns)
		}

		clear(th)
		putInt16(opts.Order, th, trcCoordScalar, opts.CoordinateScalar)
		putInt16(opts.Order, th, trcDelay, int16(opts.DelayMs))
		putUint16(opts.Order, th, trcSampleCount, uint16(ns))
		putUint16(opts.Order, th, trcSampleInterval, uint16(opts.IntervalMicros))
		if h.HasPosition {
			putInt32(opts.Order, th, trcCDPX, unscaleCoordinate(h.X, opts.CoordinateScalar))
			putInt32(opts.Order, th, trcCDPY, unscaleCoordinate(h.Y, opts.CoordinateScalar))
		}
		putInt32(opts.Order, th, trcInline, h.Inline)
		putInt32(opts.Order, th, trcCrossline, h.Crossline)

		for s, v := range traces[i] {
			var bits uint32
			if opts.Format == FormatIBMFloat {
				bits = float32ToIBM(v)
			} else {
				bits = math.Float32bits(v)
			}
			opts.Order.PutUint32(data[s*4:], bits)
		}

		if _, err := bw.Write(th); err != nil {
			return fmt.Errorf("segy: write trace header %d: %w", i, err)
		}
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("segy: write trace %d: %w", i, err)
		}
	}

	return bw.Flush()
}
