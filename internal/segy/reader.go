package segy

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/survey"
)

// File is an open SEG-Y file. It implements survey.TraceSource.
// Concurrent Header and Trace calls are safe when the underlying ReaderAt is.
type File struct {
	r      io.ReaderAt
	closer io.Closer

	order      binary.ByteOrder
	format     SampleFormat
	ns         int
	traces     int
	dataOffset int64
	traceSize  int64
	interval   int // microseconds
	samples    []float64
}

// Open parses the file headers of a SEG-Y stream of the given size.
// Any failure is reported as a format error.
func Open(r io.ReaderAt, size int64) (*File, error) {
	if size < fileHeaderSize {
		return nil, errors.NewFormat(fmt.Sprintf("file is %d bytes, smaller than the SEG-Y file header", size), nil)
	}

	head := make([]byte, fileHeaderSize)
	if err := readAt(r, head, 0); err != nil {
		return nil, errors.NewFormat("read file header", err)
	}

	f := &File{r: r}

	// Big-endian per the standard; accept byte-swapped files when only the
	// swapped format code makes sense.
	f.order = binary.BigEndian
	f.format = SampleFormat(getInt16(f.order, head, binFormatCode))
	if f.format.Size() == 0 {
		le := SampleFormat(getInt16(binary.LittleEndian, head, binFormatCode))
		if le.Size() == 0 {
			return nil, errors.NewFormat(fmt.Sprintf("unsupported sample format code %d", f.format), nil)
		}
		f.order = binary.LittleEndian
		f.format = le
	}

	ext := getInt16(f.order, head, binExtendedHeaders)
	if ext < 0 {
		return nil, errors.NewFormat("variable extended textual headers are not supported", nil)
	}
	f.dataOffset = fileHeaderSize + int64(ext)*TextHeaderSize

	f.ns = int(getUint16(f.order, head, binSamplesPerTrace))
	f.interval = int(getUint16(f.order, head, binSampleInterval))

	// The first trace header supplies the delay and fills in missing file values.
	var first []byte
	if size >= f.dataOffset+TraceHeaderSize {
		first = make([]byte, TraceHeaderSize)
		if err := readAt(r, first, f.dataOffset); err != nil {
			return nil, errors.NewFormat("read first trace header", err)
		}
		if f.ns <= 0 {
			f.ns = int(getUint16(f.order, first, trcSampleCount))
		}
		if f.interval <= 0 {
			f.interval = int(getUint16(f.order, first, trcSampleInterval))
		}
	}
	if f.ns <= 0 {
		return nil, errors.NewFormat("zero samples per trace", nil)
	}
	if f.interval <= 0 {
		f.interval = defaultIntervalMicros
	}

	f.traceSize = TraceHeaderSize + int64(f.ns*f.format.Size())
	remaining := size - f.dataOffset
	if remaining <= 0 {
		return nil, errors.NewFormat("file contains no traces", nil)
	}
	if remaining%f.traceSize != 0 {
		return nil, errors.NewFormat(fmt.Sprintf("trace data of %d bytes is not a multiple of the %d-byte trace length", remaining, f.traceSize), nil)
	}
	f.traces = int(remaining / f.traceSize)

	var t0 float64
	if first != nil {
		t0 = float64(getInt16(f.order, first, trcDelay))
	}
	dt := float64(f.interval) / 1000
	f.samples = make([]float64, f.ns)
	for i := range f.samples {
		f.samples[i] = t0 + float64(i)*dt
	}

	return f, nil
}

// OpenFile opens a SEG-Y file on disk. The caller must Close it.
func OpenFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	f, err := Open(fh, st.Size())
	if err != nil {
		fh.Close()
		return nil, err
	}
	f.closer = fh
	return f, nil
}

// Close releases the underlying file when opened with OpenFile.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Format returns the sample format.
func (f *File) Format() SampleFormat { return f.format }

// ByteOrder returns the detected byte order.
func (f *File) ByteOrder() binary.ByteOrder { return f.order }

// TraceCount implements survey.TraceSource.
func (f *File) TraceCount() int { return f.traces }

// SampleCount implements survey.TraceSource.
func (f *File) SampleCount() int { return f.ns }

// SamplePositions implements survey.TraceSource. Values are in milliseconds
// (or depth units for depth data).
func (f *File) SamplePositions() []float64 { return f.samples }

func (f *File) traceOffset(i int) int64 {
	return f.dataOffset + int64(i)*f.traceSize
}

// Header implements survey.TraceSource. The position comes from the CDP
// fields, or from the source fields when either CDP coordinate is zero.
func (f *File) Header(i int) (survey.TraceHeader, error) {
	if i < 0 || i >= f.traces {
		return survey.TraceHeader{}, errors.NewOutOfRange("trace", i, f.traces)
	}

	buf := make([]byte, TraceHeaderSize)
	if err := readAt(f.r, buf, f.traceOffset(i)); err != nil {
		return survey.TraceHeader{}, errors.NewHeaderField(i, "header", err)
	}

	h := survey.TraceHeader{
		Inline:    getInt32(f.order, buf, trcInline),
		Crossline: getInt32(f.order, buf, trcCrossline),
	}

	x, y := getInt32(f.order, buf, trcCDPX), getInt32(f.order, buf, trcCDPY)
	if x == 0 || y == 0 {
		x, y = getInt32(f.order, buf, trcSourceX), getInt32(f.order, buf, trcSourceY)
	}
	scalar := getInt16(f.order, buf, trcCoordScalar)
	h.X = scaleCoordinate(x, scalar)
	h.Y = scaleCoordinate(y, scalar)
	h.HasPosition = x != 0 || y != 0

	return h, nil
}

// Trace implements survey.TraceSource.
func (f *File) Trace(i int, dst []float32) ([]float32, error) {
	if i < 0 || i >= f.traces {
		return nil, errors.NewOutOfRange("trace", i, f.traces)
	}

	width := f.format.Size()
	raw := make([]byte, f.ns*width)
	if err := readAt(f.r, raw, f.traceOffset(i)+TraceHeaderSize); err != nil {
		return nil, fmt.Errorf("read trace %d: %w", i, err)
	}

	if cap(dst) < f.ns {
		dst = make([]float32, f.ns)
	}
	dst = dst[:f.ns]

	for s := 0; s < f.ns; s++ {
		b := raw[s*width : (s+1)*width]
		switch f.format {
		case FormatIBMFloat:
			dst[s] = ibmToFloat32(f.order.Uint32(b))
		case FormatInt32:
			dst[s] = float32(int32(f.order.Uint32(b)))
		case FormatInt16:
			dst[s] = float32(int16(f.order.Uint16(b)))
		case FormatIEEEFloat:
			dst[s] = math.Float32frombits(f.order.Uint32(b))
		case FormatIEEEDouble:
			dst[s] = float32(math.Float64frombits(f.order.Uint64(b)))
		case FormatInt8:
			dst[s] = float32(int8(b[0]))
		}
	}

	return dst, nil
}

// readAt fills buf from off. A full read that also reports io.EOF succeeds.
func readAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

var _ survey.TraceSource = (*File)(nil)
