// Package segy reads and writes SEG-Y trace files.
//
// Only what the cube builder needs is decoded: the binary file header, a
// handful of trace header fields and the trace samples. Byte positions below
// are 1-based, as printed in the SEG-Y standard.
package segy

import (
	"encoding/binary"
	"math"
)

// File layout:
// - Textual header (3200 bytes, EBCDIC or ASCII)
// - Binary header (400 bytes)
// - Extended textual headers (3200 bytes each, count in the binary header)
// - Traces: 240-byte header followed by the samples
const (
	TextHeaderSize   = 3200
	BinaryHeaderSize = 400
	TraceHeaderSize  = 240

	fileHeaderSize = TextHeaderSize + BinaryHeaderSize
)

// Binary header fields.
const (
	binSampleInterval  = 3217 // uint16, microseconds
	binSamplesPerTrace = 3221 // uint16
	binFormatCode      = 3225 // int16
	binExtendedHeaders = 3505 // int16
)

// Trace header fields.
const (
	trcCoordScalar    = 71  // int16
	trcSourceX        = 73  // int32
	trcSourceY        = 77  // int32
	trcDelay          = 109 // int16, milliseconds
	trcSampleCount    = 115 // uint16
	trcSampleInterval = 117 // uint16, microseconds
	trcCDPX           = 181 // int32
	trcCDPY           = 185 // int32
	trcInline         = 189 // int32
	trcCrossline      = 193 // int32
)

// defaultIntervalMicros is used when neither header records a sample interval.
const defaultIntervalMicros = 4000

// SampleFormat is the data sample format code of the binary header.
type SampleFormat int16

const (
	FormatIBMFloat   SampleFormat = 1
	FormatInt32      SampleFormat = 2
	FormatInt16      SampleFormat = 3
	FormatIEEEFloat  SampleFormat = 5
	FormatIEEEDouble SampleFormat = 6
	FormatInt8       SampleFormat = 8
)

// Size returns the byte width of one sample, or 0 for unsupported formats.
func (f SampleFormat) Size() int {
	switch f {
	case FormatIBMFloat, FormatInt32, FormatIEEEFloat:
		return 4
	case FormatInt16:
		return 2
	case FormatIEEEDouble:
		return 8
	case FormatInt8:
		return 1
	default:
		return 0
	}
}

// String returns the format name.
func (f SampleFormat) String() string {
	switch f {
	case FormatIBMFloat:
		return "ibm-float32"
	case FormatInt32:
		return "int32"
	case FormatInt16:
		return "int16"
	case FormatIEEEFloat:
		return "ieee-float32"
	case FormatIEEEDouble:
		return "ieee-float64"
	case FormatInt8:
		return "int8"
	default:
		return "unsupported"
	}
}

// field returns the bytes of a field at a 1-based position.
func field(buf []byte, pos, width int) []byte {
	return buf[pos-1 : pos-1+width]
}

func getInt16(order binary.ByteOrder, buf []byte, pos int) int16 {
	return int16(order.Uint16(field(buf, pos, 2)))
}

func getUint16(order binary.ByteOrder, buf []byte, pos int) uint16 {
	return order.Uint16(field(buf, pos, 2))
}

func getInt32(order binary.ByteOrder, buf []byte, pos int) int32 {
	return int32(order.Uint32(field(buf, pos, 4)))
}

func putInt16(order binary.ByteOrder, buf []byte, pos int, v int16) {
	order.PutUint16(field(buf, pos, 2), uint16(v))
}

func putUint16(order binary.ByteOrder, buf []byte, pos int, v uint16) {
	order.PutUint16(field(buf, pos, 2), v)
}

func putInt32(order binary.ByteOrder, buf []byte, pos int, v int32) {
	order.PutUint32(field(buf, pos, 4), uint32(v))
}

// ibmToFloat32 converts an IBM System/360 single precision float.
func ibmToFloat32(bits uint32) float32 {
	if bits&0x7fffffff == 0 {
		return 0
	}
	sign := 1.0
	if bits>>31 == 1 {
		sign = -1
	}
	exp := int((bits >> 24) & 0x7f)
	mant := float64(bits&0x00ffffff) / (1 << 24)
	return float32(sign * mant * math.Pow(16, float64(exp-64)))
}

// float32ToIBM converts to IBM single precision, truncating the mantissa.
func float32ToIBM(f float32) uint32 {
	v := float64(f)
	if v == 0 || math.IsNaN(v) {
		return 0
	}
	var sign uint32
	if v < 0 {
		sign = 1 << 31
		v = -v
	}
	exp := 64
	for v >= 1 {
		v /= 16
		exp++
	}
	for v < 1.0/16 {
		v *= 16
		exp--
	}
	if exp > 127 {
		return sign | 0x7fffffff
	}
	if exp < 0 {
		return 0
	}
	mant := uint32(v * (1 << 24))
	return sign | uint32(exp)<<24 | (mant & 0x00ffffff)
}

// scaleCoordinate applies the SEG-Y coordinate scalar: negative divides,
// positive multiplies, zero means 1.
func scaleCoordinate(v int32, scalar int16) float64 {
	switch {
	case scalar > 0:
		return float64(v) * float64(scalar)
	case scalar < 0:
		return float64(v) / float64(-scalar)
	default:
		return float64(v)
	}
}

// unscaleCoordinate is the inverse of scaleCoordinate, rounded to the nearest integer.
func unscaleCoordinate(v float64, scalar int16) int32 {
	switch {
	case scalar > 0:
		return int32(math.Round(v / float64(scalar)))
	case scalar < 0:
		return int32(math.Round(v * float64(-scalar)))
	default:
		return int32(math.Round(v))
	}
}
