package parquet

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// DecodeSlice reads an array written by EncodeSlice and returns it row-major
// with its shape.
func DecodeSlice(b []byte) (rows, cols int, data []float32, err error) {
	f, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("open parquet: %w", err)
	}

	cols = -1
	if v, ok := f.Lookup("cols"); ok {
		if n, perr := strconv.Atoi(v); perr == nil {
			cols = n
		}
	}

	reader := parquet.NewGenericReader[SliceRow](f)
	defer reader.Close()

	numRows := int(reader.NumRows())
	buf := make([]SliceRow, numRows)
	read := 0
	for read < numRows {
		n, rerr := reader.Read(buf[read:])
		read += n
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, 0, nil, fmt.Errorf("read rows: %w", rerr)
		}
		if n == 0 {
			break
		}
	}
	if read != numRows {
		return 0, 0, nil, fmt.Errorf("read %d of %d rows", read, numRows)
	}

	if cols < 0 {
		cols = 0
		if numRows > 0 {
			cols = len(buf[0].Values)
		}
	}

	data = make([]float32, 0, numRows*cols)
	for i, r := range buf {
		if int(r.Row) != i || len(r.Values) != cols {
			return 0, 0, nil, fmt.Errorf("row %d: malformed slice row", i)
		}
		data = append(data, r.Values...)
	}
	return numRows, cols, data, nil
}
