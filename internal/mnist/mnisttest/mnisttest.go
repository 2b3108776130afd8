// Package mnisttest builds small IDX files for tests.
package mnisttest

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
)

func Images(count, rows, cols int) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, []uint32{0x00000803, uint32(count), uint32(rows), uint32(cols)}) //nolint:errcheck
	buf.Write(make([]byte, count*rows*cols))
	return buf.Bytes()
}

func Labels(count int) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, []uint32{0x00000801, uint32(count)}) //nolint:errcheck
	buf.Write(make([]byte, count))
	return buf.Bytes()
}

func Gzip(data []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(data) //nolint:errcheck
	gz.Close()     //nolint:errcheck
	return buf.Bytes()
}
