package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// Compression is an index companion format
type Compression string

const (
	CompressionGzip Compression = "gz"
	CompressionXZ   Compression = "xz"
)

// Extension returns the file suffix for the compression, including the dot
func (c Compression) Extension() string {
	return "." + string(c)
}

// Compress compresses data deterministically with the given format
func (c Compression) Compress(data []byte) ([]byte, error) {
	switch c {
	case CompressionGzip:
		return GzipCompress(data)
	case CompressionXZ:
		return XZCompress(data)
	default:
		return nil, fmt.Errorf("unknown compression %q", string(c))
	}
}

// Decompress reverses Compress
func (c Compression) Decompress(data []byte) ([]byte, error) {
	switch c {
	case CompressionGzip:
		return GzipDecompress(data)
	case CompressionXZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unknown compression %q", string(c))
	}
}

// GzipCompress compresses data using gzip. The header carries no name and
// a zero modification time so identical input yields identical output.
func GzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// GzipDecompress decompresses gzip data
func GzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// XZCompress compresses data using xz with the library defaults
func XZCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
