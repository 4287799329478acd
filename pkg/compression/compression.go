// Package compression wraps streams in gzip or zstd and detects which of
// them a stream uses.
package compression

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Type is a compression algorithm.
type Type uint8

const (
	TypeNone Type = iota
	TypeGzip
	TypeZstd
)

// Level represents the compression level.
type Level int

const (
	// LevelFastest prioritizes speed over compression ratio
	LevelFastest Level = 1
	// LevelDefault balances speed and compression ratio
	LevelDefault Level = 3
	// LevelBest prioritizes compression ratio over speed
	LevelBest Level = 9
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// String returns the codec name used in config and on the command line.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Extension returns the file suffix for the codec, including the dot.
func (t Type) Extension() string {
	switch t {
	case TypeGzip:
		return ".gz"
	case TypeZstd:
		return ".zst"
	}
	return ""
}

// ParseType parses a codec name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return TypeNone, nil
	case "gzip", "gz":
		return TypeGzip, nil
	case "zstd", "zst":
		return TypeZstd, nil
	}
	return TypeNone, fmt.Errorf("unknown compression type: %q", s)
}

// DetectType detects the compression type from magic bytes.
func DetectType(header []byte) Type {
	switch {
	case bytes.HasPrefix(header, zstdMagic):
		return TypeZstd
	case bytes.HasPrefix(header, gzipMagic):
		return TypeGzip
	}
	return TypeNone
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter compresses everything written to the returned writer into w.
// Closing it flushes the codec but leaves w open.
func NewWriter(w io.Writer, t Type, level Level) (io.WriteCloser, error) {
	switch t {
	case TypeNone:
		return nopWriteCloser{w}, nil
	case TypeGzip:
		gl := gzip.DefaultCompression
		switch level {
		case LevelFastest:
			gl = gzip.BestSpeed
		case LevelBest:
			gl = gzip.BestCompression
		}
		gw, err := gzip.NewWriterLevel(w, gl)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gw, nil
	case TypeZstd:
		zl := zstd.SpeedDefault
		switch level {
		case LevelFastest:
			zl = zstd.SpeedFastest
		case LevelBest:
			zl = zstd.SpeedBestCompression
		}
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zl))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return zw, nil
	}
	return nil, fmt.Errorf("unknown compression type: %d", t)
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// NewReader sniffs the codec of r and returns a reader of the
// decompressed stream. Uncompressed input is passed through.
func NewReader(r io.Reader) (io.ReadCloser, Type, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, TypeNone, fmt.Errorf("failed to read header: %w", err)
	}
	t := DetectType(header)
	switch t {
	case TypeGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, t, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, t, nil
	case TypeZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, t, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return zstdReadCloser{zr}, t, nil
	}
	return io.NopCloser(br), TypeNone, nil
}

// Compress compresses data in one call.
func Compress(data []byte, t Type, level Level) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, t, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write %s data: %w", t, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", t, err)
	}
	return buf.Bytes(), nil
}

// AutoDecompress detects the codec of data and decompresses it.
func AutoDecompress(data []byte) ([]byte, error) {
	r, _, err := NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
