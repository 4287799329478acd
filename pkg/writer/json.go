// Package writer writes reports as plain or compressed JSON.
package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/heapscan/pkg/compression"
)

// JSONWriter writes data as JSON, optionally compressed.
type JSONWriter[T any] struct {
	// Indent specifies the indentation for pretty printing.
	// Empty string means compact output.
	Indent string
	Codec  compression.Type
	Level  compression.Level
}

// NewJSONWriter creates a new JSON writer with compact output.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Level: compression.LevelDefault}
}

// NewPrettyJSONWriter creates a JSON writer with pretty printing.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  ", Level: compression.LevelDefault}
}

// NewGzipWriter creates a compact JSON writer with gzip output.
func NewGzipWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Codec: compression.TypeGzip, Level: compression.LevelDefault}
}

// ForFormat returns the writer for an output format name: "json" or
// "json.gz". "json.zst" selects zstd.
func ForFormat[T any](format string, indent bool) (*JSONWriter[T], error) {
	w := NewJSONWriter[T]()
	if indent {
		w.Indent = "  "
	}
	ext, ok := strings.CutPrefix(format, "json")
	if !ok {
		return nil, fmt.Errorf("unsupported output format: %q", format)
	}
	if ext != "" {
		codec, err := compression.ParseType(strings.TrimPrefix(ext, "."))
		if err != nil || codec == compression.TypeNone {
			return nil, fmt.Errorf("unsupported output format: %q", format)
		}
		w.Codec = codec
	}
	return w, nil
}

// Extension returns the file suffix for the output, including the dot.
func (w *JSONWriter[T]) Extension() string {
	return ".json" + w.Codec.Extension()
}

// Write writes the data as JSON to the writer.
func (w *JSONWriter[T]) Write(data T, writer io.Writer) error {
	cw, err := compression.NewWriter(writer, w.Codec, w.Level)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(cw)
	if w.Indent != "" {
		encoder.SetIndent("", w.Indent)
	}
	if err := encoder.Encode(data); err != nil {
		_ = cw.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to close %s writer: %w", w.Codec, err)
	}
	return nil
}

// WriteResult contains statistics about the written file.
type WriteResult struct {
	Path           string
	JSONSize       int64
	CompressedSize int64
	CompressionPct float64
}

// WriteToFile writes the data to path through a temporary file in the same
// directory, so readers never see a partial report.
func (w *JSONWriter[T]) WriteToFile(data T, path string) (*WriteResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	counter := &countingWriter{}
	if err := w.Write(data, io.MultiWriter(tmp, counter)); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	jsonSize := counter.n
	if w.Codec != compression.TypeNone {
		raw := &countingWriter{}
		plain := *w
		plain.Codec = compression.TypeNone
		if err := plain.Write(data, raw); err != nil {
			return nil, err
		}
		jsonSize = raw.n
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to rename report: %w", err)
	}

	res := &WriteResult{Path: path, JSONSize: jsonSize, CompressedSize: counter.n}
	if jsonSize > 0 {
		res.CompressionPct = float64(counter.n) / float64(jsonSize) * 100
	}
	return res, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
