// Package monitoring - telemetry.go appends structured records to JSONL files.
//
// DESIGN: One JSON object per line, appended and closed per write so the file
// can be rotated or tailed externally while the gateway runs.
package monitoring

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/compresr/messages-gateway/internal/utils"
)

// JSONLWriter appends records to a single file. Safe for concurrent use.
type JSONLWriter struct {
	path string
	mu   sync.Mutex
}

// NewJSONLWriter ensures the parent directory and the file exist.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return &JSONLWriter{path: path}, nil
}

// Path returns the file being written.
func (w *JSONLWriter) Path() string { return w.path }

// Append writes v as one JSON line.
func (w *JSONLWriter) Append(v any) error {
	line, err := utils.MarshalLine(v)
	if err != nil {
		return err
	}
	return w.write(line)
}

// AppendRaw writes an already encoded JSON object as one line.
func (w *JSONLWriter) AppendRaw(data []byte) error {
	line := make([]byte, 0, len(data)+1)
	line = append(line, bytes.TrimRight(data, "\n")...)
	return w.write(append(line, '\n'))
}

func (w *JSONLWriter) write(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(line)
	return err
}
