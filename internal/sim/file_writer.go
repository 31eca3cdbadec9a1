package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"sensor-sim/internal/telemetry"
)

// FileWriter appends published readings to a JSONL file in wire format, so
// the log can be fed back through ReplayLog.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewFileWriter creates (or truncates) path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create reading log: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &FileWriter{file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write logs a single reading and flushes it.
func (f *FileWriter) Write(r telemetry.SensorReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return os.ErrClosed
	}
	if err := f.enc.Encode(r); err != nil {
		return err
	}
	return f.buf.Flush()
}

// Close flushes and closes the file. Further writes fail.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.buf.Flush()
	if e := f.file.Close(); e != nil && err == nil {
		err = e
	}
	f.file = nil
	return err
}
