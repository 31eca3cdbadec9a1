package sim

import (
	"fmt"
	"io"
	"os"

	"sensor-sim/internal/telemetry"
)

// JSONStdoutWriter prints each published payload as one JSON line to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return NewJSONWriter(os.Stdout)
}

// NewJSONWriter prints to out instead.
func NewJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{out: out}
}

// Write outputs a reading in wire format.
func (w *JSONStdoutWriter) Write(r telemetry.SensorReading) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
