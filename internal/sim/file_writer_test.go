package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sensor-sim/internal/telemetry"
)

func TestFileWriterJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	rows := []telemetry.SensorReading{
		{SensorType: "temperature", SensorID: "sensor_1", Location: "Office", Value: 21.5, Timestamp: 1000},
		{SensorType: "co2", SensorID: "sensor_3", Location: "Lab", Value: 1250, Timestamp: 2000, Anomalous: true},
	}
	for _, r := range rows {
		if err := fw.Write(r); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	// each write is flushed, so the file is readable before Close
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	got, err := telemetry.DecodeReading([]byte(lines[1]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := rows[1]
	want.Anomalous = false
	if got != want {
		t.Fatalf("line 2 = %+v, want %+v", got, want)
	}

	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := fw.Write(rows[0]); err == nil {
		t.Fatalf("expected write after close to fail")
	}
}

func TestFileWriterBadPath(t *testing.T) {
	if _, err := NewFileWriter(filepath.Join(t.TempDir(), "missing", "x.jsonl")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
