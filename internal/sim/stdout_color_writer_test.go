package sim

import (
	"bytes"
	"strings"
	"testing"

	"sensor-sim/internal/config"
	"sensor-sim/internal/telemetry"
)

func TestJSONStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &JSONStdoutWriter{out: buf}
	r := telemetry.SensorReading{SensorType: "humidity", SensorID: "sensor_2", Location: "Lab", Value: 55, Timestamp: 1}
	if err := w.Write(r); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	want := `{"sensorType":"humidity","sensorId":"sensor_2","location":"Lab","value":55,"timestamp":1}` + "\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

func TestColorStdoutWriter(t *testing.T) {
	cfg, err := config.NewSimulationConfig([]string{"temperature", "co2"}, []string{"Office"},
		map[string]config.ValueRange{"temperature": {Min: 15, Max: 25}, "co2": {Min: 350, Max: 1200}}, 0.2)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	buf := &bytes.Buffer{}
	w := newColorWriter(&cfg, buf)
	r := telemetry.SensorReading{SensorType: "co2", SensorID: "sensor_1", Location: "Office", Value: 1300, Timestamp: 0, Anomalous: true}
	if err := w.Write(r); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Simulation Configuration:") || !strings.Contains(output, "Sensor Types:") {
		t.Fatalf("overview not printed: %q", output)
	}
	if !strings.Contains(output, "[350 - 1200]") {
		t.Fatalf("range missing from overview: %q", output)
	}
	if !strings.Contains(output, colorRed+"value=1300.00") || !strings.Contains(output, "ANOMALY") {
		t.Fatalf("anomaly not highlighted: %q", output)
	}

	buf.Reset()
	r.Anomalous = false
	r.Value = 800
	if err := w.Write(r); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if strings.Contains(buf.String(), "Simulation Configuration:") {
		t.Fatalf("overview printed more than once")
	}
	if strings.Contains(buf.String(), "ANOMALY") {
		t.Fatalf("normal reading flagged: %q", buf.String())
	}
}
