// Sensor reading wire type
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// SensorReading is one simulated observation. It is serialized as the MQTT
// payload; Anomalous stays local.
type SensorReading struct {
	SensorType string  `json:"sensorType"`
	SensorID   string  `json:"sensorId"`
	Location   string  `json:"location"`
	Value      float64 `json:"value"`
	Timestamp  int64   `json:"timestamp"` // Unix milliseconds

	Anomalous bool `json:"-"`
}

// Time returns the reading timestamp as a time.Time.
func (r SensorReading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Encode returns the JSON payload for r.
func (r SensorReading) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode reading %s/%s: %w", r.SensorType, r.SensorID, err)
	}
	return data, nil
}

// DecodeReading parses a JSON payload produced by Encode.
func DecodeReading(data []byte) (SensorReading, error) {
	var r SensorReading
	if err := json.Unmarshal(data, &r); err != nil {
		return SensorReading{}, fmt.Errorf("decode reading: %w", err)
	}
	return r, nil
}
