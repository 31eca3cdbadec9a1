// Publisher and simulation configuration with validating constructors
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is matched by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults applied when optional settings are absent.
const (
	DefaultSensorTypes     = "temperature,humidity,co2"
	DefaultLocations       = "Cundinamarca,Antioquia,Valle del Cauca"
	DefaultFailProbability = 0.1
	DefaultInterval        = 30 * time.Second
)

// AnomalySpread is the maximum distance of a faulty value beyond its range.
const AnomalySpread = 10.0

// FieldError names the configuration field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidConfig }

// PublisherConfig holds the broker connection settings.
type PublisherConfig struct {
	BrokerURL string `yaml:"broker_url" json:"brokerUrl"`
	ClientID  string `yaml:"client_id" json:"clientId"`
	Topic     string `yaml:"topic" json:"topic"`
}

// NewPublisherConfig trims and validates the three required fields.
func NewPublisherConfig(brokerURL, clientID, topic string) (PublisherConfig, error) {
	cfg := PublisherConfig{
		BrokerURL: strings.TrimSpace(brokerURL),
		ClientID:  strings.TrimSpace(clientID),
		Topic:     strings.TrimSpace(topic),
	}
	switch {
	case cfg.BrokerURL == "":
		return PublisherConfig{}, &FieldError{Field: "broker URL", Reason: "must not be empty"}
	case cfg.ClientID == "":
		return PublisherConfig{}, &FieldError{Field: "client ID", Reason: "must not be empty"}
	case cfg.Topic == "":
		return PublisherConfig{}, &FieldError{Field: "topic", Reason: "must not be empty"}
	}
	return cfg, nil
}

func (c PublisherConfig) String() string {
	return fmt.Sprintf("PublisherConfig{broker=%s client_id=%s topic=%s}", c.BrokerURL, c.ClientID, c.Topic)
}

// ValueRange is an inclusive [Min, Max] bound for one sensor type.
type ValueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the range, bounds included.
func (r ValueRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r ValueRange) String() string {
	return fmt.Sprintf("[%g - %g]", r.Min, r.Max)
}

// ParseRange parses "min:max".
func ParseRange(s string) (ValueRange, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ValueRange{}, fmt.Errorf("malformed range %q, want \"min:max\"", s)
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return ValueRange{}, fmt.Errorf("malformed range minimum %q: %w", parts[0], err)
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return ValueRange{}, fmt.Errorf("malformed range maximum %q: %w", parts[1], err)
	}
	return ValueRange{Min: min, Max: max}, nil
}

// SimulationConfig drives reading generation. Values returned by
// NewSimulationConfig own their slices and map; treat them as read-only.
type SimulationConfig struct {
	SensorTypes     []string              `json:"sensorTypes"`
	Locations       []string              `json:"locations"`
	ValueRanges     map[string]ValueRange `json:"valueRanges"`
	FailProbability float64               `json:"failProbability"`
}

// NewSimulationConfig validates and copies its inputs. Every sensor type needs
// a finite range with Min <= Max; ranges for undeclared types are dropped.
func NewSimulationConfig(sensorTypes, locations []string, ranges map[string]ValueRange, failProbability float64) (SimulationConfig, error) {
	types, err := distinct("sensor types", sensorTypes)
	if err != nil {
		return SimulationConfig{}, err
	}
	locs, err := distinct("locations", locations)
	if err != nil {
		return SimulationConfig{}, err
	}
	if math.IsNaN(failProbability) || failProbability < 0 || failProbability > 1 {
		return SimulationConfig{}, &FieldError{Field: "fail probability", Reason: fmt.Sprintf("%v is outside [0, 1]", failProbability)}
	}

	own := make(map[string]ValueRange, len(types))
	for _, t := range types {
		r, ok := ranges[t]
		if !ok {
			return SimulationConfig{}, &FieldError{Field: "value ranges", Reason: fmt.Sprintf("missing range for sensor type %q", t)}
		}
		if !finite(r.Min) || !finite(r.Max) {
			return SimulationConfig{}, &FieldError{Field: "value ranges", Reason: fmt.Sprintf("range %s for %q is not finite", r, t)}
		}
		if r.Min > r.Max {
			return SimulationConfig{}, &FieldError{Field: "value ranges", Reason: fmt.Sprintf("range %s for %q has min above max", r, t)}
		}
		if !drawable(r) {
			return SimulationConfig{}, &FieldError{Field: "value ranges", Reason: fmt.Sprintf("range %s for %q is too wide to draw from", r, t)}
		}
		own[t] = r
	}

	return SimulationConfig{
		SensorTypes:     types,
		Locations:       locs,
		ValueRanges:     own,
		FailProbability: failProbability,
	}, nil
}

// Range returns the value range for a sensor type.
func (c SimulationConfig) Range(sensorType string) (ValueRange, bool) {
	r, ok := c.ValueRanges[sensorType]
	return r, ok
}

func (c SimulationConfig) String() string {
	ranges := make([]string, 0, len(c.SensorTypes))
	for _, t := range c.SensorTypes {
		ranges = append(ranges, t+"="+c.ValueRanges[t].String())
	}
	return fmt.Sprintf("SimulationConfig{types=%v locations=%v ranges=%s fail_probability=%g}",
		c.SensorTypes, c.Locations, strings.Join(ranges, ","), c.FailProbability)
}

// Config is the fully validated configuration consumed by the simulator.
type Config struct {
	Publisher  PublisherConfig
	Simulation SimulationConfig
	Interval   time.Duration
}

// SplitList splits a comma-separated list and trims each entry.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func distinct(field string, items []string) ([]string, error) {
	if len(items) == 0 {
		return nil, &FieldError{Field: field, Reason: "at least one entry is required"}
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			return nil, &FieldError{Field: field, Reason: "entries must not be empty"}
		}
		if _, dup := seen[it]; dup {
			return nil, &FieldError{Field: field, Reason: fmt.Sprintf("duplicate entry %q", it)}
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out, nil
}

// drawable reports whether in-range and out-of-range draws from r stay finite.
func drawable(r ValueRange) bool {
	below := math.Nextafter(r.Min-AnomalySpread, math.Inf(-1))
	above := math.Nextafter(r.Max+AnomalySpread, math.Inf(1))
	return finite(r.Max-r.Min) && finite(below) && finite(above)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
