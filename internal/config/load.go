// Configuration sourcing: environment, .env dotfile and optional YAML file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvBroker          = "MQTT_BROKER"
	EnvClientID        = "MQTT_PUBLISHER_ID"
	EnvTopic           = "MQTT_TOPIC"
	EnvSensorTypes     = "SIM_SENSOR_TYPES"
	EnvLocations       = "SIM_LOCATIONS"
	EnvFailProbability = "SIM_FAIL_PROB"
	EnvInterval        = "SIM_INTERVAL"
)

// DefaultEnvFile is read when present and no other dotfile is named.
const DefaultEnvFile = ".env"

// LoadOptions controls where Load looks for settings.
type LoadOptions struct {
	// EnvFile names a dotenv file. Empty means DefaultEnvFile, which may be absent.
	EnvFile string
	// ConfigFile names an optional YAML file, validated against the CUE schema.
	ConfigFile string
	// Getenv defaults to os.LookupEnv.
	Getenv func(string) (string, bool)
	// SimulationOnly skips the broker settings, for commands that never connect.
	SimulationOnly bool
}

// fileConfig mirrors the YAML layout.
type fileConfig struct {
	BrokerURL       string            `yaml:"broker_url"`
	ClientID        string            `yaml:"client_id"`
	Topic           string            `yaml:"topic"`
	SensorTypes     []string          `yaml:"sensor_types"`
	Locations       []string          `yaml:"locations"`
	Ranges          map[string]string `yaml:"ranges"`
	FailProbability *float64          `yaml:"fail_probability"`
	Interval        string            `yaml:"interval"`
}

// source resolves a key from the process environment first, then the dotfile.
type source struct {
	getenv func(string) (string, bool)
	dotenv map[string]string
}

func (s source) lookup(key string) (string, bool) {
	if v, ok := s.getenv(key); ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	if v, ok := s.dotenv[key]; ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	return "", false
}

// RangeEnvKey returns the environment key holding the range of a sensor type,
// e.g. "co2" -> "SIM_CO2_RANGE".
func RangeEnvKey(sensorType string) string {
	key := strings.Map(func(r rune) rune {
		r = unicode.ToUpper(r)
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.TrimSpace(sensorType))
	return "SIM_" + key + "_RANGE"
}

// Load resolves, validates and returns the full configuration. Precedence per
// key: environment, dotfile, YAML file, default.
func Load(opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.LookupEnv
	}
	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	src := source{getenv: getenv, dotenv: dotenv}

	var fc fileConfig
	if opts.ConfigFile != "" {
		if fc, err = readConfigFile(opts.ConfigFile); err != nil {
			return nil, err
		}
	}

	var pub PublisherConfig
	if !opts.SimulationOnly {
		if pub, err = publisherSettings(src, fc); err != nil {
			return nil, err
		}
	}

	types := listSetting(src, EnvSensorTypes, fc.SensorTypes, DefaultSensorTypes)
	locations := listSetting(src, EnvLocations, fc.Locations, DefaultLocations)

	ranges := make(map[string]ValueRange, len(types))
	for _, t := range types {
		key := RangeEnvKey(t)
		raw, ok := src.lookup(key)
		if !ok {
			raw, ok = fc.Ranges[strings.TrimSpace(t)]
		}
		if !ok {
			return nil, &FieldError{Field: key, Reason: fmt.Sprintf("missing range for sensor type %q", t)}
		}
		r, err := ParseRange(raw)
		if err != nil {
			return nil, &FieldError{Field: key, Reason: err.Error()}
		}
		ranges[strings.TrimSpace(t)] = r
	}

	failProb := DefaultFailProbability
	if fc.FailProbability != nil {
		failProb = *fc.FailProbability
	}
	if raw, ok := src.lookup(EnvFailProbability); ok {
		if failProb, err = strconv.ParseFloat(strings.TrimSpace(raw), 64); err != nil {
			return nil, &FieldError{Field: EnvFailProbability, Reason: fmt.Sprintf("not a number: %q", raw)}
		}
	}

	interval, err := intervalSetting(src, fc.Interval)
	if err != nil {
		return nil, err
	}

	sim, err := NewSimulationConfig(types, locations, ranges, failProb)
	if err != nil {
		return nil, err
	}
	return &Config{Publisher: pub, Simulation: sim, Interval: interval}, nil
}

func publisherSettings(src source, fc fileConfig) (PublisherConfig, error) {
	broker, err := required(src, EnvBroker, "broker_url", fc.BrokerURL)
	if err != nil {
		return PublisherConfig{}, err
	}
	clientID, err := required(src, EnvClientID, "client_id", fc.ClientID)
	if err != nil {
		return PublisherConfig{}, err
	}
	topic, err := required(src, EnvTopic, "topic", fc.Topic)
	if err != nil {
		return PublisherConfig{}, err
	}
	return NewPublisherConfig(broker, clientID, topic)
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot read env file %s: %w", path, err)
	}
	return values, nil
}

func readConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	if err := ValidateWithCue(path); err != nil {
		return fc, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("cannot read YAML config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, &FieldError{Field: path, Reason: fmt.Sprintf("cannot unmarshal YAML: %v", err)}
	}
	return fc, nil
}

func required(src source, envKey, yamlKey, fileValue string) (string, error) {
	if v, ok := src.lookup(envKey); ok {
		return v, nil
	}
	if strings.TrimSpace(fileValue) != "" {
		return fileValue, nil
	}
	return "", &FieldError{Field: envKey, Reason: fmt.Sprintf("required (or %q in the config file)", yamlKey)}
}

func listSetting(src source, envKey string, fileValue []string, def string) []string {
	if v, ok := src.lookup(envKey); ok {
		return SplitList(v)
	}
	if len(fileValue) > 0 {
		return fileValue
	}
	return SplitList(def)
}

func intervalSetting(src source, fileValue string) (time.Duration, error) {
	raw, ok := src.lookup(EnvInterval)
	field := EnvInterval
	if !ok {
		if fileValue == "" {
			return DefaultInterval, nil
		}
		raw, field = fileValue, "interval"
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, &FieldError{Field: field, Reason: fmt.Sprintf("not a duration: %q", raw)}
	}
	if d <= 0 {
		return 0, &FieldError{Field: field, Reason: "must be positive"}
	}
	return d, nil
}
