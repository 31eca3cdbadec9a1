package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"sensor-sim/internal/config"
)

const (
	// sensorIDPool is the number of physical devices reused across types and locations.
	sensorIDPool  = 3
	anomalySpread = config.AnomalySpread
)

// Generator produces readings for one simulation config. It is not safe for
// concurrent use; the publish loop owns it.
type Generator struct {
	cfg  config.SimulationConfig
	rand *rand.Rand
	now  func() time.Time
}

// NewGenerator returns a generator seeded with seed. A zero seed uses the
// current time.
func NewGenerator(cfg config.SimulationConfig, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{cfg: cfg, rand: rand.New(rand.NewSource(seed)), now: time.Now}
}

// Config returns the simulation config driving g.
func (g *Generator) Config() config.SimulationConfig {
	return g.cfg
}

// Generate returns the next reading.
func (g *Generator) Generate() SensorReading {
	return Generate(g.cfg, g.rand, g.now)
}

// Generate draws one reading from cfg using rng. cfg must come from
// config.NewSimulationConfig; nothing is re-validated here.
func Generate(cfg config.SimulationConfig, rng *rand.Rand, now func() time.Time) SensorReading {
	sensorType := cfg.SensorTypes[rng.Intn(len(cfg.SensorTypes))]
	location := cfg.Locations[rng.Intn(len(cfg.Locations))]
	sensorID := fmt.Sprintf("sensor_%d", rng.Intn(sensorIDPool)+1)

	// Float64 is in [0,1): probability 0 never fires, probability 1 always does.
	anomalous := rng.Float64() < cfg.FailProbability

	r := cfg.ValueRanges[sensorType]
	var value float64
	if anomalous {
		value = outOfRange(r, rng.Intn(2) == 0, rng.Float64())
	} else {
		value = r.Min + rng.Float64()*(r.Max-r.Min)
	}

	return SensorReading{
		SensorType: sensorType,
		SensorID:   sensorID,
		Location:   location,
		Value:      value,
		Timestamp:  now().UnixMilli(),
		Anomalous:  anomalous,
	}
}

// outOfRange places a value up to anomalySpread beyond one bound. The offset
// lies in (0, anomalySpread] so the result never touches the bound.
func outOfRange(r config.ValueRange, below bool, u float64) float64 {
	offset := (1 - u) * anomalySpread
	if below {
		v := r.Min - offset
		if v >= r.Min {
			v = math.Nextafter(r.Min, math.Inf(-1))
		}
		return v
	}
	v := r.Max + offset
	if v <= r.Max {
		v = math.Nextafter(r.Max, math.Inf(1))
	}
	return v
}
