// Simulator wiring configuration, generator, publisher and sinks
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sensor-sim/internal/config"
	"sensor-sim/internal/logging"
	"sensor-sim/internal/metrics"
	"sensor-sim/internal/publisher"
	"sensor-sim/internal/telemetry"
)

// Reconnect policy defaults.
const (
	DefaultReconnectAttempts = 3
	DefaultReconnectDelay    = 5 * time.Second
)

// ReadingWriter receives every reading the broker acknowledged.
type ReadingWriter interface {
	Write(telemetry.SensorReading) error
}

// Options configures a Simulator. Zero durations select the defaults.
type Options struct {
	// Seed for the reading generator; 0 seeds from the clock.
	Seed   int64
	Writer ReadingWriter
	// Factory overrides the broker transport.
	Factory publisher.ClientFactory
	Metrics *metrics.Metrics
	// ReconnectAttempts is the number of connects tried after the link is
	// lost. Zero or negative disables reconnecting; callers wanting the
	// default pass DefaultReconnectAttempts.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	// Backoff overrides the pause after a failed publish.
	Backoff time.Duration
}

// Simulator runs one publisher against one broker until stopped.
type Simulator struct {
	cfg       *config.Config
	gen       *telemetry.Generator
	pub       *publisher.Publisher
	attempts  int
	delay     time.Duration
	startedAt time.Time
}

// NewSimulator builds the generator and publisher for cfg.
func NewSimulator(cfg *config.Config, opts Options) *Simulator {
	attempts := opts.ReconnectAttempts
	if attempts < 0 {
		attempts = 0
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	gen := telemetry.NewGenerator(cfg.Simulation, opts.Seed)
	pubOpts := publisher.Options{
		Factory: opts.Factory,
		Backoff: opts.Backoff,
		Metrics: opts.Metrics,
	}
	if opts.Writer != nil {
		pubOpts.Observer = opts.Writer
	}
	return &Simulator{
		cfg:      cfg,
		gen:      gen,
		pub:      publisher.New(cfg.Publisher, gen, pubOpts),
		attempts: attempts,
		delay:    delay,
	}
}

// Config returns the configuration the simulator was built from.
func (s *Simulator) Config() *config.Config {
	return s.cfg
}

// Status reports the publisher state for the admin surface.
func (s *Simulator) Status() publisher.Status {
	return s.pub.Snapshot()
}

// Stop asks Run to return after the current publish.
func (s *Simulator) Stop() {
	s.pub.Stop()
}

// Run connects and publishes until ctx is done, Stop is called, a fatal error
// occurs or reconnecting fails. The connection is always released on return.
func (s *Simulator) Run(ctx context.Context) error {
	log := logging.FromContext(ctx).With("broker", s.cfg.Publisher.BrokerURL, "client_id", s.cfg.Publisher.ClientID)
	defer s.pub.Close()

	s.startedAt = time.Now()
	log.Info("starting simulator", "topic", s.cfg.Publisher.Topic, "interval", s.cfg.Interval,
		"sensor_types", s.cfg.Simulation.SensorTypes, "fail_probability", s.cfg.Simulation.FailProbability)

	if err := s.pub.Connect(ctx); err != nil {
		return err
	}

	for {
		reason, err := s.pub.Run(ctx, s.cfg.Interval)
		switch reason {
		case publisher.StopRequested, publisher.StopCancelled:
			log.Info("simulator stopped", "reason", reason, "uptime", time.Since(s.startedAt).Round(time.Second))
			return nil
		case publisher.StopConnectionLost:
			log.Warn("broker connection lost", "err", err)
			if rerr := s.reconnect(ctx); rerr != nil {
				if errors.Is(rerr, errInterrupted) {
					log.Info("simulator stopped while reconnecting")
					return nil
				}
				return rerr
			}
		default:
			return fmt.Errorf("simulation aborted: %w", err)
		}
	}
}

var errInterrupted = errors.New("interrupted")

func (s *Simulator) reconnect(ctx context.Context) error {
	log := logging.FromContext(ctx)
	s.pub.Disconnect()

	var last error
	for i := 1; i <= s.attempts; i++ {
		if i > 1 {
			if err := s.wait(ctx, s.delay); err != nil {
				return err
			}
		}
		log.Info("reconnecting", "attempt", i, "of", s.attempts)
		if last = s.pub.Connect(ctx); last == nil {
			return nil
		}
		log.Warn("reconnect failed", "attempt", i, "err", last)
		if ctx.Err() != nil {
			return errInterrupted
		}
	}
	if last == nil {
		last = fmt.Errorf("%w: reconnecting disabled", publisher.ErrConnect)
	}
	return fmt.Errorf("giving up after %d reconnect attempts: %w", s.attempts, last)
}

func (s *Simulator) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errInterrupted
	case <-s.pub.Stopped():
		return errInterrupted
	}
}
