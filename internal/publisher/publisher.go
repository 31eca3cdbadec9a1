// Package publisher owns the broker connection and the periodic publish loop.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sensor-sim/internal/config"
	"sensor-sim/internal/metrics"
	"sensor-sim/internal/telemetry"
)

var (
	// ErrConnect wraps every failure to establish the broker connection.
	ErrConnect = errors.New("broker connect failed")
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("publisher not connected")
	// ErrPublishTimeout is returned when the broker does not acknowledge in time.
	ErrPublishTimeout = errors.New("publish timed out")
	// ErrEncode wraps serialization failures. The loop treats it as fatal.
	ErrEncode = errors.New("reading encode failed")
	// ErrPanic wraps a panic recovered inside the publish loop.
	ErrPanic = errors.New("publish loop panicked")
)

// Defaults applied by New for zero Options fields.
const (
	DefaultQoS            byte = 1
	DefaultPublishTimeout      = 10 * time.Second
	DefaultBackoff             = 5 * time.Second
)

// State is the connection state owned by the Publisher.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePublishing:
		return "publishing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ReadingSource produces the readings published by Run.
type ReadingSource interface {
	Generate() telemetry.SensorReading
}

// Observer is handed every reading the broker acknowledged.
type Observer interface {
	Write(telemetry.SensorReading) error
}

// Options tunes a Publisher. Zero values select the defaults.
type Options struct {
	Factory        ClientFactory
	QoS            byte
	PublishTimeout time.Duration
	Backoff        time.Duration
	Observer       Observer
	Metrics        *metrics.Metrics
	// Logger overrides the logger carried by the context.
	Logger *slog.Logger
}

// Status is a point-in-time view of the publisher for the admin surface.
type Status struct {
	State           string                   `json:"state"`
	Broker          string                   `json:"broker"`
	ClientID        string                   `json:"client_id"`
	Topic           string                   `json:"topic"`
	Published       uint64                   `json:"published"`
	Anomalies       uint64                   `json:"anomalies"`
	Failures        uint64                   `json:"failures"`
	Connects        uint64                   `json:"connects"`
	LastReading     *telemetry.SensorReading `json:"last_reading,omitempty"`
	LastPublishedAt *time.Time               `json:"last_published_at,omitempty"`
	LastError       string                   `json:"last_error,omitempty"`
}

// Publisher publishes readings to one topic on one broker. Any goroutine may
// call Stop, Close or Snapshot while another runs the loop.
type Publisher struct {
	cfg    config.PublisherConfig
	source ReadingSource
	opts   Options

	mu     sync.Mutex // guards client and the transitions of state
	client Client
	state  atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once

	statsMu sync.Mutex
	stats   Status
}

// New returns a disconnected publisher.
func New(cfg config.PublisherConfig, source ReadingSource, opts Options) *Publisher {
	if opts.Factory == nil {
		opts.Factory = NewPahoClient
	}
	if opts.QoS == 0 {
		opts.QoS = DefaultQoS
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return &Publisher{
		cfg:    cfg,
		source: source,
		opts:   opts,
		stopCh: make(chan struct{}),
		stats:  Status{Broker: cfg.BrokerURL, ClientID: cfg.ClientID, Topic: cfg.Topic},
	}
}

// Config returns the publisher configuration.
func (p *Publisher) Config() config.PublisherConfig {
	return p.cfg
}

// Connect establishes the broker connection. It is a no-op when already
// connected. On failure the half-built client is torn down and the error
// wraps ErrConnect.
func (p *Publisher) Connect(ctx context.Context) error {
	log := p.logger(ctx).With("broker", p.cfg.BrokerURL, "client_id", p.cfg.ClientID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.State() == StateConnected {
		return nil
	}
	if p.client != nil {
		p.teardown(log, p.client)
		p.client = nil
	}

	p.setState(StateConnecting)
	client, err := p.opts.Factory(p.cfg, log)
	if err != nil {
		p.setState(StateDisconnected)
		p.recordError(err)
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if err := client.Connect(ctx); err != nil {
		p.teardown(log, client)
		p.setState(StateDisconnected)
		p.recordError(err)
		return fmt.Errorf("%w: %s: %w", ErrConnect, p.cfg.BrokerURL, err)
	}

	p.client = client
	p.setState(StateConnected)
	p.opts.Metrics.SetConnected(true)
	p.statsMu.Lock()
	p.stats.Connects++
	p.statsMu.Unlock()
	log.Info("connected to broker")
	return nil
}

// PublishOne serializes r and sends it to the configured topic, waiting for
// the acknowledgement. It makes no network call unless connected.
func (p *Publisher) PublishOne(ctx context.Context, r telemetry.SensorReading) error {
	if err := p.publish(ctx, r); err != nil {
		return err
	}
	if p.opts.Observer != nil {
		if err := p.opts.Observer.Write(r); err != nil {
			p.opts.Metrics.Failed(metrics.ReasonSink)
			p.logger(ctx).Error("reading sink failed", "sensor_type", r.SensorType, "err", err)
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, r telemetry.SensorReading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil || p.State() != StateConnected {
		return ErrNotConnected
	}

	payload, err := r.Encode()
	if err != nil {
		p.opts.Metrics.Failed(metrics.ReasonEncode)
		p.recordError(err)
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	p.setState(StatePublishing)
	start := time.Now()
	err = p.client.Publish(ctx, p.cfg.Topic, p.opts.QoS, payload, p.opts.PublishTimeout)
	took := time.Since(start)
	p.setState(StateConnected)

	if err != nil {
		if errors.Is(err, ErrPublishTimeout) {
			p.opts.Metrics.Failed(metrics.ReasonTimeout)
		} else {
			p.opts.Metrics.Failed(metrics.ReasonTransport)
		}
		p.recordError(err)
		return fmt.Errorf("publish to %s: %w", p.cfg.Topic, err)
	}

	p.opts.Metrics.Published(r.SensorType, r.Anomalous, took)
	now := time.Now()
	p.statsMu.Lock()
	p.stats.Published++
	if r.Anomalous {
		p.stats.Anomalies++
	}
	p.stats.LastReading = &r
	p.stats.LastPublishedAt = &now
	p.statsMu.Unlock()
	return nil
}

// Disconnect closes the connection if open and always releases the client.
// Calling it again is a no-op. Teardown failures are logged.
func (p *Publisher) Disconnect() {
	log := p.logger(context.Background()).With("broker", p.cfg.BrokerURL, "client_id", p.cfg.ClientID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		p.setState(StateDisconnected)
		return
	}
	p.teardown(log, p.client)
	p.client = nil
	p.setState(StateDisconnected)
	p.opts.Metrics.SetConnected(false)
	log.Info("disconnected from broker")
}

// teardown disconnects c if its link is up, then releases it.
func (p *Publisher) teardown(log *slog.Logger, c Client) {
	if c.IsConnectionOpen() {
		if err := c.Disconnect(); err != nil {
			log.Error("broker disconnect failed", "err", err)
		}
	}
	if err := c.Release(); err != nil {
		log.Error("client release failed", "err", err)
	}
}

// Stop asks a running loop to return. It never blocks.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Stopped is closed once Stop has been called.
func (p *Publisher) Stopped() <-chan struct{} {
	return p.stopCh
}

// Close stops the loop and disconnects.
func (p *Publisher) Close() {
	p.Stop()
	p.Disconnect()
}

// IsConnected reports whether a client is held and its link is up.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.State() == StateConnected && p.client.IsConnectionOpen()
}

func (p *Publisher) connectionOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnectionOpen()
}

// State returns the current connection state without blocking.
func (p *Publisher) State() State {
	return State(p.state.Load())
}

func (p *Publisher) setState(s State) {
	p.state.Store(int32(s))
}

// Snapshot returns a copy of the publisher status.
func (p *Publisher) Snapshot() Status {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	st := p.stats
	st.State = p.State().String()
	if st.LastReading != nil {
		r := *st.LastReading
		st.LastReading = &r
	}
	return st
}

func (p *Publisher) recordError(err error) {
	p.statsMu.Lock()
	p.stats.Failures++
	p.stats.LastError = err.Error()
	p.statsMu.Unlock()
}
