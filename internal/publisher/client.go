package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sensor-sim/internal/config"
)

const (
	// ConnectTimeout bounds the initial broker handshake.
	ConnectTimeout = 10 * time.Second
	// KeepAlive is the MQTT keep-alive interval.
	KeepAlive = 20 * time.Second
	// disconnectQuiesce gives in-flight work time to drain on a clean disconnect.
	disconnectQuiesce = 250 // milliseconds
	// connectGrace lets paho report its own connect timeout before ours fires.
	connectGrace = time.Second
)

var errReleased = errors.New("client already released")

// Client is the broker transport used by Publisher.
type Client interface {
	// Connect performs the initial handshake.
	Connect(ctx context.Context) error
	// IsConnectionOpen reports whether the link is currently up. It is false
	// while the transport is reconnecting on its own.
	IsConnectionOpen() bool
	// Publish sends payload and waits for the broker acknowledgement.
	Publish(ctx context.Context, topic string, qos byte, payload []byte, timeout time.Duration) error
	// Disconnect closes an open connection.
	Disconnect() error
	// Release frees transport resources. The client is unusable afterwards.
	Release() error
}

// ClientFactory builds an unconnected Client for cfg.
type ClientFactory func(cfg config.PublisherConfig, log *slog.Logger) (Client, error)

// PahoClient adapts an Eclipse Paho client.
type PahoClient struct {
	raw      mqtt.Client
	released atomic.Bool
}

// NewPahoClient is the default ClientFactory. The client uses a clean session,
// an in-memory store and reconnects automatically after the first connect.
func NewPahoClient(cfg config.PublisherConfig, log *slog.Logger) (Client, error) {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid broker URL %q", cfg.BrokerURL)
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("broker", cfg.BrokerURL, "client_id", cfg.ClientID)

	o := mqtt.NewClientOptions()
	o.AddBroker(cfg.BrokerURL)
	o.SetClientID(cfg.ClientID)
	o.SetCleanSession(true)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(false)
	o.SetConnectTimeout(ConnectTimeout)
	o.SetKeepAlive(KeepAlive)
	o.SetStore(mqtt.NewMemoryStore())
	o.SetOnConnectHandler(func(mqtt.Client) {
		log.Debug("broker link up")
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("broker connection lost", "err", err)
	})
	o.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Info("reconnecting to broker")
	})
	return &PahoClient{raw: mqtt.NewClient(o)}, nil
}

// Connect implements Client.
func (c *PahoClient) Connect(ctx context.Context) error {
	if c.released.Load() {
		return errReleased
	}
	err := waitToken(ctx, c.raw.Connect(), ConnectTimeout+connectGrace)
	if errors.Is(err, errTokenTimeout) {
		return fmt.Errorf("no CONNACK within %s", ConnectTimeout)
	}
	return err
}

// IsConnectionOpen implements Client.
func (c *PahoClient) IsConnectionOpen() bool {
	return !c.released.Load() && c.raw.IsConnectionOpen()
}

// Publish implements Client.
func (c *PahoClient) Publish(ctx context.Context, topic string, qos byte, payload []byte, timeout time.Duration) error {
	if c.released.Load() {
		return errReleased
	}
	err := waitToken(ctx, c.raw.Publish(topic, qos, false, payload), timeout)
	if errors.Is(err, errTokenTimeout) {
		return ErrPublishTimeout
	}
	return err
}

// Disconnect implements Client.
func (c *PahoClient) Disconnect() error {
	if c.released.Load() {
		return errReleased
	}
	c.raw.Disconnect(disconnectQuiesce)
	return nil
}

// Release implements Client. It also aborts a connect still in flight and
// stops a pending automatic reconnect; paho ignores the call when idle.
func (c *PahoClient) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return errReleased
	}
	c.raw.Disconnect(0)
	return nil
}

var errTokenTimeout = errors.New("token wait timed out")

func waitToken(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return errTokenTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
