package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sensor-sim/internal/config"
	"sensor-sim/internal/logging"
	"sensor-sim/internal/publisher"
	"sensor-sim/internal/telemetry"
)

// stubClient is an in-memory broker link.
type stubClient struct {
	mu         sync.Mutex
	open       bool
	failAfter  int // publishes before the link drops; 0 never drops
	published  int
	connectErr error
	releases   int
}

func (c *stubClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.open = true
	return nil
}

func (c *stubClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *stubClient) Publish(context.Context, string, byte, []byte, time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter > 0 && c.published >= c.failAfter {
		c.open = false
		return errors.New("connection reset by peer")
	}
	c.published++
	return nil
}

func (c *stubClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *stubClient) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	return nil
}

// stubFactory hands out clients from a script; the last entry is reused.
type stubFactory struct {
	mu      sync.Mutex
	script  []func() *stubClient
	clients []*stubClient
}

func (f *stubFactory) build(config.PublisherConfig, *slog.Logger) (publisher.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.clients)
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	c := f.script[i]()
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *stubFactory) built() []*stubClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*stubClient(nil), f.clients...)
}

type collectWriter struct {
	mu   sync.Mutex
	rows []telemetry.SensorReading
}

func (c *collectWriter) Write(r telemetry.SensorReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, r)
	return nil
}

func (c *collectWriter) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

func testSimConfig(t *testing.T, interval time.Duration) *config.Config {
	t.Helper()
	pub, err := config.NewPublisherConfig("tcp://broker:1883", "sim-1", "sensors/readings")
	if err != nil {
		t.Fatalf("NewPublisherConfig() error = %v", err)
	}
	simCfg, err := config.NewSimulationConfig([]string{"temperature"}, []string{"room1"},
		map[string]config.ValueRange{"temperature": {Min: 15, Max: 25}}, 0)
	if err != nil {
		t.Fatalf("NewSimulationConfig() error = %v", err)
	}
	return &config.Config{Publisher: pub, Simulation: simCfg, Interval: interval}
}

func testContext() context.Context {
	return logging.NewContext(context.Background(), logging.Nop())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSimulatorPublishesUntilCancelled(t *testing.T) {
	ff := &stubFactory{script: []func() *stubClient{func() *stubClient { return &stubClient{} }}}
	cw := &collectWriter{}
	s := NewSimulator(testSimConfig(t, time.Millisecond), Options{Seed: 1, Writer: cw, Factory: ff.build})

	ctx, cancel := context.WithCancel(testContext())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitFor(t, "three readings", func() bool { return cw.len() >= 3 })
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, r := range cw.rows {
		if r.SensorType != "temperature" || r.Location != "room1" || r.Value < 15 || r.Value > 25 {
			t.Fatalf("unexpected reading %+v", r)
		}
	}
	if c := ff.built()[0]; c.releases != 1 {
		t.Errorf("client released %d times, want 1", c.releases)
	}
	if st := s.Status(); st.State != "disconnected" || st.Published < 3 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSimulatorStop(t *testing.T) {
	ff := &stubFactory{script: []func() *stubClient{func() *stubClient { return &stubClient{} }}}
	s := NewSimulator(testSimConfig(t, time.Hour), Options{Factory: ff.build})

	errc := make(chan error, 1)
	go func() { errc <- s.Run(testContext()) }()
	waitFor(t, "first publish", func() bool { return s.Status().Published == 1 })
	s.Stop()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestSimulatorConnectFailure(t *testing.T) {
	boom := errors.New("no route to host")
	ff := &stubFactory{script: []func() *stubClient{func() *stubClient { return &stubClient{connectErr: boom} }}}
	s := NewSimulator(testSimConfig(t, time.Millisecond), Options{Factory: ff.build})

	err := s.Run(testContext())
	if !errors.Is(err, publisher.ErrConnect) || !errors.Is(err, boom) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if c := ff.built()[0]; c.releases != 1 {
		t.Errorf("failed client released %d times", c.releases)
	}
}

func TestSimulatorReconnectsAfterConnectionLoss(t *testing.T) {
	ff := &stubFactory{script: []func() *stubClient{
		func() *stubClient { return &stubClient{failAfter: 2} },
		func() *stubClient { return &stubClient{} },
	}}
	cw := &collectWriter{}
	s := NewSimulator(testSimConfig(t, time.Millisecond), Options{
		Writer:            cw,
		Factory:           ff.build,
		Backoff:           time.Millisecond,
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    time.Millisecond,
	})

	ctx, cancel := context.WithCancel(testContext())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitFor(t, "readings after reconnect", func() bool { return cw.len() >= 5 })
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	clients := ff.built()
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}
	if clients[0].releases != 1 {
		t.Errorf("lost client released %d times", clients[0].releases)
	}
	if st := s.Status(); st.Connects != 2 {
		t.Errorf("connects = %d, want 2", st.Connects)
	}
}

func TestSimulatorGivesUpReconnecting(t *testing.T) {
	refused := errors.New("connection refused")
	ff := &stubFactory{script: []func() *stubClient{
		func() *stubClient { return &stubClient{failAfter: 1} },
		func() *stubClient { return &stubClient{connectErr: refused} },
	}}
	s := NewSimulator(testSimConfig(t, time.Millisecond), Options{
		Factory:           ff.build,
		Backoff:           time.Millisecond,
		ReconnectAttempts: 2,
		ReconnectDelay:    time.Millisecond,
	})

	err := s.Run(testContext())
	if !errors.Is(err, publisher.ErrConnect) || !errors.Is(err, refused) {
		t.Fatalf("expected reconnect failure, got %v", err)
	}
	if n := len(ff.built()); n != 3 {
		t.Errorf("expected 1 + 2 clients, got %d", n)
	}
}

func TestSimulatorReconnectDisabled(t *testing.T) {
	for _, attempts := range []int{0, -1} {
		ff := &stubFactory{script: []func() *stubClient{func() *stubClient { return &stubClient{failAfter: 1} }}}
		s := NewSimulator(testSimConfig(t, time.Millisecond), Options{
			Factory:           ff.build,
			Backoff:           time.Millisecond,
			ReconnectAttempts: attempts,
		})
		if err := s.Run(testContext()); !errors.Is(err, publisher.ErrConnect) {
			t.Fatalf("attempts=%d: expected ErrConnect, got %v", attempts, err)
		}
		if n := len(ff.built()); n != 1 {
			t.Errorf("attempts=%d: expected no reconnect, got %d clients", attempts, n)
		}
	}
}

func TestSimulatorStopDuringReconnectDelay(t *testing.T) {
	ff := &stubFactory{script: []func() *stubClient{
		func() *stubClient { return &stubClient{failAfter: 1} },
		func() *stubClient { return &stubClient{connectErr: errors.New("refused")} },
	}}
	s := NewSimulator(testSimConfig(t, time.Millisecond), Options{
		Factory:           ff.build,
		Backoff:           time.Millisecond,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Hour,
	})

	errc := make(chan error, 1)
	go func() { errc <- s.Run(testContext()) }()
	waitFor(t, "first reconnect attempt", func() bool { return len(ff.built()) >= 2 })
	s.Stop()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return during reconnect delay")
	}
}
