package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sensor-sim/internal/logging"
	"sensor-sim/internal/metrics"
	"sensor-sim/internal/publisher"
)

type fakeController struct {
	status  publisher.Status
	stopped atomic.Int32
}

func (f *fakeController) Status() publisher.Status { return f.status }
func (f *fakeController) Stop()                    { f.stopped.Add(1) }

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	cases := []struct {
		state string
		code  int
	}{
		{publisher.StateConnected.String(), http.StatusOK},
		{publisher.StatePublishing.String(), http.StatusOK},
		{publisher.StateConnecting.String(), http.StatusServiceUnavailable},
		{publisher.StateDisconnected.String(), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.state, func(t *testing.T) {
			s := NewServer(&fakeController{status: publisher.Status{State: tc.state}}, nil, nil)
			w := serve(t, s, http.MethodGet, "/healthz")
			if w.Code != tc.code {
				t.Errorf("status = %d, want %d", w.Code, tc.code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["state"] != tc.state {
				t.Errorf("state = %q, want %q", body["state"], tc.state)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	ctrl := &fakeController{status: publisher.Status{
		State:     "connected",
		Broker:    "tcp://broker:1883",
		ClientID:  "sim-1",
		Topic:     "sensors/readings",
		Published: 7,
		Anomalies: 1,
	}}
	w := serve(t, NewServer(ctrl, nil, nil), http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var got publisher.Status
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != ctrl.status {
		t.Errorf("status = %+v, want %+v", got, ctrl.status)
	}
}

func TestStop(t *testing.T) {
	ctrl := &fakeController{}
	s := NewServer(ctrl, nil, nil)

	w := serve(t, s, http.MethodGet, "/stop")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /stop status = %d", w.Code)
	}
	if n := ctrl.stopped.Load(); n != 0 {
		t.Fatalf("GET must not stop, stopped %d times", n)
	}

	w = serve(t, s, http.MethodPost, "/stop")
	if w.Code != http.StatusAccepted {
		t.Errorf("POST /stop status = %d", w.Code)
	}
	if n := ctrl.stopped.Load(); n != 1 {
		t.Errorf("stopped %d times, want 1", n)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Published("temperature", false, time.Millisecond)
	s := NewServer(&fakeController{}, m, nil)

	w := serve(t, s, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if want := `sensorsim_readings_published_total{sensor_type="temperature"} 1`; !strings.Contains(w.Body.String(), want) {
		t.Errorf("metrics missing %q", want)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	s := NewServer(&fakeController{status: publisher.Status{State: "connected"}}, nil, &buf)
	serve(t, s, http.MethodGet, "/healthz")
	if !strings.Contains(buf.String(), "GET /healthz") {
		t.Errorf("access log: %q", buf.String())
	}
}

func TestStartShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), logging.Nop()))
	s := NewServer(&fakeController{status: publisher.Status{State: "connected"}}, nil, nil)
	errc := make(chan error, 1)
	go func() { errc <- s.Start(ctx, addr) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin server not serving: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
