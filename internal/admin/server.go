package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"sensor-sim/internal/logging"
	"sensor-sim/internal/metrics"
	"sensor-sim/internal/publisher"
)

const shutdownTimeout = 5 * time.Second

// Controller is the part of the simulator the admin API drives.
type Controller interface {
	Status() publisher.Status
	Stop()
}

// Server exposes health, status, metrics and a stop hook over HTTP.
type Server struct {
	ctrl      Controller
	metrics   *metrics.Metrics
	accessLog io.Writer
	router    *mux.Router
}

// NewServer wires the routes. accessLog may be nil to disable access logs.
func NewServer(ctrl Controller, m *metrics.Metrics, accessLog io.Writer) *Server {
	s := &Server{ctrl: ctrl, metrics: m, accessLog: accessLog, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	if s.accessLog != nil {
		h = handlers.LoggingHandler(s.accessLog, h)
	}
	return h
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	log := logging.FromContext(ctx).With("component", "admin")
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("admin server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("admin server shutdown", "err", err)
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status()
	code := http.StatusOK
	if st.State != publisher.StateConnected.String() && st.State != publisher.StatePublishing.String() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"state": st.State})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context()).Info("stop requested via admin API", "remote", r.RemoteAddr)
	s.ctrl.Stop()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
