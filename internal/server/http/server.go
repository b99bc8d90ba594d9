package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/nayuki/MamIRC-sub000/internal/metrics"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the daemon can still make progress.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// StatusFunc returns a JSON-encodable snapshot for /v1/status.
type StatusFunc func(ctx context.Context) (any, error)

type Server struct {
	health HealthChecker
	status StatusFunc
	logger logpkg.Logger
	srv    *http.Server
	lis    net.Listener
}

// New builds the ops server. status may be nil.
func New(health HealthChecker, status StatusFunc, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	metrics.Init()
	mux := http.NewServeMux()
	s := &Server{
		health: health,
		status: status,
		logger: logger.With(logpkg.Component("ops-http")),
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("ops endpoint listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.health.CheckHealth(r.Context()); err != nil {
		s.logger.Warn("health check failed", logpkg.Err(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.status == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	v, err := s.status(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
