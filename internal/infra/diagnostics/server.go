// Package diagnostics serves the console's local monitor endpoints: the
// latest health aggregate, the composed diagnostics view, and a runtime
// visualizer. It is an operator convenience, bound to localhost by
// default, with no authentication.
package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/arl/statsviz"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/parakeetlabs/perch/internal/domain/admin"
	"github.com/parakeetlabs/perch/internal/domain/health"
	"github.com/parakeetlabs/perch/pkg/common/logger"
)

// DefaultListen is the monitor's default bind address.
const DefaultListen = ":8900"

const shutdownTimeout = 5 * time.Second

// DiagnosticsSource assembles the composed diagnostics view on demand.
// The admin service implements it.
type DiagnosticsSource interface {
	Diagnostics(ctx context.Context) (admin.Diagnostics, error)
}

// Server is the monitor HTTP server. Feed it health aggregates with
// Record; a watch loop's callback slots in directly.
type Server struct {
	srv    *http.Server
	source DiagnosticsSource
	log    *logger.Logger

	latest atomic.Pointer[health.SystemHealth]
}

// NewServer builds the monitor server on listen. Registering the
// runtime visualizer can only fail on a nil mux, so that error is
// logged, never fatal.
func NewServer(listen string, source DiagnosticsSource, log *logger.Logger) *Server {
	if listen == "" {
		listen = DefaultListen
	}
	if log == nil {
		log = logger.Noop()
	}

	s := &Server{
		source: source,
		log:    log.With("component", "diagnostics"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.healthHandler)
	mux.HandleFunc("/v1/diag", s.diagHandler)
	if err := statsviz.Register(mux); err != nil {
		s.log.Warn(context.Background(), "statsviz registration failed", "error", err.Error())
	}

	s.srv = &http.Server{
		Addr:         listen,
		Handler:      otelhttp.NewHandler(mux, "diagnostics"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Record stores the latest health aggregate for /v1/health.
func (s *Server) Record(h health.SystemHealth) {
	s.latest.Store(&h)
}

// Server returns the underlying http.Server instance.
// This allows the caller to properly shut down the server when needed.
func (s *Server) Server() *http.Server { return s.srv }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "monitor listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("monitor server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.srv.Close()
		return fmt.Errorf("shutting down monitor server: %w", err)
	}
	return nil
}

// healthHandler serves the latest aggregate. Critical answers 503 so
// the endpoint doubles as a probe target; no report yet answers 503
// too, an unwatched monitor is not a healthy one.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	h := s.latest.Load()
	if h == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unknown"})
		return
	}
	code := http.StatusOK
	if h.Status == health.SystemCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (s *Server) diagHandler(w http.ResponseWriter, r *http.Request) {
	diag, err := s.source.Diagnostics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
