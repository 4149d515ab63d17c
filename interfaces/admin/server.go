// Package admin serves the operator endpoints next to the MCP transport:
// liveness, limiter and cache statistics, and collected metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/felixgeelhaar/influx-mcp/application"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/observability"
)

const shutdownTimeout = 5 * time.Second

// Health is the part of the health service the endpoints need.
type Health interface {
	Ping(ctx context.Context) application.PingResult
	Stats() application.StatsResult
}

// Collector reads metric points. *observability.Provider implements it.
type Collector interface {
	Collect(ctx context.Context) ([]observability.MetricPoint, error)
}

// Server exposes /healthz, /stats and /metrics.
type Server struct {
	health  Health
	metrics Collector
	router  *mux.Router
}

// New builds the router. A nil collector leaves /metrics unregistered.
func New(health Health, metrics Collector) *Server {
	s := &Server{health: health, metrics: metrics, router: mux.NewRouter()}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	if metrics != nil {
		s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Add(logging.Component("admin")).
			Add(logging.Str("addr", addr)).
			Msg("admin server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// handleHealth answers 200 when the database answers the ping, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := s.health.Ping(r.Context())
	status := http.StatusOK
	if !res.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Stats())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	points, err := s.metrics.Collect(r.Context())
	if errors.Is(err, observability.ErrMetricsDisabled) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if points == nil {
		points = []observability.MetricPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": points})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().
			Add(logging.Component("admin")).
			Add(logging.ErrorField(err)).
			Msg("failed to write response")
	}
}
