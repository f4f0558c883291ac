// Package server exposes cluster status reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rbias/clusterpulse/internal/cluster"
	"github.com/rbias/clusterpulse/internal/render"
	"github.com/rbias/clusterpulse/internal/report"
	"github.com/rbias/clusterpulse/internal/reporting"
	"github.com/rbias/clusterpulse/internal/storage"
)

// Generator produces reports. *report.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, req report.Request) (*report.Report, error)
}

// ClusterLister returns the names of known clusters.
type ClusterLister interface {
	ListClusters(ctx context.Context) ([]string, error)
}

// RunRecorder stores report run history.
type RunRecorder interface {
	RecordReportRun(ctx context.Context, run *storage.ReportRun) error
}

// HealthChecker reports whether a backing store is usable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds HTTP server settings.
type Config struct {
	// Port to listen on (default: 8080)
	Port int
	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout time.Duration
	// Render controls text rendering of reports.
	Render render.Options
}

// Server serves reports and health endpoints.
type Server struct {
	gen      Generator
	clusters ClusterLister
	runs     RunRecorder
	health   HealthChecker
	monitor  *reporting.FailureMonitor
	cfg      Config
	now      func() time.Time
}

// Option configures optional collaborators.
type Option func(*Server)

// WithRunRecorder records every generation served.
func WithRunRecorder(r RunRecorder) Option { return func(s *Server) { s.runs = r } }

// WithHealthChecker makes /healthz check a backing store.
func WithHealthChecker(h HealthChecker) Option { return func(s *Server) { s.health = h } }

// WithFailureMonitor feeds generation outcomes into a failure monitor.
func WithFailureMonitor(m *reporting.FailureMonitor) Option { return func(s *Server) { s.monitor = m } }

// NewServer creates a report server.
func NewServer(gen Generator, clusters ClusterLister, cfg Config, opts ...Option) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	s := &Server{gen: gen, clusters: clusters, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the request router.
//
// Endpoints:
//   - GET /healthz
//   - GET /clusters
//   - GET /reports/{cluster}?detailed=true&format=json|csv|html|markdown|table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /clusters", s.handleClusters)
	mux.HandleFunc("GET /reports/{cluster}", s.handleReport)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting report server", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down report server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.health != nil {
		if err := s.health.Health(r.Context()); err != nil {
			status = map[string]string{"status": "unhealthy", "error": err.Error()}
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	names, err := s.clusters.ListClusters(r.Context())
	if err != nil {
		slog.Error("failed to list clusters", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"clusters": names})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("cluster")
	if err := cluster.ValidateName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	detailed := false
	if v := r.URL.Query().Get("detailed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid detailed value %q", v), http.StatusBadRequest)
			return
		}
		detailed = b
	}

	format := render.FormatJSON
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := render.ParseFormat(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}

	started := s.now()
	rep, err := s.gen.Generate(r.Context(), report.Request{Cluster: name, Detailed: detailed, Passthrough: true})
	s.observe(r.Context(), name, detailed, rep, err, started)
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, cluster.ErrClusterNotFound) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Report-Id", rep.ID)
	w.WriteHeader(http.StatusOK)
	if err := render.Render(w, rep, format, s.cfg.Render); err != nil {
		slog.Error("failed to write report response", "cluster", name, "error", err)
	}
}

// observe records the run and updates the failure monitor. Unknown
// clusters are the caller's mistake and do not count as failures.
func (s *Server) observe(ctx context.Context, name string, detailed bool, rep *report.Report, err error, at time.Time) {
	if s.monitor != nil && !errors.Is(err, cluster.ErrClusterNotFound) {
		s.monitor.Observe(ctx, name, err)
	}
	if s.runs == nil {
		return
	}
	var id string
	var rows int
	if rep != nil {
		id, rows = rep.ID, rep.Len()
	}
	if recErr := s.runs.RecordReportRun(ctx, storage.NewReportRun(id, name, detailed, rows, err, at)); recErr != nil {
		slog.Warn("failed to record report run", "cluster", name, "error", recErr)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
