package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sharegate/sharegate/internal/metrics"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

// Pinger reports whether a dependency is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures the ops server
type Options struct {
	Listen      string
	MetricsPath string // empty disables the metrics route
	DB          Pinger
	Metrics     metrics.Manager
	Logger      *logrus.Logger
}

// Server serves health and metrics endpoints for a running sharegate
type Server struct {
	httpServer  *http.Server
	db          Pinger
	metrics     metrics.Manager
	logger      *logrus.Logger
	accessLog   *io.PipeWriter
	metricsPath string

	version   string
	commit    string
	buildDate string
	startTime time.Time
}

// New creates the ops server
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	s := &Server{
		db:          opts.DB,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		accessLog:   opts.Logger.WriterLevel(logrus.DebugLevel),
		metricsPath: opts.MetricsPath,
		version:     "dev",
		startTime:   time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:              opts.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetVersion sets the build information reported by /healthz
func (s *Server) SetVersion(version, commit, date string) {
	s.version = version
	s.commit = commit
	s.buildDate = date
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.metrics.Middleware())

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	if s.metricsPath != "" {
		router.Handle(s.metricsPath, s.metrics.GetMetricsHandler()).Methods(http.MethodGet)
	}

	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.logger),
		handlers.PrintRecoveryStack(false),
	)(handlers.CombinedLoggingHandler(s.accessLog, router))
}

type healthResponse struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	Version       string `json:"version"`
	Commit        string `json:"commit,omitempty"`
	BuildDate     string `json:"build_date,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.version,
		Commit:        s.commit,
		BuildDate:     s.buildDate,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	status := http.StatusOK

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			resp.Status = "unavailable"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Debug("Failed to write health response")
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("address", s.httpServer.Addr).Info("Starting ops server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.accessLog.Close()
		return fmt.Errorf("ops server failed: %w", err)
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down ops server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to shutdown ops server")
	}
	s.accessLog.Close()
	return err
}
