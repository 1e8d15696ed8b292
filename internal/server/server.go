// Package server exposes the review workflow over HTTP.
//
// The API mirrors the two-step flow of the CLI: a run is started with a
// topic (optionally stopping after the search milestone), then generated
// and revised by ID. Runs execute in the background; progress is read from
// the run record and the engine's event history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/emit"
	"github.com/dshills/litreview/internal/review"
)

// Service is the part of review.Runner the API uses.
type Service interface {
	Run(ctx context.Context, initial review.State, stopAfter string) (review.State, error)
	Generate(ctx context.Context, runID string) (review.State, error)
	Revise(ctx context.Context, runID string) (review.State, error)
	Load(ctx context.Context, runID string) (review.State, error)
	List(ctx context.Context) ([]review.RunInfo, error)
	Cost(runID string) graph.CostSummary
}

// Config holds HTTP server settings.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MetricsPath serves Prometheus metrics when Gatherer is set.
	MetricsPath string
	Gatherer    prometheus.Gatherer
}

// Server is the HTTP API server.
type Server struct {
	cfg        Config
	router     chi.Router
	httpServer *http.Server
	service    Service
	events     *emit.BufferedEmitter
	logger     zerolog.Logger

	// runs started by this server that have not finished yet.
	mu       sync.Mutex
	inflight map[string]string
	wg       sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a Server. events may be nil, in which case the events
// endpoint returns an empty history.
func New(cfg Config, service Service, events *emit.BufferedEmitter, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		service:  service,
		events:   events,
		logger:   logger.With().Str("component", "http-server").Logger(),
		inflight: make(map[string]string),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthHandler)
	if s.cfg.Gatherer != nil {
		path := s.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Post("/", s.startRun)
		r.Get("/", s.listRuns)
		r.Get("/{runID}", s.getRun)
		r.Post("/{runID}/generate", s.generateRun)
		r.Post("/{runID}/revise", s.reviseRun)
		r.Get("/{runID}/events", s.runEvents)
	})

	return r
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("address", ln.Addr().String()).Msg("HTTP server starting")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels background runs between
// steps, and waits for them to persist their last step.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("background runs still active: %w", ctx.Err()))
	}
	return err
}

// Wait blocks until every background run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	active := len(s.inflight)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_runs": active})
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
