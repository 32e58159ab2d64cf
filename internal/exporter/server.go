// Package exporter serves the mirrored tree over HTTP: Prometheus metrics
// and a read-only JSON status API.
package exporter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/history"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/tree"
)

const (
	ErrServe    = errors.ErrorCode("exporter_serve_failed")
	ErrRegister = errors.ErrorCode("exporter_register_failed")

	shutdownTimeout = 5 * time.Second
	historyWindow   = time.Hour
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrServe:    "HTTP server failed",
		ErrRegister: "Failed to register metrics collector",
	})
}

// Reporter renders the diagnostic text report.
type Reporter interface {
	Report() string
}

type Option func(*Server)

func WithHistory(r history.Recorder) Option {
	return func(s *Server) { s.history = r }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

type Server struct {
	tree     *tree.Tree
	reporter Reporter
	history  history.Recorder
	log      logger.Logger
	router   *chi.Mux
	http     *http.Server
}

func New(addr string, t *tree.Tree, reporter Reporter, opts ...Option) (*Server, error) {
	s := &Server{
		tree:     t,
		reporter: reporter,
		log:      logger.Component("exporter"),
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(t)); err != nil {
		return nil, errors.New().Wrap(ErrRegister, err)
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.New().Wrap(ErrRegister, err)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/hardware", s.handleHardware)
		r.Get("/report", s.handleReport)
		r.Get("/history/*", s.handleHistory)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("Serving metrics and status API")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New().Wrap(ErrServe, err).WithData(s.http.Addr)
	}

	return nil
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("HTTP server shutdown")
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/metrics" {
			return
		}
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write response")
	}
}
