// Package server exposes the gateway core over HTTP: the admission check
// endpoint consumed by the request path, the event ingress for detectors,
// alert administration, health, and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/mcpgate/pkg/alerts"
	"github.com/kadirpekel/mcpgate/pkg/config"
	"github.com/kadirpekel/mcpgate/pkg/observability"
	"github.com/kadirpekel/mcpgate/pkg/ratelimit"
)

// Server is the HTTP surface over the admission and alerting cores.
type Server struct {
	cfg     *config.ServerConfig
	manager *ratelimit.Manager
	alerts  *alerts.Manager
	metrics *observability.Metrics
	log     *slog.Logger

	httpServer *http.Server
}

// New builds the Server and its routes. metrics may be a disabled instance.
func New(cfg *config.ServerConfig, manager *ratelimit.Manager, alertManager *alerts.Manager, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		alerts:  alertManager,
		metrics: metrics,
		log:     slog.Default(),
	}

	readTimeout, _ := time.ParseDuration(cfg.ReadTimeout)
	writeTimeout, _ := time.ParseDuration(cfg.WriteTimeout)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/admission/check", s.handleAdmissionCheck)
		r.Post("/events", s.handleSecurityEvent)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Get("/stats", s.handleAlertStats)
			r.Get("/{id}", s.handleGetAlert)
			r.Post("/{id}/ack", s.handleAcknowledge)
			r.Post("/{id}/resolve", s.handleResolve)
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/stats", s.handleUserStats)
			r.Post("/reset", s.handleUserReset)
			r.Put("/limits", s.handleUserLimits)
		})

		r.Post("/tools/limits", s.handleAddToolLimit)
	})

	return r
}

// requestLogger logs each request with its outcome at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.cfg.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	grace, _ := time.ParseDuration(s.cfg.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
