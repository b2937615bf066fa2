// Package api exposes the HTTP trigger interface for the harvester.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/config"
	"github.com/filmvault/movie-harvester/internal/media"
	"github.com/filmvault/movie-harvester/internal/metrics"
)

// Runner starts a harvest run. The pipeline implements it.
type Runner interface {
	RunBulk(ctx context.Context) (media.Summary, error)
	RunIncremental(ctx context.Context) (media.Summary, error)
}

// Server wires HTTP handlers to the pipeline. Runs are started in the
// background against baseCtx, so an in-flight run survives its trigger
// request but dies with the server.
type Server struct {
	router  chi.Router
	runner  Runner
	baseCtx context.Context
	logger  *zap.Logger
	running atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, baseCtx context.Context, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		runner:  runner,
		baseCtx: baseCtx,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/api/scrape", s.triggerIncremental)
		r.Post("/api/scrape/bulk", s.triggerBulk)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) triggerIncremental(w http.ResponseWriter, _ *http.Request) {
	s.trigger(w, "incremental", s.runner.RunIncremental)
}

func (s *Server) triggerBulk(w http.ResponseWriter, _ *http.Request) {
	s.trigger(w, "bulk", s.runner.RunBulk)
}

// trigger starts a run in the background. Only one run may be in flight
// at a time; the pipeline shares provider memoization and batching state
// that is not meant for concurrent runs.
func (s *Server) trigger(w http.ResponseWriter, mode string, run func(context.Context) (media.Summary, error)) {
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	go func() {
		defer s.running.Store(false)
		summary, err := run(s.baseCtx)
		if err != nil {
			s.logger.Error("triggered run failed", zap.String("mode", mode), zap.Error(err))
			return
		}
		s.logger.Info("triggered run finished",
			zap.String("mode", mode),
			zap.Int("added", summary.Added),
			zap.Int("processed", summary.Processed),
		)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "mode": mode})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
