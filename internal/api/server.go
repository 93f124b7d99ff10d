// Package api exposes the administrative HTTP interface for boardkeeper.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boardkeeper/boardkeeper/internal/config"
	"github.com/boardkeeper/boardkeeper/internal/metrics"
	"github.com/boardkeeper/boardkeeper/internal/sources"
	"github.com/boardkeeper/boardkeeper/internal/store"
	"github.com/boardkeeper/boardkeeper/internal/wipe"
)

// Server wires HTTP handlers to the source service and the wipe engine.
type Server struct {
	router  chi.Router
	sources *sources.Service
	engine  *wipe.Engine
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sourceSvc *sources.Service,
	engine *wipe.Engine,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sources: sourceSvc,
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.listSources)
			r.Post("/", s.registerSource)
			r.Post("/resolve", s.resolvePreview)
			r.Post("/{source_id}/resolve", s.reResolveSource)
		})
		r.Post("/wipe", s.wipePage)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

type registerSourceRequest struct {
	URL          string `json:"url"`
	DeclaredType string `json:"declared_type"`
	Pattern      string `json:"pattern"`
	ScheduleID   string `json:"schedule_id"`
}

func (s *Server) registerSource(w http.ResponseWriter, r *http.Request) {
	var req registerSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	src, created, err := s.sources.Register(r.Context(), sources.RegisterInput{
		URL:          req.URL,
		DeclaredType: req.DeclaredType,
		Pattern:      req.Pattern,
		ScheduleID:   req.ScheduleID,
	})
	if err != nil {
		if errors.Is(err, sources.ErrEmptyURL) {
			writeError(w, s.logger, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, s.logger, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, s.logger, status, map[string]any{"source": src, "created": created})
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	srcs, err := s.sources.List(r.Context())
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"sources": srcs})
}

type resolvePreviewRequest struct {
	URL          string `json:"url"`
	DeclaredType string `json:"declared_type"`
}

func (s *Server) resolvePreview(w http.ResponseWriter, r *http.Request) {
	var req resolvePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, s.logger, http.StatusBadRequest, "url required")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, s.sources.Resolve(req.URL, req.DeclaredType))
}

func (s *Server) reResolveSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := uuid.Parse(chi.URLParam(r, "source_id"))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid source id")
		return
	}
	src, err := s.sources.ReResolve(r.Context(), sourceID)
	if err != nil {
		writeError(w, s.logger, http.StatusNotFound, "source not found")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"source": src})
}

type wipeRequest struct {
	Domain    string `json:"domain"`
	Prefix    string `json:"prefix"`
	Table     string `json:"table"`
	DryRun    bool   `json:"dry_run"`
	BatchSize *int   `json:"batch_size"`
	Cursor    string `json:"cursor"`
}

func (s *Server) wipePage(w http.ResponseWriter, r *http.Request) {
	var req wipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	table := store.Table(req.Table)
	if !table.Valid() {
		writeError(w, s.logger, http.StatusBadRequest, "unknown table")
		return
	}
	batch := s.cfg.Wipe.DefaultBatchSize
	if batch == 0 {
		batch = wipe.DefaultBatchSize
	}
	if req.BatchSize != nil {
		batch = *req.BatchSize
	}
	res, err := s.engine.WipePage(r.Context(), wipe.Request{
		Domain:    req.Domain,
		Prefix:    req.Prefix,
		Table:     table,
		DryRun:    req.DryRun,
		BatchSize: batch,
		Cursor:    req.Cursor,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, wipe.ErrEmptyDomain) || errors.Is(err, wipe.ErrUnknownTable) {
			status = http.StatusBadRequest
		}
		writeError(w, s.logger, status, err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, res)
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, ww.status, elapsed)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, logger, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
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
				writeError(w, zap.NewNop(), http.StatusForbidden, "unauthorized")
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

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
