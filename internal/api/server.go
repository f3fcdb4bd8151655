// Package api exposes the HTTP interface for the tracker service.
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

	"github.com/applytrail/tracker/internal/app"
	"github.com/applytrail/tracker/internal/config"
	"github.com/applytrail/tracker/internal/metrics"
	"github.com/applytrail/tracker/internal/tracker"
)

// Readiness reports whether downstream dependencies are reachable.
type Readiness func(ctx context.Context) error

// Server wires HTTP handlers to the application service.
type Server struct {
	router  chi.Router
	service *app.Service
	ready   Readiness
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The readiness
// check may be nil, in which case /readyz always succeeds.
func NewServer(service *app.Service, ready Readiness, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		ready:   ready,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(5 * time.Minute))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/applications", func(r chi.Router) {
			r.Get("/", s.listApplications)
			r.Post("/", s.addApplication)
		})
		r.Route("/cycles", func(r chi.Router) {
			r.Post("/scrape", s.triggerScrape)
			r.Post("/reconcile", s.triggerReconcile)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// addApplicationRequest carries no status field on purpose: manually added
// records always enter as Pending, and Confirmed is reachable only through
// reconciliation.
type addApplicationRequest struct {
	JobURL   string `json:"job_url"`
	Company  string `json:"company"`
	Position string `json:"position"`
	Platform string `json:"platform"`
	Notes    string `json:"notes"`
}

func (req addApplicationRequest) validate() error {
	switch {
	case req.JobURL == "":
		return errors.New("job_url required")
	case req.Company == "":
		return errors.New("company required")
	case req.Position == "":
		return errors.New("position required")
	case req.Platform == "":
		return errors.New("platform required")
	}
	return nil
}

func (s *Server) addApplication(w http.ResponseWriter, r *http.Request) {
	var req addApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec := tracker.ApplicationRecord{
		Key:      req.JobURL,
		Company:  req.Company,
		Position: req.Position,
		Platform: req.Platform,
		Notes:    req.Notes,
	}
	inserted, err := s.service.AddApplication(r.Context(), rec)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	s.writeJSON(w, status, map[string]any{"job_url": req.JobURL, "inserted": inserted})
}

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.ListApplications(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"applications": recs,
		"count":        len(recs),
	})
}

func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.RunScrapeCycle(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) triggerReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.RunReconcileCycle(r.Context())
	if err != nil {
		if errors.Is(err, app.ErrReconcileDisabled) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
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

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		metrics.ObserveHTTPRequest(r.Method, routePattern, ww.status, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", elapsed),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
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
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
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

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
