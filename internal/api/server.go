// Package api exposes the HTTP control surface for the engine.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// EngineControl is the engine's control side as the HTTP layer sees it.
type EngineControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() engine.StatusSnapshot
	Input(ev engine.InputEvent) error
	LatestFrame() []byte
}

// Server wires HTTP handlers to the engine.
type Server struct {
	router chi.Router
	eng    EngineControl
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. registry backs
// the /metrics endpoint.
func NewServer(eng EngineControl, registry *prometheus.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{eng: eng, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/v1/engine", func(r chi.Router) {
		r.Post("/start", s.startEngine)
		r.Post("/stop", s.stopEngine)
		r.Get("/status", s.status)
		r.Post("/input", s.input)
		r.Get("/frame", s.frame)
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startEngine(w http.ResponseWriter, r *http.Request) {
	// The run context must outlive the request.
	if err := s.eng.Start(context.WithoutCancel(r.Context())); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "starting"})
}

func (s *Server) stopEngine(w http.ResponseWriter, r *http.Request) {
	stopCtx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	if err := s.eng.Stop(stopCtx); err != nil {
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.eng.Status())
}

func (s *Server) input(w http.ResponseWriter, r *http.Request) {
	var ev engine.InputEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if ev.Type == "" {
		s.writeError(w, http.StatusBadRequest, "input type is required")
		return
	}
	if err := s.eng.Input(ev); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) frame(w http.ResponseWriter, _ *http.Request) {
	frame := s.eng.LatestFrame()
	if len(frame) == 0 {
		s.writeError(w, http.StatusNotFound, "no frame available")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	if _, err := w.Write(frame); err != nil {
		s.logger.Warn("frame write failed", zap.Error(err))
	}
}

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
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
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

type requestIDKey struct{}

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
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
