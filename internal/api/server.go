// Package api provides the HTTP server and handlers for the code-reader
// service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codereader/codereader/internal/apperrors"
	"github.com/codereader/codereader/pkg/config"
)

// Server is the HTTP API server
type Server struct {
	cfg        config.ServerConfig
	handlers   *Handlers
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the API server around the wired handlers
func NewServer(cfg config.ServerConfig, handlers *Handlers, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, handlers: handlers, logger: logger}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handlers.Health)
	mux.HandleFunc("POST /task", s.handlers.CreateTask)
	mux.HandleFunc("GET /task/{jobId}", s.handlers.GetTask)
	mux.HandleFunc("GET /task/by-identifier/{identifier}", s.handlers.GetTaskByIdentifier)
	mux.HandleFunc("POST /process", s.handlers.Process)
	mux.HandleFunc("POST /process/stop", s.handlers.StopProcess)
	mux.HandleFunc("POST /search_code", s.handlers.SearchCode)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ShutdownSec)*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- response envelopes ---

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Errors []errorObject `json:"errors"`
}

type errorObject struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataEnvelope{Data: data})
}

// writeError serializes a taxonomy error into the JSON:API error envelope.
// Internal details stay in the logs, never in the body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	ae := apperrors.As(err)
	if ae.Code == apperrors.CodeInternal || ae.Code == apperrors.CodeDatabase {
		logger.Error("request failed", "code", ae.Code, "error", err)
	}
	status := ae.HTTPStatus()
	writeJSON(w, status, errorEnvelope{Errors: []errorObject{{
		Status: fmt.Sprintf("%d", status),
		Code:   string(ae.Code),
		Title:  http.StatusText(status),
		Detail: ae.Message,
	}}})
}
