// Package httpapi is the thin request layer over the session manager. It
// stages uploads, maps request bodies onto typed configuration, and
// translates core errors to HTTP statuses; all semantics live below it.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bull/kb-server/internal/answer"
	"github.com/bull/kb-server/internal/document"
	"github.com/bull/kb-server/internal/ingest"
	"github.com/bull/kb-server/internal/session"
	"github.com/bull/kb-server/internal/storage"
)

// Server exposes the knowledge base operations over HTTP.
type Server struct {
	manager *session.Manager
	logger  *slog.Logger
}

// NewServer creates the HTTP surface over the given session manager.
func NewServer(manager *session.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{manager: manager, logger: logger}
}

// Handler returns the route mux. Mutating routes require a caller
// identity; credential validation happens upstream, the header is
// trusted here.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.Handle("POST /upload", s.requireCaller(http.HandlerFunc(s.handleUpload)))
	mux.Handle("POST /clear", s.requireCaller(http.HandlerFunc(s.handleClear)))
	return mux
}

// requireCaller ensures an authenticated caller identity accompanies
// mutating requests. The identity provider is an external collaborator;
// by the time a request reaches this server the X-Caller-ID header holds
// its verdict.
func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Caller-ID") == "" {
			writeError(w, http.StatusUnauthorized, "missing caller identity")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeCoreError maps core error kinds onto HTTP statuses.
func (s *Server) writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrUnsupportedFormat),
		errors.Is(err, ingest.ErrNoContent),
		errors.Is(err, session.ErrNotConfigured):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrModelMismatch),
		errors.Is(err, storage.ErrDimensionMismatch):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, answer.ErrGeneration),
		errors.Is(err, storage.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
