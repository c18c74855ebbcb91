// Package adminapi exposes a small read-only HTTP API over the
// forwarder's state: the active route and the per-target scores of the
// most recent probe cycle.
package adminapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"optipath/logger"
	"optipath/pkg/selector"
	fwd "optipath/server"
)

// Server serves the admin endpoints.
type Server struct {
	addr     string
	apiKey   string
	routes   *selector.State
	selector *selector.Selector
	health   *fwd.BackendHealth
	server   *http.Server
}

// ServerOptions holds configuration options for the admin API server.
type ServerOptions struct {
	Addr     string
	APIKey   string
	Routes   *selector.State
	Selector *selector.Selector
	Health   *fwd.BackendHealth
}

func New(options ServerOptions) *Server {
	return &Server{
		addr:     options.Addr,
		apiKey:   options.APIKey,
		routes:   options.Routes,
		selector: options.Selector,
		health:   options.Health,
	}
}

// Start serves until ctx is cancelled. Server failures other than a
// context-driven shutdown are reported on errChan.
func (s *Server) Start(ctx context.Context, errChan chan<- error) {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.setupRoutes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin API shutdown failed", "error", err)
		}
	}()

	logger.Info("admin API listening", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- err
	}
}

func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.authMiddleware)
	v1.HandleFunc("/route", s.handleRoute).Methods("GET")
	v1.HandleFunc("/targets", s.handleTargets).Methods("GET")
	v1.HandleFunc("/backends", s.handleBackends).Methods("GET")

	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("admin API request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

// authMiddleware enforces bearer authentication when an API key is
// configured; without one the endpoints are open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			s.writeError(w, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.apiKey)) != 1 {
			s.writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type routeResponse struct {
	Target     string    `json:"target"`
	Addr       string    `json:"addr"`
	ScoreMs    int64     `json:"score_ms"`
	Failures   int       `json:"failures"`
	Generation uint64    `json:"generation"`
	DecidedAt  time.Time `json:"decided_at"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":         "ok",
		"route_selected": s.routes.Current() != nil,
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	route := s.routes.Current()
	if route == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no route selected yet")
		return
	}
	s.writeJSON(w, http.StatusOK, routeResponse{
		Target:     route.Name,
		Addr:       route.Addr,
		ScoreMs:    route.Score.Value.Milliseconds(),
		Failures:   route.Score.Failures,
		Generation: route.Generation,
		DecidedAt:  route.DecidedAt,
	})
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	scores, at := s.selector.LastCycle()
	if len(scores) == 0 {
		s.writeError(w, http.StatusServiceUnavailable, "no probe cycle completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"completed_at": at,
		"targets":      scores,
	})
}

// handleBackends reports outbound dial health per target. This is
// observational only; selection never consults it.
func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"backends": []fwd.BackendStatus{}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"backends": s.health.Snapshot()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("admin API response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
