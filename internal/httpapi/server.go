// Package httpapi implements the observability surface (spec §4.6,
// added): JSON status/service listings, log query/tail (plain, SSE, and
// WebSocket), and Prometheus metrics. Besides these read routes it has
// POST routes that start, stop or restart a service and shut the daemon
// down; they call the controller directly, not the admin line protocol.
package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config holds configuration for the observability HTTP server.
type Config struct {
	Host        string
	Port        int
	AuthEnabled bool
	Token       string
}

// Server is the observability HTTP server.
type Server struct {
	config     Config
	router     *chi.Mux
	httpServer *http.Server
	handlers   *Handlers
	mu         sync.Mutex
}

func NewServer(config Config, handlers *Handlers) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware())

	s := &Server{config: config, router: r, handlers: handlers}
	s.registerRoutes()
	return s
}

func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if isLocalhostOrigin(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLocalhostOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	prefixes := []string{
		"http://localhost", "https://localhost",
		"http://127.0.0.1", "https://127.0.0.1",
		"http://[::1]", "https://[::1]",
	}
	for _, prefix := range prefixes {
		if origin == prefix || strings.HasPrefix(origin, prefix+":") {
			return true
		}
	}
	return false
}

func authMiddleware(authEnabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authEnabled {
				next.ServeHTTP(w, r)
				return
			}
			authHeader := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if authHeader == "" || !strings.HasPrefix(authHeader, prefix) {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing or malformed authorization header", Code: "UNAUTHORIZED"})
				return
			}
			provided := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: "UNAUTHORIZED"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.router.Get("/metrics", s.handlers.Metrics)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware(s.config.AuthEnabled, s.config.Token))

		r.Get("/status", s.handlers.GetStatus)

		r.Get("/services", s.handlers.GetServices)
		r.Get("/services/{name}", s.handlers.GetService)
		r.Post("/services/{name}/start", s.handlers.StartService)
		r.Post("/services/{name}/stop", s.handlers.StopService)
		r.Post("/services/{name}/restart", s.handlers.RestartService)

		r.Get("/logs", s.handlers.GetLogs)
		r.Get("/logs/stream", s.handlers.StreamLogs)
		r.Get("/logs/ws", s.handlers.StreamLogsWS)

		r.Post("/shutdown", s.handlers.Shutdown)
	})
}

// Serve is the suture.Service-shaped entrypoint (spec §4.7): it blocks
// until ctx is canceled, then gracefully drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // disabled for SSE/WS
		IdleTimeout:  60 * time.Second,
	}
	server := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Addr returns the server's configured address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
