package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotlift/internal/config"
	"github.com/sawpanic/spotlift/internal/metrics"
	"github.com/sawpanic/spotlift/internal/persistence"
	"github.com/sawpanic/spotlift/internal/pipeline"
)

type ctxKey int

const requestIDKey ctxKey = iota

// Deps are the collaborators the API serves
type Deps struct {
	Runner  *pipeline.Runner
	Runs    persistence.RunsRepo
	Metrics *metrics.Registry
	DB      persistence.RepositoryHealth // optional
	Version string
}

// Server represents the HTTP API server
type Server struct {
	router  *mux.Router
	server  *http.Server
	config  config.HTTPConfig
	deps    Deps
	feed    *Feed
	limiter *Limiter
}

// NewServer builds the router and registers the feed with the runner
func NewServer(cfg config.HTTPConfig, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.Runs == nil {
		deps.Runs = persistence.NewMemoryRepo(100)
	}

	s := &Server{
		router: mux.NewRouter(),
		config: cfg,
		deps:   deps,
		feed:   NewFeed(),
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = NewLimiter(cfg.RateLimitRPS, cfg.RateBurst)
	}
	deps.Runner.Subscribe(s.feed.Broadcast)

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	if s.limiter != nil {
		s.router.Use(s.rateLimitMiddleware)
	}

	s.router.Handle("/health", NewHealthHandler(s.deps.DB, s.deps.Version)).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	s.router.Handle("/v1/feed", s.feed).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(handlers.CompressHandler)
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/attribution", s.handleAttribution).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", errors.New("endpoint not found"))
	})
}

// Handler returns the full handler chain, panics recovered
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(s.router)
}

// Start serves until Shutdown
func (s *Server) Start() error {
	log.Info().Str("component", "http").Str("addr", s.Address()).Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and closes feed connections
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Str("component", "http").Msg("Shutting down HTTP server")
	s.feed.Close()
	return s.server.Shutdown(ctx)
}

// Address returns host:port
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs all requests with structured fields
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("component", "http").
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Request served")
	})
}

// timeoutMiddleware enforces request timeouts on API calls
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware rejects clients exceeding their token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets JSON content type for API responses
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket feed take over the connection
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}
