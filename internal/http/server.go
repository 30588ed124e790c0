package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/tendant/wirekit/internal/metrics"
)

// Server is the wirekit HTTP server: ops endpoints plus mounted APIs.
type Server struct {
	router *chi.Mux
	server *http.Server
	health *HealthHandler
	logger *slog.Logger

	cors    *CORSConfig
	headers *SecurityHeadersConfig
	checks  []ReadinessCheck
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORS enables CORS for the given configuration.
func WithCORS(config *CORSConfig) Option {
	return func(s *Server) {
		s.cors = config
	}
}

// WithSecurityHeaders overrides the default security headers.
func WithSecurityHeaders(config *SecurityHeadersConfig) Option {
	return func(s *Server) {
		s.headers = config
	}
}

// WithReadinessCheck adds a check run by /readyz.
func WithReadinessCheck(name string, check func(context.Context) error) Option {
	return func(s *Server) {
		s.checks = append(s.checks, ReadinessCheck{Name: name, Check: check})
	}
}

// NewServer creates a new HTTP server with default middleware.
func NewServer(addr string, opts ...Option) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:  r,
		logger:  slog.Default(),
		headers: DefaultSecurityHeadersConfig(),
	}

	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(s.logRequests)
	r.Use(SecurityHeadersMiddleware(s.headers))
	if s.cors != nil {
		r.Use(CORSMiddleware(s.cors))
	}

	s.health = NewHealthHandler(s.checks...)
	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// MountAPI serves h at path. A positive perMinute limits each client IP.
func (s *Server) MountAPI(path string, h http.Handler, perMinute int) {
	metrics.RegisterPath(path)

	if perMinute > 0 {
		limiter := httprate.Limit(perMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				metrics.RecordRateLimitExceeded(path)
				s.logger.Warn("rate limit exceeded", "path", path, "remote_addr", r.RemoteAddr)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
			}),
		)
		h = limiter(h)
	}
	s.router.Handle(path, h)
}

// Router returns the chi router for adding routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Health returns the health handler, e.g. to mark the server not ready
// while draining.
func (s *Server) Health() *HealthHandler {
	return s.health
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.health.SetReady(false)
	return s.server.Shutdown(ctx)
}
