package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homelabcmd/homelabcmd/pkg/gateway/middleware"
	"github.com/homelabcmd/homelabcmd/pkg/infra/ratelimit"
)

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	EnableCORS      bool
	CORSConfig      middleware.CORSConfig
	EnableAuth      bool
	AuthConfig      middleware.AuthConfig
	RateLimiter     ratelimit.Limiter
	Logger          *slog.Logger
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":9090",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		EnableCORS:      false,
		CORSConfig:      middleware.DefaultCORSConfig(),
		EnableAuth:      false,
		AuthConfig:      middleware.DefaultAuthConfig(),
	}
}

type Server struct {
	handlers *Handlers
	config   ServerConfig
	http     *http.Server
	registry *prometheus.Registry
	metrics  *Metrics
	logger   *slog.Logger
}

func NewServer(handlers *Handlers, registry *prometheus.Registry, config ServerConfig) *Server {
	if config.Addr == "" {
		config.Addr = ":9090"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 60 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		handlers: handlers,
		config:   config,
		registry: registry,
		metrics:  handlers.metrics,
		logger:   config.Logger,
	}
}

func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	if s.logger != nil {
		s.logger.Info("starting HTTP server", slog.String("addr", s.config.Addr))
	}

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Handler returns the full API handler with the middleware chain applied,
// mounted the way Start mounts it. Useful for embedding and tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", s.buildHandler()))
	mux.HandleFunc("/health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) buildHandler() http.Handler {
	rt := newRouter()
	s.handlers.register(rt)

	var handler http.Handler = rt

	if s.metrics != nil {
		handler = s.instrument(handler)
	}

	authCfg := s.config.AuthConfig
	authCfg.Enabled = s.config.EnableAuth
	authCfg.Logger = s.logger
	handler = middleware.Auth(authCfg)(handler)

	if s.config.RateLimiter != nil {
		handler = middleware.RateLimit(s.config.RateLimiter)(handler)
	}

	// CORS must run before Auth so that browser preflight OPTIONS requests
	// are answered without requiring an API key.
	if s.config.EnableCORS {
		handler = middleware.CORS(s.config.CORSConfig)(handler)
	}

	// Logging and Recovery are outermost so they observe every request,
	// including those rejected by Auth, and catch panics from any middleware.
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}

// instrument records request latency into the duration histogram.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RequestDuration.
			WithLabelValues(r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	if s.logger != nil {
		s.logger.Info("stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
