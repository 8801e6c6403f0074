package devserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/wasmfetch/component"
	"github.com/kbukum/wasmfetch/devserver/middleware"
	"github.com/kbukum/wasmfetch/logger"
	"github.com/kbukum/wasmfetch/observability"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// Server is the fixture server: a gin engine serving the fixture routes
// and, optionally, a static directory holding the wasm bundle.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     Config
	log        *logger.Logger

	name    string
	checker HealthChecker
	metrics *observability.ServerMetrics
	tracer  trace.Tracer
	prop    propagation.TextMapPropagator

	mu       sync.Mutex
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithServiceName sets the name reported by /health.
func WithServiceName(name string) Option {
	return func(s *Server) { s.name = name }
}

// WithHealthChecker makes /health report the given component statuses.
func WithHealthChecker(checker HealthChecker) Option {
	return func(s *Server) { s.checker = checker }
}

// WithMetrics records server metrics.
func WithMetrics(m *observability.ServerMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracer sets the tracer for server spans. Defaults to the global
// provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithPropagator sets the propagator used to continue incoming traces.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(s *Server) { s.prop = p }
}

// New creates a server with the middleware stack and fixture routes
// installed. Call ApplyDefaults on cfg first if needed; Port 0 picks a
// free port.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bodyLimit, _ := parseSize(cfg.MaxBodySize)
	tlsConfig, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine: gin.New(),
		config: cfg,
		name:   "devserver",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.WithComponent("devserver")
	}
	if s.tracer == nil {
		s.tracer = observability.Tracer("github.com/kbukum/wasmfetch/devserver")
	}
	if s.prop == nil {
		s.prop = observability.Propagator()
	}

	s.engine.Use(middleware.Recovery(s.log))
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Tracing(s.tracer, s.prop))
	s.engine.Use(middleware.CORS(cfg.CORS))
	if s.metrics != nil {
		s.engine.Use(middleware.Metrics(s.metrics))
	}
	s.engine.Use(middleware.RequestLogger(s.log))
	if cfg.RateLimit != nil {
		s.engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:   *cfg.RateLimit,
			SkipPaths: []string{"/health"},
		}))
	}
	s.engine.Use(middleware.BodySizeLimit(bodyLimit))
	s.registerRoutes()

	h2s := &http2.Server{IdleTimeout: cfg.IdleTimeout}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	if tlsConfig != nil {
		s.httpServer.Handler = s.engine
		s.httpServer.TLSConfig = tlsConfig
		if err := http2.ConfigureServer(s.httpServer, h2s); err != nil {
			return nil, fmt.Errorf("devserver http2: %w", err)
		}
	} else {
		// h2c lets HTTP/2 clients talk to the fixtures without TLS.
		s.httpServer.Handler = h2c.NewHandler(s.engine, h2s)
	}
	return s, nil
}

// Handler returns the root handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Engine returns the gin engine for extra routes.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start binds the port and serves in a goroutine. It returns once the
// listener is bound.
func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("devserver failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	scheme := "http"
	if s.httpServer.TLSConfig != nil {
		scheme = "https"
		listener = tls.NewListener(listener, s.httpServer.TLSConfig)
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("Fixture server started", logger.Fields(
		"addr", listener.Addr().String(),
		"scheme", scheme,
		"static", s.config.StaticDir,
	))
	return nil
}

// Stop shuts the server down, waiting up to the shutdown timeout for open
// streams.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Server shutdown error", logger.Fields(logger.FieldError, err.Error()))
		return fmt.Errorf("devserver shutdown: %w", err)
	}
	s.log.Info("Fixture server shut down")
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

func (s *Server) clampDelay(d time.Duration) time.Duration {
	return min(max(d, 0), s.config.MaxDelay)
}
