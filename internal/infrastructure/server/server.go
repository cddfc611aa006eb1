package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/consolechannel/internal/api/http"
	"github.com/GriffinCanCode/consolechannel/internal/api/middleware"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/config"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/consolechannel/internal/terminal"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	handler    http.Handler
	httpServer *http.Server
	manager    *terminal.Manager
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	reaperCtx  context.Context
	stopReaper context.CancelFunc
}

// Option configures a Server.
type Option func(*options)

type options struct {
	starter terminal.Starter
	logger  *logging.Logger
}

// WithStarter replaces the starter derived from the terminal configuration.
func WithStarter(starter terminal.Starter) Option {
	return func(o *options) {
		o.starter = starter
	}
}

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.FromConfig(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	basePath := normalizeBasePath(cfg.Server.BasePath)
	logger.Info("Initializing terminal server",
		zap.String("port", cfg.Server.Port),
		zap.String("base_path", basePath),
	)

	metrics := monitoring.NewMetrics()

	starter := o.starter
	if starter == nil {
		starter = newStarter(cfg.Terminal, logger)
	}
	manager := terminal.NewManager(starter, terminal.Config{
		BufferSize:  cfg.Terminal.BufferSize,
		IdleTimeout: cfg.Terminal.IdleTimeout,
		MaxSessions: cfg.Terminal.MaxSessions,
	},
		terminal.WithLogger(logger.Named("terminal")),
		terminal.WithRecorder(metrics),
	)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSWithOrigins(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled && cfg.RateLimit.GlobalRequestsPerSecond > 0 {
		logger.Info("Global rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.GlobalRequestsPerSecond),
		)
		router.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.GlobalRequestsPerSecond,
			Burst:             cfg.RateLimit.GlobalRequestsPerSecond,
		}))
	}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(manager,
		apihttp.WithMetrics(metrics),
		apihttp.WithLogger(logger.Named("http")),
	)

	router.GET("/health", handlers.Health)

	api := router.Group(basePath)
	if cfg.Auth.Enabled() {
		logger.Info("Basic auth enabled", zap.String("user", cfg.Auth.User))
		auth := middleware.BasicAuth(middleware.AuthConfig{
			User:         cfg.Auth.User,
			PasswordHash: cfg.Auth.PasswordHash,
		})
		api.Use(auth)
		router.GET("/metrics", auth, gin.WrapH(metrics.Handler()))
	} else {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	handlers.Register(api)

	if cfg.Server.StaticDir != "" {
		logger.Info("Serving static files", zap.String("dir", cfg.Server.StaticDir))
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Server.StaticDir))))
	}

	logger.Info("Server initialized successfully")

	handler := gzhttp.GzipHandler(router)
	reaperCtx, stopReaper := context.WithCancel(context.Background())

	httpServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: handler,
	}

	return &Server{
		router:     router,
		handler:    handler,
		httpServer: httpServer,
		manager:    manager,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		reaperCtx:  reaperCtx,
		stopReaper: stopReaper,
	}, nil
}

// Handler returns the compressed root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Manager returns the terminal session manager.
func (s *Server) Manager() *terminal.Manager {
	return s.manager
}

// Run starts the idle reaper and serves HTTP until Shutdown.
func (s *Server) Run() error {
	go s.manager.Run(s.reaperCtx)

	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done and kills every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.stopReaper()

	// Pending long-polls hold connections; killing sessions ends them.
	s.manager.Close()

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(shutdownErr))
		err = fmt.Errorf("failed to shut down HTTP server: %w", shutdownErr)
	}

	_ = s.logger.Sync()
	return err
}

func newStarter(cfg config.TerminalConfig, logger *logging.Logger) terminal.Starter {
	if len(cfg.Permitted) > 0 {
		logger.Info("Sessions run permitted menu commands", zap.Strings("permitted", cfg.Permitted))
		return &terminal.MenuStarter{Permitted: cfg.Permitted}
	}
	logger.Info("Sessions run a fixed command", zap.String("command", cfg.Command))
	return terminal.NewCommandStarter(cfg.Command)
}

// normalizeBasePath makes path absolute with a trailing slash so operation
// names can be appended.
func normalizeBasePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}
