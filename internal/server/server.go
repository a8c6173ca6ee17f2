// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pixelmint/pixelmint/internal/alert"
	"github.com/pixelmint/pixelmint/internal/billing"
	"github.com/pixelmint/pixelmint/internal/circuitbreaker"
	"github.com/pixelmint/pixelmint/internal/config"
	"github.com/pixelmint/pixelmint/internal/dispatch"
	"github.com/pixelmint/pixelmint/internal/idgen"
	"github.com/pixelmint/pixelmint/internal/ledger"
	"github.com/pixelmint/pixelmint/internal/logging"
	"github.com/pixelmint/pixelmint/internal/metrics"
	"github.com/pixelmint/pixelmint/internal/notify"
	"github.com/pixelmint/pixelmint/internal/plan"
	"github.com/pixelmint/pixelmint/internal/provider"
	"github.com/pixelmint/pixelmint/internal/realtime"
	"github.com/pixelmint/pixelmint/internal/tenant"
	"github.com/pixelmint/pixelmint/internal/traces"
	"github.com/pixelmint/pixelmint/internal/usage"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg             *config.Config
	tenants         *tenant.Directory
	ledger          *ledger.Service
	recorder        *usage.Recorder
	dispatcher      *dispatch.Service
	throttler       *alert.Throttler
	billing         *billing.Service
	realtimeHub     *realtime.Hub
	provider        provider.Client
	db              *sql.DB // nil if using in-memory
	router          *gin.Engine
	httpSrv         *http.Server
	logger          *slog.Logger
	shutdownTracing func(context.Context) error
	cancelRunCtx    context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithProviderClient sets a custom provider client (for testing)
func WithProviderClient(c provider.Client) Option {
	return func(s *Server) {
		s.provider = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set provider/logger)
	for _, opt := range opts {
		opt(s)
	}

	defaultTier := plan.Tier(cfg.DefaultTier)
	if !plan.Valid(defaultTier) {
		return nil, fmt.Errorf("unknown DEFAULT_TIER %q", cfg.DefaultTier)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		ledgerStore ledger.Store
		usageStore  usage.Store
		alertState  alert.StateStore
		tenantStore tenant.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		ledgerStore = ledger.NewPostgresStore(db)
		usageStore = usage.NewPostgresStore(db)
		alertState = alert.NewPostgresStateStore(db)
		tenantStore = tenant.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		ledgerStore = ledger.NewMemoryStore()
		usageStore = usage.NewMemoryStore()
		alertState = alert.NewMemoryStateStore()
		tenantStore = tenant.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.tenants = tenant.NewDirectory(tenantStore, defaultTier)
	s.ledger = ledger.NewService(ledgerStore, defaultTier, s.logger)

	// Realtime hub for the usage stream; the recorder publishes into it
	s.realtimeHub = realtime.NewHub(s.logger)
	s.recorder = usage.NewRecorder(usageStore, s.realtimeHub, s.logger)

	// Alerting: real email sender when configured, log-only otherwise
	var sender notify.Sender
	if cfg.EmailAPIURL != "" {
		sender = notify.NewHTTPSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
		s.logger.Info("email alerts enabled", "from", cfg.EmailFrom)
	} else {
		sender = notify.NewLogSender(s.logger)
		s.logger.Info("email alerts in log-only mode")
	}
	s.throttler = alert.NewThrottler(alertState, s.tenants, sender, cfg.AlertCooldown, s.logger).
		WithPublisher(s.realtimeHub)

	// Provider client if not injected
	if s.provider == nil {
		s.provider = provider.NewHTTPClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	}

	breaker := circuitbreaker.New(5, 30*time.Second)
	s.dispatcher = dispatch.NewService(
		s.tenants,
		s.ledger,
		s.recorder,
		s.provider,
		breaker,
		s.throttler,
		cfg.PrimaryModel,
		cfg.FallbackModel,
		s.logger,
	)
	s.logger.Info("dispatcher configured",
		"primary", cfg.PrimaryModel, "fallback", cfg.FallbackModel)

	// Billing: Stripe when configured, in-memory recording otherwise
	var reporter billing.Reporter
	if cfg.StripeAPIKey != "" {
		reporter = billing.NewStripeReporter(cfg.StripeAPIKey)
		s.logger.Info("overage billing enabled (stripe)")
	} else {
		reporter = billing.NewMemoryReporter()
		s.logger.Info("overage billing in record-only mode")
	}
	s.billing = billing.NewService(tenantStore, s.ledger, reporter, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req_")
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for the live usage stream
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// Generation
	v1.POST("/generations", s.createGeneration)

	// Plans (public catalog)
	v1.GET("/plans", s.listPlans)

	// Tenants
	v1.POST("/tenants", s.createTenant)
	v1.GET("/tenants/:id", s.getTenant)
	v1.GET("/tenants/:id/stats", s.getTenantStats)
	v1.GET("/tenants/:id/usage", s.listTenantUsage)
	v1.POST("/tenants/:id/credits", s.purchaseCredits)
	v1.POST("/tenants/:id/tier", s.changeTier)

	// Admin
	v1.POST("/admin/billing/sweep", s.sweepOverages)
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Pixelmint",
		"description": "Credit-metered AI image generation gateway",
		"version":     "0.1.0",
	})
}

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing
	shutdownTracing, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTracing = shutdownTracing
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      90 * time.Second, // generation calls are slow
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start DB stats collector
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Flush traces
	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
