// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
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

	"github.com/walletscreen/walletscreen/internal/access"
	"github.com/walletscreen/walletscreen/internal/category"
	"github.com/walletscreen/walletscreen/internal/circuitbreaker"
	"github.com/walletscreen/walletscreen/internal/compliance"
	"github.com/walletscreen/walletscreen/internal/config"
	"github.com/walletscreen/walletscreen/internal/elliptic"
	"github.com/walletscreen/walletscreen/internal/health"
	"github.com/walletscreen/walletscreen/internal/identity"
	"github.com/walletscreen/walletscreen/internal/logging"
	"github.com/walletscreen/walletscreen/internal/metrics"
	"github.com/walletscreen/walletscreen/internal/ratelimit"
	"github.com/walletscreen/walletscreen/internal/realtime"
	"github.com/walletscreen/walletscreen/internal/screening"
	"github.com/walletscreen/walletscreen/internal/security"
	"github.com/walletscreen/walletscreen/internal/usage"
	"github.com/walletscreen/walletscreen/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	identities  *identity.Service
	ledger      *usage.Ledger
	gate        *access.Controller
	screener    *screening.Service
	analyzer    screening.Analyzer
	categories  *category.Registry
	checks      *health.Registry
	realtimeHub *realtime.Hub
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	cancelRun   context.CancelFunc // cancels background goroutines started in Run

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

// WithAnalyzer sets a custom wallet analyzer (for testing)
func WithAnalyzer(a screening.Analyzer) Option {
	return func(s *Server) {
		s.analyzer = a
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set analyzer/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var identityStore identity.Store
	var eventStore usage.EventStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		identityStore = identity.NewPostgresStore(db)
		eventStore = usage.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		identityStore = identity.NewMemoryStore()
		eventStore = usage.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.identities = identity.NewService(identityStore)
	s.ledger = usage.NewLedger(eventStore, s.identities, s.logger)
	s.gate = access.NewController(s.identities, s.ledger)

	// Bootstrap admin identity
	if cfg.AdminHandle != "" {
		if _, err := s.identities.EnsureAdmin(ctx, cfg.AdminHandle); err != nil {
			return nil, fmt.Errorf("bootstrap admin %s: %w", cfg.AdminHandle, err)
		}
		s.logger.Info("admin identity ensured", "handle", cfg.AdminHandle)
	}

	// Category reference data. A missing file degrades IDs to "Unknown"
	// rather than failing startup.
	registry, err := category.LoadCSV(cfg.CategoryCSVPath, cfg.HighRiskCategories)
	if err != nil {
		s.logger.Warn("category mapping unavailable, IDs will resolve to Unknown",
			"path", cfg.CategoryCSVPath,
			"error", err)
		registry = category.Empty()
	} else {
		s.logger.Info("category mapping loaded", "count", registry.Size())
	}
	s.categories = registry

	// Upstream analysis client (unless injected for tests)
	var breaker *circuitbreaker.Breaker
	if s.analyzer == nil {
		client, err := elliptic.NewClient(elliptic.Options{
			APIKey:     cfg.EllipticAPIKey,
			APISecret:  cfg.EllipticAPISecret,
			BaseURL:    cfg.EllipticURL,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryBaseDelay,
			Logger:     logging.Component(s.logger, "elliptic"),
		})
		if err != nil {
			return nil, fmt.Errorf("create analysis client: %w", err)
		}
		breaker = circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerOpenDuration)
		s.analyzer = elliptic.NewGuard(client, breaker)
	}

	evaluator := compliance.NewEvaluator(s.categories, compliance.Thresholds{
		RiskScoreThreshold:            cfg.RiskScoreThreshold,
		MaxHopDistance:                cfg.MaxHopDistance,
		GamblingHopLimit:              cfg.GamblingHopLimit,
		GamblingContributionThreshold: cfg.GamblingContributionThreshold,
		HighRiskCountries:             cfg.HighRiskCountries,
	})

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(logging.Component(s.logger, "realtime"))

	s.screener = screening.NewService(s.gate, s.analyzer, evaluator, s.ledger, s.realtimeHub, logging.Component(s.logger, "screening"))

	// Subsystem health checks
	s.checks = health.NewRegistry()
	if s.db != nil {
		db := s.db
		s.checks.Register("database", func(ctx context.Context) error {
			return db.PingContext(ctx)
		})
	}
	s.checks.Register("categories", func(ctx context.Context) error {
		if s.categories.Size() == 0 {
			return errors.New("no category mapping loaded")
		}
		return nil
	})
	if breaker != nil {
		s.checks.Register("upstream", func(ctx context.Context) error {
			if state := breaker.State(); state == circuitbreaker.StateOpen {
				return errors.New("circuit open")
			}
			return nil
		})
	}

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

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

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
			requestID = generateRequestID()
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

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time decision streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	v1.Use(validation.HandleParamMiddleware())

	// Screening
	v1.POST("/screenings", s.screenHandler)

	// Identity self-service (quota visibility)
	v1.GET("/identities/:handle/limits", s.limitsHandler)
	v1.GET("/identities/:handle/stats", s.statsHandler)

	// ADMIN ROUTES (require the admin shared secret)
	admin := v1.Group("/admin")
	admin.Use(s.adminAuthMiddleware())
	{
		admin.GET("/identities", s.listIdentitiesHandler)
		admin.POST("/identities", s.createIdentityHandler)
		admin.DELETE("/identities/:handle", s.deleteIdentityHandler)
		admin.PUT("/identities/:handle/limits", s.setLimitsHandler)
		admin.PUT("/identities/:handle/status", s.setStatusHandler)
		admin.GET("/identities/:handle/usage", s.identityUsageHandler)
		admin.GET("/usage", s.allUsageHandler)
		admin.GET("/errors", s.recentErrorsHandler)
		admin.GET("/realtime/stats", s.realtimeStatsHandler)
	}
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
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
		"name":        "walletscreen",
		"version":     "0.1.0",
		"description": "Wallet risk screening with per-identity usage quotas",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
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

	// Sample DB pool stats into Prometheus gauges
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

	// Cancel the context for background goroutines (hub, collectors)
	if s.cancelRun != nil {
		s.cancelRun()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
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

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
