// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/subtle"
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

	"github.com/kyvernlabs/shield/internal/analyzer"
	"github.com/kyvernlabs/shield/internal/api"
	"github.com/kyvernlabs/shield/internal/blacklist"
	"github.com/kyvernlabs/shield/internal/breaker"
	"github.com/kyvernlabs/shield/internal/chain"
	"github.com/kyvernlabs/shield/internal/config"
	"github.com/kyvernlabs/shield/internal/health"
	"github.com/kyvernlabs/shield/internal/idgen"
	"github.com/kyvernlabs/shield/internal/logging"
	"github.com/kyvernlabs/shield/internal/metrics"
	"github.com/kyvernlabs/shield/internal/patterns"
	"github.com/kyvernlabs/shield/internal/ratelimit"
	"github.com/kyvernlabs/shield/internal/realtime"
	"github.com/kyvernlabs/shield/internal/security"
	"github.com/kyvernlabs/shield/internal/trust"
	"github.com/kyvernlabs/shield/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	blacklistStore blacklist.Store
	blacklistCache *blacklist.Cache
	trustStore     trust.Store
	trustRegistry  *trust.Registry
	breaker        *breaker.Breaker
	auditStore     analyzer.AuditStore
	pipeline       *analyzer.Pipeline
	semantic       analyzer.Semantic
	hub            *realtime.Hub
	rateLimiter    *ratelimit.Limiter
	checks         *health.Registry
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

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

// WithSemantic sets a custom semantic analyzer (for testing)
func WithSemantic(sem analyzer.Semantic) Option {
	return func(s *Server) {
		s.semantic = sem
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set semantic/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
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
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		blStore := blacklist.NewPostgresStore(db)
		if err := blStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate blacklist store: %w", err)
		}
		s.blacklistStore = blStore

		trStore := trust.NewPostgresStore(db)
		if err := trStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate trust store: %w", err)
		}
		s.trustStore = trStore

		brStore := breaker.NewPostgresStore(db)
		if err := brStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate breaker store: %w", err)
		}
		s.breaker = breaker.New(brStore, breakerDefaults(cfg), s.logger)

		auditStore := analyzer.NewPostgresAuditStore(db)
		if err := auditStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate audit store: %w", err)
		}
		s.auditStore = auditStore
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.blacklistStore = blacklist.NewMemoryStore(blacklist.SeedEntries()...)
		s.trustStore = trust.NewMemoryStore(trust.DefaultDomains()...)
		s.breaker = breaker.New(breaker.NewMemoryStore(), breakerDefaults(cfg), s.logger)
		s.auditStore = analyzer.NewMemoryAuditStore()
	}

	// Blacklist cache and trust registry serve reads without touching storage.
	s.blacklistCache = blacklist.NewCache(s.blacklistStore, time.Minute, s.logger)
	if err := s.blacklistCache.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load blacklist: %w", err)
	}
	s.trustRegistry = trust.NewRegistry(s.trustStore, time.Minute, s.logger)
	if err := s.trustRegistry.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load trusted domains: %w", err)
	}

	// Realtime hub for WebSocket alert streaming
	s.hub = realtime.NewHub(s.logger)
	s.breaker.OnTransition(func(agentID string, from, to chain.State) {
		s.hub.BroadcastBreakerTransition(agentID, from.String(), to.String())
	})

	// Semantic analyzer (LLM layer) unless injected
	if s.semantic == nil {
		if cfg.LLMAPIURL != "" && cfg.IsProduction() {
			if err := security.ValidateEndpointURL(cfg.LLMAPIURL); err != nil {
				return nil, fmt.Errorf("invalid LLM_API_URL: %w", err)
			}
		}
		s.semantic = analyzer.NewSemanticAnalyzer(analyzer.SemanticConfig{
			APIURL:    cfg.LLMAPIURL,
			APIKey:    cfg.LLMAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
			Timeout:   time.Duration(cfg.LLMTimeoutSecs) * time.Second,
		}, s.logger)
		if cfg.LLMAPIURL == "" {
			s.logger.Warn("LLM_API_URL not set, semantic layer reports unavailable (fail-closed)")
		}
	}

	library := patterns.DefaultLibrary()
	s.pipeline = analyzer.NewPipeline(
		analyzer.NewHeuristicFilter(s.blacklistCache, library, cfg.MaxTransactionValue),
		analyzer.NewSourceTrustDetector(s.trustRegistry, library),
		s.semantic,
		analyzer.NewDecisionEngine(cfg.AutoBlockThreshold, cfg.AutoAllowThreshold),
		s.breaker,
		s.auditStore,
		s.hub,
		s.logger,
	)

	s.registerHealthChecks()

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

// breakerDefaults maps service-wide config to breaker tunables. Per-agent
// overrides arrive with each analyze request.
func breakerDefaults(cfg *config.Config) breaker.Tunables {
	return breaker.Tunables{
		Threshold: cfg.AnomalyThreshold,
		Window:    time.Duration(cfg.TimeWindowSeconds) * time.Second,
		Cooldown:  time.Duration(cfg.CooldownSeconds) * time.Second,
	}
}

// chainConfig converts service limits to the on-chain account representation.
func chainConfig(cfg *config.Config) chain.Config {
	return chain.Config{
		MaxTransactionValue: chain.SOLToLamports(cfg.MaxTransactionValue),
		DailySpendLimit:     chain.SOLToLamports(cfg.DailySpendLimit),
		ApprovalThreshold:   chain.SOLToLamports(cfg.ApprovalThreshold),
		AnomalyThreshold:    uint8(cfg.AnomalyThreshold),
		TimeWindowSeconds:   cfg.TimeWindowSeconds,
		CooldownSeconds:     cfg.CooldownSeconds,
	}
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
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "An unexpected error occurred")
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(security.CORSMiddleware(origins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rlCfg)
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
			requestID = idgen.Hex(16)
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

// apiKeyMiddleware checks the X-API-Key header against the configured key.
// Registered only when API_KEY is set.
func (s *Server) apiKeyMiddleware() gin.HandlerFunc {
	key := []byte(s.cfg.APIKey)
	return func(c *gin.Context) {
		provided := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), key) != 1 {
			api.Error(c, http.StatusUnauthorized, api.CodeUnauthorized, "Missing or invalid API key")
			return
		}
		c.Next()
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

	// API info endpoints
	s.router.GET("/api", s.infoHandler)
	s.router.GET("/docs", s.docsRedirectHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	if s.cfg.APIKey != "" {
		v1.Use(s.apiKeyMiddleware())
	}

	// Analysis pipeline
	analyzer.NewHandler(s.pipeline).RegisterRoutes(v1)

	// Circuit breaker status and operator controls
	breaker.NewHandler(s.breaker, chainConfig(s.cfg)).RegisterRoutes(v1)

	// Blacklist management
	blacklist.NewHandler(s.blacklistStore, s.blacklistCache).RegisterRoutes(v1)

	// Trusted domain management
	trust.NewHandler(s.trustStore, s.trustRegistry).RegisterRoutes(v1)

	// On-chain account codec
	chain.NewHandler().RegisterRoutes(v1)

	// WebSocket for real-time alert streaming
	v1.GET("/alerts/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) registerHealthChecks() {
	if s.db != nil {
		s.checks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Healthy: false, Detail: err.Error()}
			}
			return health.Status{Healthy: true}
		})
	}

	s.checks.Register("blacklist", func(ctx context.Context) health.Status {
		snap := s.blacklistCache.Current()
		if snap == nil {
			return health.Status{Healthy: false, Detail: "not loaded"}
		}
		return health.Status{
			Healthy: true,
			Detail:  fmt.Sprintf("%d entries", snap.Size()),
		}
	})

	s.checks.Register("trusted_domains", func(ctx context.Context) health.Status {
		return health.Status{
			Healthy: true,
			Detail:  fmt.Sprintf("%d domains", s.trustRegistry.Size()),
		}
	})
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
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

func (s *Server) docsRedirectHandler(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, "https://github.com/kyvernlabs/shield")
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Shield",
		"description": "Transaction firewall for AI agents on Solana",
		"version":     "0.1.0",
		"chain":       "solana-devnet",
		"currency":    "SOL",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start background refresh of blacklist and trusted domains
	s.blacklistCache.Start(runCtx)
	s.trustRegistry.Start(runCtx)

	// Start realtime hub
	go s.hub.Run(runCtx)

	// DB pool stats for Prometheus
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

	// Cancel the context for all background goroutines (hub, refresh loops)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
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

	// Stop refresh loops
	s.blacklistCache.Close()
	s.trustRegistry.Close()

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
