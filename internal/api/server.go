package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"okx-trading-bot/internal/auth"
	"okx-trading-bot/internal/backtest"
	"okx-trading-bot/internal/bot"
	"okx-trading-bot/internal/cache"
	"okx-trading-bot/internal/database"
	"okx-trading-bot/internal/engine"
	"okx-trading-bot/internal/events"
	"okx-trading-bot/internal/logging"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// BotAPI defines the methods the bot must expose to the API
type BotAPI interface {
	Start(ctx context.Context)
	Stop()
	IsRunning() bool
	Status() bot.Status
	Summary() engine.Metrics
	Symbol() string
	SetSymbol(symbol string)
	Mode() string
	SetMode(mode string) bool
	Settings() bot.Settings
	ApplySettings(s bot.Settings) error
}

// BacktestAPI defines the backtest runner surface the API needs
type BacktestAPI interface {
	Run(ctx context.Context, opts backtest.Options) (*engine.Result, string, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
}

// Server represents the HTTP API server
type Server struct {
	router        *gin.Engine
	httpServer    *http.Server
	repo          *database.Repository
	eventBus      *events.EventBus
	botAPI        BotAPI
	backtester    BacktestAPI
	cache         *cache.Service
	authService   *auth.Service
	authEnabled   bool
	config        ServerConfig
	rateLimiter   *RateLimiter
	logger        *logging.Logger
	wsHub         *WSHub
	notifications *events.History
}

// NewServer creates a new API server. authService and cacheSvc may be nil
// when those features are disabled.
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	eventBus *events.EventBus,
	botAPI BotAPI,
	backtester BacktestAPI,
	cacheSvc *cache.Service,
	authService *auth.Service,
	logger *logging.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Disposition"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:        router,
		repo:          repo,
		eventBus:      eventBus,
		botAPI:        botAPI,
		backtester:    backtester,
		cache:         cacheSvc,
		authService:   authService,
		authEnabled:   authService != nil,
		config:        config,
		rateLimiter:   NewRateLimiter(120, time.Minute),
		logger:        logger.WithComponent("api"),
		notifications: events.NewHistory(200),
	}

	eventBus.SubscribeAll(server.notifications.Record)
	server.wsHub = InitWebSocket(eventBus, server.logger)
	server.setupRoutes()

	return server
}

// rateLimitMiddleware rate limits requests by endpoint path
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"path":  path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Auth status and login (public)
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authEnabled})
	})
	if s.authEnabled {
		s.router.POST("/api/login", s.handleLogin)
	}

	// API routes (protected when auth is enabled)
	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	if s.authEnabled {
		api.Use(s.authService.Middleware())
	}

	{
		api.GET("/ping", s.handlePing)

		// Bot control
		api.GET("/bot/status", s.handleBotStatus)
		api.POST("/bot/start", s.handleBotStart)
		api.POST("/bot/stop", s.handleBotStop)

		// Trading configuration
		api.GET("/config", s.handleGetConfig)
		api.POST("/config", s.handleUpdateConfig)
		api.GET("/trading_mode", s.handleGetTradingMode)
		api.POST("/trading_mode", s.handleSetTradingMode)
		api.GET("/symbol", s.handleGetSymbol)
		api.POST("/symbol", s.handleSetSymbol)

		// Performance and decisions
		api.GET("/summary", s.handleSummary)
		api.GET("/ai_decision", s.handleLatestDecision)
		api.GET("/decision_history", s.handleDecisionHistory)
		api.GET("/decision_history/export", s.handleExportDecisions)
		api.POST("/decision_history/clear", s.handleClearDecisions)

		// Simulated positions
		api.GET("/positions", s.handlePositions)

		// Notifications
		api.GET("/notifications", s.handleNotifications)
		api.POST("/notifications/clear", s.handleClearNotifications)

		// Backtests
		api.POST("/backtest", s.handleRunBacktest)
		api.GET("/backtest/runs", s.handleBacktestRuns)
		api.GET("/backtest/runs/:run_id/trades", s.handleBacktestTrades)
	}

	// WebSocket endpoint
	s.router.GET("/ws", s.handleWebSocket)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
