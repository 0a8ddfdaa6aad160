// Package server wires the wallet service together and serves its HTTP API.
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
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/admin"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/auth"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/config"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/events"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/health"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/metrics"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/oracle"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/ratelimit"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/realtime"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/security"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/stats"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/traces"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/transactions"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/validation"
)

// Version is reported by /health. Set from cmd/server at build time.
var Version = "dev"

const (
	maxRequestBody = 1 << 20
	pingTimeout    = 2 * time.Second
)

// Server wraps the HTTP server and its dependencies
type Server struct {
	cfg         *config.Config
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	db          *sql.DB
	nc          *nats.Conn
	rateLimiter *ratelimit.Limiter
	health      *health.Registry

	accountService *accounts.Service
	authMgr        *auth.Manager
	engine         *transactions.Engine
	aggregator     *stats.Aggregator
	scorer         oracle.Scorer
	hub            *realtime.Hub

	traceShutdown func(context.Context) error
	cancelRunCtx  context.CancelFunc
	healthy       atomic.Bool
	ready         atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithScorer replaces the configured risk oracle client.
func WithScorer(sc oracle.Scorer) Option {
	return func(s *Server) {
		s.scorer = sc
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		health: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(context.Background(), cfg.OTLPEndpoint, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
		s.traceShutdown = shutdown
	}

	var (
		accountStore accounts.Store
		txStore      transactions.Store
		keyStore     auth.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.health.Register(health.Ping("database", pingTimeout, db.PingContext))
		accountStore = accounts.NewPostgresStore(db)
		txStore = transactions.NewPostgresStore(db)
		keyStore = auth.NewPostgresStore(db)
		s.logger.Info("using postgres storage", "dsn", maskDSN(cfg.DatabaseURL))
	} else {
		mem := accounts.NewMemoryStore()
		accountStore = mem
		txStore = transactions.NewMemoryStore(mem)
		keyStore = auth.NewMemoryStore()
		s.logger.Warn("DATABASE_URL not set, using in-memory storage (data is lost on restart)")
	}

	if s.scorer == nil {
		if cfg.OracleURL != "" {
			s.scorer = oracle.New(cfg.OracleURL, cfg.OracleTimeout)
			s.logger.Info("risk oracle enabled", "url", cfg.OracleURL, "timeout", cfg.OracleTimeout)
		} else {
			s.scorer = oracle.Disabled{}
			s.logger.Warn("ORACLE_URL not set, every transfer scores 0")
		}
	}

	s.hub = realtime.NewHub(s.logger)
	notifiers := []transactions.Notifier{s.hub}

	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, s.logger)
		if err != nil {
			s.closeDB()
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		s.nc = nc
		s.health.Register(health.Ping("nats", pingTimeout, events.Ping(nc)))
		notifiers = append(notifiers, events.NewPublisher(nc, cfg.NATSSubject))
		s.logger.Info("publishing transactions to nats", "subject", cfg.NATSSubject)
	}

	s.accountService = accounts.NewService(accountStore, cfg.BcryptCost)
	s.authMgr = auth.NewManager(keyStore, 0)
	s.engine = transactions.NewEngine(accountStore, txStore, s.scorer, transactions.WithNotifiers(notifiers...))
	s.aggregator = stats.NewAggregator(accountStore, txStore)

	if cfg.AdminAccountNumber != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.accountService.EnsureAdmin(ctx, cfg.AdminAccountNumber, cfg.AdminPIN)
		cancel()
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides the password in a database URL for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "postgres://***"
	}
	return u.Redacted()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}))
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(maxRequestBody))

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger.With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if account := auth.GetAuthenticatedAccount(c); account != "" {
			attrs = append(attrs, "account", account)
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request", attrs...)
		case status >= 400:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))

	accountHandler := accounts.NewHandler(s.accountService, s.authMgr)
	accountHandler.RegisterPublicRoutes(v1)

	protected := v1.Group("")
	protected.Use(auth.RequireAuth())
	accountHandler.RegisterRoutes(protected)

	txHandler := transactions.NewHandler(s.engine)
	txHandler.RegisterRoutes(protected)

	staff := v1.Group("")
	staff.Use(auth.RequireRole(string(accounts.RoleEmployee), string(accounts.RoleAdmin)))
	txHandler.RegisterEmployeeRoutes(staff)

	adminGroup := v1.Group("")
	adminGroup.Use(auth.RequireRole(string(accounts.RoleAdmin)))
	admin.NewHandler(s.accountService, s.aggregator, s.engine).
		WithFeed(s.hub).
		RegisterRoutes(adminGroup)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Route not found"})
	})
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Realtime  map[string]any  `json:"realtime,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())
	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Checks:    checks,
		Realtime:  s.hub.Stats(),
		Timestamp: time.Now().UTC(),
	}
	if !ok || !s.healthy.Load() {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
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
	if ok, checks := s.health.CheckAll(c.Request.Context()); !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.hub.Run(runCtx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown drains in-flight requests and releases resources
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.ready.Store(false)

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.traceShutdown != nil {
		if err := s.traceShutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
		}
	}
	s.close()

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

func (s *Server) close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.rateLimiter = nil
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.logger.Warn("nats drain failed", "error", err)
		}
		s.nc = nil
	}
	s.closeDB()
}

func (s *Server) closeDB() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close failed", "error", err)
		}
		s.db = nil
	}
}

// Router returns the gin router, for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
