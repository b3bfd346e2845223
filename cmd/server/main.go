// Package main is the entry point for the Backstage server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/backstage"
	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/circuitbreaker"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/config"
	"github.com/andresdev/backstage/internal/database"
	"github.com/andresdev/backstage/internal/handler"
	"github.com/andresdev/backstage/internal/imaging"
	"github.com/andresdev/backstage/internal/logging"
	"github.com/andresdev/backstage/internal/metrics"
	"github.com/andresdev/backstage/internal/middleware"
	"github.com/andresdev/backstage/internal/ratelimit"
	"github.com/andresdev/backstage/internal/repository"
	"github.com/andresdev/backstage/internal/service"
	"github.com/andresdev/backstage/internal/shutdown"
	"github.com/andresdev/backstage/internal/storage"
	"github.com/andresdev/backstage/migrations"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	sessionSweepInterval = time.Hour
	gaugeInterval        = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := appLogger.Zap()
	defer func() { _ = logger.Sync() }()

	logger.Info("starting Backstage server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("env", cfg.Server.Environment),
		zap.String("version", version),
	)
	if cfg.IsDevelopment() && !cfg.Auth.CookieSecure {
		logger.Warn("development mode: console session cookie is sent without the Secure flag")
	}

	ctx := context.Background()
	clk := clock.New()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := database.NewMigrator(db.Pool, logger).Migrate(ctx, migrations.FS, "."); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Repositories
	chatRepo := repository.NewChatRepository(db.Pool)
	ticketRepo := repository.NewTicketRepository(db.Pool)
	projectRepo := repository.NewProjectRepository(db.Pool)
	operatorRepo := repository.NewOperatorRepository(db.Pool)
	sessionRepo := repository.NewSessionRepository(db.Pool)
	activityRepo := repository.NewActivityRepository(db.Pool)
	idempotencyRepo := repository.NewIdempotencyRepository(db.Pool)

	m := metrics.NewMetrics()
	events := metrics.NewEventLogger(logger)
	auditLogger := audit.NewLogger(logger, activityRepo)

	store, err := storage.NewFS(cfg.Storage.UploadDir, cfg.App.PublicURL+cfg.Storage.PublicPath)
	if err != nil {
		logger.Fatal("failed to initialize upload storage", zap.Error(err))
	}
	logger.Info("upload storage ready", zap.String("dir", store.Root()))

	renderCfg := ratelimit.DefaultRenderLimiterConfig()
	if cfg.Quote.MaxConcurrentRenders > 0 {
		renderCfg.MaxConcurrent = cfg.Quote.MaxConcurrentRenders
	}
	renderLimiter := ratelimit.NewRenderLimiter(renderCfg, clk, logger)
	logger.Info("initialized quote render limiter",
		zap.Int("max_concurrent", renderCfg.MaxConcurrent),
		zap.Int("max_per_minute", renderCfg.PerMinute),
		zap.Int("max_per_hour", renderCfg.PerHour),
	)

	tenants := backstage.New(backstage.Config{
		TenantTimeout: cfg.Backstage.TenantTimeout,
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Backstage.BreakerThreshold,
			Cooldown:         cfg.Backstage.BreakerCooldown,
		},
	}, nil, clk, m, logger.Named("backstage"))

	flow := chatflow.NewFlow(
		chatflow.NewResponder(nil, loadKnowledgeBase(cfg.Support.KnowledgeBaseFile, logger)),
		chatflow.Links{
			CatalogURL:    cfg.Support.CatalogURL,
			WhatsAppURL:   cfg.Support.WhatsAppURL,
			TicketBaseURL: cfg.App.PublicURL + "/soporte/tickets",
		},
	)

	// Services
	chatService := service.NewChatService(chatRepo, projectRepo, clk, m, events, logger)
	ticketService := service.NewTicketService(ticketRepo, database.NewTxManager(db.Pool, logger), clk, auditLogger, m, events, logger)
	botService := service.NewBotService(flow, chatService, ticketService, clk, cfg.Support.TypingDelay, m, logger)
	quoteService := service.NewQuoteService(nil, cfg.Quote, renderLimiter, store, clk, auditLogger, m, events, logger)
	uploadService := service.NewUploadService(store, imaging.DefaultOptions(), cfg.Storage.MaxUploadBytes, m, logger)
	projectService := service.NewProjectService(projectRepo, clk, auditLogger, logger)
	activityService := service.NewActivityService(activityRepo)
	authService := service.NewAuthService(operatorRepo, sessionRepo, cfg.Auth.SessionDuration, clk, auditLogger, m, events, logger)

	sessionAuth := middleware.NewSessionAuth(authService, cfg.Auth.CookieName, logger)
	sessionAuth.OnDenied = func(r *http.Request, reason string) {
		auditLogger.AccessDenied(r.Context(), audit.Actor{
			IP:        middleware.ClientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: middleware.GetRequestID(r.Context()),
		}, r.URL.Path, reason)
	}

	rateLimiter := middleware.NewRateLimiter("api", cfg.RateLimit.Requests, cfg.RateLimit.Window, clk, logger)
	rateLimiter.OnLimit = func(limiter, ip string) {
		m.RecordRateLimitHit(limiter)
		events.RateLimitExceeded(context.Background(), limiter, ip)
	}

	coord := shutdown.NewCoordinator(shutdown.Config{Timeout: 30 * time.Second}, logger)

	h := &handler.Handler{
		Ayuda: handler.NewAyudaHandler(handler.AyudaHandlerConfig{
			Chats:   chatService,
			Tickets: ticketService,
			Bot:     botService,
			Logger:  logger,
		}),
		Tickets: handler.NewTicketHandler(ticketService, logger).
			WithIdempotency(idempotencyRepo, handler.DefaultIdempotencyTTL, clk),
		Quotes: handler.NewQuoteHandler(quoteService, logger),
		Uploads: handler.NewUploadHandler(handler.UploadHandlerConfig{
			Uploads:    uploadService,
			MaxBytes:   cfg.Storage.MaxUploadBytes,
			Files:      store,
			PublicPath: cfg.Storage.PublicPath,
			Logger:     logger,
		}),
		Console: handler.NewConsoleHandler(handler.ConsoleHandlerConfig{
			Auth:         authService,
			Chats:        chatService,
			Projects:     projectService,
			Activity:     activityService,
			Tenants:      tenants,
			LoginLimiter: middleware.NewLoginRateLimiter(clk, logger),
			Audit:        auditLogger,
			Metrics:      m,
			Events:       events,
			Cookie:       handler.CookieConfig{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure},
			ActivityPath: cfg.Backstage.ActivityPath,
			HealthPath:   cfg.Backstage.HealthPath,
			Clock:        clk,
			Logger:       logger,
		}),
		Health: handler.NewHealthHandler(handler.HealthHandlerConfig{
			HealthChecker: db,
			Breakers:      tenants,
			Renders:       quoteService,
			Gate:          coord,
			Version:       version,
			Logger:        logger,
		}),
	}

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(middleware.Correlation)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.Compress(5))
	r.Use(m.Middleware)
	r.Use(middleware.RateLimit(rateLimiter))

	h.RegisterRoutes(r, sessionAuth.Middleware)
	r.Handle("/metrics", m.Handler())
	handler.NewLogLevelHandler(appLogger.AtomicLevel(), logger).RegisterRoutes(r, sessionAuth.Middleware)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	workers, stopWorkers := context.WithCancel(ctx)
	workersDone := startWorkers(workers, func(ctx context.Context) {
		authService.RunSessionSweeper(ctx, sessionSweepInterval)
	}, rateLimiter.RunCleanup, func(ctx context.Context) {
		sampleGauges(ctx, gaugeInterval, db, tenants, m)
	}, func(ctx context.Context) {
		runPurge(ctx, sessionSweepInterval, "idempotency keys", idempotencyRepo.DeleteExpired, logger)
	})

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()
	auditLogger.ServiceStarted(ctx, version)

	coord.RegisterFunc(shutdown.PhaseHTTP, "http-server", server.Shutdown)
	coord.RegisterFunc(shutdown.PhaseWorkers, "background-workers", func(ctx context.Context) error {
		stopWorkers()
		select {
		case <-workersDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	coord.RegisterFunc(shutdown.PhaseStorage, "database", func(ctx context.Context) error {
		db.Close()
		return nil
	})
	coord.RegisterFunc(shutdown.PhaseFlush, "logger", func(ctx context.Context) error {
		_ = logger.Sync()
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	auditLogger.ServiceStopping(ctx, sig.String())

	if err := coord.Shutdown(ctx); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
	}
}

// initLogger builds the process logger from the log and server settings.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
	})
}

// loadKnowledgeBase reads the FAQ file, falling back to the built-in
// entries when no file is configured or it cannot be read.
func loadKnowledgeBase(path string, logger *zap.Logger) chatflow.KnowledgeBase {
	if path == "" {
		return chatflow.DefaultKnowledgeBase
	}
	kb, err := chatflow.LoadKnowledgeBase(path)
	if err != nil {
		logger.Warn("using built-in knowledge base", zap.String("path", path), zap.Error(err))
		return chatflow.DefaultKnowledgeBase
	}
	logger.Info("loaded knowledge base", zap.String("path", path), zap.Int("entries", len(kb)))
	return kb
}

// startWorkers runs each loop in its own goroutine. The returned channel is
// closed once all of them have returned.
func startWorkers(ctx context.Context, loops ...func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	remaining := make(chan struct{}, len(loops))
	for _, loop := range loops {
		go func(loop func(context.Context)) {
			defer func() { remaining <- struct{}{} }()
			loop(ctx)
		}(loop)
	}
	go func() {
		for range loops {
			<-remaining
		}
		close(done)
	}()
	return done
}

// runPurge calls purge every interval until ctx is canceled.
func runPurge(ctx context.Context, interval time.Duration, name string, purge func(context.Context) (int64, error), logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				logger.Error("purge failed", zap.String("what", name), zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("purged expired rows", zap.String("what", name), zap.Int64("rows", n))
			}
		}
	}
}

// sampleGauges copies pool and breaker state into the Prometheus gauges.
func sampleGauges(ctx context.Context, interval time.Duration, db *database.DB, tenants handler.BreakerReporter, m *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		recordGauges(db, tenants, m)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func recordGauges(db *database.DB, tenants handler.BreakerReporter, m *metrics.Metrics) {
	if db != nil {
		st := db.Stats()
		m.UpdateDBConnections(int(st.TotalConns()), int(st.AcquiredConns()))
	}
	for _, b := range tenants.Breakers() {
		m.SetCircuitBreakerState(b.Name, breakerGauge(b.State))
	}
}

// breakerGauge maps a breaker state name to the gauge value:
// 0 closed, 1 open, 2 half-open.
func breakerGauge(state string) int {
	switch state {
	case circuitbreaker.StateOpen.String():
		return 1
	case circuitbreaker.StateHalfOpen.String():
		return 2
	default:
		return 0
	}
}
